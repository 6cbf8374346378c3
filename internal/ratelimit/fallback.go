package ratelimit

import (
	"context"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/logger"
)

// Fallback prefers primary and drops to secondary while primary errors.
// Limiting is best effort, so a dead Redis never blocks submissions.
type Fallback struct {
	primary   Limiter
	secondary Limiter
	log       logger.Logger
}

func NewFallback(primary, secondary Limiter, log logger.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, log: log}
}

func (f *Fallback) Allow(ctx context.Context, key string) (Decision, error) {
	d, err := f.primary.Allow(ctx, key)
	if err == nil {
		return d, nil
	}
	f.log.Warn("primary rate limiter failed, using in-memory counters", map[string]interface{}{"error": err})
	return f.secondary.Allow(ctx, key)
}
