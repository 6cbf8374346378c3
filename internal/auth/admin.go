package auth

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthorized never says which check failed.
var ErrUnauthorized = errors.New("unauthorized")

// Admin is proof of an authenticated admin session. Privileged repository
// operations take it as an explicit argument instead of consulting ambient
// request state, so tests can construct one directly.
type Admin struct {
	Subject   string
	Name      string
	SessionID string
	ExpiresAt time.Time
}

// Authorized reports whether a is a live admin capability at now.
func (a Admin) Authorized(now time.Time) bool {
	if a.Subject == "" {
		return false
	}
	return a.ExpiresAt.IsZero() || now.Before(a.ExpiresAt)
}

// Require returns ErrUnauthorized unless a is authorized at now.
func Require(a Admin, now time.Time) error {
	if !a.Authorized(now) {
		return ErrUnauthorized
	}
	return nil
}

type adminKey struct{}

func WithAdmin(ctx context.Context, a Admin) context.Context {
	return context.WithValue(ctx, adminKey{}, a)
}

// AdminFrom returns the admin a middleware attached to ctx.
func AdminFrom(ctx context.Context) (Admin, bool) {
	a, ok := ctx.Value(adminKey{}).(Admin)
	return a, ok
}
