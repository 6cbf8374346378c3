// Package loggertest provides a logger.Logger that writes through testing.TB.
package loggertest

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/logger"
)

// New routes log output to t, so it only shows for failing tests.
func New(t testing.TB) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}
