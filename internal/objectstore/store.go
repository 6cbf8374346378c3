// Package objectstore is the thin adapter over the S3-compatible bucket that
// holds lead records and uploaded licenses.
package objectstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by GetObject when the key does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrUnavailable wraps transport and credential failures.
	ErrUnavailable = errors.New("object storage unavailable")
)

// Store is the capability set the lead repository needs from a bucket.
// Writes are atomic per key and reads after a completed write observe it.
type Store interface {
	// ListKeys returns every key under prefix in lexical order.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	// SignedReadURL grants time-limited read access without credentials.
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Ping(ctx context.Context) error
}
