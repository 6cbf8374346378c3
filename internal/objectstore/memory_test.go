package objectstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.PutObject(ctx, "leads/2024/03/2-b.json", []byte(`{"id":"b"}`), "application/json"))
	require.NoError(t, s.PutObject(ctx, "leads/2024/03/1-a.json", []byte(`{"id":"a"}`), "application/json"))
	require.NoError(t, s.PutObject(ctx, "leads/2024/04/1-c.json", []byte(`{"id":"c"}`), "application/json"))

	keys, err := s.ListKeys(ctx, "leads/2024/03/")
	require.NoError(t, err)
	assert.Equal(t, []string{"leads/2024/03/1-a.json", "leads/2024/03/2-b.json"}, keys)

	data, err := s.GetObject(ctx, "leads/2024/04/1-c.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c"}`, string(data))

	ct, ok := s.ContentType("leads/2024/03/1-a.json")
	assert.True(t, ok)
	assert.Equal(t, "application/json", ct)
}

func TestMemoryStoreEmptyPrefixIsNotAnError(t *testing.T) {
	keys, err := NewMemoryStore().ListKeys(context.Background(), "leads/1999/01/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryStoreMissingKey(t *testing.T) {
	_, err := NewMemoryStore().GetObject(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreOverwriteIsWholeObject(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.PutObject(ctx, "k", []byte("first version"), "text/plain"))
	require.NoError(t, s.PutObject(ctx, "k", []byte("v2"), "text/plain"))

	data, err := s.GetObject(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestMemoryStoreInjectedFailure(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.FailOn("list", ErrUnavailable)

	_, err := s.ListKeys(ctx, "")
	assert.ErrorIs(t, err, ErrUnavailable)

	s.FailOn("list", nil)
	_, err = s.ListKeys(ctx, "")
	assert.NoError(t, err)
}

func TestMemoryStoreClassifiesInjectedFailures(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.PutObject(ctx, "k", []byte("v"), "text/plain"))

	raw := errors.New("connection refused")
	for _, op := range []string{"list", "get", "put", "sign", "ping"} {
		s.FailOn(op, raw)
	}

	_, err := s.ListKeys(ctx, "")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = s.GetObject(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.PutObject(ctx, "k", []byte("v2"), "text/plain"), ErrUnavailable)
	_, err = s.SignedReadURL(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)
	err = s.Ping(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "connection refused")

	s.FailOn("get", ErrNotFound)
	_, err = s.GetObject(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestMemoryStoreSignedURL(t *testing.T) {
	u, err := NewMemoryStore().SignedReadURL(context.Background(), "drivers-licenses/x.jpg", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "memory://objects/"))
	assert.Contains(t, u, "expires=")
}
