package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestSaveAndCheckSession(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Save(ctx, "sess_1", "admin", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	subject, ok, err := store.Subject(ctx, "sess_1")
	if err != nil || !ok || subject != "admin" {
		t.Fatalf("Subject() = %q, %v, %v", subject, ok, err)
	}
	if ttl := s.TTL("admin-session:sess_1"); ttl <= 0 || ttl > time.Hour {
		t.Errorf("unexpected ttl %v", ttl)
	}
}

func TestSessionExpires(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Save(ctx, "sess_1", "admin", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	_, ok, err := store.Subject(ctx, "sess_1")
	if err != nil {
		t.Fatalf("Subject failed: %v", err)
	}
	if ok {
		t.Error("expected session to expire")
	}
}

func TestRevokeSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Save(ctx, "sess_1", "admin", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Revoke(ctx, "sess_1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := store.Revoke(ctx, "sess_1"); err != nil {
		t.Fatalf("second Revoke failed: %v", err)
	}
	if _, ok, _ := store.Subject(ctx, "sess_1"); ok {
		t.Error("expected no subject for revoked session")
	}
}

func TestSaveRejectsExpired(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Save(context.Background(), "sess_1", "admin", time.Now().Add(-time.Second)); err == nil {
		t.Fatal("expected error saving an expired session")
	}
}

func TestRedisUnavailable(t *testing.T) {
	store, s := setupTestRedis(t)
	s.Close()

	if _, _, err := store.Subject(context.Background(), "sess_1"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	if err := store.Save(ctx, "sess_1", "admin", now.Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if subject, ok, _ := store.Subject(ctx, "sess_1"); !ok || subject != "admin" {
		t.Fatalf("expected live session owned by admin, got %q %v", subject, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok, _ := store.Subject(ctx, "sess_1"); ok {
		t.Fatal("expected session to expire")
	}

	now = now.Add(-2 * time.Hour)
	_ = store.Save(ctx, "sess_2", "admin", now.Add(time.Hour))
	_ = store.Revoke(ctx, "sess_2")
	if _, ok, _ := store.Subject(ctx, "sess_2"); ok {
		t.Fatal("expected revoked session to be inactive")
	}
}
