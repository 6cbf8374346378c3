package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is used when no Redis is configured. Sessions do not survive a
// restart and are not shared between replicas.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]record
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]record{}, now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, sessionID, subject string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	s.sessions[sessionID] = record{Subject: subject, CreatedAt: now, ExpiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) Subject(_ context.Context, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(rec.ExpiresAt) {
		delete(s.sessions, sessionID)
		return "", false, nil
	}
	return rec.Subject, true, nil
}

func (s *MemoryStore) Revoke(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for id, rec := range s.sessions {
		if !now.Before(rec.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}
