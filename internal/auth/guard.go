package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/util"
)

// SessionStore tracks which issued tokens are still live, so logout can
// revoke a token before it expires.
type SessionStore interface {
	Save(ctx context.Context, sessionID, subject string, expiresAt time.Time) error
	// Subject returns who owns a live session; ok is false once it has
	// expired or been revoked.
	Subject(ctx context.Context, sessionID string) (subject string, ok bool, err error)
	Revoke(ctx context.Context, sessionID string) error
}

// Guard issues and checks admin session tokens.
type Guard struct {
	secret   []byte
	sessions SessionStore
	ttl      time.Duration
	now      func() time.Time
}

func NewGuard(secret []byte, sessions SessionStore, ttl time.Duration) *Guard {
	return &Guard{secret: secret, sessions: sessions, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Tests only.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

func (g *Guard) TTL() time.Duration {
	return g.ttl
}

// Issue starts a new session for subject and returns its bearer token.
func (g *Guard) Issue(ctx context.Context, subject, name string) (string, Admin, error) {
	now := g.now()
	admin := Admin{
		Subject:   subject,
		Name:      name,
		SessionID: util.NewID("sess"),
		ExpiresAt: now.Add(g.ttl).Truncate(time.Second),
	}
	token, err := IssueToken(g.secret, Claims{
		Sub:  admin.Subject,
		Name: admin.Name,
		JTI:  admin.SessionID,
		Iat:  now.Unix(),
		Exp:  admin.ExpiresAt.Unix(),
	})
	if err != nil {
		return "", Admin{}, err
	}
	if err := g.sessions.Save(ctx, admin.SessionID, admin.Subject, admin.ExpiresAt); err != nil {
		return "", Admin{}, fmt.Errorf("save session: %w", err)
	}
	return token, admin, nil
}

// Authenticate turns a bearer token into an Admin. Bad, expired and revoked
// tokens all yield ErrUnauthorized; session store failures are returned as is.
func (g *Guard) Authenticate(ctx context.Context, token string) (Admin, error) {
	if token == "" {
		return Admin{}, ErrUnauthorized
	}
	claims, err := ParseToken(g.secret, token, g.now())
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrExpiredToken) {
			return Admin{}, ErrUnauthorized
		}
		return Admin{}, err
	}
	owner, ok, err := g.sessions.Subject(ctx, claims.JTI)
	if err != nil {
		return Admin{}, fmt.Errorf("check session: %w", err)
	}
	if !ok || owner != claims.Sub {
		return Admin{}, ErrUnauthorized
	}
	return Admin{
		Subject:   claims.Sub,
		Name:      claims.Name,
		SessionID: claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Revoke ends the session behind a. Revoking twice is not an error.
func (g *Guard) Revoke(ctx context.Context, a Admin) error {
	if a.SessionID == "" {
		return nil
	}
	return g.sessions.Revoke(ctx, a.SessionID)
}
