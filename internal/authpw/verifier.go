// Package authpw checks the shared admin password.
package authpw

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Verifier compares login attempts against a single bcrypt hash.
type Verifier struct {
	hash []byte
}

// NewVerifier accepts a bcrypt hash such as the value of ADMIN_PASSWORD_HASH.
func NewVerifier(hash string) (*Verifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("admin password hash: %w", err)
	}
	return &Verifier{hash: []byte(hash)}, nil
}

// NewVerifierFromPassword hashes a plaintext password at startup. Intended
// for development where only ADMIN_PASSWORD is set.
func NewVerifierFromPassword(password string, cost int) (*Verifier, error) {
	if password == "" {
		return nil, errors.New("admin password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &Verifier{hash: hash}, nil
}

func (v *Verifier) Verify(password string) error {
	if password == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Hash generates a hash suitable for ADMIN_PASSWORD_HASH.
func Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
