// Package auth gates desk operations behind a configured staff allowlist.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotAllowed is returned for identities missing from the allowlist.
	ErrNotAllowed = errors.New("not on the staff allowlist")

	// ErrBadCredentials is returned when the password does not match.
	ErrBadCredentials = errors.New("bad credentials")
)

// Account is one permitted staff identity.
type Account struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// Gate checks staff credentials against an immutable allowlist.
type Gate struct {
	accounts map[string]string
}

// NewGate builds a gate from accounts. Later duplicates win.
func NewGate(accounts []Account) *Gate {
	g := &Gate{accounts: make(map[string]string, len(accounts))}
	for _, a := range accounts {
		g.accounts[normalize(a.Username)] = a.PasswordHash
	}
	return g
}

// Open reports whether the allowlist is empty, in which case every caller is
// let through.
func (g *Gate) Open() bool { return len(g.accounts) == 0 }

// Allowed reports whether username is on the allowlist.
func (g *Gate) Allowed(username string) bool {
	if g.Open() {
		return true
	}
	_, ok := g.accounts[normalize(username)]
	return ok
}

// Authorize checks username and password.
func (g *Gate) Authorize(username, password string) error {
	if g.Open() {
		return nil
	}
	hash, ok := g.accounts[normalize(username)]
	if !ok {
		return fmt.Errorf("%q: %w", username, ErrNotAllowed)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for an Account.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
