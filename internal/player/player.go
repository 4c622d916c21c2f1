// Package player holds player accounts and password hashing.
package player

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the required length of the salt passed to HashPassword.
	SaltSize = 60
	// Iterations is the pbkdf2 round count.
	Iterations = 100000

	saltPrefix = sha256.Size * 2
)

// ErrSalt is returned when the salt is not SaltSize bytes.
var ErrSalt = errors.New("salt value not 60 bytes")

// Player is an account that can host or join game instances.
type Player struct {
	ID    uuid.UUID
	Email string
	// Password is the stored hash, never the plain text.
	Password string
}

// New creates a player with a fresh id from an already hashed password.
func New(email, hashedPassword string) *Player {
	return &Player{ID: uuid.New(), Email: email, Password: hashedPassword}
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}
	return salt, nil
}

// HashPassword derives the stored form of password: the hex sha256 of the
// salt followed by the hex pbkdf2-sha512 hash keyed by that prefix.
func HashPassword(password string, salt []byte) (string, error) {
	if len(salt) != SaltSize {
		return "", ErrSalt
	}
	sum := sha256.Sum256(salt)
	prefix := hex.EncodeToString(sum[:])
	return prefix + derive(password, prefix), nil
}

// VerifyPassword reports whether provided matches the stored hash.
func VerifyPassword(stored, provided string) bool {
	if len(stored) <= saltPrefix {
		return false
	}
	prefix, want := stored[:saltPrefix], stored[saltPrefix:]
	got := derive(provided, prefix)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Authenticate reports whether password belongs to p.
func (p *Player) Authenticate(password string) bool {
	return VerifyPassword(p.Password, password)
}

func derive(password, prefix string) string {
	key := pbkdf2.Key([]byte(password), []byte(prefix), Iterations, sha512.Size, sha512.New)
	return hex.EncodeToString(key)
}
