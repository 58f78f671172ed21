// Package auth implements PIN login, session tokens and user administration.
package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PINManager prepares PINs for storage and checks login attempts against
// the stored form
type PINManager interface {
	Hash(pin string) (string, error)
	Verify(stored, pin string) bool
}

// PlainPINManager stores PINs as entered
type PlainPINManager struct{}

func (PlainPINManager) Hash(pin string) (string, error) { return pin, nil }

// Verify compares in constant time
func (PlainPINManager) Verify(stored, pin string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(pin)) == 1
}

// BcryptPINManager stores bcrypt hashes of PINs
type BcryptPINManager struct {
	cost int
}

// NewBcryptPINManager creates a bcrypt PIN manager with the default cost
func NewBcryptPINManager() *BcryptPINManager {
	return &BcryptPINManager{cost: bcrypt.DefaultCost}
}

// Hash hashes a PIN using bcrypt
func (m *BcryptPINManager) Hash(pin string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(pin), m.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash pin: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether pin matches the stored hash. A stored value that
// is not a bcrypt hash never matches.
func (m *BcryptPINManager) Verify(stored, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(pin)) == nil
}

// NewPINManager picks the manager for the configured storage mode
func NewPINManager(hashPINs bool) PINManager {
	if hashPINs {
		return NewBcryptPINManager()
	}
	return PlainPINManager{}
}
