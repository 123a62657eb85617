package identity

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned when a custodian ID or secret does not match.
var ErrBadCredentials = errors.New("invalid custodian credentials")

// Custodians holds the custodians permitted to request tokens, keyed by ID,
// with bcrypt-hashed secrets.
type Custodians struct {
	mu     sync.RWMutex
	hashes map[string][]byte
}

// NewCustodians creates an empty custodian set.
func NewCustodians() *Custodians {
	return &Custodians{hashes: make(map[string][]byte)}
}

// AddHash registers a custodian with an existing bcrypt hash.
func (c *Custodians) AddHash(id, hash string) error {
	if id == "" {
		return fmt.Errorf("custodian id is required")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("custodian %s: invalid bcrypt hash: %w", id, err)
	}
	c.mu.Lock()
	c.hashes[id] = []byte(hash)
	c.mu.Unlock()
	return nil
}

// Add registers a custodian with a plaintext secret.
func (c *Custodians) Add(id, secret string) error {
	hash, err := HashSecret(secret)
	if err != nil {
		return err
	}
	return c.AddHash(id, hash)
}

// Len returns the number of registered custodians.
func (c *Custodians) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hashes)
}

// Authenticate checks id and secret. Unknown IDs and wrong secrets both
// return ErrBadCredentials.
func (c *Custodians) Authenticate(id, secret string) error {
	c.mu.RLock()
	hash, ok := c.hashes[id]
	c.mu.RUnlock()
	if !ok {
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// HashSecret bcrypt-hashes a custodian secret for configuration files.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}
