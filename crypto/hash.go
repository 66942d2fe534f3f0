package crypto

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type HashConfig struct {
	Cost int `envconfig:"BCRYPT_COST" default:"12" yaml:"cost"`
}

type Hasher struct {
	cost int
}

func NewHasher(cfg HashConfig) *Hasher {
	cost := cfg.Cost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 12
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password cannot be empty")
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("crypto: failed to hash password: %w", err)
	}
	return string(bytes), nil
}

func CheckPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// IsHashed reports whether v looks like a bcrypt hash ($2a$, $2b$, $2y$).
func IsHashed(v string) bool {
	if len(v) != 60 {
		return false
	}
	return strings.HasPrefix(v, "$2a$") || strings.HasPrefix(v, "$2b$") || strings.HasPrefix(v, "$2y$")
}

// SecretEqual compares two protected values without exposing either.
// A hash and a plaintext are equal when the plaintext matches the hash;
// two hashes (or two plaintexts) must be identical.
func SecretEqual(a, b string) bool {
	switch {
	case IsHashed(a) && !IsHashed(b):
		return CheckPassword(a, b)
	case IsHashed(b) && !IsHashed(a):
		return CheckPassword(b, a)
	default:
		return a == b
	}
}
