package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns secrets into their stored form and checks candidates against it.
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(stored, secret string) bool
}

// BcryptHasher stores bcrypt digests.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	return string(b), err
}

func (h BcryptHasher) Compare(stored, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(secret)) == nil
}

// PlainHasher stores secrets verbatim. It exists for compatibility with
// demo data sets and must not be used where credentials matter.
type PlainHasher struct{}

func (PlainHasher) Hash(secret string) (string, error) { return secret, nil }

func (PlainHasher) Compare(stored, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(secret)) == 1
}

// NewHasher returns the hasher named by mode: "bcrypt" (default) or "plain".
func NewHasher(mode string) (Hasher, error) {
	switch mode {
	case "", "bcrypt":
		return BcryptHasher{}, nil
	case "plain":
		return PlainHasher{}, nil
	default:
		return nil, fmt.Errorf("unknown credential hashing %q", mode)
	}
}

// credential is the stored secret of one identity.
type credential struct {
	IdentityID string `json:"identity_id"`
	Secret     string `json:"secret"`
}
