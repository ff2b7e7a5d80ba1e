package auth

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrDuplicateIdentity = errors.New("identity already exists")
	ErrNotFound          = errors.New("identity not found")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrInvalidInput      = errors.New("invalid input")
)

// Role is the permission level of an identity.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStudent
}

// Identity is a registered user. It is never mutated after registration.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// IsAdmin reports whether the identity may see every attendance record.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

func (i Identity) validate() error {
	if i.ID == "" || i.Email == "" || !i.Role.Valid() {
		return errors.New("malformed identity")
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email for comparison and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
