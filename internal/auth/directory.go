package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"attendo/internal/store"
)

// Storage keys owned by this package.
const (
	DirectoryKey        = "identity-directory"
	SessionKey          = "current-session"
	CredentialKeyPrefix = "credential:"
)

// CredentialKey is the key holding the credential of identity id.
func CredentialKey(id string) string { return CredentialKeyPrefix + id }

// Directory is the registry of identities and their credentials.
type Directory struct {
	kv     store.KV
	hasher Hasher
	now    func() time.Time
	newID  func() string
}

// DirectoryOption customizes a Directory.
type DirectoryOption func(*Directory)

// WithClock overrides the clock used for creation timestamps.
func WithClock(now func() time.Time) DirectoryOption {
	return func(d *Directory) { d.now = now }
}

// WithIDGenerator overrides identity id generation.
func WithIDGenerator(newID func() string) DirectoryOption {
	return func(d *Directory) { d.newID = newID }
}

// NewDirectory creates a directory over kv. A nil hasher defaults to bcrypt.
func NewDirectory(kv store.KV, hasher Hasher, opts ...DirectoryOption) *Directory {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	d := &Directory{kv: kv, hasher: hasher, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Create registers a new identity with its credential.
func (d *Directory) Create(ctx context.Context, email, secret, name string, role Role) (Identity, error) {
	email = NormalizeEmail(email)
	if email == "" || secret == "" {
		return Identity{}, fmt.Errorf("%w: email and secret required", ErrInvalidInput)
	}
	if !role.Valid() {
		return Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	// fail fast before paying for a hash
	if _, err := d.findByEmail(ctx, email); err == nil {
		return Identity{}, ErrDuplicateIdentity
	} else if !errors.Is(err, ErrNotFound) {
		return Identity{}, err
	}

	hashed, err := d.hasher.Hash(secret)
	if err != nil {
		return Identity{}, fmt.Errorf("hash secret: %w", err)
	}

	id := Identity{
		ID:        d.newID(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Role:      role,
		CreatedAt: d.now().UTC(),
	}

	// An orphaned credential is harmless; an identity without one is not.
	raw, err := json.Marshal(credential{IdentityID: id.ID, Secret: hashed})
	if err != nil {
		return Identity{}, store.Fail("encode credential", err)
	}
	if err := d.kv.Put(ctx, CredentialKey(id.ID), raw); err != nil {
		return Identity{}, store.Fail("store credential", err)
	}

	err = d.kv.Update(ctx, DirectoryKey, func(current []byte) ([]byte, error) {
		all, err := decodeIdentities(current)
		if err != nil {
			return nil, err
		}
		for _, existing := range all {
			if existing.Email == email {
				return nil, ErrDuplicateIdentity
			}
		}
		return json.Marshal(append(all, id))
	})
	if errors.Is(err, ErrDuplicateIdentity) {
		_ = d.kv.Delete(ctx, CredentialKey(id.ID))
		return Identity{}, err
	}
	if err != nil {
		return Identity{}, store.Fail("store identity directory", err)
	}
	return id, nil
}

// Authenticate checks secret against the credential of the identity registered under email.
func (d *Directory) Authenticate(ctx context.Context, email, secret string) (Identity, error) {
	id, err := d.findByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return Identity{}, err
	}

	raw, err := d.kv.Get(ctx, CredentialKey(id.ID))
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, ErrInvalidCredential
	}
	if err != nil {
		return Identity{}, store.Fail("load credential", err)
	}
	var cred credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Identity{}, store.Fail("decode credential", err)
	}
	if cred.IdentityID != id.ID || !d.hasher.Compare(cred.Secret, secret) {
		return Identity{}, ErrInvalidCredential
	}
	return id, nil
}

// Lookup returns the identity with the given id.
func (d *Directory) Lookup(ctx context.Context, id string) (Identity, error) {
	all, err := d.List(ctx)
	if err != nil {
		return Identity{}, err
	}
	for _, ident := range all {
		if ident.ID == id {
			return ident, nil
		}
	}
	return Identity{}, ErrNotFound
}

// List returns every identity in registration order.
func (d *Directory) List(ctx context.Context) ([]Identity, error) {
	raw, err := d.kv.Get(ctx, DirectoryKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Fail("load identity directory", err)
	}
	all, err := decodeIdentities(raw)
	if err != nil {
		return nil, store.Fail("decode identity directory", err)
	}
	return all, nil
}

func (d *Directory) findByEmail(ctx context.Context, email string) (Identity, error) {
	all, err := d.List(ctx)
	if err != nil {
		return Identity{}, err
	}
	for _, ident := range all {
		if ident.Email == email {
			return ident, nil
		}
	}
	return Identity{}, ErrNotFound
}

func decodeIdentities(raw []byte) ([]Identity, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var all []Identity
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	for i, ident := range all {
		if err := ident.validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return all, nil
}
