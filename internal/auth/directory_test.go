package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"attendo/internal/store"
)

var fixedNow = time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)

func newTestDirectory(kv store.KV, hasher Hasher) *Directory {
	n := 0
	return NewDirectory(kv, hasher,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			n++
			return "id-" + string(rune('0'+n))
		}),
	)
}

func TestDirectory_CreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(store.NewMemory(), BcryptHasher{Cost: bcrypt.MinCost})

	ident, err := dir.Create(ctx, " Ada@Example.com ", "s3cret", "Ada", RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "id-1", Email: "ada@example.com", Name: "Ada", Role: RoleStudent, CreatedAt: fixedNow}, ident)

	got, err := dir.Authenticate(ctx, "ADA@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, ident, got)

	_, err = dir.Authenticate(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = dir.Authenticate(ctx, "nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectory_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	dir := newTestDirectory(kv, PlainHasher{})

	_, err := dir.Create(ctx, "ada@example.com", "one", "Ada", RoleStudent)
	require.NoError(t, err)
	before, err := kv.Get(ctx, DirectoryKey)
	require.NoError(t, err)

	_, err = dir.Create(ctx, "ada@example.com", "two", "Imposter", RoleAdmin)
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	after, err := kv.Get(ctx, DirectoryKey)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	keys, err := kv.List(ctx, CredentialKeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"credential:id-1"}, keys)
}

func TestDirectory_InvalidInput(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(store.NewMemory(), PlainHasher{})

	_, err := dir.Create(ctx, "", "x", "n", RoleStudent)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = dir.Create(ctx, "a@b.c", "", "n", RoleStudent)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = dir.Create(ctx, "a@b.c", "x", "n", Role("guest"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// Secrets are hashed by default; the original demo kept them as plain text.
func TestDirectory_StoresHashedSecretByDefault(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	dir := NewDirectory(kv, nil)
	require.IsType(t, BcryptHasher{}, dir.hasher)
	dir.hasher = BcryptHasher{Cost: bcrypt.MinCost}

	ident, err := dir.Create(ctx, "ada@example.com", "s3cret", "Ada", RoleStudent)
	require.NoError(t, err)

	raw, err := kv.Get(ctx, CredentialKey(ident.ID))
	require.NoError(t, err)
	var cred credential
	require.NoError(t, json.Unmarshal(raw, &cred))
	assert.Equal(t, ident.ID, cred.IdentityID)
	assert.NotEqual(t, "s3cret", cred.Secret)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(cred.Secret), []byte("s3cret")))
}

func TestDirectory_PlainHasherStoresVerbatim(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	dir := newTestDirectory(kv, PlainHasher{})

	ident, err := dir.Create(ctx, "ada@example.com", "s3cret", "Ada", RoleStudent)
	require.NoError(t, err)

	raw, err := kv.Get(ctx, CredentialKey(ident.ID))
	require.NoError(t, err)
	assert.JSONEq(t, `{"identity_id":"id-1","secret":"s3cret"}`, string(raw))
}

func TestDirectory_LookupAndList(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(store.NewMemory(), PlainHasher{})

	all, err := dir.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	a, err := dir.Create(ctx, "a@example.com", "x", "A", RoleAdmin)
	require.NoError(t, err)
	b, err := dir.Create(ctx, "b@example.com", "x", "B", RoleStudent)
	require.NoError(t, err)

	all, err = dir.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Identity{a, b}, all)

	got, err := dir.Lookup(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = dir.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectory_MalformedDirectory(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	require.NoError(t, kv.Put(ctx, DirectoryKey, []byte(`{not json`)))
	dir := newTestDirectory(kv, PlainHasher{})

	_, err := dir.Authenticate(ctx, "a@example.com", "x")
	assert.ErrorIs(t, err, store.ErrPersistence)

	_, err = dir.Create(ctx, "a@example.com", "x", "A", RoleStudent)
	assert.ErrorIs(t, err, store.ErrPersistence)

	require.NoError(t, kv.Put(ctx, DirectoryKey, []byte(`[{"id":"","email":"a@example.com","role":"admin"}]`)))
	_, err = dir.List(ctx)
	assert.ErrorIs(t, err, store.ErrPersistence)
}

func TestNewHasher(t *testing.T) {
	h, err := NewHasher("")
	require.NoError(t, err)
	assert.IsType(t, BcryptHasher{}, h)

	h, err = NewHasher("plain")
	require.NoError(t, err)
	assert.IsType(t, PlainHasher{}, h)
	assert.True(t, h.Compare("abc", "abc"))
	assert.False(t, h.Compare("abc", "abd"))

	_, err = NewHasher("md5")
	assert.Error(t, err)
}
