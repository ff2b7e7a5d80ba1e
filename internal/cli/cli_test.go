package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendo/internal/attendance"
	"attendo/internal/auth"
	"attendo/internal/config"
	"attendo/internal/store"
)

var testConfig = config.App{
	TimeZone:         "UTC",
	Auth:             config.Auth{CredentialHashing: "plain"},
	Site:             config.Site{Latitude: 40.7128, Longitude: -74.0060, RadiusKm: 0.1},
	StreakWindowDays: 30,
}

// run executes one CLI invocation against kv, the way separate processes share a store.
func run(t *testing.T, kv store.KV, args ...string) (string, error) {
	t.Helper()
	opener := func(ctx context.Context) (*Env, error) {
		env, err := NewEnv(ctx, testConfig, kv, nil)
		if err != nil {
			return nil, err
		}
		env.Close = func() error { return nil }
		return env, nil
	}
	buf := new(bytes.Buffer)
	root := NewRootCmd(opener)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRegisterPersistsSession(t *testing.T) {
	kv := store.NewMemory()

	out, err := run(t, kv, "register", "--email", "Ada@Example.com", "--password", "pw", "--name", "Ada")
	require.NoError(t, err)
	assert.Contains(t, out, "ada@example.com (student)")

	out, err = run(t, kv, "whoami", "--json")
	require.NoError(t, err)
	var ident auth.Identity
	require.NoError(t, json.Unmarshal([]byte(out), &ident))
	assert.Equal(t, "Ada", ident.Name)

	out, err = run(t, kv, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "signed out")

	_, err = run(t, kv, "whoami")
	assert.ErrorIs(t, err, errNotSignedIn)

	_, err = run(t, kv, "login", "--email", "ada@example.com", "--password", "nope")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)

	out, err = run(t, kv, "login", "--email", "ada@example.com", "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as ada@example.com")
}

func TestRegister_Duplicate(t *testing.T) {
	kv := store.NewMemory()
	_, err := run(t, kv, "register", "--email", "a@example.com", "--password", "pw")
	require.NoError(t, err)

	_, err = run(t, kv, "register", "--email", "a@example.com", "--password", "pw")
	assert.ErrorIs(t, err, auth.ErrDuplicateIdentity)
}

func TestRegister_RequiresFlags(t *testing.T) {
	_, err := run(t, store.NewMemory(), "register", "--email", "a@example.com")
	assert.Error(t, err)
}

func TestMark(t *testing.T) {
	kv := store.NewMemory()

	_, err := run(t, kv, "mark", "check-in", "--lat", "40.7128", "--lon=-74.0060")
	assert.ErrorIs(t, err, attendance.ErrUnauthenticated)

	_, err = run(t, kv, "register", "--email", "s@example.com", "--password", "pw")
	require.NoError(t, err)

	_, err = run(t, kv, "mark", "check-in")
	assert.ErrorIs(t, err, attendance.ErrLocationUnavailable)

	_, err = run(t, kv, "mark", "check-in", "--lat", "40.73", "--lon=-74.00")
	assert.ErrorIs(t, err, attendance.ErrOutOfRange)

	_, err = run(t, kv, "mark", "lunch", "--lat", "40.7128", "--lon=-74.0060")
	assert.ErrorIs(t, err, attendance.ErrInvalidType)

	out, err := run(t, kv, "mark", "check-in", "--lat", "40.7128", "--lon=-74.0060", "--note", "early")
	require.NoError(t, err)
	assert.Contains(t, out, "check-in recorded")
	assert.Contains(t, out, "40.7128, -74.0060")

	out, err = run(t, kv, "records", "--json")
	require.NoError(t, err)
	var records []attendance.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "early", records[0].Notes)

	out, err = run(t, kv, "today")
	require.NoError(t, err)
	assert.Contains(t, out, "early")

	out, err = run(t, kv, "stats", "--json")
	require.NoError(t, err)
	var stats attendance.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.AttendedDays)
	assert.Equal(t, 1, stats.Streak)
}

func TestRecords_Empty(t *testing.T) {
	kv := store.NewMemory()
	_, err := run(t, kv, "register", "--email", "s@example.com", "--password", "pw")
	require.NoError(t, err)

	out, err := run(t, kv, "records")
	require.NoError(t, err)
	assert.Contains(t, out, "no records")

	out, err = run(t, kv, "records", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestOpenerFailure(t *testing.T) {
	boom := errors.New("store down")
	root := NewRootCmd(func(context.Context) (*Env, error) { return nil, boom })
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"records"})
	assert.ErrorIs(t, root.Execute(), boom)
}

func TestHelpDoesNotOpenStore(t *testing.T) {
	opened := false
	root := NewRootCmd(func(context.Context) (*Env, error) {
		opened = true
		return nil, errors.New("unexpected")
	})
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())
	assert.False(t, opened)
	assert.Contains(t, buf.String(), "mark")
}
