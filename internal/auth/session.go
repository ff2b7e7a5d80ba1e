package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"attendo/internal/logging"
	"attendo/internal/store"
)

// Session owns the process-wide signed-in identity. It is hydrated from the
// current-session key when opened and written back on every transition.
//
// Register and Login while already signed in replace the current identity.
type Session struct {
	dir    *Directory
	kv     store.KV
	logger *zap.Logger

	mu      sync.RWMutex
	current *Identity
}

// OpenSession restores the persisted session, if any.
func OpenSession(ctx context.Context, kv store.KV, dir *Directory, logger *zap.Logger) (*Session, error) {
	s := &Session{dir: dir, kv: kv, logger: logging.OrNop(logger)}

	raw, err := kv.Get(ctx, SessionKey)
	if errors.Is(err, store.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, store.Fail("load session", err)
	}
	var ident Identity
	if err := json.Unmarshal(raw, &ident); err != nil {
		return nil, store.Fail("decode session", err)
	}
	if err := ident.validate(); err != nil {
		return nil, store.Fail("decode session", err)
	}
	s.current = &ident
	s.logger.Debug("session restored", zap.String("identity_id", ident.ID))
	return s, nil
}

// Register creates an identity and signs it in. On failure the session is unchanged.
func (s *Session) Register(ctx context.Context, email, secret, name string, role Role) (Identity, error) {
	ident, err := s.dir.Create(ctx, email, secret, name, role)
	if err != nil {
		return Identity{}, err
	}
	if err := s.signIn(ctx, ident); err != nil {
		return Identity{}, err
	}
	s.logger.Info("identity registered", zap.String("identity_id", ident.ID), zap.String("role", string(ident.Role)))
	return ident, nil
}

// Login verifies the credential and signs the identity in. On failure the session is unchanged.
func (s *Session) Login(ctx context.Context, email, secret string) (Identity, error) {
	ident, err := s.dir.Authenticate(ctx, email, secret)
	if err != nil {
		return Identity{}, err
	}
	if err := s.signIn(ctx, ident); err != nil {
		return Identity{}, err
	}
	s.logger.Info("identity signed in", zap.String("identity_id", ident.ID))
	return ident, nil
}

// Logout clears the session. It always succeeds; a failure to remove the
// persisted session is only logged.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	if err := s.kv.Delete(ctx, SessionKey); err != nil {
		s.logger.Warn("clear persisted session failed", zap.Error(err))
	}
	if prev != nil {
		s.logger.Info("identity signed out", zap.String("identity_id", prev.ID))
	}
}

// CurrentUser returns the signed-in identity, if any.
func (s *Session) CurrentUser() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Identity{}, false
	}
	return *s.current, true
}

func (s *Session) signIn(ctx context.Context, ident Identity) error {
	raw, err := json.Marshal(ident)
	if err != nil {
		return store.Fail("encode session", err)
	}
	if err := s.kv.Put(ctx, SessionKey, raw); err != nil {
		return store.Fail("store session", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.ID != ident.ID {
		s.logger.Info("replacing signed-in identity", zap.String("previous_id", s.current.ID))
	}
	s.current = &ident
	return nil
}

// Bound is a fixed, already-authenticated session, such as the identity resolved
// from a request's bearer token.
type Bound struct {
	Identity Identity
}

func (b Bound) CurrentUser() (Identity, bool) {
	return b.Identity, b.Identity.ID != ""
}
