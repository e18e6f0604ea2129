package core

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// sessionStorageKey is the configuration-scope key the session is persisted
// under.
const sessionStorageKey = "session"

// SessionContext holds the optional authenticated session. It replaces the
// ambient token state of the host page with an explicit value: set on login,
// cleared on auth expiry or logout, persisted best-effort through the
// key-value store.
type SessionContext struct {
	mu     sync.RWMutex
	creds  *Credentials
	store  KeyValueStore
	logger *zap.Logger
}

// NewSessionContext creates a session context, restoring any persisted
// credentials from the store.
func NewSessionContext(store KeyValueStore, logger *zap.Logger) *SessionContext {
	s := &SessionContext{
		store:  store,
		logger: logger,
	}

	if store != nil {
		if raw, err := store.Get(context.Background(), sessionStorageKey); err == nil && len(raw) > 0 {
			var creds Credentials
			if err := json.Unmarshal(raw, &creds); err == nil && creds.Token != "" {
				s.creds = &creds
				logger.Info("Restored persisted session", zap.String("user_id", creds.UserID))
			}
		}
	}

	return s
}

// Credentials returns the current session credentials, if any.
func (s *SessionContext) Credentials() (*Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.creds == nil {
		return nil, false
	}
	copied := *s.creds
	return &copied, true
}

// Set installs new session credentials, typically on a login event.
func (s *SessionContext) Set(ctx context.Context, creds *Credentials) {
	s.mu.Lock()
	copied := *creds
	s.creds = &copied
	s.mu.Unlock()

	if s.store != nil {
		raw, err := json.Marshal(creds)
		if err == nil {
			err = s.store.Set(ctx, sessionStorageKey, raw)
		}
		if err != nil {
			s.logger.Error("Failed to persist session", zap.Error(err))
		}
	}
	s.logger.Info("Session established", zap.String("user_id", creds.UserID))
}

// Clear drops the session, on logout or when the remote service reports the
// token stale.
func (s *SessionContext) Clear(ctx context.Context) {
	s.mu.Lock()
	hadSession := s.creds != nil
	s.creds = nil
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Delete(ctx, sessionStorageKey); err != nil {
			s.logger.Error("Failed to remove persisted session", zap.Error(err))
		}
	}
	if hadSession {
		s.logger.Warn("Session cleared")
	}
}
