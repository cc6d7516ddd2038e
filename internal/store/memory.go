package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore keeps credentials and pending sessions in memory.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*Credential
	sessions    map[string]*AuthSession // state token -> session
	stateByUser map[string]string       // user -> active state token
	logger      *slog.Logger
}

// NewMemoryStore creates an in-memory store and starts a background sweep of
// expired sessions. Correctness does not depend on the sweep: lookups treat
// expired sessions as absent regardless.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return NewMemoryStoreWithInterval(logger, 1*time.Minute)
}

// NewMemoryStoreWithInterval creates an in-memory store with a custom sweep
// interval.
func NewMemoryStoreWithInterval(logger *slog.Logger, sweepInterval time.Duration) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}

	s := &MemoryStore{
		credentials: make(map[string]*Credential),
		sessions:    make(map[string]*AuthSession),
		stateByUser: make(map[string]string),
		logger:      logger,
	}

	go s.sweep(sweepInterval)

	return s
}

// Get returns the credential for a user.
func (s *MemoryStore) Get(userID string) (*Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[userID]
	if !ok {
		return nil, false
	}
	return cred.clone(), true
}

// Put upserts the credential for a user.
func (s *MemoryStore) Put(cred *Credential) error {
	if cred == nil || cred.UserID == "" {
		return fmt.Errorf("credential must have a user id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials[cred.UserID] = cred.clone()
	return nil
}

// MarkRevoked flags the user's credential as revoked.
func (s *MemoryStore) MarkRevoked(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred, ok := s.credentials[userID]; ok {
		cred.Revoked = true
	}
	return nil
}

// Delete removes the user's credential.
func (s *MemoryStore) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.credentials, userID)
	return nil
}

// SavePendingSession stores a pending session, invalidating any prior
// pending session for the same user.
func (s *MemoryStore) SavePendingSession(session *AuthSession) error {
	if session == nil || session.UserID == "" || session.State == "" {
		return fmt.Errorf("session must have a user id and state token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.stateByUser[session.UserID]; ok {
		delete(s.sessions, prev)
	}

	cp := *session
	s.sessions[session.State] = &cp
	s.stateByUser[session.UserID] = session.State
	return nil
}

// FindSessionByState looks up a pending session without consuming it.
func (s *MemoryStore) FindSessionByState(state string) (*AuthSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[state]
	if !ok || sess.Expired(time.Now()) {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// ConsumeSession atomically fetches and deletes a pending session.
func (s *MemoryStore) ConsumeSession(state string) (*AuthSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[state]
	if !ok {
		return nil, false
	}

	// Deletion happens regardless of expiry: an expired session is dead
	// either way, and removing it here keeps the maps tidy.
	delete(s.sessions, state)
	if s.stateByUser[sess.UserID] == state {
		delete(s.stateByUser, sess.UserID)
	}

	if sess.Expired(time.Now()) {
		return nil, false
	}

	cp := *sess
	return &cp, true
}

// sweep periodically removes expired sessions.
func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		s.sweepExpired()
	}
}

func (s *MemoryStore) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for state, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, state)
			if s.stateByUser[sess.UserID] == state {
				delete(s.stateByUser, sess.UserID)
			}
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("swept expired auth sessions", "removed", removed)
	}
}
