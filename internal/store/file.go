package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists credentials as one JSON file per user so authorizations
// survive restarts. Pending sessions are short-lived and stay in memory.
type FileStore struct {
	dir string
	mu  sync.Mutex

	*MemoryStore // session handling
}

// NewFileStore creates a file-backed credential store rooted at dir.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileStore{
		dir:         dir,
		MemoryStore: NewMemoryStore(logger),
	}, nil
}

// path returns the credential file for a user. The user id is hashed so
// arbitrary chat-system identifiers always yield a safe file name.
func (s *FileStore) path(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return filepath.Join(s.dir, "user_"+hex.EncodeToString(sum[:8])+".json")
}

// Get returns the credential for a user.
func (s *FileStore) Get(userID string) (*Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(userID)
}

func (s *FileStore) read(userID string) (*Credential, bool) {
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		return nil, false
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		// A corrupt record is unusable; treat as absent so the user can
		// re-authorize.
		s.logger.Warn("discarding corrupt credential file", "error", err)
		_ = os.Remove(s.path(userID))
		return nil, false
	}
	return &cred, true
}

// Put upserts the credential for a user.
func (s *FileStore) Put(cred *Credential) error {
	if cred == nil || cred.UserID == "" {
		return fmt.Errorf("credential must have a user id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(cred)
}

func (s *FileStore) write(cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	// Write-then-rename keeps the upsert atomic on the same filesystem.
	path := s.path(cred.UserID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

// MarkRevoked flags the user's credential as revoked.
func (s *FileStore) MarkRevoked(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.read(userID)
	if !ok || cred.Revoked {
		return nil
	}
	cred.Revoked = true
	return s.write(cred)
}

// Delete removes the user's credential file.
func (s *FileStore) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(userID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credential file: %w", err)
	}
	return nil
}
