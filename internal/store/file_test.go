package store

import (
	"os"
	"testing"
	"time"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return s
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := newTestFileStore(t)

	cred := &Credential{
		UserID:            "12345",
		AccessToken:       "at-1",
		RefreshToken:      "rt-1",
		AccessTokenExpiry: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		Scopes:            []string{"calendar", "calendar.events"},
	}
	if err := s.Put(cred); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok := s.Get("12345")
	if !ok {
		t.Fatal("Get() after Put() should return true")
	}
	if got.AccessToken != cred.AccessToken || got.RefreshToken != cred.RefreshToken {
		t.Errorf("Get() = %+v, want stored tokens", got)
	}
	if !got.AccessTokenExpiry.Equal(cred.AccessTokenExpiry) {
		t.Errorf("Get() expiry = %v, want %v", got.AccessTokenExpiry, cred.AccessTokenExpiry)
	}
	if len(got.Scopes) != 2 {
		t.Errorf("Get() scopes = %v, want 2 entries", got.Scopes)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	cred := &Credential{
		UserID:            "12345",
		AccessToken:       "at-1",
		RefreshToken:      "rt-1",
		AccessTokenExpiry: time.Now().Add(time.Hour),
	}
	if err := first.Put(cred); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	second, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("NewFileStore() reopen error = %v", err)
	}
	got, ok := second.Get("12345")
	if !ok {
		t.Fatal("credential should survive a restart")
	}
	if got.RefreshToken != "rt-1" {
		t.Errorf("Get() after reopen = %+v, want persisted credential", got)
	}
}

func TestFileStoreMarkRevokedPersists(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := s.Put(&Credential{UserID: "12345", RefreshToken: "rt-1"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.MarkRevoked("12345"); err != nil {
		t.Fatalf("MarkRevoked() error = %v", err)
	}

	reopened, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("NewFileStore() reopen error = %v", err)
	}
	got, ok := reopened.Get("12345")
	if !ok {
		t.Fatal("revoked credential must still exist on disk")
	}
	if !got.Revoked {
		t.Error("revocation must survive a restart")
	}
}

func TestFileStoreDelete(t *testing.T) {
	s := newTestFileStore(t)

	if err := s.Put(&Credential{UserID: "12345", RefreshToken: "rt-1"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Delete("12345"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := s.Get("12345"); ok {
		t.Error("Get() after Delete() should return false")
	}

	// Deleting again is a no-op.
	if err := s.Delete("12345"); err != nil {
		t.Errorf("Delete() on absent credential should be a no-op, got %v", err)
	}
}

func TestFileStoreCorruptFileTreatedAsAbsent(t *testing.T) {
	s := newTestFileStore(t)

	if err := s.Put(&Credential{UserID: "12345", RefreshToken: "rt-1"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := os.WriteFile(s.path("12345"), []byte("not json"), 0o600); err != nil {
		t.Fatalf("corrupting file: %v", err)
	}

	if _, ok := s.Get("12345"); ok {
		t.Error("corrupt credential file must be treated as absent")
	}

	// The corrupt file is removed so the user can re-authorize cleanly.
	if _, err := os.Stat(s.path("12345")); !os.IsNotExist(err) {
		t.Error("corrupt credential file should be removed")
	}
}

func TestFileStoreRequiresDirectory(t *testing.T) {
	if _, err := NewFileStore("", nil); err == nil {
		t.Error("NewFileStore(\"\") should fail")
	}
}
