package client

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNoCredential is returned by Load when no credential is stored.
var ErrNoCredential = errors.New("client: no stored credential")

// CredentialStore persists the signed credential between runs.
// Implementations must treat the credential as a secret.
type CredentialStore interface {
	Load() (string, error)
	Save(credential string) error
	Clear() error
}

// MemStore keeps the credential in memory only.
type MemStore struct {
	mu  sync.Mutex
	tok string
}

// NewMemStore returns an empty in-memory credential store.
func NewMemStore() *MemStore { return &MemStore{} }

// Load implements CredentialStore.
func (s *MemStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok == "" {
		return "", ErrNoCredential
	}
	return s.tok, nil
}

// Save implements CredentialStore.
func (s *MemStore) Save(credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = strings.TrimSpace(credential)
	return nil
}

// Clear implements CredentialStore.
func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = ""
	return nil
}

// FileStore persists the credential to a single file with owner-only
// permissions, the durable counterpart of browser local storage.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("client: empty credential path")
	}
	return &FileStore{path: path}, nil
}

// Load implements CredentialStore.
func (s *FileStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCredential
		}
		return "", err
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", ErrNoCredential
	}
	return tok, nil
}

// Save implements CredentialStore.
func (s *FileStore) Save(credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(strings.TrimSpace(credential)+"\n"), 0o600)
}

// Clear implements CredentialStore.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
