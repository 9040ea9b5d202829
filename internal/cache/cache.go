// Package cache provides a persistent JSON store recording the outcome of
// past analyses by sample hash. The CLI uses it to skip samples whose
// content was already fully analyzed in a previous run.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry records the outcome of one analysis, keyed by sample hash.
type Entry struct {
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

// Store persists analysis outcomes to a JSON file on disk.
type Store struct {
	mu      sync.RWMutex
	Entries map[string]Entry `json:"entries"`
	path    string
}

// New creates a new Store backed by the given file path.
func New(path string) *Store {
	return &Store{
		Entries: make(map[string]Entry),
		path:    path,
	}
}

// DefaultPath returns the default cache file path (~/.prp-disasm/cache.json).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".prp-disasm/cache.json"
	}
	return filepath.Join(home, ".prp-disasm", "cache.json")
}

// Load reads the cache file from disk. If the file doesn't exist, the
// store starts empty (no error). Symlinks are rejected.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Lstat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("cache file is a symlink (rejected for security): %s", s.path)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return json.Unmarshal(data, s)
}

// Save writes the current cache to disk, creating parent directories if
// needed. Directories are created with 0o700, files with 0o600
// (owner-only). Symlinks are rejected.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if info, err := os.Lstat(s.path); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("cache file is a symlink (rejected for security): %s", s.path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o600)
}

// Get returns the entry for the given sample hash and whether it exists.
func (s *Store) Get(hash string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.Entries[hash]
	return e, ok
}

// Set records an analysis outcome for the given sample hash with the
// current timestamp.
func (s *Store) Set(hash, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Entries[hash] = Entry{
		Status:    status,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Path returns the file path of this store.
func (s *Store) Path() string {
	return s.path
}
