package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileStore keeps all entries in a single JSON object on disk, the
// terminal equivalent of browser local storage. Writes replace the file
// through a rename so readers never observe a partial document.
//
// A file that cannot be parsed fails Get. Set and Delete log a warning and
// replace it, so a corrupt file never blocks login or logout.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithFileLogger sets the logger used when a corrupt file is replaced.
func WithFileLogger(l *zap.Logger) FileOption {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// errCorrupt marks a file that was read but could not be parsed.
var errCorrupt = errors.New("storage: corrupt file")

// NewFileStore creates a store backed by the JSON file at path. The file
// and its directory are created on first write.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the value stored under key.
func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := entries[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, _, err := s.loadForWrite()
	if err != nil {
		return err
	}
	entries[key] = value
	return s.save(entries)
}

// Delete removes key.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, corrupt, err := s.loadForWrite()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok && !corrupt {
		return nil
	}
	delete(entries, key)
	return s.save(entries)
}

// loadForWrite is load with a corrupt file treated as empty. Must be called
// with mu held.
func (s *FileStore) loadForWrite() (map[string]string, bool, error) {
	entries, err := s.load()
	if errors.Is(err, errCorrupt) {
		s.logger.Warn("storage: replacing unreadable storage file",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return make(map[string]string), true, nil
	}
	return entries, false, err
}

// load reads the file. Must be called with mu held.
func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", s.path, err)
	}

	entries := make(map[string]string)
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", errCorrupt, s.path, err)
	}
	return entries, nil
}

// save writes entries through a temp file and rename. Must be called with
// mu held.
func (s *FileStore) save(entries map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("storage: create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".storage-*.json")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("storage: replace %s: %w", s.path, err)
	}
	return nil
}

// HealthCheck verifies the backing file, if present, can be read and parsed.
func (s *FileStore) HealthCheck(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.load()
	return err
}
