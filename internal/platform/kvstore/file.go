package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists keys as a single JSON document, written atomically via a
// temp file rename. Suited to small datasets such as profiles and snapshots.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore constructs a file-backed store rooted at path, creating parent
// directories as needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("kvstore: file path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("kvstore: create store directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Name implements Store.
func (s *FileStore) Name() string { return "file" }

// Get implements Store.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return nil, err
	}
	value, ok := values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

// Set implements Store.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = append(json.RawMessage(nil), value...)
	return s.save(values)
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return ErrNotFound
	}
	delete(values, key)
	return s.save(values)
}

func (s *FileStore) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]json.RawMessage), nil
		}
		return nil, fmt.Errorf("kvstore: read %s: %w", s.path, err)
	}
	values := make(map[string]json.RawMessage)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			// A corrupt store file is treated as empty rather than poisoning
			// every subsequent write.
			return make(map[string]json.RawMessage), nil
		}
	}
	return values, nil
}

func (s *FileStore) save(values map[string]json.RawMessage) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("kvstore: encode store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("kvstore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("kvstore: rename %s: %w", tmp, err)
	}
	return nil
}
