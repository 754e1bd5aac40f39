package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"calendar-agent/internal/domain"
)

// FileStore keeps each named store as a JSON object in its own file under dir.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("repository: create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if filepath.Base(name) != name {
		return "", fmt.Errorf("repository: store name %q must be a plain file name", name)
	}
	return filepath.Join(s.dir, name), nil
}

// Load returns the stored entries. A missing file is an empty store.
func (s *FileStore) Load(_ context.Context, name string) (domain.ContextEntries, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ContextEntries{}, nil
		}
		return nil, fmt.Errorf("repository: read %s: %w", name, err)
	}
	entries := domain.ContextEntries{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("repository: decode %s: %w", name, err)
	}
	return entries, nil
}

// Merge overlays entries onto the file's current contents. A missing or
// unparsable file starts from an empty mapping.
func (s *FileStore) Merge(_ context.Context, name string, entries domain.ContextEntries) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := domain.ContextEntries{}
	if data, readErr := os.ReadFile(path); readErr == nil {
		if decErr := json.Unmarshal(data, &current); decErr != nil || current == nil {
			current = domain.ContextEntries{}
		}
	}
	for k, v := range entries {
		current[k] = v
	}
	return writeEntries(path, current)
}

// Reset overwrites the file with an empty JSON object.
func (s *FileStore) Reset(_ context.Context, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeEntries(path, domain.ContextEntries{})
}

func writeEntries(path string, entries domain.ContextEntries) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("repository: encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("repository: write %s: %w", filepath.Base(path), err)
	}
	return nil
}
