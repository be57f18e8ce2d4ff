package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vitos/coinbot/internal/domain"
)

// FileStateStore keeps the position in a single JSON file. Decimals are
// written as strings so values survive restarts bit for bit.
type FileStateStore struct {
	path string
}

func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

func (s *FileStateStore) Path() string {
	return s.path
}

func (s *FileStateStore) LoadState(ctx context.Context) (*domain.Position, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, domain.ErrStateNotFound
	}

	var p domain.Position
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrStateCorrupt, s.path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrStateCorrupt, s.path, err)
	}
	return &p, nil
}

// SaveState writes to a temp file in the same directory, syncs it and renames
// it over the state file, so readers see either the old or the new state.
func (s *FileStateStore) SaveState(ctx context.Context, p *domain.Position) error {
	b, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
