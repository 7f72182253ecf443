package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps one "<key>.json" document per account in a directory.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir, creating the directory if it does not exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(handle string) string {
	return filepath.Join(s.Dir, StorageKey(handle)+".json")
}

func (s *FileStore) Load(ctx context.Context, handle string) (*AccountState, error) {
	p := s.path(handle)
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return NewAccountState(), nil
	}
	if err != nil {
		return nil, err
	}
	st, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", p, err)
	}
	return st, nil
}

// Save writes to a temporary file in the same directory and renames it over the prior record.
func (s *FileStore) Save(ctx context.Context, handle string, st *AccountState) error {
	b, err := Encode(st)
	if err != nil {
		return err
	}
	p := s.path(handle)

	tmp, err := os.CreateTemp(s.Dir, filepath.Base(p)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", p, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(b); err != nil {
		return fmt.Errorf("write temp for %s: %w", p, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", p, err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return fmt.Errorf("rename temp for %s: %w", p, err)
	}
	return nil
}
