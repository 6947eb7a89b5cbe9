package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"trade_sim/internal/domain"
)

// FileStore keeps the session as one indented JSON document.
type FileStore struct {
	path string
}

var _ domain.SessionRepository = (*FileStore)(nil)

// NewFileStore creates the parent directory of path if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, &domain.ValidationError{Field: "path", Reason: "cannot be empty"}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// SaveSession writes state through a temp file and rename.
func (f *FileStore) SaveSession(ctx context.Context, state *domain.SessionState) error {
	if state == nil {
		return &domain.ValidationError{Field: "state", Reason: "cannot be nil"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// LoadSession returns (nil, nil) when the file does not exist.
func (f *FileStore) LoadSession(ctx context.Context) (*domain.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var state domain.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", f.path, err)
	}
	return &state, nil
}

func (f *FileStore) Close() error { return nil }
