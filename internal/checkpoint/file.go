package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"thread_harvester/internal/domain"
)

// FileThreadStore keeps the extraction state in a single JSON document that
// is rewritten in full on every flush.
type FileThreadStore struct {
	path string
}

func NewFileThreadStore(path string) *FileThreadStore {
	return &FileThreadStore{path: path}
}

// Load returns the saved state, or an empty state on the first run.
func (s *FileThreadStore) Load(_ context.Context) (State, error) {
	state := NewState()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	// A document holding null decodes to a nil map.
	if state == nil {
		state = NewState()
	}
	return state, nil
}

func (s *FileThreadStore) Flush(_ context.Context, state State) error {
	return writeJSON(s.path, state)
}

// FileURLStore keeps the discovered URL set as a sorted JSON array.
type FileURLStore struct {
	path string
}

func NewFileURLStore(path string) *FileURLStore {
	return &FileURLStore{path: path}
}

func (s *FileURLStore) Load(_ context.Context) ([]domain.ThreadURL, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", s.path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var urls []domain.ThreadURL
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return urls, nil
}

func (s *FileURLStore) Save(_ context.Context, urls []domain.ThreadURL) error {
	sorted := domain.NewURLSet(urls...).Sorted()
	return writeJSON(s.path, sorted)
}

// writeJSON replaces path atomically so a crash mid-write leaves the previous
// document intact.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
