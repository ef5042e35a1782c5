// Package file keeps the risk model artifact on the local filesystem.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// ModelStore reads and writes the model as an indented JSON document.
// Saves go through a temporary file and a rename, so a reader never sees a
// partially written artifact.
type ModelStore struct {
	path string
}

// NewModelStore creates a store for the artifact at path.
func NewModelStore(path string) *ModelStore {
	return &ModelStore{path: path}
}

var _ risk.ArtifactStore = (*ModelStore)(nil)

// Path returns the artifact location.
func (s *ModelStore) Path() string {
	return s.path
}

// Load implements risk.ArtifactStore.
func (s *ModelStore) Load(ctx context.Context) (*risk.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, shared.ErrModelNotFound
		}
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	var m risk.Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model artifact %s: %w", s.path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("model artifact %s: %w", s.path, err)
	}
	return &m, nil
}

// Save implements risk.ArtifactStore.
func (s *ModelStore) Save(ctx context.Context, m *risk.Model) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model artifact: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("install model artifact: %w", err)
	}
	return nil
}
