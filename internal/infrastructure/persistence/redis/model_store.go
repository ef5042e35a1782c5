package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// ModelStore keeps the risk model artifact in Redis without expiry, so every
// replica of the service classifies with the same model.
type ModelStore struct {
	cache *Cache
}

// NewModelStore creates a new ModelStore.
func NewModelStore(cache *Cache) *ModelStore {
	return &ModelStore{cache: cache}
}

var _ risk.ArtifactStore = (*ModelStore)(nil)

// Load implements risk.ArtifactStore.
func (s *ModelStore) Load(ctx context.Context) (*risk.Model, error) {
	var m risk.Model
	if err := s.cache.Get(ctx, KeyModel, &m); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to load risk model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("stored risk model is invalid: %w", err)
	}
	return &m, nil
}

// Save implements risk.ArtifactStore.
func (s *ModelStore) Save(ctx context.Context, m *risk.Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, KeyModel, m, 0); err != nil {
		return fmt.Errorf("failed to save risk model: %w", err)
	}
	return nil
}
