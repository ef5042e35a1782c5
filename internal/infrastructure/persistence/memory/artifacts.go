package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// ArtifactStore keeps the serialized model in memory. Storing the encoded
// form means a loaded model never aliases the saved one.
type ArtifactStore struct {
	mu    sync.Mutex
	data  []byte
	Saves int
}

// NewArtifactStore creates an empty ArtifactStore.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{}
}

var _ risk.ArtifactStore = (*ArtifactStore)(nil)

// Load implements risk.ArtifactStore.
func (s *ArtifactStore) Load(ctx context.Context) (*risk.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return nil, shared.ErrModelNotFound
	}
	var m risk.Model
	if err := json.Unmarshal(s.data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save implements risk.ArtifactStore.
func (s *ArtifactStore) Save(ctx context.Context, m *risk.Model) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.Saves++
	s.mu.Unlock()
	return nil
}
