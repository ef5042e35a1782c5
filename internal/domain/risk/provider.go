package risk

import (
	"context"
	"errors"
	"sync"

	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// TrainingSource supplies feature vectors for on-demand training.
type TrainingSource func(ctx context.Context) ([]Features, error)

// ProviderConfig selects the classification strategy.
type ProviderConfig struct {
	// UseModel enables the learned model. When false the rule is always used.
	UseModel bool

	// TrainOnDemand trains and saves a model when none is stored.
	TrainOnDemand bool

	Train TrainOptions
}

// Resolution is the classifier chosen for one cycle.
type Resolution struct {
	Classifier Classifier

	// Trained is set when the model was fitted during this resolution.
	Trained bool

	// Fallback is the reason the rule replaced the model, if it did.
	Fallback error

	// SaveErr is set when a freshly trained model could not be persisted.
	SaveErr error
}

// Provider resolves the classifier for a recomputation cycle. It caches the
// loaded model; a missing artifact never fails resolution.
type Provider struct {
	cfg    ProviderConfig
	store  ArtifactStore
	source TrainingSource

	mu    sync.Mutex
	model *Model
}

// NewProvider creates a provider. store and source may be nil.
func NewProvider(cfg ProviderConfig, store ArtifactStore, source TrainingSource) *Provider {
	return &Provider{cfg: cfg, store: store, source: source}
}

// Resolve returns the classifier to use. The returned error is reserved for
// context cancellation; every other failure falls back to the rule.
func (p *Provider) Resolve(ctx context.Context) (Resolution, error) {
	if !p.cfg.UseModel {
		return Resolution{Classifier: RuleClassifier{}}, nil
	}
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model != nil {
		return Resolution{Classifier: NewModelClassifier(p.model)}, nil
	}

	if p.store == nil {
		return p.trainOrFallback(ctx, shared.ErrModelNotFound)
	}

	m, err := p.store.Load(ctx)
	if err == nil {
		if verr := m.Validate(); verr != nil {
			return p.trainOrFallback(ctx, verr)
		}
		p.model = m
		return Resolution{Classifier: NewModelClassifier(m)}, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Resolution{}, err
	}
	if !shared.IsNotFound(err) {
		// Store unreachable: do not train over a model that may exist.
		return Resolution{Classifier: RuleClassifier{}, Fallback: err}, nil
	}
	return p.trainOrFallback(ctx, err)
}

func (p *Provider) trainOrFallback(ctx context.Context, cause error) (Resolution, error) {
	if !p.cfg.TrainOnDemand || p.source == nil {
		return Resolution{Classifier: RuleClassifier{}, Fallback: cause}, nil
	}

	batch, err := p.source(ctx)
	if err != nil {
		return Resolution{Classifier: RuleClassifier{}, Fallback: err}, nil
	}
	m, err := Train(batch, p.cfg.Train)
	if err != nil {
		return Resolution{Classifier: RuleClassifier{}, Fallback: err}, nil
	}

	res := Resolution{Classifier: NewModelClassifier(m), Trained: true}
	if p.store != nil {
		res.SaveErr = p.store.Save(ctx, m)
	}
	p.model = m
	return res, nil
}

// Fit trains a model on batch with the provider's options. Nothing is saved
// or cached.
func (p *Provider) Fit(batch []Features) (*Model, error) {
	return Train(batch, p.cfg.Train)
}

// Activate saves m and makes it current. A model that could not be saved is
// not cached.
func (p *Provider) Activate(ctx context.Context, m *Model) error {
	if p.store != nil {
		if err := p.store.Save(ctx, m); err != nil {
			return err
		}
	}
	p.SetModel(m)
	return nil
}

// Retrain fits a new model on batch, saves it and makes it current.
func (p *Provider) Retrain(ctx context.Context, batch []Features) (*Model, error) {
	m, err := p.Fit(batch)
	if err != nil {
		return nil, err
	}
	if err := p.Activate(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UsesModel reports whether the learned model is enabled.
func (p *Provider) UsesModel() bool {
	return p.cfg.UseModel
}

// SetModel replaces the cached model, e.g. after an explicit training run.
func (p *Provider) SetModel(m *Model) {
	p.mu.Lock()
	p.model = m
	p.mu.Unlock()
}

// Current returns the cached model, if any.
func (p *Provider) Current() *Model {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model
}
