package risk

import "context"

// Prediction is the outcome for one row of a batch. Exactly one of Level or
// Err is set.
type Prediction struct {
	Level Level
	Err   error
}

// Classifier maps a batch of feature vectors to one prediction per row,
// preserving order. A returned error fails the whole batch; per-row failures
// are reported through Prediction.Err.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, batch []Features) ([]Prediction, error)
}

// Strategy names reported in cycle reports and metrics.
const (
	StrategyRule  = "rule"
	StrategyModel = "model"
)

// RuleClassifier applies Rule to every row.
type RuleClassifier struct{}

// Name implements Classifier.
func (RuleClassifier) Name() string { return StrategyRule }

// Classify implements Classifier.
func (RuleClassifier) Classify(_ context.Context, batch []Features) ([]Prediction, error) {
	out := make([]Prediction, len(batch))
	for i, f := range batch {
		out[i] = Prediction{Level: Rule(f)}
	}
	return out, nil
}

// ModelClassifier runs a trained Model.
type ModelClassifier struct {
	model *Model
}

// NewModelClassifier wraps a trained model.
func NewModelClassifier(m *Model) *ModelClassifier {
	return &ModelClassifier{model: m}
}

// Name implements Classifier.
func (c *ModelClassifier) Name() string { return StrategyModel }

// Model returns the wrapped artifact.
func (c *ModelClassifier) Model() *Model { return c.model }

// Classify implements Classifier. A fee_status unseen at training time fails
// only its own row.
func (c *ModelClassifier) Classify(ctx context.Context, batch []Features) ([]Prediction, error) {
	out := make([]Prediction, len(batch))
	for i, f := range batch {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		level, err := c.model.Predict(f)
		if err != nil {
			out[i] = Prediction{Err: err}
			continue
		}
		out[i] = Prediction{Level: level}
	}
	return out, nil
}
