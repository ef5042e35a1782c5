package risk

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// Model is a trained, versioned classifier artifact. The encoder is stored
// with the tree so inference always uses the training-time encoding.
type Model struct {
	Version          string       `json:"version"`
	TrainedAt        time.Time    `json:"trained_at"`
	Features         []string     `json:"features"`
	Encoder          LabelEncoder `json:"encoder"`
	Tree             *Node        `json:"tree"`
	MaxDepth         int          `json:"max_depth"`
	TrainingRows     int          `json:"training_rows"`
	TrainingAccuracy float64      `json:"training_accuracy"`
}

// TrainOptions configures Train.
type TrainOptions struct {
	MaxDepth        int
	MinSamplesSplit int
	Now             func() time.Time
}

// DefaultTrainOptions returns the production training settings.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		MaxDepth:        5,
		MinSamplesSplit: 2,
		Now:             time.Now,
	}
}

// Train fits a decision tree to batch, labelling every row with Rule.
func Train(batch []Features, opts TrainOptions) (*Model, error) {
	if len(batch) == 0 {
		return nil, shared.ErrNoTrainingData
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 5
	}
	if opts.MinSamplesSplit < 2 {
		opts.MinSamplesSplit = 2
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	fees := make([]string, len(batch))
	for i, f := range batch {
		fees[i] = f.FeeStatus
	}
	enc := FitLabelEncoder(fees)

	samples := make([]sample, len(batch))
	for i, f := range batch {
		x, err := encode(f, enc)
		if err != nil {
			return nil, err
		}
		samples[i] = sample{x: x, y: Rule(f)}
	}

	tree := treeGrower{maxDepth: opts.MaxDepth, minSamplesSplit: opts.MinSamplesSplit}.grow(samples, 0)

	correct := 0
	for _, s := range samples {
		if tree.predict(s.x) == s.y {
			correct++
		}
	}

	return &Model{
		Version:          uuid.NewString(),
		TrainedAt:        opts.Now().UTC(),
		Features:         append([]string(nil), FeatureNames...),
		Encoder:          enc,
		Tree:             tree,
		MaxDepth:         opts.MaxDepth,
		TrainingRows:     len(samples),
		TrainingAccuracy: float64(correct) / float64(len(samples)),
	}, nil
}

// Predict classifies one feature vector.
func (m *Model) Predict(f Features) (Level, error) {
	x, err := encode(f, m.Encoder)
	if err != nil {
		return "", err
	}
	return m.Tree.predict(x), nil
}

// Validate checks a loaded artifact is usable.
func (m *Model) Validate() error {
	if m == nil || m.Tree == nil || len(m.Encoder.Classes) == 0 {
		return shared.NewDomainError("risk", "LoadModel", shared.ErrInvalidFormat, "artifact has no tree or encoder")
	}
	return nil
}

func encode(f Features, enc LabelEncoder) (vector, error) {
	code, err := enc.Encode(f.FeeStatus)
	if err != nil {
		return vector{}, err
	}
	return vector{
		float64(f.AttendancePercentage),
		float64(f.AverageScore),
		float64(f.ExamAttempts),
		float64(code),
	}, nil
}

// ArtifactStore persists the trained model.
type ArtifactStore interface {
	// Load returns shared.ErrModelNotFound when nothing has been saved yet.
	Load(ctx context.Context) (*Model, error)
	Save(ctx context.Context, m *Model) error
}
