package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teamvidya/risk-hub/internal/domain/risk"
)

// TrainModelResult describes a freshly trained model.
type TrainModelResult struct {
	Version          string  `json:"version"`
	TrainingRows     int     `json:"training_rows"`
	TrainingAccuracy float64 `json:"training_accuracy"`
	Depth            int     `json:"depth"`

	// Recompute is the cycle that reclassified stored profiles with the
	// new model.
	Recompute *CycleReport `json:"recompute"`
}

// TrainModelHandler retrains the engine's risk model from live storage.
type TrainModelHandler struct {
	engine *Engine
	source risk.TrainingSource
	logger *slog.Logger
}

// NewTrainModelHandler creates a new TrainModelHandler.
func NewTrainModelHandler(engine *Engine, source risk.TrainingSource, logger *slog.Logger) *TrainModelHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainModelHandler{engine: engine, source: source, logger: logger}
}

// Handle trains, saves and activates a new model, then runs a partial cycle
// so stored risk levels come from it. A failed cycle leaves the new model
// active and is returned as the error.
func (h *TrainModelHandler) Handle(ctx context.Context) (*TrainModelResult, error) {
	batch, err := h.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("train_model: failed to load training data: %w", err)
	}

	m, err := h.engine.Provider().Retrain(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("train_model: %w", err)
	}

	h.logger.Info("risk model trained",
		"version", m.Version,
		"rows", m.TrainingRows,
		"accuracy", m.TrainingAccuracy,
	)

	report, err := h.engine.Recompute(ctx)
	if err != nil {
		h.logger.Warn("stored risk levels not refreshed", "version", m.Version, "error", err)
		return nil, fmt.Errorf("train_model: model %s active, recompute failed: %w", m.Version, err)
	}

	return &TrainModelResult{
		Version:          m.Version,
		TrainingRows:     m.TrainingRows,
		TrainingAccuracy: m.TrainingAccuracy,
		Depth:            m.Tree.Depth(),
		Recompute:        report,
	}, nil
}
