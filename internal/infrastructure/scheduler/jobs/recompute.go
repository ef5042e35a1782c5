package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teamvidya/risk-hub/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE JOB
// ══════════════════════════════════════════════════════════════════════════════

// Recomputer runs one partial recomputation cycle.
type Recomputer interface {
	Recompute(ctx context.Context) (*command.CycleReport, error)
}

// RecomputeJob refreshes every profile from the stored attendance so the
// dashboard stays current on days nobody marks attendance.
type RecomputeJob struct {
	engine Recomputer
	logger *slog.Logger
}

// NewRecomputeJob creates the job.
func NewRecomputeJob(engine Recomputer, logger *slog.Logger) *RecomputeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecomputeJob{engine: engine, logger: logger.With("job", "recompute")}
}

// Name implements scheduler.Job.
func (j *RecomputeJob) Name() string {
	return "recompute"
}

// Description implements scheduler.Job.
func (j *RecomputeJob) Description() string {
	return "Recomputes attendance percentages and risk levels for all students"
}

// Run implements scheduler.Job.
func (j *RecomputeJob) Run(ctx context.Context) error {
	report, err := j.engine.Recompute(ctx)
	if err != nil {
		return fmt.Errorf("recompute: %w", err)
	}
	if len(report.Skipped) > 0 {
		j.logger.Warn("rows skipped during recompute", "skipped", len(report.Skipped))
	}
	return nil
}
