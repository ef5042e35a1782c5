// Package jobs contains the engine's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/teamvidya/risk-hub/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY ALERTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// AlertRunner sends alerts to every Medium and High profile.
type AlertRunner interface {
	Handle(ctx context.Context, cmd command.SendAlertsCommand) (*command.AlertReport, error)
}

// WeeklyAlertsJob notifies mentors about at-risk students on a schedule.
type WeeklyAlertsJob struct {
	runner AlertRunner
	logger *slog.Logger

	lastReport atomic.Pointer[command.AlertReport]
}

// NewWeeklyAlertsJob creates the job.
func NewWeeklyAlertsJob(runner AlertRunner, logger *slog.Logger) *WeeklyAlertsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeeklyAlertsJob{
		runner: runner,
		logger: logger.With("job", "weekly_alerts"),
	}
}

// Name implements scheduler.Job.
func (j *WeeklyAlertsJob) Name() string {
	return "weekly_alerts"
}

// Description implements scheduler.Job.
func (j *WeeklyAlertsJob) Description() string {
	return "Emails an alert for every student currently at Medium or High risk"
}

// Run sends the alerts. Individual delivery failures are reported in the
// run's report; the job fails only if recipients cannot be selected.
func (j *WeeklyAlertsJob) Run(ctx context.Context) error {
	report, err := j.runner.Handle(ctx, command.SendAlertsCommand{})
	if err != nil {
		return fmt.Errorf("weekly alerts: %w", err)
	}
	j.lastReport.Store(report)

	if report.Failed > 0 {
		j.logger.Warn("some alerts were not delivered",
			"failed", report.Failed,
			"sent", report.Sent,
		)
	}
	return nil
}

// LastReport returns the report of the last successful run, or nil.
func (j *WeeklyAlertsJob) LastReport() *command.AlertReport {
	return j.lastReport.Load()
}
