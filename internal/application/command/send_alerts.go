package command

import (
	"context"
	"log/slog"

	"github.com/teamvidya/risk-hub/internal/application/query"
	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
	"github.com/teamvidya/risk-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEND ALERTS COMMAND
// Notifies about every Medium and High profile. Used by the weekly job and
// the bulk-alert endpoint.
// ══════════════════════════════════════════════════════════════════════════════

// AlertSender formats and transmits one notification.
type AlertSender interface {
	Send(ctx context.Context, p profile.Profile) error
}

// AlertObserver receives per-alert outcomes, e.g. for metrics.
type AlertObserver interface {
	AlertSent()
	AlertFailed()
}

// SendAlertsCommand controls one alert run.
type SendAlertsCommand struct {
	// DryRun selects recipients without sending.
	DryRun bool
}

// AlertFailure records a recipient that could not be notified.
type AlertFailure struct {
	StudentID int64  `json:"student_id"`
	Reason    string `json:"reason"`
}

// AlertReport summarizes an alert run.
type AlertReport struct {
	Selected   int            `json:"selected"`
	Sent       int            `json:"sent"`
	Failed     int            `json:"failed"`
	DryRun     bool           `json:"dry_run"`
	StudentIDs []int64        `json:"student_ids"`
	Failures   []AlertFailure `json:"failures,omitempty"`
}

// SendAlertsHandler handles SendAlertsCommand.
type SendAlertsHandler struct {
	selector *query.AlertSelector
	sender   AlertSender
	retrier  *retry.Retrier
	observer AlertObserver
	logger   *slog.Logger
}

// NewSendAlertsHandler creates a new SendAlertsHandler. observer may be nil.
func NewSendAlertsHandler(selector *query.AlertSelector, sender AlertSender, observer AlertObserver, logger *slog.Logger) *SendAlertsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SendAlertsHandler{
		selector: selector,
		sender:   sender,
		retrier:  retry.EmailRetrier(),
		observer: observer,
		logger:   logger.With("component", "alerts"),
	}
}

// WithRetrier replaces the delivery retrier.
func (h *SendAlertsHandler) WithRetrier(r *retry.Retrier) *SendAlertsHandler {
	h.retrier = r
	return h
}

// Handle selects recipients and sends one alert each. A failed delivery is
// recorded and does not stop the run; a failed selection does.
func (h *SendAlertsHandler) Handle(ctx context.Context, cmd SendAlertsCommand) (*AlertReport, error) {
	recipients, err := h.selector.Recipients(ctx)
	if err != nil {
		return nil, err
	}

	report := &AlertReport{
		Selected:   len(recipients),
		DryRun:     cmd.DryRun,
		StudentIDs: make([]int64, 0, len(recipients)),
	}
	if len(recipients) == 0 {
		h.logger.Info("no at-risk students found, no alerts sent")
		return report, nil
	}

	for _, p := range recipients {
		report.StudentIDs = append(report.StudentIDs, p.StudentID)
		if cmd.DryRun {
			continue
		}

		err := h.retrier.Do(ctx, func(ctx context.Context) error {
			if err := h.sender.Send(ctx, p); err != nil {
				if shared.IsRetryable(err) {
					return retry.Retryable(err)
				}
				return err
			}
			return nil
		})
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, AlertFailure{StudentID: p.StudentID, Reason: err.Error()})
			h.logger.Error("failed to send alert", "student_id", p.StudentID, "risk_level", p.RiskLevel, "error", err)
			if h.observer != nil {
				h.observer.AlertFailed()
			}
			continue
		}
		report.Sent++
		if h.observer != nil {
			h.observer.AlertSent()
		}
	}

	h.logger.Info("alert run finished",
		"selected", report.Selected,
		"sent", report.Sent,
		"failed", report.Failed,
		"dry_run", report.DryRun,
	)
	return report, nil
}
