package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEED COMMAND
// Initial bulk load: replaces the attendance history, trains the risk model
// and writes every profile column.
// ══════════════════════════════════════════════════════════════════════════════

// SeedCommand carries the three source data sets of the initial load.
type SeedCommand struct {
	Students   []profile.BaseInfo
	Scores     []profile.ScoreRecord
	Attendance []attendance.Event
}

// Validate validates the command.
func (c SeedCommand) Validate() error {
	if len(c.Students) == 0 {
		return shared.NewDomainError("profile", "Seed", shared.ErrEmptyValue, "seed requires at least one student")
	}
	var errs []error
	for _, s := range c.Students {
		if s.StudentID <= 0 {
			errs = append(errs, fmt.Errorf("student %q: %w", s.Name, shared.ErrInvalidStudentID))
		}
	}
	for _, e := range c.Attendance {
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("attendance for student %d: %w", e.StudentID, err))
		}
	}
	return errors.Join(errs...)
}

// SeedResult contains the outcome of the initial load.
type SeedResult struct {
	EventsStored int          `json:"events_stored"`
	ModelVersion string       `json:"model_version,omitempty"`
	Report       *CycleReport `json:"report"`
}

// SeedWriter commits the initial load: the event history is replaced and
// every profile column written, all or nothing.
type SeedWriter interface {
	WriteSeed(ctx context.Context, events []attendance.Event, profiles []profile.Profile) error
}

// Seed runs the initial load as one full-mode cycle. The model is trained in
// memory and classifies the batch; it is saved only after events and
// profiles have been committed, so a failed seed leaves storage untouched.
func (e *Engine) Seed(ctx context.Context, cmd SeedCommand) (*SeedResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("seed: validation failed: %w", err)
	}

	events := attendance.Dedupe(cmd.Attendance)
	summaries := attendance.Aggregate(events)
	result := &SeedResult{}

	var trained *risk.Model
	if e.provider.UsesModel() {
		m, err := e.provider.Fit(profile.TrainingSet(cmd.Scores, summaries))
		if err != nil {
			e.logger.Warn("seed: model training failed, using rule", "error", err)
		} else {
			trained = m
		}
	}

	report, err := e.cycle(ctx, ModeFull, func(context.Context) (*cyclePlan, error) {
		return &cyclePlan{
			input: profile.Input{
				Base:       cmd.Students,
				Scores:     cmd.Scores,
				Attendance: summaries,
			},
			events: len(events),
			resolve: func(ctx context.Context) (risk.Resolution, error) {
				if err := ctx.Err(); err != nil {
					return risk.Resolution{}, err
				}
				if trained == nil {
					return risk.Resolution{Classifier: risk.RuleClassifier{}}, nil
				}
				return risk.Resolution{Classifier: risk.NewModelClassifier(trained)}, nil
			},
			commit: func(ctx context.Context, rows []profile.Profile) error {
				if err := e.seed.WriteSeed(ctx, events, rows); err != nil {
					return shared.SourceUnavailable("profile", "WriteSeed", err)
				}
				result.EventsStored = len(events)
				if trained != nil {
					e.activate(ctx, trained, result)
				}
				return nil
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	result.Report = report
	return result, nil
}

// activate saves the seed model once the data it was trained on is stored.
// A failed save keeps the committed rows; the next cycle resolves the model
// again from the artifact store.
func (e *Engine) activate(ctx context.Context, m *risk.Model, result *SeedResult) {
	if err := e.provider.Activate(ctx, m); err != nil {
		e.logger.Error("seed: failed to save risk model", "version", m.Version, "error", err)
		return
	}
	result.ModelVersion = m.Version
	e.logger.Info("seed: risk model trained",
		"version", m.Version,
		"rows", m.TrainingRows,
		"accuracy", m.TrainingAccuracy,
	)
}

// storeSeedWriter commits a seed through the two stores. The previous event
// history is restored when the profile write fails.
type storeSeedWriter struct {
	events   attendance.EventStore
	profiles profile.Store
	logger   *slog.Logger
}

func (w *storeSeedWriter) WriteSeed(ctx context.Context, events []attendance.Event, profiles []profile.Profile) error {
	previous, err := w.events.ListEvents(ctx)
	if err != nil {
		return err
	}
	if err := w.events.ReplaceEvents(ctx, events); err != nil {
		return err
	}
	if err := w.profiles.UpsertProfiles(ctx, profiles, profile.FullColumns); err != nil {
		if rerr := w.events.ReplaceEvents(context.WithoutCancel(ctx), previous); rerr != nil {
			w.logger.Error("seed: failed to restore attendance history", "error", rerr)
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}
