// Package command contains write operations (CQRS - Commands).
// Every command that changes attendance or profiles ends in a recomputation
// cycle run by the Engine.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CYCLE REPORT
// ══════════════════════════════════════════════════════════════════════════════

// CycleMode selects which columns a cycle reconciles.
type CycleMode string

const (
	// ModeFull overwrites every column (initial load).
	ModeFull CycleMode = "full"
	// ModePartial overwrites only attendance_percentage and risk_level.
	ModePartial CycleMode = "partial"
)

// Columns returns the column set reconciled in this mode.
func (m CycleMode) Columns() profile.ColumnSet {
	if m == ModeFull {
		return profile.FullColumns
	}
	return profile.PartialColumns
}

// CycleReport describes one recomputation cycle.
type CycleReport struct {
	CycleID    string             `json:"cycle_id"`
	Mode       CycleMode          `json:"mode"`
	Strategy   string             `json:"strategy"`
	Trained    bool               `json:"model_trained"`
	Fallback   string             `json:"fallback,omitempty"`
	Events     int                `json:"events"`
	Students   int                `json:"students"`
	Upserted   int                `json:"upserted"`
	Skipped    []profile.RowFault `json:"skipped,omitempty"`
	Levels     map[risk.Level]int `json:"levels"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Duration returns how long the cycle took.
func (r *CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// CycleLock serializes recomputation cycles. The returned release function
// must be called exactly once.
type CycleLock interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// CycleObserver receives cycle outcomes, e.g. for metrics.
type CycleObserver interface {
	CycleCompleted(report *CycleReport)
	CycleFailed(mode CycleMode, err error)
}

type nopObserver struct{}

func (nopObserver) CycleCompleted(*CycleReport)  {}
func (nopObserver) CycleFailed(CycleMode, error) {}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// EngineConfig contains optional collaborators of the Engine.
type EngineConfig struct {
	Lock     CycleLock
	Observer CycleObserver
	Logger   *slog.Logger
	Now      func() time.Time

	// Seed commits the initial load. Defaults to a writer over the event and
	// profile stores that restores the previous history on failure.
	Seed SeedWriter
}

// Engine runs Aggregate, Merge, Classify and Reconcile as one synchronous
// cycle. Cycles are serialized through the configured lock.
type Engine struct {
	events   attendance.EventStore
	profiles profile.Store
	provider *risk.Provider
	seed     SeedWriter
	lock     CycleLock
	observer CycleObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates a new Engine.
func NewEngine(
	events attendance.EventStore,
	profiles profile.Store,
	provider *risk.Provider,
	cfg EngineConfig,
) *Engine {
	if cfg.Lock == nil {
		cfg.Lock = NewLocalLock()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger.With("component", "recompute")
	if cfg.Seed == nil {
		cfg.Seed = &storeSeedWriter{events: events, profiles: profiles, logger: logger}
	}
	return &Engine{
		events:   events,
		profiles: profiles,
		provider: provider,
		seed:     cfg.Seed,
		lock:     cfg.Lock,
		observer: cfg.Observer,
		logger:   logger,
		now:      cfg.Now,
	}
}

// Recompute runs a partial cycle over the stored profiles and the full event
// set. Only attendance_percentage and risk_level are written.
func (e *Engine) Recompute(ctx context.Context) (*CycleReport, error) {
	return e.cycle(ctx, ModePartial, func(ctx context.Context) (*cyclePlan, error) {
		events, err := e.events.ListEvents(ctx)
		if err != nil {
			return nil, shared.SourceUnavailable("attendance", "ListEvents", err)
		}
		stored, err := e.profiles.ListProfiles(ctx)
		if err != nil {
			return nil, shared.SourceUnavailable("profile", "ListProfiles", err)
		}
		return &cyclePlan{
			input: profile.Input{
				Stored:     stored,
				Attendance: attendance.Aggregate(events),
			},
			events: len(events),
		}, nil
	})
}

// Provider returns the classifier provider of the engine.
func (e *Engine) Provider() *risk.Provider {
	return e.provider
}

// cyclePlan is what a cycle's load step hands to the shared pipeline.
type cyclePlan struct {
	input  profile.Input
	events int

	// resolve picks the classifier. Nil asks the provider.
	resolve func(ctx context.Context) (risk.Resolution, error)

	// commit writes the classified rows. Nil upserts them with the mode's
	// columns. Nothing may be written before commit.
	commit func(ctx context.Context, rows []profile.Profile) error
}

type loadFunc func(ctx context.Context) (*cyclePlan, error)

func (e *Engine) cycle(ctx context.Context, mode CycleMode, load loadFunc) (*CycleReport, error) {
	release, err := e.lock.Acquire(ctx)
	if err != nil {
		e.observer.CycleFailed(mode, err)
		return nil, err
	}
	defer release()

	report := &CycleReport{
		CycleID:   uuid.NewString(),
		Mode:      mode,
		Levels:    make(map[risk.Level]int, len(risk.Levels)),
		StartedAt: e.now(),
	}
	log := e.logger.With("cycle_id", report.CycleID, "mode", mode)

	if err := e.run(ctx, report, log, load); err != nil {
		log.Error("recomputation cycle failed", "error", err)
		e.observer.CycleFailed(mode, err)
		return nil, err
	}

	report.FinishedAt = e.now()
	e.observer.CycleCompleted(report)
	log.Info("recomputation cycle completed",
		"strategy", report.Strategy,
		"students", report.Students,
		"upserted", report.Upserted,
		"skipped", len(report.Skipped),
		"duration", report.Duration(),
	)
	return report, nil
}

func (e *Engine) run(ctx context.Context, report *CycleReport, log *slog.Logger, load loadFunc) error {
	plan, err := load(ctx)
	if err != nil {
		return err
	}
	report.Events = plan.events

	merged, err := profile.Merge(plan.input)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	report.Students = len(merged.Candidates) + len(merged.Faults)
	report.Skipped = append(report.Skipped, merged.Faults...)
	for _, f := range merged.Faults {
		log.Warn("row skipped", "student_id", f.StudentID, "stage", f.Stage, "reason", f.Reason)
	}

	resolve := plan.resolve
	if resolve == nil {
		resolve = e.provider.Resolve
	}
	res, err := resolve(ctx)
	if err != nil {
		return err
	}
	report.Strategy = res.Classifier.Name()
	report.Trained = res.Trained
	if res.Fallback != nil {
		report.Fallback = res.Fallback.Error()
		log.Warn("risk model unavailable, using rule", "reason", res.Fallback)
	}
	if res.SaveErr != nil {
		log.Error("failed to save trained risk model", "error", res.SaveErr)
	}

	classified, faults, err := classify(ctx, res.Classifier, merged.Candidates)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	report.Skipped = append(report.Skipped, faults...)
	for _, f := range faults {
		log.Warn("row skipped", "student_id", f.StudentID, "stage", f.Stage, "reason", f.Reason)
	}

	if plan.commit != nil {
		if err := plan.commit(ctx, classified); err != nil {
			return err
		}
	} else if err := e.profiles.UpsertProfiles(ctx, classified, report.Mode.Columns()); err != nil {
		return shared.SourceUnavailable("profile", "UpsertProfiles", err)
	}

	report.Upserted = len(classified)
	for _, p := range classified {
		report.Levels[p.RiskLevel]++
	}
	return nil
}

// classify sets RiskLevel on every candidate the classifier accepts. Rows
// with a per-row error or an invalid tier are returned as faults.
func classify(ctx context.Context, c risk.Classifier, candidates []profile.Profile) ([]profile.Profile, []profile.RowFault, error) {
	batch := make([]risk.Features, len(candidates))
	for i, p := range candidates {
		batch[i] = p.Features()
	}

	preds, err := c.Classify(ctx, batch)
	if err != nil {
		return nil, nil, err
	}
	if len(preds) != len(candidates) {
		return nil, nil, fmt.Errorf("classifier %s returned %d predictions for %d rows", c.Name(), len(preds), len(candidates))
	}

	out := make([]profile.Profile, 0, len(candidates))
	var faults []profile.RowFault
	for i, p := range candidates {
		pred := preds[i]
		if pred.Err == nil && !pred.Level.IsValid() {
			pred.Err = shared.NewDomainError("risk", "Classify", shared.ErrValueOutOfRange,
				fmt.Sprintf("invalid risk level %q", pred.Level))
		}
		if pred.Err != nil {
			faults = append(faults, profile.RowFault{
				StudentID: p.StudentID,
				Stage:     "classify",
				Err:       pred.Err,
				Reason:    pred.Err.Error(),
			})
			continue
		}
		p.RiskLevel = pred.Level
		out = append(out, p)
	}
	return out, faults, nil
}

// TrainingSource builds the on-demand training set from live storage: stored
// score columns joined with the current attendance aggregate.
func TrainingSource(events attendance.EventStore, profiles profile.Store) risk.TrainingSource {
	return func(ctx context.Context) ([]risk.Features, error) {
		evs, err := events.ListEvents(ctx)
		if err != nil {
			return nil, shared.SourceUnavailable("attendance", "ListEvents", err)
		}
		stored, err := profiles.ListProfiles(ctx)
		if err != nil {
			return nil, shared.SourceUnavailable("profile", "ListProfiles", err)
		}
		return profile.TrainingSet(profile.ScoreRecords(stored), attendance.Aggregate(evs)), nil
	}
}
