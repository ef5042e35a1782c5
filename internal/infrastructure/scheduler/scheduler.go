// Package scheduler runs the engine's periodic jobs, such as the weekly
// alert run, on standard cron schedules in the configured timezone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled when the scheduler
	// stops or the job timeout elapses.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// JobObserver receives the outcome of every job run, e.g. for metrics.
type JobObserver interface {
	JobFinished(name string, duration time.Duration, err error)
}

// ErrJobNotFound is returned for operations on an unregistered job.
var ErrJobNotFound = errors.New("scheduler: job not found")

// ErrJobRunning is returned by RunNow while the job is already executing.
var ErrJobRunning = errors.New("scheduler: job already running")

// JobInfo is a snapshot of a registered job.
type JobInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Schedule    string    `json:"schedule"`
	Enabled     bool      `json:"enabled"`
	Running     bool      `json:"running"`
	LastRun     time.Time `json:"last_run,omitempty"`
	NextRun     time.Time `json:"next_run"`
	LastError   string    `json:"last_error,omitempty"`
	RunCount    int64     `json:"run_count"`
	FailCount   int64     `json:"fail_count"`
}

type entry struct {
	job      Job
	expr     *Expression
	enabled  bool
	running  bool
	lastRun  time.Time
	nextRun  time.Time
	lastErr  error
	runs     int64
	failures int64
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler starts due jobs once a minute. A job never overlaps with itself:
// a tick that finds it still running skips it.
type Scheduler struct {
	mu       sync.Mutex
	jobs     map[string]*entry
	logger   *slog.Logger
	location *time.Location
	timeout  time.Duration
	observer JobObserver
	now      func() time.Time

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithLocation sets the timezone cron expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJobTimeout bounds every job run. Zero means no bound.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

// WithObserver reports job outcomes to o.
func WithObserver(o JobObserver) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// New creates a scheduler with no jobs.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:     make(map[string]*entry),
		logger:   slog.Default(),
		location: time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	return s
}

// Register adds job on the cron schedule expr.
func (s *Scheduler) Register(job Job, expr string) error {
	e, err := ParseExpression(expr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("scheduler: job %q already registered", job.Name())
	}
	next := e.Next(s.now().In(s.location))
	s.jobs[job.Name()] = &entry{job: job, expr: e, enabled: true, nextRun: next}

	s.logger.Info("job registered",
		"job", job.Name(),
		"schedule", expr,
		"next_run", next.Format(time.RFC3339),
	)
	return nil
}

// SetEnabled enables or disables a job. Re-enabling schedules it from now.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if enabled && !e.enabled {
		e.nextRun = e.expr.Next(s.now().In(s.location))
	}
	e.enabled = enabled
	return nil
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler: already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduler started", "timezone", s.location.String(), "jobs", len(s.Jobs()))

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.untilNextMinute())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.untilNextMinute())
		}
	}
}

func (s *Scheduler) untilNextMinute() time.Duration {
	now := s.now()
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

// tick starts every enabled job whose next run is due.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now().In(s.location)

	s.mu.Lock()
	var due []*entry
	for _, e := range s.jobs {
		if !e.enabled || e.nextRun.After(now) {
			continue
		}
		e.nextRun = e.expr.Next(now)
		if e.running {
			s.logger.Warn("skipping job, previous run still in progress", "job", e.job.Name())
			continue
		}
		e.running = true
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			_ = s.execute(ctx, e)
		}(e)
	}
}

// RunNow executes a job synchronously outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if e.running {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	e.running = true
	s.mu.Unlock()

	return s.execute(ctx, e)
}

// execute runs e, which the caller has marked running.
func (s *Scheduler) execute(ctx context.Context, e *entry) error {
	name := e.job.Name()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Info("running job", "job", name)
	start := s.now()
	err := s.safeRun(ctx, e.job)
	duration := s.now().Sub(start)

	s.mu.Lock()
	e.running = false
	e.lastRun = start
	e.lastErr = err
	e.runs++
	if err != nil {
		e.failures++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", duration, "error", err)
	} else {
		s.logger.Info("job completed", "job", name, "duration", duration)
	}
	if s.observer != nil {
		s.observer.JobFinished(name, duration, err)
	}
	return err
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// Jobs returns a snapshot of every job ordered by next run.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		info := JobInfo{
			Name:        e.job.Name(),
			Description: e.job.Description(),
			Schedule:    e.expr.String(),
			Enabled:     e.enabled,
			Running:     e.running,
			LastRun:     e.lastRun,
			NextRun:     e.nextRun,
			RunCount:    e.runs,
			FailCount:   e.failures,
		}
		if e.lastErr != nil {
			info.LastError = e.lastErr.Error()
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].Name < out[j].Name
		}
		return out[i].NextRun.Before(out[j].NextRun)
	})
	return out
}
