// Package memory implements the event and profile stores in process memory.
// It backs the CLI dry runs and every application test; all reads return
// copies so callers never observe a half-applied batch.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT STORE
// ══════════════════════════════════════════════════════════════════════════════

// EventStore is an in-memory attendance.EventStore.
type EventStore struct {
	mu     sync.RWMutex
	events map[attendance.Key]attendance.Event

	// Err, when set, is returned by every operation.
	Err error
}

// NewEventStore creates an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[attendance.Key]attendance.Event)}
}

var _ attendance.EventStore = (*EventStore)(nil)

// ListEvents implements attendance.EventStore.
func (s *EventStore) ListEvents(ctx context.Context) ([]attendance.Event, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]attendance.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sortEvents(out, attendance.OldestFirst)
	return out, nil
}

// UpsertEvents implements attendance.EventStore.
func (s *EventStore) UpsertEvents(ctx context.Context, events []attendance.Event) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		s.events[e.Key()] = e
	}
	return nil
}

// ReplaceEvents implements attendance.EventStore.
func (s *EventStore) ReplaceEvents(ctx context.Context, events []attendance.Event) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	next := make(map[attendance.Key]attendance.Event, len(events))
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
		next[e.Key()] = e
	}
	s.mu.Lock()
	s.events = next
	s.mu.Unlock()
	return nil
}

// ListStudentEvents implements attendance.EventStore.
func (s *EventStore) ListStudentEvents(ctx context.Context, studentID int64, order attendance.HistoryOrder, limit int) ([]attendance.Event, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []attendance.Event
	for _, e := range s.events {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sortEvents(out, order)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *EventStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Err
}

func sortEvents(events []attendance.Event, order attendance.HistoryOrder) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Date.Equal(b.Date) {
			if order == attendance.NewestFirst {
				return a.Date.After(b.Date)
			}
			return a.Date.Before(b.Date)
		}
		return a.StudentID < b.StudentID
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE STORE
// ══════════════════════════════════════════════════════════════════════════════

// ProfileStore is an in-memory profile.Store.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[int64]profile.Profile

	// Err, when set, is returned by every operation.
	Err error
	// UpsertErr, when set, fails UpsertProfiles only.
	UpsertErr error
}

// NewProfileStore creates an empty ProfileStore.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[int64]profile.Profile)}
}

var _ profile.Store = (*ProfileStore)(nil)

// ListProfiles implements profile.Store.
func (s *ProfileStore) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	return s.filter(ctx, func(profile.Profile) bool { return true })
}

// ListProfilesByRisk implements profile.Store.
func (s *ProfileStore) ListProfilesByRisk(ctx context.Context, levels ...risk.Level) ([]profile.Profile, error) {
	want := make(map[risk.Level]bool, len(levels))
	for _, l := range levels {
		want[l] = true
	}
	return s.filter(ctx, func(p profile.Profile) bool { return want[p.RiskLevel] })
}

// GetProfile implements profile.Store.
func (s *ProfileStore) GetProfile(ctx context.Context, studentID int64) (*profile.Profile, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[studentID]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return &p, nil
}

// UpsertProfiles implements profile.Store. The batch is validated before
// anything is written, so it is applied entirely or not at all.
func (s *ProfileStore) UpsertProfiles(ctx context.Context, profiles []profile.Profile, columns profile.ColumnSet) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	if err := columns.Validate(); err != nil {
		return err
	}
	for _, p := range profiles {
		if p.StudentID <= 0 {
			return shared.ErrInvalidStudentID
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range profiles {
		cur, ok := s.profiles[p.StudentID]
		if !ok {
			// Columns outside the set take their zero value on insert.
			cur = profile.Profile{}
		}
		profile.Apply(&cur, p, columns)
		s.profiles[p.StudentID] = cur
	}
	return nil
}

// Put stores p as-is, bypassing the upsert path. Used to simulate edits made
// outside the engine.
func (s *ProfileStore) Put(p profile.Profile) {
	s.mu.Lock()
	s.profiles[p.StudentID] = p
	s.mu.Unlock()
}

func (s *ProfileStore) filter(ctx context.Context, keep func(profile.Profile) bool) ([]profile.Profile, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]profile.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if keep(p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (s *ProfileStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Err
}

// ══════════════════════════════════════════════════════════════════════════════
// SEED WRITER
// ══════════════════════════════════════════════════════════════════════════════

// SeedWriter commits an initial load to an EventStore and a ProfileStore as
// one unit: every failure is detected before either store changes.
type SeedWriter struct {
	events   *EventStore
	profiles *ProfileStore
}

// NewSeedWriter creates a SeedWriter over the two stores.
func NewSeedWriter(events *EventStore, profiles *ProfileStore) *SeedWriter {
	return &SeedWriter{events: events, profiles: profiles}
}

// WriteSeed replaces the event history and writes every profile column.
func (w *SeedWriter) WriteSeed(ctx context.Context, events []attendance.Event, profiles []profile.Profile) error {
	if err := w.events.check(ctx); err != nil {
		return err
	}
	if err := w.profiles.check(ctx); err != nil {
		return err
	}
	if w.profiles.UpsertErr != nil {
		return w.profiles.UpsertErr
	}

	next := make(map[attendance.Key]attendance.Event, len(events))
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
		next[e.Key()] = e
	}
	for _, p := range profiles {
		if p.StudentID <= 0 {
			return shared.ErrInvalidStudentID
		}
	}

	w.events.mu.Lock()
	defer w.events.mu.Unlock()
	w.profiles.mu.Lock()
	defer w.profiles.mu.Unlock()

	w.events.events = next
	for _, p := range profiles {
		cur := w.profiles.profiles[p.StudentID]
		profile.Apply(&cur, p, profile.FullColumns)
		w.profiles.profiles[p.StudentID] = cur
	}
	return nil
}
