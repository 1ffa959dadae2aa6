// Package memory provides an in-process implementation of the domain stores
// for local development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"example.com/activitydedup/internal/domain"
	"example.com/activitydedup/internal/events"
	"example.com/activitydedup/internal/observability"
)

// Store keeps activities, planned workouts and flags in maps guarded by a
// single mutex. WithinTx snapshots state and restores it when fn fails.
type Store struct {
	mu         sync.Mutex
	activities map[int64]domain.Activity
	workouts   map[int64]domain.PlannedWorkout
	flags      map[int64]domain.WorkoutFlag
	events     []events.Event
	nextID     int64
	failures   map[string]error
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		activities: make(map[int64]domain.Activity),
		workouts:   make(map[int64]domain.PlannedWorkout),
		flags:      make(map[int64]domain.WorkoutFlag),
		failures:   make(map[string]error),
	}
}

// AddActivity stores a copy of act, assigning an id when none is set.
func (s *Store) AddActivity(act domain.Activity) domain.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()

	if act.ID == 0 {
		s.nextID++
		act.ID = s.nextID
	} else if act.ID > s.nextID {
		s.nextID = act.ID
	}
	if act.MergeStatus == "" {
		act.MergeStatus = domain.MergeStatusUnlinked
	}
	now := time.Now().UTC()
	if act.CreatedAt.IsZero() {
		act.CreatedAt = now
	}
	act.UpdatedAt = now
	s.activities[act.ID] = act
	return act
}

// AddPlannedWorkout stores a copy of w, assigning an id when none is set.
func (s *Store) AddPlannedWorkout(w domain.PlannedWorkout) domain.PlannedWorkout {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == 0 {
		s.nextID++
		w.ID = s.nextID
	} else if w.ID > s.nextID {
		s.nextID = w.ID
	}
	s.workouts[w.ID] = w
	return w
}

// Activity returns the stored activity regardless of owner.
func (s *Store) Activity(id int64) (domain.Activity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	act, ok := s.activities[id]
	return act, ok
}

// Flag returns the merge candidate flag attached to activityID.
func (s *Store) Flag(activityID int64) (domain.WorkoutFlag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flag, ok := s.flags[activityID]
	return flag, ok
}

// FlagCount returns the number of live flags.
func (s *Store) FlagCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flags)
}

// Events returns the events recorded by committed transactions.
func (s *Store) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

// InjectFailure makes the next call of the named operation return err.
// Operation names match the Tx and store method names.
func (s *Store) InjectFailure(operation string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation] = err
}

// failure must be called with s.mu held.
func (s *Store) failure(operation string) error {
	err, ok := s.failures[operation]
	if !ok {
		return nil
	}
	delete(s.failures, operation)
	return domain.Upstream(err)
}

// ListWindow implements domain.ActivityStore.
func (s *Store) ListWindow(ctx context.Context, ownerID string, from, to time.Time, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListWindow"); err != nil {
		return nil, nil, err
	}

	matched := make([]domain.Activity, 0)
	for _, act := range s.activities {
		if act.OwnerID != ownerID || act.StartTime.Before(from) || !act.StartTime.Before(to) {
			continue
		}
		if cursor != nil && !after(act, *cursor) {
			continue
		}
		matched = append(matched, act)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartTime.Equal(matched[j].StartTime) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].StartTime.Before(matched[j].StartTime)
	})

	if limit <= 0 || len(matched) <= limit {
		return matched, nil, nil
	}
	page := matched[:limit]
	last := page[len(page)-1]
	return page, &domain.Cursor{StartTime: last.StartTime, ID: last.ID}, nil
}

func after(act domain.Activity, c domain.Cursor) bool {
	if act.StartTime.Equal(c.StartTime) {
		return act.ID > c.ID
	}
	return act.StartTime.After(c.StartTime)
}

// DeleteMany implements domain.ActivityStore. Flags of deleted activities go with them.
func (s *Store) DeleteMany(ctx context.Context, ownerID string, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteMany"); err != nil {
		return 0, err
	}

	var deleted int64
	for _, id := range ids {
		act, ok := s.activities[id]
		if !ok || act.OwnerID != ownerID {
			continue
		}
		delete(s.activities, id)
		delete(s.flags, id)
		deleted++
	}
	return deleted, nil
}

// ListPendingMergeCandidates implements domain.FlagStore.
func (s *Store) ListPendingMergeCandidates(ctx context.Context, ownerID string) ([]domain.PendingCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListPendingMergeCandidates"); err != nil {
		return nil, err
	}

	out := make([]domain.PendingCandidate, 0)
	stale := 0
	for activityID, flag := range s.flags {
		act, ok := s.activities[activityID]
		if !ok || act.OwnerID != ownerID {
			continue
		}
		match, ok := s.activities[flag.Data.PotentialMatchID]
		if !ok || match.OwnerID != ownerID {
			stale++
			continue
		}
		out = append(out, domain.PendingCandidate{
			Activity:        act,
			MatchActivity:   match,
			Confidence:      flag.Data.Confidence,
			ConfidenceScore: domain.DisplayScore(flag.Data.ConfidenceScore),
		})
	}
	observability.RecordStaleFlags(stale)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Activity.StartTime.Equal(out[j].Activity.StartTime) {
			return out[i].Activity.ID < out[j].Activity.ID
		}
		return out[i].Activity.StartTime.Before(out[j].Activity.StartTime)
	})
	return out, nil
}

// WithinTx implements domain.UnitOfWork.
func (s *Store) WithinTx(ctx context.Context, ownerID string, fn func(domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("WithinTx"); err != nil {
		return err
	}

	snapshot := s.snapshot()
	tx := &memTx{store: s, ownerID: ownerID}
	if err := fn(tx); err != nil {
		s.restore(snapshot)
		return err
	}
	s.events = append(s.events, tx.events...)
	return nil
}

type state struct {
	activities map[int64]domain.Activity
	flags      map[int64]domain.WorkoutFlag
	nextID     int64
}

func (s *Store) snapshot() state {
	st := state{
		activities: make(map[int64]domain.Activity, len(s.activities)),
		flags:      make(map[int64]domain.WorkoutFlag, len(s.flags)),
		nextID:     s.nextID,
	}
	for k, v := range s.activities {
		st.activities[k] = v
	}
	for k, v := range s.flags {
		st.flags[k] = v
	}
	return st
}

func (s *Store) restore(st state) {
	s.activities = st.activities
	s.flags = st.flags
	s.nextID = st.nextID
}

// memTx runs with Store.mu held by WithinTx.
type memTx struct {
	store   *Store
	ownerID string
	events  []events.Event
}

func (t *memTx) owned(activityID int64) (domain.Activity, bool) {
	act, ok := t.store.activities[activityID]
	if !ok || act.OwnerID != t.ownerID {
		return domain.Activity{}, false
	}
	return act, true
}

func (t *memTx) LockActivity(ctx context.Context, activityID int64) (*domain.Activity, error) {
	if err := t.store.failure("LockActivity"); err != nil {
		return nil, err
	}
	act, ok := t.owned(activityID)
	if !ok {
		return nil, nil
	}
	return &act, nil
}

func (t *memTx) SetMergeStatus(ctx context.Context, activityID int64, status domain.MergeStatus, mergedInto *int64) error {
	if err := t.store.failure("SetMergeStatus"); err != nil {
		return err
	}
	act, ok := t.owned(activityID)
	if !ok {
		return errors.New("memory: activity not found")
	}
	act.MergeStatus = status
	act.MergedIntoID = mergedInto
	act.UpdatedAt = time.Now().UTC()
	t.store.activities[activityID] = act
	return nil
}

func (t *memTx) SetPlannedWorkout(ctx context.Context, activityID int64, workoutID *int64, reason *string, linkedAt *time.Time) error {
	if err := t.store.failure("SetPlannedWorkout"); err != nil {
		return err
	}
	act, ok := t.owned(activityID)
	if !ok {
		return errors.New("memory: activity not found")
	}
	act.PlannedWorkoutID = workoutID
	act.LinkReason = reason
	act.LinkedAt = linkedAt
	act.UpdatedAt = time.Now().UTC()
	t.store.activities[activityID] = act
	return nil
}

func (t *memTx) PlannedWorkout(ctx context.Context, workoutID int64) (*domain.PlannedWorkout, error) {
	if err := t.store.failure("PlannedWorkout"); err != nil {
		return nil, err
	}
	w, ok := t.store.workouts[workoutID]
	if !ok || w.OwnerID != t.ownerID {
		return nil, nil
	}
	return &w, nil
}

func (t *memTx) MergeCandidate(ctx context.Context, activityID int64) (*domain.WorkoutFlag, error) {
	if err := t.store.failure("MergeCandidate"); err != nil {
		return nil, err
	}
	if _, ok := t.owned(activityID); !ok {
		return nil, nil
	}
	flag, ok := t.store.flags[activityID]
	if !ok {
		return nil, nil
	}
	return &flag, nil
}

func (t *memTx) UpsertMergeCandidate(ctx context.Context, activityID int64, data domain.MergeCandidateData) error {
	if err := t.store.failure("UpsertMergeCandidate"); err != nil {
		return err
	}
	if _, ok := t.owned(activityID); !ok {
		return nil
	}
	now := time.Now().UTC()
	flag, ok := t.store.flags[activityID]
	if !ok {
		t.store.nextID++
		flag = domain.WorkoutFlag{
			ID:         t.store.nextID,
			ActivityID: activityID,
			FlagType:   domain.FlagTypeMergeCandidate,
			CreatedAt:  now,
		}
	}
	flag.Data = data
	flag.UpdatedAt = now
	t.store.flags[activityID] = flag
	return nil
}

func (t *memTx) DeleteMergeCandidate(ctx context.Context, activityID int64) error {
	if err := t.store.failure("DeleteMergeCandidate"); err != nil {
		return err
	}
	if _, ok := t.owned(activityID); !ok {
		return nil
	}
	delete(t.store.flags, activityID)
	return nil
}

func (t *memTx) RecordEvent(ctx context.Context, event events.Event) error {
	if err := t.store.failure("RecordEvent"); err != nil {
		return err
	}
	t.events = append(t.events, event)
	return nil
}
