package domain_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/activitydedup/internal/domain"
	"example.com/activitydedup/internal/events"
	"example.com/activitydedup/internal/persistence/memory"
)

func seedLinkable(t *testing.T) (*memory.Store, domain.Activity, domain.PlannedWorkout, domain.PlannedWorkout) {
	t.Helper()
	store := memory.NewStore()
	act := store.AddActivity(domain.Activity{
		OwnerID:   ownerID,
		Source:    domain.SourceDeviceSync,
		StartTime: time.Date(2024, time.June, 3, 6, 30, 0, 0, time.UTC),
	})
	first := store.AddPlannedWorkout(domain.PlannedWorkout{OwnerID: ownerID, WorkoutType: "easy_run"})
	second := store.AddPlannedWorkout(domain.PlannedWorkout{OwnerID: ownerID, WorkoutType: "tempo"})
	return store, act, first, second
}

func TestLinkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, act, workout, _ := seedLinkable(t)
	linker := domain.NewWorkoutLinker(store)

	res, err := linker.Link(ctx, ownerID, act.ID, workout.ID, "  ran it a day late ")
	require.NoError(t, err)
	assert.True(t, res.Changed)

	stored, _ := store.Activity(act.ID)
	require.NotNil(t, stored.PlannedWorkoutID)
	assert.Equal(t, workout.ID, *stored.PlannedWorkoutID)
	require.NotNil(t, stored.LinkReason)
	assert.Equal(t, "ran it a day late", *stored.LinkReason)
	assert.NotNil(t, stored.LinkedAt)

	again, err := linker.Link(ctx, ownerID, act.ID, workout.ID, "ran it a day late")
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Len(t, store.Events(), 1)
}

func TestLinkRepointsToDifferentWorkout(t *testing.T) {
	ctx := context.Background()
	store, act, first, second := seedLinkable(t)
	linker := domain.NewWorkoutLinker(store)

	_, err := linker.Link(ctx, ownerID, act.ID, first.ID, "")
	require.NoError(t, err)
	res, err := linker.Link(ctx, ownerID, act.ID, second.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Changed)

	stored, _ := store.Activity(act.ID)
	assert.Equal(t, second.ID, *stored.PlannedWorkoutID)
	assert.Nil(t, stored.LinkReason)
}

func TestLinkIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	store, act, workout, _ := seedLinkable(t)
	foreign := store.AddPlannedWorkout(domain.PlannedWorkout{OwnerID: "owner-2"})
	linker := domain.NewWorkoutLinker(store)

	_, err := linker.Link(ctx, ownerID, act.ID, foreign.ID, "")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = linker.Link(ctx, "owner-2", act.ID, workout.ID, "")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = linker.Unlink(ctx, "owner-2", act.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	stored, _ := store.Activity(act.ID)
	assert.Nil(t, stored.PlannedWorkoutID)
	assert.Empty(t, store.Events())
}

func TestUnlinkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, act, workout, _ := seedLinkable(t)
	linker := domain.NewWorkoutLinker(store)

	_, err := linker.Link(ctx, ownerID, act.ID, workout.ID, "swapped days")
	require.NoError(t, err)

	res, err := linker.Unlink(ctx, ownerID, act.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	stored, _ := store.Activity(act.ID)
	assert.Nil(t, stored.PlannedWorkoutID)
	assert.Nil(t, stored.LinkReason)

	again, err := linker.Unlink(ctx, ownerID, act.ID)
	require.NoError(t, err)
	assert.False(t, again.Changed)

	recorded := store.Events()
	require.Len(t, recorded, 2)
	payload := recorded[1].Payload.(events.WorkoutLinked)
	assert.False(t, payload.Linked)
	assert.Equal(t, workout.ID, payload.WorkoutID)
}

func TestLinkValidatesInput(t *testing.T) {
	ctx := context.Background()
	store, act, workout, _ := seedLinkable(t)
	linker := domain.NewWorkoutLinker(store)

	_, err := linker.Link(ctx, ownerID, act.ID, 0, "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = linker.Link(ctx, ownerID, act.ID, workout.ID, strings.Repeat("x", domain.MaxLinkReasonLength+1))
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = linker.Link(ctx, "", act.ID, workout.ID, "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
