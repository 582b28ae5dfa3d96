package service

import (
	"alcyxob/fitness-calendar/internal/calendar"
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/repository"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTraineeNameFromEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event calendar.Event
		want  string
	}{
		{name: "hyphen title", event: calendar.Event{Summary: "אימון - דנה"}, want: "דנה"},
		{name: "en dash title", event: calendar.Event{Summary: "אימון – יוסי כהן"}, want: "יוסי כהן"},
		{name: "ordinal stripped", event: calendar.Event{Summary: "אימון - דנה 2/4"}, want: "דנה"},
		{name: "single ordinal stripped", event: calendar.Event{Summary: "אימון - דנה 1"}, want: "דנה"},
		{name: "plain summary", event: calendar.Event{Summary: "  דנה  "}, want: "דנה"},
		{
			name: "attendee display name",
			event: calendar.Event{Summary: "אימון", Attendees: []calendar.Attendee{
				{Email: "coach@example.com", Organizer: true},
				{Email: "dana@example.com", DisplayName: "דנה"},
			}},
			want: "דנה",
		},
		{
			name:  "attendee email",
			event: calendar.Event{Attendees: []calendar.Attendee{{Email: "dana@example.com"}}},
			want:  "dana",
		},
		{name: "nothing to go on", event: calendar.Event{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, traineeNameFromEvent(tt.event))
		})
	}
}

func TestImportFromCalendar(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	gw := calendar.NewMemoryGateway("primary")
	enq := &recordingEnqueuer{}

	// New event for a known trainee
	gw.Put(calendar.Event{ID: "new", Summary: "אימון - דנה", Description: "רגליים", Start: f.at(1, 10, 0), End: f.at(1, 11, 0)})
	// Unknown trainee, cancelled and all-day events
	gw.Put(calendar.Event{ID: "stranger", Summary: "אימון - מישהו", Start: f.at(1, 12, 0), End: f.at(1, 13, 0)})
	gw.Put(calendar.Event{ID: "cancelled", Summary: "אימון - דנה", Status: calendar.StatusCancelled, Start: f.at(2, 10, 0), End: f.at(2, 11, 0)})
	gw.Put(calendar.Event{ID: "holiday", Summary: "חג", AllDay: true, Start: f.at(3, 0, 0), End: f.at(4, 0, 0)})

	// A pushed workout that was moved on the calendar
	pushed := f.addWorkout(t, f.at(0, 9, 0), false, f.yossi)
	pushedRec := f.syncRepo.Put(domain.CalendarSyncRecord{
		WorkoutID: &pushed, TraineeID: f.yossi, TrainerID: f.trainerID,
		SyncDirection: domain.SyncToExternal, SyncStatus: domain.SyncStatusSynced,
		ExternalEventID: "pushed", ExternalCalendarID: "primary", EventStartTime: ptr(f.at(0, 9, 0)),
	})
	gw.Put(calendar.Event{ID: "pushed", Summary: "אימון - יוסי 1", Start: f.at(0, 17, 0), End: f.at(0, 18, 0)})

	// A mirror whose event was deleted remotely
	gone := f.addWorkout(t, f.at(1, 8, 0), false, f.dana)
	goneRec := f.syncRepo.Put(domain.CalendarSyncRecord{
		WorkoutID: &gone, TraineeID: f.dana, TrainerID: f.trainerID,
		SyncDirection: domain.SyncToExternal, SyncStatus: domain.SyncStatusSynced,
		ExternalEventID: "gone", ExternalCalendarID: "primary", EventStartTime: ptr(f.at(1, 8, 0)),
	})

	// A mirror whose workout no longer exists
	orphanWorkout := primitive.NewObjectID()
	f.syncRepo.Put(domain.CalendarSyncRecord{
		WorkoutID: &orphanWorkout, TraineeID: f.dana, TrainerID: f.trainerID,
		SyncDirection: domain.SyncFromExternal, SyncStatus: domain.SyncStatusSynced,
		ExternalEventID: "orphan", ExternalCalendarID: "primary", EventStartTime: ptr(f.at(1, 7, 0)),
	})
	gw.Put(calendar.Event{ID: "orphan", Summary: "אימון - דנה", Start: f.at(1, 7, 0), End: f.at(1, 8, 0)})

	result, err := f.syncService(gw, enq).ImportFromCalendar(ctx, f.trainerID)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 1, Updated: 2, Skipped: 3, Detached: 2}, *result)

	// Imported event
	rec, err := f.syncRepo.GetByExternalEventID(ctx, f.trainerID, "primary", "new")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncFromExternal, rec.SyncDirection)
	assert.Equal(t, f.dana, rec.TraineeID)
	require.NotNil(t, rec.WorkoutID)
	w, err := f.workouts.GetByID(ctx, *rec.WorkoutID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkoutTypePersonal, w.WorkoutType)
	assert.Equal(t, "רגליים", w.Notes)
	assert.True(t, w.WorkoutDate.Equal(f.at(1, 10, 0)))
	assignments, err := f.assignments.GetByWorkoutID(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, f.dana, assignments[0].TraineeID)

	// Moved pushed event became bidirectional and moved its workout
	rec, err = f.syncRepo.GetByExternalEventID(ctx, f.trainerID, "primary", "pushed")
	require.NoError(t, err)
	assert.Equal(t, pushedRec, rec.ID)
	assert.Equal(t, domain.SyncBidirectional, rec.SyncDirection)
	assert.True(t, rec.EventStartTime.Equal(f.at(0, 17, 0)))
	w, err = f.workouts.GetByID(ctx, pushed)
	require.NoError(t, err)
	assert.True(t, w.WorkoutDate.Equal(f.at(0, 17, 0)))

	// Vanished event detached, orphan mirror removed
	rec, err = f.syncRepo.GetByExternalEventID(ctx, f.trainerID, "primary", "gone")
	require.NoError(t, err)
	assert.Equal(t, goneRec, rec.ID)
	assert.Equal(t, domain.SyncStatusFailed, rec.SyncStatus)
	_, err = f.syncRepo.GetByExternalEventID(ctx, f.trainerID, "primary", "orphan")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ElementsMatch(t, []primitive.ObjectID{f.dana, f.yossi}, enq.calls())

	// The schedule now follows the calendar.
	s, err := f.scheduleService().GetScheduledWorkouts(ctx, f.trainerID, []primitive.ObjectID{f.dana, f.yossi})
	require.NoError(t, err)
	require.Len(t, s.Today, 1)
	assert.True(t, s.Today[0].CanonicalTime.Equal(f.at(0, 17, 0)))
}

func TestImportFromCalendar_IsRepeatable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	gw := calendar.NewMemoryGateway("primary")
	gw.Put(calendar.Event{ID: "new", Summary: "אימון - דנה", Start: f.at(1, 10, 0), End: f.at(1, 11, 0)})
	svc := f.syncService(gw, nil)

	_, err := svc.ImportFromCalendar(ctx, f.trainerID)
	require.NoError(t, err)
	result, err := svc.ImportFromCalendar(ctx, f.trainerID)
	require.NoError(t, err)

	assert.Equal(t, ImportResult{Updated: 1}, *result)
	assert.Len(t, f.syncRepo.All(), 1)
	workouts, err := f.workouts.GetByTrainerInRange(ctx, f.trainerID, f.at(-30, 0, 0), f.at(30, 0, 0))
	require.NoError(t, err)
	assert.Len(t, workouts, 1)
}

func TestImportFromCalendar_ListFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	gw := calendar.NewMemoryGateway("primary")
	gw.FailOn(calendar.OpList, errors.New("quota exceeded"))

	_, err := f.syncService(gw, nil).ImportFromCalendar(context.Background(), f.trainerID)
	assert.ErrorIs(t, err, ErrCalendarListFailed)
}

func TestImportFromCalendar_WindowIsConfigurable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	gw := calendar.NewMemoryGateway("primary")
	gw.Put(calendar.Event{ID: "far", Summary: "אימון - דנה", Start: f.at(20, 10, 0), End: f.at(20, 11, 0)})

	result, err := f.syncService(gw, nil).ImportFromCalendar(context.Background(), f.trainerID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Imported)

	result, err = f.syncService(gw, nil, WithImportWindow(0, 30*24*time.Hour)).ImportFromCalendar(context.Background(), f.trainerID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
}

func TestImportFromCalendar_KeepsTrainersApart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	calendars := calendar.NewMemoryProvider("primary")
	svc := f.syncServiceWith(calendars, nil)

	// A second trainer with a client of the same name
	other := primitive.NewObjectID()
	otherDana := primitive.NewObjectID()
	f.users.Put(domain.User{ID: other, Name: "המאמנת", Role: domain.RoleTrainer, ClientIDs: []primitive.ObjectID{otherDana}})
	f.users.Put(domain.User{ID: otherDana, Name: "דנה", Role: domain.RoleClient, TrainerID: &other})

	calendars.Gateway(f.trainerID).Put(calendar.Event{ID: "ev1", Summary: "אימון - דנה", Start: f.at(1, 10, 0), End: f.at(1, 11, 0)})

	result, err := svc.ImportFromCalendar(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{}, *result)

	result, err = svc.ImportFromCalendar(ctx, f.trainerID)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 1}, *result)

	rec, err := f.syncRepo.GetByExternalEventID(ctx, f.trainerID, "primary", "ev1")
	require.NoError(t, err)
	assert.Equal(t, f.trainerID, rec.TrainerID)
	assert.Equal(t, f.dana, rec.TraineeID)

	// The same event id on the other trainer's calendar is a different event.
	calendars.Gateway(other).Put(calendar.Event{ID: "ev1", Summary: "אימון - דנה", Start: f.at(1, 12, 0), End: f.at(1, 13, 0)})
	result, err = svc.ImportFromCalendar(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 1}, *result)

	rec, err = f.syncRepo.GetByExternalEventID(ctx, other, "primary", "ev1")
	require.NoError(t, err)
	assert.Equal(t, otherDana, rec.TraineeID)
	assert.Len(t, f.syncRepo.All(), 2)
}

func TestImportFromCalendar_NotConnected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.syncServiceWith(notConnected(), nil).ImportFromCalendar(context.Background(), f.trainerID)
	assert.ErrorIs(t, err, ErrCalendarNotConnected)
}
