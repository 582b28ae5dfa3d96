package service

import (
	"alcyxob/fitness-calendar/internal/domain"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (f *fixture) scheduleService(opts ...Option) ScheduleService {
	base := []Option{WithClock(f.clock), WithLocation(israel)}
	return NewScheduleService(f.workouts, f.assignments, f.syncRepo, f.users, append(base, opts...)...)
}

func (f *fixture) schedule(t *testing.T) *DailySchedule {
	t.Helper()
	s, err := f.scheduleService().GetScheduledWorkouts(context.Background(), f.trainerID, []primitive.ObjectID{f.dana, f.yossi})
	require.NoError(t, err)
	return s
}

func workoutIDs(entries []ScheduleEntry) []primitive.ObjectID {
	out := []primitive.ObjectID{}
	for _, e := range entries {
		out = append(out, e.Workout.ID)
	}
	return out
}

func TestSchedule_TimePassedAroundNineOClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		now        func(f *fixture) time.Time
		wantPassed bool
	}{
		{name: "evaluated at 08:00", now: func(f *fixture) time.Time { return f.at(0, 8, 0) }, wantPassed: false},
		{name: "evaluated at 10:00", now: func(f *fixture) time.Time { return f.at(0, 10, 0) }, wantPassed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.now = tt.now(f)

			id := f.addWorkout(t, f.at(0, 9, 0), false, f.dana)
			f.addRecord(id, f.dana, domain.SyncToExternal, domain.SyncStatusSynced, ptr(f.at(0, 9, 0)))

			s := f.schedule(t)
			require.Len(t, s.Today, 1)
			assert.Empty(t, s.Tomorrow)
			entry := s.Today[0]
			assert.Equal(t, id, entry.Workout.ID)
			assert.Equal(t, "דנה", entry.Trainee.Name)
			assert.True(t, entry.CanonicalTime.Equal(f.at(0, 9, 0)))
			assert.False(t, entry.IsFromExternal)
			require.NotNil(t, entry.SyncRecord)
			assert.Equal(t, tt.wantPassed, entry.IsTimePassed)
		})
	}
}

func TestSchedule_FromExternalUsesEventStart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// Stored date says yesterday, the calendar says today 15:00.
	moved := f.addWorkout(t, f.at(-3, 7, 0), false, f.dana)
	f.addRecord(moved, f.dana, domain.SyncFromExternal, domain.SyncStatusSynced, ptr(f.at(0, 15, 0)))

	// Stored date says today, the calendar moved it three days out.
	away := f.addWorkout(t, f.at(0, 11, 0), false, f.yossi)
	f.addRecord(away, f.yossi, domain.SyncBidirectional, domain.SyncStatusSynced, ptr(f.at(3, 11, 0)))

	s := f.schedule(t)
	require.Len(t, s.Today, 1)
	assert.Empty(t, s.Tomorrow)
	assert.Equal(t, moved, s.Today[0].Workout.ID)
	assert.True(t, s.Today[0].CanonicalTime.Equal(f.at(0, 15, 0)))
	assert.True(t, s.Today[0].IsFromExternal)
}

func TestSchedule_CorruptMirrorExcludesWorkout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		dir    domain.SyncDirection
		status domain.SyncStatus
	}{
		{name: "from_external synced", dir: domain.SyncFromExternal, status: domain.SyncStatusSynced},
		{name: "bidirectional synced", dir: domain.SyncBidirectional, status: domain.SyncStatusSynced},
		{name: "bidirectional failed", dir: domain.SyncBidirectional, status: domain.SyncStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			today := f.addWorkout(t, f.at(0, 12, 0), false, f.dana)
			f.addRecord(today, f.dana, tt.dir, tt.status, nil)
			tomorrow := f.addWorkout(t, f.at(1, 12, 0), false, f.dana)
			f.addRecord(tomorrow, f.dana, tt.dir, tt.status, nil)
			healthy := f.addWorkout(t, f.at(1, 13, 0), false, f.dana)

			s := f.schedule(t)
			assert.Empty(t, s.Today)
			assert.Equal(t, []primitive.ObjectID{healthy}, workoutIDs(s.Tomorrow))
		})
	}
}

func TestSchedule_TodayDropsCompletedDuplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	doneToday := f.addWorkout(t, f.at(0, 7, 0), true, f.dana)
	openToday := f.addWorkout(t, f.at(0, 18, 0), false, f.dana)
	onlyDoneToday := f.addWorkout(t, f.at(0, 6, 0), true, f.yossi)
	doneTomorrow := f.addWorkout(t, f.at(1, 7, 0), true, f.dana)
	openTomorrow := f.addWorkout(t, f.at(1, 18, 0), false, f.dana)

	s := f.schedule(t)
	assert.Equal(t, []primitive.ObjectID{onlyDoneToday, openToday}, workoutIDs(s.Today))
	assert.NotContains(t, workoutIDs(s.Today), doneToday)
	assert.Equal(t, []primitive.ObjectID{doneTomorrow, openTomorrow}, workoutIDs(s.Tomorrow))

	for _, e := range s.Today {
		assert.True(t, e.HasCompletedWorkoutSameDay, e.Trainee.Name)
	}
	for _, e := range s.Tomorrow {
		assert.True(t, e.HasCompletedWorkoutSameDay)
	}
}

func TestSchedule_DayAfterTomorrowBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status domain.SyncStatus
		start  func(f *fixture) time.Time
		want   bool
	}{
		{name: "synced at boundary", status: domain.SyncStatusSynced, start: func(f *fixture) time.Time { return f.at(2, 0, 0) }},
		{name: "failed at boundary", status: domain.SyncStatusFailed, start: func(f *fixture) time.Time { return f.at(2, 0, 0) }},
		{name: "synced just before boundary", status: domain.SyncStatusSynced, start: func(f *fixture) time.Time { return f.at(1, 23, 59) }, want: true},
		{name: "failed inside window", status: domain.SyncStatusFailed, start: func(f *fixture) time.Time { return f.at(1, 9, 0) }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			id := f.addWorkout(t, f.at(1, 9, 0), false, f.dana)
			f.addRecord(id, f.dana, domain.SyncBidirectional, tt.status, ptr(tt.start(f)))

			s := f.schedule(t)
			assert.Empty(t, s.Today)
			if tt.want {
				assert.Equal(t, []primitive.ObjectID{id}, workoutIDs(s.Tomorrow))
			} else {
				assert.Empty(t, s.Tomorrow)
			}
		})
	}
}

func TestSchedule_OrphanRecordIsNeverJoined(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.addRecord(primitive.NewObjectID(), f.dana, domain.SyncFromExternal, domain.SyncStatusSynced, ptr(f.at(0, 10, 0)))
	calendarOnly := domain.CalendarSyncRecord{
		TraineeID:       f.dana,
		TrainerID:       f.trainerID,
		SyncDirection:   domain.SyncFromExternal,
		ExternalEventID: "loose",
		EventStartTime:  ptr(f.at(0, 11, 0)),
		SyncStatus:      domain.SyncStatusSynced,
	}
	f.syncRepo.Put(calendarOnly)

	s := f.schedule(t)
	assert.Empty(t, s.Today)
	assert.Empty(t, s.Tomorrow)
}

func TestSchedule_JoinRules(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	stranger := primitive.NewObjectID() // requested but unknown to the directory
	notRequested := primitive.NewObjectID()

	group := f.addWorkout(t, f.at(0, 12, 0), false, f.dana, f.yossi)
	f.addWorkout(t, f.at(0, 13, 0), false, stranger)
	f.addWorkout(t, f.at(0, 14, 0), false, notRequested)
	f.addWorkout(t, f.at(0, 15, 0), false) // unassigned
	early := f.addWorkout(t, f.at(0, 10, 0), false, f.yossi)

	s, err := f.scheduleService().GetScheduledWorkouts(context.Background(), f.trainerID,
		[]primitive.ObjectID{f.dana, f.yossi, stranger})
	require.NoError(t, err)

	require.Len(t, s.Today, 3)
	assert.Equal(t, early, s.Today[0].Workout.ID)
	assert.Equal(t, group, s.Today[1].Workout.ID)
	assert.Equal(t, group, s.Today[2].Workout.ID)
	assert.ElementsMatch(t, []primitive.ObjectID{f.dana, f.yossi},
		[]primitive.ObjectID{s.Today[1].Trainee.ID, s.Today[2].Trainee.ID})
}

func TestSchedule_OtherTrainersWorkoutsAreIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	other := newFixture(t)
	other.workouts = f.workouts
	other.assignments = f.assignments

	id := other.addWorkout(t, f.at(0, 9, 0), false, f.dana)
	// A mirror under our trainer pointing at the other trainer's workout.
	f.addRecord(id, f.dana, domain.SyncFromExternal, domain.SyncStatusSynced, ptr(f.at(0, 9, 0)))

	s := f.schedule(t)
	assert.Empty(t, s.Today)
}

func TestSchedule_MirrorsFarFromTheWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// Stored today, moved weeks ahead on the calendar
	movedAway := f.addWorkout(t, f.at(0, 12, 0), false, f.dana)
	f.addRecord(movedAway, f.dana, domain.SyncFromExternal, domain.SyncStatusSynced, ptr(f.at(40, 12, 0)))
	// Stored weeks ago, moved onto tomorrow
	movedIn := f.addWorkout(t, f.at(-40, 10, 0), false, f.yossi)
	f.addRecord(movedIn, f.yossi, domain.SyncFromExternal, domain.SyncStatusSynced, ptr(f.at(1, 10, 0)))

	s := f.schedule(t)
	assert.Empty(t, s.Today)
	require.Equal(t, []primitive.ObjectID{movedIn}, workoutIDs(s.Tomorrow))
	assert.True(t, s.Tomorrow[0].CanonicalTime.Equal(f.at(1, 10, 0)))
}

func TestSchedule_StoreFailureAborts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWorkout(t, f.at(0, 9, 0), false, f.dana)

	boom := errors.New("connection reset")
	f.workouts.Err = boom

	s, err := f.scheduleService().GetScheduledWorkouts(context.Background(), f.trainerID, []primitive.ObjectID{f.dana})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, s)

	f.workouts.Err = nil
	f.syncRepo.Err = boom
	s, err = f.scheduleService().GetScheduledWorkouts(context.Background(), f.trainerID, []primitive.ObjectID{f.dana})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, s)
}

func TestSchedule_EmptyInputs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addWorkout(t, f.at(0, 9, 0), false, f.dana)
	svc := f.scheduleService()

	s, err := svc.GetScheduledWorkouts(context.Background(), f.trainerID, nil)
	require.NoError(t, err)
	assert.Empty(t, s.Today)
	assert.Empty(t, s.Tomorrow)

	_, err = svc.GetScheduledWorkouts(context.Background(), primitive.NilObjectID, []primitive.ObjectID{f.dana})
	assert.ErrorIs(t, err, ErrInvalidTrainerID)
}

func TestSchedule_DayBoundaryFollowsLocation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	// 01:30 local is still the previous day in UTC.
	f.now = f.at(0, 1, 30)
	id := f.addWorkout(t, f.at(0, 3, 0), false, f.dana)

	s := f.schedule(t)
	assert.Equal(t, []primitive.ObjectID{id}, workoutIDs(s.Today))
	assert.Empty(t, s.Tomorrow)

	utc, err := NewScheduleService(f.workouts, f.assignments, f.syncRepo, f.users, WithClock(f.clock)).
		GetScheduledWorkouts(context.Background(), f.trainerID, []primitive.ObjectID{f.dana})
	require.NoError(t, err)
	assert.Empty(t, utc.Today)
	assert.Equal(t, []primitive.ObjectID{id}, workoutIDs(utc.Tomorrow))
}

func TestGetTrainerSchedule_CoversAllClients(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	danas := f.addWorkout(t, f.at(0, 9, 0), false, f.dana)
	yossis := f.addWorkout(t, f.at(0, 11, 0), false, f.yossi)

	s, err := f.scheduleService().GetTrainerSchedule(context.Background(), f.trainerID)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{danas, yossis}, workoutIDs(s.Today))

	_, err = f.scheduleService().GetTrainerSchedule(context.Background(), primitive.NilObjectID)
	assert.ErrorIs(t, err, ErrInvalidTrainerID)
}
