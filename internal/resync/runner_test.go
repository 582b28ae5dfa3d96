package resync

import (
	"alcyxob/fitness-calendar/internal/calendar"
	"alcyxob/fitness-calendar/internal/calendar/mocks"
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/repository/inmemory"
	"alcyxob/fitness-calendar/internal/session"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/mock/gomock"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fastBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = time.Millisecond
	b.RandomizationFactor = 0
	return b
}

type fixture struct {
	clock       *testClock
	workouts    *inmemory.WorkoutRepository
	assignments *inmemory.AssignmentRepository
	syncRepo    *inmemory.CalendarSyncRepository
	jobs        *inmemory.ResyncJobRepository
	numberer    *session.Numberer
	trainerID   primitive.ObjectID
	traineeID   primitive.ObjectID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:       &testClock{now: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)},
		workouts:    inmemory.NewWorkoutRepository(),
		assignments: inmemory.NewAssignmentRepository(),
		syncRepo:    inmemory.NewCalendarSyncRepository(),
		jobs:        inmemory.NewResyncJobRepository(),
		trainerID:   primitive.NewObjectID(),
		traineeID:   primitive.NewObjectID(),
	}
	users := inmemory.NewUserRepository(domain.User{ID: f.traineeID, Name: "דנה", Role: domain.RoleClient, TrainerID: &f.trainerID})
	f.numberer = session.NewNumberer(f.workouts, f.assignments, users, time.UTC)
	return f
}

func (f *fixture) runner(gw calendar.Gateway, opts ...Option) *Runner {
	base := []Option{
		WithClock(f.clock.Now),
		WithBackOff(fastBackOff),
		WithUpdateDelay(0),
		WithPollInterval(10 * time.Millisecond),
	}
	calendars := calendar.ProviderFunc(func(context.Context, primitive.ObjectID) (calendar.Gateway, error) {
		return gw, nil
	})
	return New(f.jobs, f.syncRepo, f.numberer, calendars, append(base, opts...)...)
}

// addSyncedWorkout stores a workout, its assignment and a synced mirror with the given title.
func (f *fixture) addSyncedWorkout(t *testing.T, at time.Time, eventID, summary string) primitive.ObjectID {
	t.Helper()
	ctx := context.Background()
	id, err := f.workouts.Create(ctx, &domain.Workout{TrainerID: f.trainerID, WorkoutDate: at})
	require.NoError(t, err)
	_, err = f.assignments.Create(ctx, &domain.WorkoutAssignment{WorkoutID: id, TraineeID: f.traineeID})
	require.NoError(t, err)
	f.syncRepo.Put(domain.CalendarSyncRecord{
		WorkoutID:          &id,
		TraineeID:          f.traineeID,
		TrainerID:          f.trainerID,
		SyncDirection:      domain.SyncToExternal,
		ExternalEventID:    eventID,
		ExternalCalendarID: "primary",
		EventStartTime:     &at,
		SyncStatus:         domain.SyncStatusSynced,
		Summary:            summary,
	})
	return id
}

func (f *fixture) recordFor(t *testing.T, eventID string) domain.CalendarSyncRecord {
	t.Helper()
	rec, err := f.syncRepo.GetByExternalEventID(context.Background(), f.trainerID, "primary", eventID)
	require.NoError(t, err)
	return *rec
}

func TestRunJob_RetitlesOnlyChangedEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)

	f.addSyncedWorkout(t, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), "e1", "אימון - דנה 1")
	f.addSyncedWorkout(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), "e2", "אימון - דנה 2/2")

	gw.EXPECT().
		UpdateEvent(gomock.Any(), "e1", calendar.EventUpdate{Summary: "אימון - דנה 1/2"}).
		Return(nil).
		Times(1)

	job := &domain.ResyncJob{TrainerID: f.trainerID, TraineeID: f.traineeID, Scope: domain.ScopeCurrentMonth}
	require.NoError(t, f.runner(gw).RunJob(context.Background(), job))

	rec := f.recordFor(t, "e1")
	assert.Equal(t, "אימון - דנה 1/2", rec.Summary)
	assert.Equal(t, domain.SyncStatusSynced, rec.SyncStatus)
	require.NotNil(t, rec.LastSyncedAt)
}

func TestRunJob_ScopeLimitsMonths(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)

	f.addSyncedWorkout(t, time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC), "april", "stale")
	f.addSyncedWorkout(t, time.Date(2023, 12, 2, 9, 0, 0, 0, time.UTC), "december", "stale")

	job := &domain.ResyncJob{TrainerID: f.trainerID, TraineeID: f.traineeID, Scope: domain.ScopeCurrentMonth}
	require.NoError(t, f.runner(gw).RunJob(context.Background(), job))

	gw.EXPECT().UpdateEvent(gomock.Any(), "april", calendar.EventUpdate{Summary: "אימון - דנה 1"}).Return(nil)
	job.Scope = domain.ScopeCurrentMonthAndFuture
	require.NoError(t, f.runner(gw).RunJob(context.Background(), job))

	gw.EXPECT().UpdateEvent(gomock.Any(), "december", calendar.EventUpdate{Summary: "אימון - דנה 1"}).Return(nil)
	job.Scope = domain.ScopeAll
	require.NoError(t, f.runner(gw).RunJob(context.Background(), job))
}

func TestRunJob_UpdateFailureMarksRecordFailed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{name: "event gone is not retried", err: calendar.ErrEventNotFound, wantCalls: 1},
		{name: "transient failure is retried", err: calendar.ErrUnavailable, wantCalls: updateTries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctrl := gomock.NewController(t)
			gw := mocks.NewMockGateway(ctrl)

			f.addSyncedWorkout(t, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), "e1", "stale")
			gw.EXPECT().UpdateEvent(gomock.Any(), "e1", gomock.Any()).Return(tt.err).Times(tt.wantCalls)

			job := &domain.ResyncJob{TrainerID: f.trainerID, TraineeID: f.traineeID, Scope: domain.ScopeCurrentMonth}
			require.NoError(t, f.runner(gw).RunJob(context.Background(), job))

			rec := f.recordFor(t, "e1")
			assert.Equal(t, domain.SyncStatusFailed, rec.SyncStatus)
			assert.Equal(t, "stale", rec.Summary)
		})
	}
}

func TestRunPending_RetriesWithBackoffThenFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.syncRepo.Err = errors.New("db down")

	r := f.runner(calendar.NewMemoryGateway("primary"), WithMaxAttempts(2))
	require.NoError(t, r.Enqueue(ctx, f.traineeID, f.trainerID, ""))

	assert.Equal(t, 1, r.RunPending(ctx))
	jobs := f.jobs.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobPending, jobs[0].Status)
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.Equal(t, domain.ScopeCurrentMonthAndFuture, jobs[0].Scope)
	assert.Contains(t, jobs[0].LastError, "db down")
	assert.True(t, jobs[0].NextRunAt.After(f.clock.Now()))
	assert.Empty(t, jobs[0].LeaseOwner)

	// Not due yet
	assert.Equal(t, 0, r.RunPending(ctx))

	f.clock.Advance(time.Second)
	assert.Equal(t, 1, r.RunPending(ctx))
	job, ok := f.jobs.Get(jobs[0].ID)
	require.True(t, ok)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, 2, job.Attempts)

	assert.Equal(t, 0, r.RunPending(ctx))
}

func TestRunPending_ReclaimsExpiredLease(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	r := f.runner(calendar.NewMemoryGateway("primary"), WithLease(time.Minute))
	require.NoError(t, r.Enqueue(ctx, f.traineeID, f.trainerID, domain.ScopeCurrentMonth))

	// Another worker claimed the job and died.
	claimed, err := f.jobs.ClaimNext(ctx, "crashed-worker", f.clock.Now(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, r.RunPending(ctx))

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, r.RunPending(ctx))
	job, ok := f.jobs.Get(claimed.ID)
	require.True(t, ok)
	assert.Equal(t, domain.JobDone, job.Status)
}

func TestEnqueueRejectsInvalidScope(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.runner(calendar.NewMemoryGateway("primary"))

	err := r.Enqueue(context.Background(), f.traineeID, f.trainerID, domain.ResyncScope("next_week"))
	assert.Error(t, err)
	assert.Empty(t, f.jobs.List())
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	r := f.runner(calendar.NewMemoryGateway("primary"))
	require.NoError(t, r.Enqueue(ctx, f.traineeID, f.trainerID, domain.ScopeCurrentMonth))

	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(ctx) }()

	require.Eventually(t, func() bool {
		jobs := f.jobs.List()
		return len(jobs) == 1 && jobs[0].Status == domain.JobDone
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, r.Stop())
	require.NoError(t, <-errCh)
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	r := f.runner(calendar.NewMemoryGateway("primary"))
	require.NoError(t, r.Enqueue(ctx, f.traineeID, f.trainerID, domain.ScopeCurrentMonth))

	require.NoError(t, r.Stop())

	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(ctx) }()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start kept running after Stop")
	}
	jobs := f.jobs.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobPending, jobs[0].Status)
}

func TestStartStop_Concurrent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for i := 0; i < 20; i++ {
		r := f.runner(calendar.NewMemoryGateway("primary"))
		errCh := make(chan error, 1)
		go func() { errCh <- r.Start(context.Background()) }()
		require.NoError(t, r.Stop())
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Start did not return after Stop")
		}
	}
}

func TestStartTwice(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.runner(calendar.NewMemoryGateway("primary"))

	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(context.Background()) }()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.started
	}, 2*time.Second, time.Millisecond)

	assert.Error(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())
	require.NoError(t, <-errCh)
}

func TestRunJob_CalendarNotConnected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.addSyncedWorkout(t, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), "e1", "stale")

	notConnected := calendar.ProviderFunc(func(context.Context, primitive.ObjectID) (calendar.Gateway, error) {
		return nil, calendar.ErrNotConnected
	})
	r := New(f.jobs, f.syncRepo, f.numberer, notConnected, WithClock(f.clock.Now), WithUpdateDelay(0))

	err := r.RunJob(ctx, &domain.ResyncJob{TraineeID: f.traineeID, TrainerID: f.trainerID, Scope: domain.ScopeCurrentMonth})
	require.NoError(t, err)
	rec := f.recordFor(t, "e1")
	assert.Equal(t, domain.SyncStatusSynced, rec.SyncStatus)
	assert.Equal(t, "stale", rec.Summary)
}

func TestRunJob_UsesTheJobTrainersCalendar(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.addSyncedWorkout(t, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), "e1", "stale")

	calendars := calendar.NewMemoryProvider("primary")
	own := calendars.Gateway(f.trainerID)
	own.Put(calendar.Event{ID: "e1", Summary: "stale"})
	other := calendars.Gateway(primitive.NewObjectID())
	other.Put(calendar.Event{ID: "e1", Summary: "someone else"})

	r := New(f.jobs, f.syncRepo, f.numberer, calendars, WithClock(f.clock.Now), WithUpdateDelay(0), WithBackOff(fastBackOff))
	require.NoError(t, r.RunJob(ctx, &domain.ResyncJob{TraineeID: f.traineeID, TrainerID: f.trainerID, Scope: domain.ScopeCurrentMonth}))

	ev, ok := own.Get("e1")
	require.True(t, ok)
	assert.Equal(t, "אימון - דנה 1", ev.Summary)
	ev, ok = other.Get("e1")
	require.True(t, ok)
	assert.Equal(t, "someone else", ev.Summary)
	assert.Equal(t, domain.SyncStatusSynced, f.recordFor(t, "e1").SyncStatus)
}
