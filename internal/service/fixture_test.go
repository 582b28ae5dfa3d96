package service

import (
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/repository/inmemory"
	"alcyxob/fitness-calendar/internal/session"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// israel avoids depending on the tz database in tests.
var israel = time.FixedZone("IST", 2*60*60)

type fixture struct {
	now         time.Time
	workouts    *inmemory.WorkoutRepository
	assignments *inmemory.AssignmentRepository
	syncRepo    *inmemory.CalendarSyncRepository
	users       *inmemory.UserRepository
	trainerID   primitive.ObjectID
	dana        primitive.ObjectID
	yossi       primitive.ObjectID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:         time.Date(2024, 3, 15, 8, 0, 0, 0, israel),
		workouts:    inmemory.NewWorkoutRepository(),
		assignments: inmemory.NewAssignmentRepository(),
		syncRepo:    inmemory.NewCalendarSyncRepository(),
		trainerID:   primitive.NewObjectID(),
		dana:        primitive.NewObjectID(),
		yossi:       primitive.NewObjectID(),
	}
	f.users = inmemory.NewUserRepository(
		domain.User{ID: f.trainerID, Name: "המאמן", Role: domain.RoleTrainer, ClientIDs: []primitive.ObjectID{f.dana, f.yossi}},
		domain.User{ID: f.dana, Name: "דנה", Role: domain.RoleClient, TrainerID: &f.trainerID},
		domain.User{ID: f.yossi, Name: "יוסי", Role: domain.RoleClient, TrainerID: &f.trainerID},
	)
	return f
}

// at returns the wall time on the fixture's day plus dayOffset.
func (f *fixture) at(dayOffset, hour, minute int) time.Time {
	return time.Date(f.now.Year(), f.now.Month(), f.now.Day()+dayOffset, hour, minute, 0, 0, israel)
}

func (f *fixture) clock() time.Time {
	return f.now
}

func (f *fixture) numberer() *session.Numberer {
	return session.NewNumberer(f.workouts, f.assignments, f.users, israel)
}

func (f *fixture) addWorkout(t *testing.T, at time.Time, completed bool, trainees ...primitive.ObjectID) primitive.ObjectID {
	t.Helper()
	ctx := context.Background()
	id, err := f.workouts.Create(ctx, &domain.Workout{
		TrainerID:   f.trainerID,
		WorkoutDate: at,
		IsCompleted: completed,
		WorkoutType: domain.WorkoutTypePersonal,
	})
	require.NoError(t, err)
	for _, trainee := range trainees {
		_, err := f.assignments.Create(ctx, &domain.WorkoutAssignment{WorkoutID: id, TraineeID: trainee})
		require.NoError(t, err)
	}
	return id
}

func (f *fixture) addRecord(workoutID primitive.ObjectID, trainee primitive.ObjectID, dir domain.SyncDirection, status domain.SyncStatus, start *time.Time) primitive.ObjectID {
	wid := workoutID
	return f.syncRepo.Put(domain.CalendarSyncRecord{
		WorkoutID:          &wid,
		TraineeID:          trainee,
		TrainerID:          f.trainerID,
		SyncDirection:      dir,
		ExternalEventID:    "ev-" + workoutID.Hex(),
		ExternalCalendarID: "primary",
		EventStartTime:     start,
		SyncStatus:         status,
	})
}

func ptr(t time.Time) *time.Time {
	return &t
}

// recordingEnqueuer captures resync requests.
type recordingEnqueuer struct {
	mu       sync.Mutex
	trainees []primitive.ObjectID
	err      error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, traineeID, _ primitive.ObjectID, _ domain.ResyncScope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trainees = append(e.trainees, traineeID)
	return e.err
}

func (e *recordingEnqueuer) calls() []primitive.ObjectID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]primitive.ObjectID(nil), e.trainees...)
}
