package repository

import (
	"alcyxob/fitness-calendar/internal/domain"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrDuplicate    = RepositoryError("duplicate key")
	ErrUpdateFailed = RepositoryError("update failed")
	ErrDeleteFailed = RepositoryError("delete failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository is the read side of the user directory used to resolve trainees.
type UserRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.User, error)
	GetClientsByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error)
	// FindClientByName matches a trainee of the trainer whose name contains the given text (case-insensitive).
	FindClientByName(ctx context.Context, trainerID primitive.ObjectID, name string) (*domain.User, error)
	GetTrainersWithCalendarAutoSync(ctx context.Context) ([]domain.User, error)
}

// WorkoutRepository defines the interface for interacting with workout data.
type WorkoutRepository interface {
	Create(ctx context.Context, workout *domain.Workout) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Workout, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.Workout, error)
	// GetByTrainerInRange returns the trainer's workouts with from <= workoutDate < to, oldest first.
	GetByTrainerInRange(ctx context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.Workout, error)
	UpdateSchedule(ctx context.Context, id primitive.ObjectID, workoutDate time.Time, notes string) error
	Delete(ctx context.Context, workoutID, trainerID primitive.ObjectID) error
}

// AssignmentRepository defines the interface for workout-to-trainee links.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *domain.WorkoutAssignment) (primitive.ObjectID, error)
	// GetByWorkoutID returns assignments in creation order.
	GetByWorkoutID(ctx context.Context, workoutID primitive.ObjectID) ([]domain.WorkoutAssignment, error)
	GetByWorkoutIDs(ctx context.Context, workoutIDs []primitive.ObjectID) ([]domain.WorkoutAssignment, error)
	DeleteByWorkoutID(ctx context.Context, workoutID primitive.ObjectID) error
}

// CalendarSyncRepository defines the interface for the workout-to-calendar-event mirror.
type CalendarSyncRepository interface {
	// Create inserts a record. It returns ErrDuplicate when a synced record already exists for the workout.
	Create(ctx context.Context, record *domain.CalendarSyncRecord) (primitive.ObjectID, error)
	// GetByWorkoutID returns the record for the workout, preferring a synced one.
	GetByWorkoutID(ctx context.Context, workoutID primitive.ObjectID) (*domain.CalendarSyncRecord, error)
	// GetByExternalEventID looks up the mirror of an event on one trainer's calendar.
	GetByExternalEventID(ctx context.Context, trainerID primitive.ObjectID, calendarID, eventID string) (*domain.CalendarSyncRecord, error)
	// ListByTrainerInRange returns the trainer's records with from <= eventStartTime < to, any status.
	ListByTrainerInRange(ctx context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.CalendarSyncRecord, error)
	// ListByWorkoutIDs returns every record of the given workouts, any status.
	ListByWorkoutIDs(ctx context.Context, workoutIDs []primitive.ObjectID) ([]domain.CalendarSyncRecord, error)
	// ListSyncedInRange returns synced records with from <= eventStartTime < to, ordered by start.
	// A nil traineeID matches every trainee of the trainer.
	ListSyncedInRange(ctx context.Context, trainerID primitive.ObjectID, traineeID *primitive.ObjectID, from, to time.Time) ([]domain.CalendarSyncRecord, error)
	Update(ctx context.Context, record *domain.CalendarSyncRecord) error
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status domain.SyncStatus, summary string, syncedAt *time.Time) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteByWorkoutID(ctx context.Context, workoutID primitive.ObjectID) error
}

// ResyncJobRepository persists the resync outbox.
type ResyncJobRepository interface {
	Enqueue(ctx context.Context, job *domain.ResyncJob) (primitive.ObjectID, error)
	// ClaimNext leases the oldest runnable job to owner. It returns ErrNotFound when nothing is due.
	ClaimNext(ctx context.Context, owner string, now time.Time, lease time.Duration) (*domain.ResyncJob, error)
	MarkDone(ctx context.Context, id primitive.ObjectID) error
	MarkRetry(ctx context.Context, id primitive.ObjectID, attempts int, nextRunAt time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id primitive.ObjectID, attempts int, lastErr string) error
}

// CalendarCredentialsRepository stores the per-trainer calendar connection.
type CalendarCredentialsRepository interface {
	GetByTrainerID(ctx context.Context, trainerID primitive.ObjectID) (*domain.CalendarCredentials, error)
	// Upsert replaces the trainer's credentials, creating them when missing.
	Upsert(ctx context.Context, creds *domain.CalendarCredentials) error
	DeleteByTrainerID(ctx context.Context, trainerID primitive.ObjectID) error
}
