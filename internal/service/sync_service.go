package service

import (
	"alcyxob/fitness-calendar/internal/calendar"
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/repository"
	"alcyxob/fitness-calendar/internal/session"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// --- Error Definitions ---
var (
	ErrInvalidTrainerID     = errors.New("trainer ID is required")
	ErrWorkoutNotFound      = errors.New("workout not found")
	ErrWorkoutAccessDenied  = errors.New("access denied to this workout")
	ErrWorkoutHasNoTrainee  = errors.New("workout is not assigned to a trainee")
	ErrMultipleTrainees     = errors.New("workout is assigned to more than one trainee")
	ErrCalendarCreateFailed = errors.New("failed to create calendar event")
	ErrCalendarListFailed   = errors.New("failed to list calendar events")
	ErrCalendarNotConnected = errors.New("trainer has not connected a calendar")
)

// Gateway operation labels for metrics.
const (
	opCreate = "create"
	opDelete = "delete"
	opList   = "list"
)

// ResyncEnqueuer schedules the re-numbering of a trainee's calendar events.
type ResyncEnqueuer interface {
	Enqueue(ctx context.Context, traineeID, trainerID primitive.ObjectID, scope domain.ResyncScope) error
}

// ImportResult summarizes one calendar import.
type ImportResult struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	// Detached counts mirrors whose event disappeared or whose workout no longer exists.
	Detached int `json:"detached"`
}

// CalendarSyncService keeps workouts, assignments and calendar mirrors consistent.
type CalendarSyncService interface {
	// DeleteWorkout removes the workout, its mirror and its external event. A failing external
	// delete does not stop the local delete.
	DeleteWorkout(ctx context.Context, trainerID, workoutID primitive.ObjectID) error
	// SyncWorkoutToCalendar pushes the workout to the external calendar and returns the event ID.
	// Calling it again for a synced workout returns the same ID.
	SyncWorkoutToCalendar(ctx context.Context, trainerID, workoutID primitive.ObjectID) (string, error)
	// ImportFromCalendar mirrors the trainer's recent and upcoming calendar events into workouts.
	ImportFromCalendar(ctx context.Context, trainerID primitive.ObjectID) (*ImportResult, error)
}

// calendarSyncService implements the CalendarSyncService interface.
type calendarSyncService struct {
	workoutRepo    repository.WorkoutRepository
	assignmentRepo repository.AssignmentRepository
	syncRepo       repository.CalendarSyncRepository
	userRepo       repository.UserRepository
	calendars      calendar.Provider
	numberer       *session.Numberer
	resync         ResyncEnqueuer
	options
}

// NewCalendarSyncService creates a new instance of calendarSyncService.
func NewCalendarSyncService(
	workoutRepo repository.WorkoutRepository,
	assignmentRepo repository.AssignmentRepository,
	syncRepo repository.CalendarSyncRepository,
	userRepo repository.UserRepository,
	calendars calendar.Provider,
	numberer *session.Numberer,
	resync ResyncEnqueuer,
	opts ...Option,
) CalendarSyncService {
	return &calendarSyncService{
		workoutRepo:    workoutRepo,
		assignmentRepo: assignmentRepo,
		syncRepo:       syncRepo,
		userRepo:       userRepo,
		calendars:      calendars,
		numberer:       numberer,
		resync:         resync,
		options:        newOptions(opts),
	}
}

// loadOwnedWorkout fetches a workout and checks that the trainer owns it.
func (s *calendarSyncService) loadOwnedWorkout(ctx context.Context, trainerID, workoutID primitive.ObjectID) (*domain.Workout, error) {
	if trainerID == primitive.NilObjectID {
		return nil, ErrInvalidTrainerID
	}
	workout, err := s.workoutRepo.GetByID(ctx, workoutID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWorkoutNotFound
		}
		return nil, fmt.Errorf("load workout: %w", err)
	}
	if workout.TrainerID != trainerID {
		return nil, ErrWorkoutAccessDenied
	}
	return workout, nil
}

// gatewayFor resolves the trainer's own calendar.
func (s *calendarSyncService) gatewayFor(ctx context.Context, trainerID primitive.ObjectID) (calendar.Gateway, error) {
	gw, err := s.calendars.ForTrainer(ctx, trainerID)
	if err != nil {
		if errors.Is(err, calendar.ErrNotConnected) {
			return nil, ErrCalendarNotConnected
		}
		return nil, fmt.Errorf("resolve trainer calendar: %w", err)
	}
	return gw, nil
}

// findSyncRecord returns the workout's mirror, or nil when it has none.
func (s *calendarSyncService) findSyncRecord(ctx context.Context, workoutID primitive.ObjectID) (*domain.CalendarSyncRecord, error) {
	record, err := s.syncRepo.GetByWorkoutID(ctx, workoutID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load calendar sync record: %w", err)
	}
	return record, nil
}

// DeleteWorkout removes the external event first, then the mirror, then the workout.
func (s *calendarSyncService) DeleteWorkout(ctx context.Context, trainerID, workoutID primitive.ObjectID) error {
	log := s.logger.With(
		zap.String("operation", "delete_workout"),
		zap.String("trainer_id", trainerID.Hex()),
		zap.String("workout_id", workoutID.Hex()),
	)

	// 1. Read the workout, its trainees and its mirror
	workout, err := s.loadOwnedWorkout(ctx, trainerID, workoutID)
	if err != nil {
		return err
	}
	assignments, err := s.assignmentRepo.GetByWorkoutID(ctx, workout.ID)
	if err != nil {
		return fmt.Errorf("load assignments: %w", err)
	}
	record, err := s.findSyncRecord(ctx, workout.ID)
	if err != nil {
		return err
	}

	// From here on the delete runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	// 2. External event goes first; a failure here must not block the local delete
	if record != nil && record.HasExternalEvent() {
		if err := s.deleteExternalEvent(ctx, trainerID, record.ExternalEventID); err != nil {
			log.Warn("failed to delete calendar event, continuing with local delete",
				zap.String("event_id", record.ExternalEventID), zap.Error(err))
			s.metrics.GatewayFailure(opDelete)
		} else {
			s.settle(ctx)
		}
	}

	// 3. Mirror before workout
	if err := s.syncRepo.DeleteByWorkoutID(ctx, workout.ID); err != nil {
		log.Error("failed to delete calendar sync record", zap.Error(err))
		return fmt.Errorf("delete calendar sync record: %w", err)
	}

	// 4. The workout itself; nothing above is rolled back if this fails
	if err := s.workoutRepo.Delete(ctx, workout.ID, trainerID); err != nil {
		log.Error("failed to delete workout", zap.Error(err))
		if errors.Is(err, repository.ErrNotFound) {
			return ErrWorkoutNotFound
		}
		return fmt.Errorf("delete workout: %w", err)
	}
	if err := s.assignmentRepo.DeleteByWorkoutID(ctx, workout.ID); err != nil {
		log.Warn("failed to delete workout assignments", zap.Error(err))
	}

	// 5. Renumber the remaining sessions in the background
	for _, traineeID := range distinctTrainees(assignments) {
		s.enqueueResync(ctx, traineeID, trainerID)
	}
	return nil
}

func (s *calendarSyncService) deleteExternalEvent(ctx context.Context, trainerID primitive.ObjectID, eventID string) error {
	gw, err := s.gatewayFor(ctx, trainerID)
	if err != nil {
		return err
	}
	return gw.DeleteEvent(ctx, eventID)
}

// settle waits out the settle delay unless the context ends first.
func (s *calendarSyncService) settle(ctx context.Context) {
	if s.settleDelay <= 0 {
		return
	}
	timer := time.NewTimer(s.settleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// SyncWorkoutToCalendar creates the external event of a workout at most once.
func (s *calendarSyncService) SyncWorkoutToCalendar(ctx context.Context, trainerID, workoutID primitive.ObjectID) (string, error) {
	log := s.logger.With(
		zap.String("operation", "sync_workout_to_calendar"),
		zap.String("trainer_id", trainerID.Hex()),
		zap.String("workout_id", workoutID.Hex()),
	)

	// 1. Validate and short-circuit when already mirrored
	workout, err := s.loadOwnedWorkout(ctx, trainerID, workoutID)
	if err != nil {
		return "", err
	}
	existing, err := s.findSyncRecord(ctx, workout.ID)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.SyncStatus == domain.SyncStatusSynced && existing.HasExternalEvent() {
		return existing.ExternalEventID, nil
	}

	// 2. One event mirrors exactly one trainee
	assignments, err := s.assignmentRepo.GetByWorkoutID(ctx, workout.ID)
	if err != nil {
		return "", fmt.Errorf("load assignments: %w", err)
	}
	trainees := distinctTrainees(assignments)
	switch {
	case len(trainees) == 0:
		return "", ErrWorkoutHasNoTrainee
	case len(trainees) > 1:
		return "", ErrMultipleTrainees
	}
	traineeID := trainees[0]
	log = log.With(zap.String("trainee_id", traineeID.Hex()))

	gw, err := s.gatewayFor(ctx, trainerID)
	if err != nil {
		return "", err
	}

	sessions, err := s.numberer.ForMonth(ctx, trainerID, traineeID, workout.WorkoutDate)
	if err != nil {
		return "", fmt.Errorf("number sessions: %w", err)
	}
	title := sessions.Title(&workout.ID, workout.WorkoutDate)

	// 3. Create the event under a deterministic ID so a retry after a crash finds it again.
	// Once the event may exist the mirror must be written, whatever the caller does.
	ctx = context.WithoutCancel(ctx)
	start := workout.WorkoutDate
	end := start.Add(s.eventDuration)
	eventID, err := gw.CreateEvent(ctx, calendar.Event{
		ID:          workout.ID.Hex(),
		Summary:     title,
		Description: workout.Notes,
		Start:       start,
		End:         end,
	})
	if err != nil {
		log.Error("failed to create calendar event", zap.Error(err))
		s.metrics.GatewayFailure(opCreate)
		return "", fmt.Errorf("%w: %v", ErrCalendarCreateFailed, err)
	}
	log = log.With(zap.String("event_id", eventID))

	// 4. Persist the mirror
	now := s.clock().UTC()
	record := existing
	if record == nil {
		record = &domain.CalendarSyncRecord{
			WorkoutID: &workout.ID,
			TraineeID: traineeID,
			TrainerID: trainerID,
		}
	}
	record.SyncDirection = domain.SyncToExternal
	record.ExternalEventID = eventID
	record.ExternalCalendarID = gw.CalendarID()
	record.EventStartTime = &start
	record.EventEndTime = &end
	record.SyncStatus = domain.SyncStatusSynced
	record.Summary = title
	record.Description = workout.Notes
	record.LastSyncedAt = &now

	if existing == nil {
		_, err = s.syncRepo.Create(ctx, record)
	} else {
		err = s.syncRepo.Update(ctx, record)
	}
	if errors.Is(err, repository.ErrDuplicate) {
		// A concurrent push won; its mirror points at the same deterministic event.
		winner, lookupErr := s.findSyncRecord(ctx, workout.ID)
		if lookupErr != nil {
			return "", lookupErr
		}
		if winner != nil && winner.HasExternalEvent() {
			log.Info("calendar sync record already created by a concurrent request")
			return winner.ExternalEventID, nil
		}
	}
	if err != nil {
		log.Error("failed to save calendar sync record", zap.Error(err))
		return "", fmt.Errorf("save calendar sync record: %w", err)
	}

	// 5. Renumber the trainee's sessions in the background
	s.enqueueResync(ctx, traineeID, trainerID)
	return eventID, nil
}

func (s *calendarSyncService) enqueueResync(ctx context.Context, traineeID, trainerID primitive.ObjectID) {
	if s.resync == nil {
		return
	}
	if err := s.resync.Enqueue(ctx, traineeID, trainerID, s.resyncScope); err != nil {
		s.logger.Error("failed to enqueue resync job",
			zap.String("operation", "enqueue_resync"),
			zap.String("trainer_id", trainerID.Hex()),
			zap.String("trainee_id", traineeID.Hex()),
			zap.Error(err))
	}
}

// distinctTrainees returns the trainees of the assignments in first-seen order.
func distinctTrainees(assignments []domain.WorkoutAssignment) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]bool, len(assignments))
	out := make([]primitive.ObjectID, 0, len(assignments))
	for _, a := range assignments {
		if !seen[a.TraineeID] {
			seen[a.TraineeID] = true
			out = append(out, a.TraineeID)
		}
	}
	return out
}
