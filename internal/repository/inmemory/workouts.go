package inmemory

import (
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/repository"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkoutRepository is an in-memory repository.WorkoutRepository.
type WorkoutRepository struct {
	mu       sync.RWMutex
	workouts map[primitive.ObjectID]domain.Workout

	// Err, when set, is returned by every read. Tests use it to simulate store outages.
	Err error
}

var _ repository.WorkoutRepository = (*WorkoutRepository)(nil)

func NewWorkoutRepository() *WorkoutRepository {
	return &WorkoutRepository{workouts: make(map[primitive.ObjectID]domain.Workout)}
}

func (r *WorkoutRepository) Create(_ context.Context, workout *domain.Workout) (primitive.ObjectID, error) {
	if workout.TrainerID == primitive.NilObjectID || workout.WorkoutDate.IsZero() {
		return primitive.NilObjectID, errors.New("workout requires trainerId and workoutDate")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if workout.ID == primitive.NilObjectID {
		workout.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	workout.CreatedAt = now
	workout.UpdatedAt = now
	r.workouts[workout.ID] = *workout
	return workout.ID, nil
}

func (r *WorkoutRepository) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	w, ok := r.workouts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (r *WorkoutRepository) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]domain.Workout, error) {
	wanted := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return r.filter(func(w domain.Workout) bool { return wanted[w.ID] })
}

func (r *WorkoutRepository) GetByTrainerInRange(_ context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.Workout, error) {
	return r.filter(func(w domain.Workout) bool {
		return w.TrainerID == trainerID && !w.WorkoutDate.Before(from) && w.WorkoutDate.Before(to)
	})
}

func (r *WorkoutRepository) filter(keep func(domain.Workout) bool) ([]domain.Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := []domain.Workout{}
	for _, w := range r.workouts {
		if keep(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WorkoutDate.Equal(out[j].WorkoutDate) {
			return out[i].WorkoutDate.Before(out[j].WorkoutDate)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

func (r *WorkoutRepository) UpdateSchedule(_ context.Context, id primitive.ObjectID, workoutDate time.Time, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workouts[id]
	if !ok {
		return repository.ErrNotFound
	}
	w.WorkoutDate = workoutDate
	w.Notes = notes
	w.UpdatedAt = time.Now().UTC()
	r.workouts[id] = w
	return nil
}

func (r *WorkoutRepository) Delete(_ context.Context, workoutID, trainerID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workouts[workoutID]
	if !ok || w.TrainerID != trainerID {
		return repository.ErrNotFound
	}
	delete(r.workouts, workoutID)
	return nil
}

// AssignmentRepository is an in-memory repository.AssignmentRepository.
type AssignmentRepository struct {
	mu          sync.RWMutex
	assignments []domain.WorkoutAssignment // Creation order
}

var _ repository.AssignmentRepository = (*AssignmentRepository)(nil)

func NewAssignmentRepository() *AssignmentRepository {
	return &AssignmentRepository{}
}

func (r *AssignmentRepository) Create(_ context.Context, assignment *domain.WorkoutAssignment) (primitive.ObjectID, error) {
	if assignment.WorkoutID == primitive.NilObjectID || assignment.TraineeID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("assignment requires workoutId and traineeId")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.WorkoutID == assignment.WorkoutID && a.TraineeID == assignment.TraineeID {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	assignment.ID = primitive.NewObjectID()
	assignment.CreatedAt = time.Now().UTC()
	r.assignments = append(r.assignments, *assignment)
	return assignment.ID, nil
}

func (r *AssignmentRepository) GetByWorkoutID(ctx context.Context, workoutID primitive.ObjectID) ([]domain.WorkoutAssignment, error) {
	return r.GetByWorkoutIDs(ctx, []primitive.ObjectID{workoutID})
}

func (r *AssignmentRepository) GetByWorkoutIDs(_ context.Context, workoutIDs []primitive.ObjectID) ([]domain.WorkoutAssignment, error) {
	wanted := make(map[primitive.ObjectID]bool, len(workoutIDs))
	for _, id := range workoutIDs {
		wanted[id] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.WorkoutAssignment{}
	for _, a := range r.assignments {
		if wanted[a.WorkoutID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *AssignmentRepository) DeleteByWorkoutID(_ context.Context, workoutID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.assignments[:0]
	for _, a := range r.assignments {
		if a.WorkoutID != workoutID {
			kept = append(kept, a)
		}
	}
	r.assignments = kept
	return nil
}
