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

// CalendarSyncRepository is an in-memory repository.CalendarSyncRepository.
type CalendarSyncRepository struct {
	mu      sync.RWMutex
	records map[primitive.ObjectID]domain.CalendarSyncRecord

	// Err, when set, is returned by every call.
	Err error
}

var _ repository.CalendarSyncRepository = (*CalendarSyncRepository)(nil)

func NewCalendarSyncRepository() *CalendarSyncRepository {
	return &CalendarSyncRepository{records: make(map[primitive.ObjectID]domain.CalendarSyncRecord)}
}

// Put stores a record as-is, bypassing validation and unique checks. Tests use it to seed
// corrupt or legacy rows.
func (r *CalendarSyncRepository) Put(record domain.CalendarSyncRecord) primitive.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.ID == primitive.NilObjectID {
		record.ID = primitive.NewObjectID()
	}
	r.records[record.ID] = record
	return record.ID
}

// All returns every stored record ordered by ID.
func (r *CalendarSyncRepository) All() []domain.CalendarSyncRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.CalendarSyncRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}

func (r *CalendarSyncRepository) Create(_ context.Context, record *domain.CalendarSyncRecord) (primitive.ObjectID, error) {
	if r.Err != nil {
		return primitive.NilObjectID, r.Err
	}
	if record.TrainerID == primitive.NilObjectID || record.SyncDirection == "" || record.SyncStatus == "" {
		return primitive.NilObjectID, errors.New("calendar sync record requires trainerId, syncDirection and syncStatus")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	candidate := *record
	candidate.ID = primitive.NewObjectID()
	if r.conflicts(candidate) {
		return primitive.NilObjectID, repository.ErrDuplicate
	}
	now := time.Now().UTC()
	candidate.CreatedAt = now
	candidate.UpdatedAt = now
	r.records[candidate.ID] = candidate
	*record = candidate
	return candidate.ID, nil
}

// conflicts mirrors the unique indexes of the Mongo collection. Caller holds the lock.
func (r *CalendarSyncRepository) conflicts(candidate domain.CalendarSyncRecord) bool {
	for id, existing := range r.records {
		if id == candidate.ID {
			continue
		}
		if candidate.WorkoutID != nil && existing.WorkoutID != nil && *candidate.WorkoutID == *existing.WorkoutID &&
			candidate.SyncStatus == domain.SyncStatusSynced && existing.SyncStatus == domain.SyncStatusSynced {
			return true
		}
		if candidate.HasExternalEvent() && existing.ExternalEventID == candidate.ExternalEventID &&
			existing.ExternalCalendarID == candidate.ExternalCalendarID && existing.TrainerID == candidate.TrainerID {
			return true
		}
	}
	return false
}

func (r *CalendarSyncRepository) GetByWorkoutID(_ context.Context, workoutID primitive.ObjectID) (*domain.CalendarSyncRecord, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.CalendarSyncRecord
	for _, rec := range r.records {
		if rec.WorkoutID == nil || *rec.WorkoutID != workoutID {
			continue
		}
		rec := rec
		if rec.SyncStatus == domain.SyncStatusSynced {
			return &rec, nil
		}
		if latest == nil || rec.UpdatedAt.After(latest.UpdatedAt) {
			latest = &rec
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (r *CalendarSyncRepository) GetByExternalEventID(_ context.Context, trainerID primitive.ObjectID, calendarID, eventID string) (*domain.CalendarSyncRecord, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.TrainerID == trainerID && rec.ExternalCalendarID == calendarID && rec.ExternalEventID == eventID {
			return &rec, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *CalendarSyncRepository) ListByTrainerInRange(_ context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.CalendarSyncRecord, error) {
	return r.filter(func(rec domain.CalendarSyncRecord) bool {
		return rec.TrainerID == trainerID && rec.EventStartTime != nil &&
			!rec.EventStartTime.Before(from) && rec.EventStartTime.Before(to)
	})
}

func (r *CalendarSyncRepository) ListByWorkoutIDs(_ context.Context, workoutIDs []primitive.ObjectID) ([]domain.CalendarSyncRecord, error) {
	wanted := make(map[primitive.ObjectID]bool, len(workoutIDs))
	for _, id := range workoutIDs {
		wanted[id] = true
	}
	return r.filter(func(rec domain.CalendarSyncRecord) bool {
		return rec.WorkoutID != nil && wanted[*rec.WorkoutID]
	})
}

func (r *CalendarSyncRepository) ListSyncedInRange(_ context.Context, trainerID primitive.ObjectID, traineeID *primitive.ObjectID, from, to time.Time) ([]domain.CalendarSyncRecord, error) {
	return r.filter(func(rec domain.CalendarSyncRecord) bool {
		if rec.TrainerID != trainerID || rec.SyncStatus != domain.SyncStatusSynced || rec.EventStartTime == nil {
			return false
		}
		if traineeID != nil && rec.TraineeID != *traineeID {
			return false
		}
		return !rec.EventStartTime.Before(from) && rec.EventStartTime.Before(to)
	})
}

// filter returns matches ordered by event start, records without a start first.
func (r *CalendarSyncRepository) filter(keep func(domain.CalendarSyncRecord) bool) ([]domain.CalendarSyncRecord, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.CalendarSyncRecord{}
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].EventStartTime, out[j].EventStartTime
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

func (r *CalendarSyncRepository) Update(_ context.Context, record *domain.CalendarSyncRecord) error {
	if r.Err != nil {
		return r.Err
	}
	if record.ID == primitive.NilObjectID {
		return errors.New("calendar sync ID is required for update")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.ID]; !ok {
		return repository.ErrNotFound
	}
	if r.conflicts(*record) {
		return repository.ErrDuplicate
	}
	record.UpdatedAt = time.Now().UTC()
	r.records[record.ID] = *record
	return nil
}

func (r *CalendarSyncRepository) UpdateStatus(_ context.Context, id primitive.ObjectID, status domain.SyncStatus, summary string, syncedAt *time.Time) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.SyncStatus = status
	if summary != "" {
		rec.Summary = summary
	}
	if syncedAt != nil {
		t := *syncedAt
		rec.LastSyncedAt = &t
	}
	if r.conflicts(rec) {
		return repository.ErrDuplicate
	}
	rec.UpdatedAt = time.Now().UTC()
	r.records[id] = rec
	return nil
}

func (r *CalendarSyncRepository) Delete(_ context.Context, id primitive.ObjectID) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *CalendarSyncRepository) DeleteByWorkoutID(_ context.Context, workoutID primitive.ObjectID) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.records {
		if rec.WorkoutID != nil && *rec.WorkoutID == workoutID {
			delete(r.records, id)
		}
	}
	return nil
}
