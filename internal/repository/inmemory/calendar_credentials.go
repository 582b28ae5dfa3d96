package inmemory

import (
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/repository"
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CalendarCredentialsRepository keeps trainer calendar connections in process.
type CalendarCredentialsRepository struct {
	mu    sync.RWMutex
	creds map[primitive.ObjectID]domain.CalendarCredentials
}

var _ repository.CalendarCredentialsRepository = (*CalendarCredentialsRepository)(nil)

func NewCalendarCredentialsRepository() *CalendarCredentialsRepository {
	return &CalendarCredentialsRepository{creds: make(map[primitive.ObjectID]domain.CalendarCredentials)}
}

func (r *CalendarCredentialsRepository) GetByTrainerID(_ context.Context, trainerID primitive.ObjectID) (*domain.CalendarCredentials, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	creds, ok := r.creds[trainerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &creds, nil
}

func (r *CalendarCredentialsRepository) Upsert(_ context.Context, creds *domain.CalendarCredentials) error {
	if creds.TrainerID == primitive.NilObjectID || creds.RefreshToken == "" {
		return errors.New("calendar credentials require trainerId and refreshToken")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := r.creds[creds.TrainerID]; ok {
		creds.ID = existing.ID
		creds.CreatedAt = existing.CreatedAt
	} else {
		creds.ID = primitive.NewObjectID()
		creds.CreatedAt = now
	}
	creds.UpdatedAt = now
	r.creds[creds.TrainerID] = *creds
	return nil
}

func (r *CalendarCredentialsRepository) DeleteByTrainerID(_ context.Context, trainerID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.creds[trainerID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.creds, trainerID)
	return nil
}
