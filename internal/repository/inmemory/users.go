package inmemory

import (
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/repository"
	"context"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRepository is an in-memory user directory.
type UserRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]domain.User
}

var _ repository.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a directory seeded with users.
func NewUserRepository(users ...domain.User) *UserRepository {
	r := &UserRepository{users: make(map[primitive.ObjectID]domain.User)}
	for _, u := range users {
		r.Put(u)
	}
	return r
}

// Put inserts or replaces a user, assigning an ID when missing.
func (r *UserRepository) Put(user domain.User) primitive.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == primitive.NilObjectID {
		user.ID = primitive.NewObjectID()
	}
	r.users[user.ID] = user
	return user.ID
}

func (r *UserRepository) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.User{}
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *UserRepository) GetClientsByTrainerID(_ context.Context, trainerID primitive.ObjectID) ([]domain.User, error) {
	return r.filter(func(u domain.User) bool {
		return u.IsClient() && u.IsManagedBy(trainerID)
	}), nil
}

func (r *UserRepository) FindClientByName(_ context.Context, trainerID primitive.ObjectID, name string) (*domain.User, error) {
	needle := strings.ToLower(name)
	matches := r.filter(func(u domain.User) bool {
		return u.IsClient() && u.IsManagedBy(trainerID) && strings.Contains(strings.ToLower(u.Name), needle)
	})
	if len(matches) == 0 {
		return nil, repository.ErrNotFound
	}
	return &matches[0], nil
}

func (r *UserRepository) GetTrainersWithCalendarAutoSync(_ context.Context) ([]domain.User, error) {
	return r.filter(func(u domain.User) bool {
		return u.IsTrainer() && u.CalendarAutoSync
	}), nil
}

// filter returns matching users ordered by ID, like the Mongo adapter's natural order.
func (r *UserRepository) filter(keep func(domain.User) bool) []domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.User{}
	for _, u := range r.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}
