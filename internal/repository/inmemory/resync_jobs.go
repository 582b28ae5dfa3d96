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

// ResyncJobRepository is an in-memory resync outbox. It does not survive a restart.
type ResyncJobRepository struct {
	mu   sync.Mutex
	jobs map[primitive.ObjectID]domain.ResyncJob
}

var _ repository.ResyncJobRepository = (*ResyncJobRepository)(nil)

func NewResyncJobRepository() *ResyncJobRepository {
	return &ResyncJobRepository{jobs: make(map[primitive.ObjectID]domain.ResyncJob)}
}

// Get returns a copy of a stored job.
func (r *ResyncJobRepository) Get(id primitive.ObjectID) (domain.ResyncJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// List returns every job ordered by creation.
func (r *ResyncJobRepository) List() []domain.ResyncJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ResyncJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}

func (r *ResyncJobRepository) Enqueue(_ context.Context, job *domain.ResyncJob) (primitive.ObjectID, error) {
	if job.TraineeID == primitive.NilObjectID || job.TrainerID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("resync job requires traineeId and trainerId")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	job.ID = primitive.NewObjectID()
	job.Status = domain.JobPending
	if job.NextRunAt.IsZero() {
		job.NextRunAt = now
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	r.jobs[job.ID] = *job
	return job.ID, nil
}

func (r *ResyncJobRepository) ClaimNext(_ context.Context, owner string, now time.Time, lease time.Duration) (*domain.ResyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next *domain.ResyncJob
	for _, job := range r.jobs {
		due := job.Status == domain.JobPending && !job.NextRunAt.After(now)
		expired := job.Status == domain.JobRunning && job.LeaseUntil != nil && job.LeaseUntil.Before(now)
		if !due && !expired {
			continue
		}
		job := job
		if next == nil || job.NextRunAt.Before(next.NextRunAt) ||
			(job.NextRunAt.Equal(next.NextRunAt) && job.ID.Hex() < next.ID.Hex()) {
			next = &job
		}
	}
	if next == nil {
		return nil, repository.ErrNotFound
	}
	until := now.Add(lease)
	next.Status = domain.JobRunning
	next.LeaseOwner = owner
	next.LeaseUntil = &until
	next.UpdatedAt = now
	r.jobs[next.ID] = *next
	claimed := *next
	return &claimed, nil
}

func (r *ResyncJobRepository) MarkDone(_ context.Context, id primitive.ObjectID) error {
	return r.set(id, func(job *domain.ResyncJob) {
		job.Status = domain.JobDone
	})
}

func (r *ResyncJobRepository) MarkRetry(_ context.Context, id primitive.ObjectID, attempts int, nextRunAt time.Time, lastErr string) error {
	return r.set(id, func(job *domain.ResyncJob) {
		job.Status = domain.JobPending
		job.Attempts = attempts
		job.NextRunAt = nextRunAt
		job.LastError = lastErr
	})
}

func (r *ResyncJobRepository) MarkFailed(_ context.Context, id primitive.ObjectID, attempts int, lastErr string) error {
	return r.set(id, func(job *domain.ResyncJob) {
		job.Status = domain.JobFailed
		job.Attempts = attempts
		job.LastError = lastErr
	})
}

func (r *ResyncJobRepository) set(id primitive.ObjectID, apply func(*domain.ResyncJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	apply(&job)
	job.LeaseOwner = ""
	job.LeaseUntil = nil
	job.UpdatedAt = time.Now().UTC()
	r.jobs[id] = job
	return nil
}
