// Package resync re-titles a trainee's external calendar events after their schedule changed.
//
// Requests are persisted as jobs (an outbox) by Enqueue and executed by a polling worker,
// so a crash between a mutation and its renumbering does not lose the work. Failed jobs are
// retried with exponential backoff until they run out of attempts.
package resync

import (
	"alcyxob/fitness-calendar/internal/calendar"
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/metrics"
	"alcyxob/fitness-calendar/internal/repository"
	"alcyxob/fitness-calendar/internal/session"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultLease        = 2 * time.Minute
	DefaultMaxAttempts  = 5
	DefaultUpdateDelay  = 100 * time.Millisecond

	// updateTries bounds the attempts of a single event update within one job run.
	updateTries = 3
)

// allScopeStart is the earliest month covered by ScopeAll.
var allScopeStart = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// Runner executes resync jobs.
type Runner struct {
	jobs     repository.ResyncJobRepository
	syncRepo repository.CalendarSyncRepository
	numberer  *session.Numberer
	calendars calendar.Provider

	owner        string
	pollInterval time.Duration
	lease        time.Duration
	maxAttempts  int
	updateDelay  time.Duration
	defaultScope domain.ResyncScope
	newBackOff   func() *backoff.ExponentialBackOff
	clock        func() time.Time
	logger       *zap.Logger
	metrics      *metrics.Metrics

	// Lifecycle management
	mu         sync.Mutex
	started    bool
	stopped    bool
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the runner
type Option func(*Runner)

// WithPollInterval sets how often the worker looks for due jobs.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithLease sets how long a claimed job is reserved for this worker.
func WithLease(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.lease = d
		}
	}
}

// WithMaxAttempts sets the attempts a job gets before it is parked as failed.
func WithMaxAttempts(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithUpdateDelay sets the pause between two event updates.
func WithUpdateDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.updateDelay = d
		}
	}
}

// WithDefaultScope sets the scope used when Enqueue is called without one.
func WithDefaultScope(scope domain.ResyncScope) Option {
	return func(r *Runner) {
		if scope.Valid() {
			r.defaultScope = scope
		}
	}
}

// WithBackOff sets the factory of the retry policy shared by job retries and event updates.
func WithBackOff(newBackOff func() *backoff.ExponentialBackOff) Option {
	return func(r *Runner) {
		if newBackOff != nil {
			r.newBackOff = newBackOff
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// New creates a runner with injected dependencies
func New(
	jobs repository.ResyncJobRepository,
	syncRepo repository.CalendarSyncRepository,
	numberer *session.Numberer,
	calendars calendar.Provider,
	opts ...Option,
) *Runner {
	r := &Runner{
		jobs:         jobs,
		syncRepo:     syncRepo,
		numberer:     numberer,
		calendars:    calendars,
		owner:        uuid.NewString(),
		pollInterval: DefaultPollInterval,
		lease:        DefaultLease,
		maxAttempts:  DefaultMaxAttempts,
		updateDelay:  DefaultUpdateDelay,
		defaultScope: domain.ScopeCurrentMonthAndFuture,
		newBackOff:   backoff.NewExponentialBackOff,
		clock:        time.Now,
		logger:       zap.NewNop(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enqueue persists a resync job for the trainee. An empty scope selects the default scope.
func (r *Runner) Enqueue(ctx context.Context, traineeID, trainerID primitive.ObjectID, scope domain.ResyncScope) error {
	if scope == "" {
		scope = r.defaultScope
	}
	if !scope.Valid() {
		return fmt.Errorf("invalid resync scope %q", scope)
	}
	_, err := r.jobs.Enqueue(ctx, &domain.ResyncJob{
		TraineeID:   traineeID,
		TrainerID:   trainerID,
		Scope:       scope,
		MaxAttempts: r.maxAttempts,
		NextRunAt:   r.clock().UTC(),
	})
	return err
}

// Start polls for due jobs until the context is cancelled or Stop is called.
// It blocks. A runner starts once; after Stop, Start returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	if r.started {
		r.mu.Unlock()
		return errors.New("resync runner already started")
	}
	r.started = true
	runCtx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel
	r.mu.Unlock()
	defer cancel()

	r.logger.Info("Starting resync runner",
		zap.String("owner", r.owner),
		zap.Duration("poll_interval", r.pollInterval))

	defer func() {
		close(r.done)
		r.logger.Info("Resync runner shutting down")
	}()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.RunPending(runCtx)
	for {
		select {
		case <-ticker.C:
			r.RunPending(runCtx)
		case <-runCtx.Done():
			return nil
		}
	}
}

// Stop cancels Start and waits for the in-flight job to finish. A Start that has not begun
// yet will not run.
func (r *Runner) Stop() error {
	r.mu.Lock()
	r.stopped = true
	cancel := r.cancelFunc
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-r.done
	return nil
}

// RunPending processes due jobs until none is left and returns how many ran.
func (r *Runner) RunPending(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		ran, err := r.processNext(ctx)
		if err != nil {
			r.logger.Error("Error claiming resync job", zap.Error(err))
			return n
		}
		if !ran {
			return n
		}
		n++
	}
	return n
}

// processNext claims one job and runs it. Job failures are recorded on the job, never returned.
func (r *Runner) processNext(ctx context.Context) (bool, error) {
	job, err := r.jobs.ClaimNext(ctx, r.owner, r.clock().UTC(), r.lease)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	log := r.logger.With(
		zap.String("operation", "resync"),
		zap.String("job_id", job.ID.Hex()),
		zap.String("trainer_id", job.TrainerID.Hex()),
		zap.String("trainee_id", job.TraineeID.Hex()),
		zap.String("scope", string(job.Scope)),
	)

	runErr := r.safeRun(ctx, job)
	if runErr == nil {
		if err := r.jobs.MarkDone(ctx, job.ID); err != nil {
			log.Error("failed to mark resync job done", zap.Error(err))
		}
		r.metrics.ResyncJob(metrics.OutcomeSuccess)
		return true, nil
	}

	attempts := job.Attempts + 1
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.maxAttempts
	}
	if attempts >= maxAttempts {
		log.Error("resync job failed permanently", zap.Int("attempts", attempts), zap.Error(runErr))
		if err := r.jobs.MarkFailed(ctx, job.ID, attempts, runErr.Error()); err != nil {
			log.Error("failed to mark resync job failed", zap.Error(err))
		}
		r.metrics.ResyncJob(metrics.OutcomeFailure)
		return true, nil
	}

	next := r.clock().UTC().Add(r.retryDelay(attempts))
	log.Warn("resync job failed, will retry",
		zap.Int("attempts", attempts), zap.Time("next_run_at", next), zap.Error(runErr))
	if err := r.jobs.MarkRetry(ctx, job.ID, attempts, next, runErr.Error()); err != nil {
		log.Error("failed to reschedule resync job", zap.Error(err))
	}
	r.metrics.ResyncJob(metrics.OutcomeRetry)
	return true, nil
}

// retryDelay is the backoff interval before the given attempt number.
func (r *Runner) retryDelay(attempt int) time.Duration {
	b := r.newBackOff()
	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	if delay < 0 {
		delay = b.MaxInterval
	}
	return delay
}

func (r *Runner) safeRun(ctx context.Context, job *domain.ResyncJob) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("resync job panicked: %v", p)
		}
	}()
	return r.RunJob(ctx, job)
}
