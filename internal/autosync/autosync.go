// Package autosync periodically imports the calendars of trainers that opted in.
package autosync

import (
	"alcyxob/fitness-calendar/internal/repository"
	"alcyxob/fitness-calendar/internal/service"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultRunTimeout bounds a single pass over all trainers.
const DefaultRunTimeout = 4 * time.Minute

// Importer is the part of service.CalendarSyncService the scheduler drives.
type Importer interface {
	ImportFromCalendar(ctx context.Context, trainerID primitive.ObjectID) (*service.ImportResult, error)
}

// Scheduler runs ImportFromCalendar for every auto-sync trainer on a cron schedule.
type Scheduler struct {
	cron       *cron.Cron
	users      repository.UserRepository
	importer   Importer
	logger     *zap.Logger
	runTimeout time.Duration
}

// New registers the import job under spec ("@every 15m", "*/10 * * * *", ...).
// Overlapping runs are skipped.
func New(spec string, users repository.UserRepository, importer Importer, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		users:      users,
		importer:   importer,
		logger:     logger,
		runTimeout: DefaultRunTimeout,
	}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid autosync schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("autosync run failed", zap.Error(err))
	}
}

// RunOnce imports every opted-in trainer and returns how many imports succeeded.
// A failing trainer is logged and does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	trainers, err := s.users.GetTrainersWithCalendarAutoSync(ctx)
	if err != nil {
		return 0, fmt.Errorf("list autosync trainers: %w", err)
	}

	ok := 0
	for _, trainer := range trainers {
		if ctx.Err() != nil {
			return ok, ctx.Err()
		}
		result, err := s.importer.ImportFromCalendar(ctx, trainer.ID)
		if errors.Is(err, service.ErrCalendarNotConnected) {
			s.logger.Debug("autosync skipped, calendar not connected", zap.String("trainer_id", trainer.ID.Hex()))
			continue
		}
		if err != nil {
			s.logger.Warn("autosync import failed",
				zap.String("operation", "autosync"),
				zap.String("trainer_id", trainer.ID.Hex()),
				zap.Error(err))
			continue
		}
		ok++
		s.logger.Debug("autosync import done",
			zap.String("trainer_id", trainer.ID.Hex()),
			zap.Int("imported", result.Imported),
			zap.Int("updated", result.Updated))
	}
	return ok, nil
}

// Start begins the schedule in the background.
func (s *Scheduler) Start() {
	s.logger.Info("Starting calendar autosync")
	s.cron.Start()
}

// Stop halts the schedule and waits for a running import to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
