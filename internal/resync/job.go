package resync

import (
	"alcyxob/fitness-calendar/internal/calendar"
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/session"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// scopeRange returns the [from, to) range of event starts covered by the scope.
func (r *Runner) scopeRange(scope domain.ResyncScope) (time.Time, time.Time, error) {
	monthStart := r.numberer.MonthStart(r.clock())
	// End of the year after next
	horizon := time.Date(monthStart.Year()+3, time.January, 1, 0, 0, 0, 0, monthStart.Location())

	switch scope {
	case domain.ScopeCurrentMonth:
		return monthStart, monthStart.AddDate(0, 1, 0), nil
	case domain.ScopeCurrentMonthAndFuture:
		return monthStart, horizon, nil
	case domain.ScopeAll:
		return allScopeStart.In(monthStart.Location()), horizon, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("invalid resync scope %q", scope)
}

// RunJob re-titles the trainee's synced events in the job's scope. Event update failures mark
// the mirror failed and do not fail the job; store failures do.
func (r *Runner) RunJob(ctx context.Context, job *domain.ResyncJob) error {
	from, to, err := r.scopeRange(job.Scope)
	if err != nil {
		return err
	}
	records, err := r.syncRepo.ListSyncedInRange(ctx, job.TrainerID, &job.TraineeID, from, to)
	if err != nil {
		return fmt.Errorf("list synced events: %w", err)
	}

	log := r.logger.With(
		zap.String("trainer_id", job.TrainerID.Hex()),
		zap.String("trainee_id", job.TraineeID.Hex()),
	)
	if len(records) == 0 {
		return nil
	}
	gw, err := r.calendars.ForTrainer(ctx, job.TrainerID)
	if err != nil {
		if errors.Is(err, calendar.ErrNotConnected) {
			// Nothing can be re-titled until the trainer connects again.
			log.Info("resync skipped, calendar not connected", zap.Int("events", len(records)))
			return nil
		}
		return fmt.Errorf("resolve trainer calendar: %w", err)
	}
	months := make(map[time.Time]*session.MonthSessions)
	updated, failed := 0, 0

	for i := range records {
		rec := &records[i]
		if !rec.HasExternalEvent() || rec.EventStartTime == nil {
			continue
		}
		start := *rec.EventStartTime

		monthStart := r.numberer.MonthStart(start)
		sessions, ok := months[monthStart]
		if !ok {
			sessions, err = r.numberer.ForMonth(ctx, job.TrainerID, job.TraineeID, start)
			if err != nil {
				return fmt.Errorf("number sessions: %w", err)
			}
			months[monthStart] = sessions
		}

		title := sessions.Title(rec.WorkoutID, start)
		if title == rec.Summary {
			continue
		}
		if updated+failed > 0 {
			if err := r.pause(ctx); err != nil {
				return err
			}
		}

		if err := r.updateTitle(ctx, gw, rec.ExternalEventID, title); err != nil {
			failed++
			log.Warn("failed to update calendar event title",
				zap.String("event_id", rec.ExternalEventID), zap.Error(err))
			r.metrics.GatewayFailure("update")
			if err := r.syncRepo.UpdateStatus(ctx, rec.ID, domain.SyncStatusFailed, "", nil); err != nil {
				return fmt.Errorf("mark calendar sync record failed: %w", err)
			}
			continue
		}

		now := r.clock().UTC()
		if err := r.syncRepo.UpdateStatus(ctx, rec.ID, domain.SyncStatusSynced, title, &now); err != nil {
			return fmt.Errorf("save calendar event title: %w", err)
		}
		updated++
	}

	log.Debug("resync finished", zap.Int("updated", updated), zap.Int("failed", failed))
	return nil
}

// updateTitle patches the event summary, retrying transient failures.
func (r *Runner) updateTitle(ctx context.Context, gw calendar.Gateway, eventID, title string) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := gw.UpdateEvent(ctx, eventID, calendar.EventUpdate{Summary: title})
		if errors.Is(err, calendar.ErrEventNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(r.newBackOff()), backoff.WithMaxTries(updateTries))
	return err
}

func (r *Runner) pause(ctx context.Context) error {
	if r.updateDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(r.updateDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
