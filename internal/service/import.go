package service

import (
	"alcyxob/fitness-calendar/internal/calendar"
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/repository"
	"alcyxob/fitness-calendar/internal/session"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	// "אימון - דנה" / "אימון – דנה 2/4"
	titleNamePattern = regexp.MustCompile(session.TitlePrefix + `\s*[-–]\s*(.+)`)
	ordinalSuffix    = regexp.MustCompile(`\s+\d+(/\d+)?$`)
)

// traineeNameFromEvent guesses which trainee an external event belongs to.
func traineeNameFromEvent(ev calendar.Event) string {
	summary := strings.TrimSpace(ev.Summary)
	if m := titleNamePattern.FindStringSubmatch(summary); m != nil {
		return strings.TrimSpace(ordinalSuffix.ReplaceAllString(strings.TrimSpace(m[1]), ""))
	}
	if summary != "" && summary != session.TitlePrefix {
		return summary
	}
	for _, a := range ev.Attendees {
		if a.Organizer {
			continue
		}
		if a.DisplayName != "" {
			return strings.TrimSpace(a.DisplayName)
		}
		if local, _, ok := strings.Cut(a.Email, "@"); ok && local != "" {
			return local
		}
	}
	return ""
}

// ImportFromCalendar reads the trainer's calendar window and mirrors it locally. Events that
// cannot be attributed to a trainee are skipped.
func (s *calendarSyncService) ImportFromCalendar(ctx context.Context, trainerID primitive.ObjectID) (*ImportResult, error) {
	if trainerID == primitive.NilObjectID {
		return nil, ErrInvalidTrainerID
	}
	log := s.logger.With(
		zap.String("operation", "import_from_calendar"),
		zap.String("trainer_id", trainerID.Hex()),
	)

	gw, err := s.gatewayFor(ctx, trainerID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	from, to := now.Add(-s.importPast), now.Add(s.importFuture)
	events, err := gw.ListEvents(ctx, from, to)
	if err != nil {
		log.Error("failed to list calendar events", zap.Error(err))
		s.metrics.GatewayFailure(opList)
		return nil, fmt.Errorf("%w: %v", ErrCalendarListFailed, err)
	}

	result := &ImportResult{}
	calendarID := gw.CalendarID()
	present := make(map[string]bool, len(events))
	touched := make(map[primitive.ObjectID]bool)

	for _, ev := range events {
		if ev.Cancelled() {
			result.Skipped++
			continue
		}
		present[ev.ID] = true
		if ev.AllDay {
			result.Skipped++
			continue
		}

		record, err := s.syncRepo.GetByExternalEventID(ctx, trainerID, calendarID, ev.ID)
		switch {
		case err == nil:
			if err := s.refreshMirror(ctx, record, ev); err != nil {
				return nil, err
			}
			result.Updated++
			touched[record.TraineeID] = true
		case errors.Is(err, repository.ErrNotFound):
			traineeID, imported, err := s.importEvent(ctx, trainerID, calendarID, ev)
			if err != nil {
				return nil, err
			}
			if !imported {
				result.Skipped++
				continue
			}
			result.Imported++
			touched[traineeID] = true
		default:
			return nil, fmt.Errorf("load calendar sync record: %w", err)
		}
	}

	detached, err := s.detachVanished(ctx, trainerID, calendarID, present, from, to)
	if err != nil {
		return nil, err
	}
	result.Detached = detached

	for traineeID := range touched {
		s.enqueueResync(ctx, traineeID, trainerID)
	}

	s.metrics.ImportedEvents("imported", result.Imported)
	s.metrics.ImportedEvents("updated", result.Updated)
	s.metrics.ImportedEvents("skipped", result.Skipped)
	s.metrics.ImportedEvents("detached", result.Detached)
	log.Info("calendar import finished",
		zap.Int("imported", result.Imported),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("detached", result.Detached))
	return result, nil
}

// refreshMirror copies the event onto its existing mirror and the linked workout.
func (s *calendarSyncService) refreshMirror(ctx context.Context, record *domain.CalendarSyncRecord, ev calendar.Event) error {
	moved := record.EventStartTime == nil || !record.EventStartTime.Equal(ev.Start)
	if moved && record.SyncDirection == domain.SyncToExternal {
		// Edited on the calendar side; from now on the event time wins.
		record.SyncDirection = domain.SyncBidirectional
	}

	now := s.clock().UTC()
	start, end := ev.Start, ev.End
	record.EventStartTime = &start
	record.EventEndTime = &end
	record.Summary = ev.Summary
	record.Description = ev.Description
	record.SyncStatus = domain.SyncStatusSynced
	record.LastSyncedAt = &now
	if err := s.syncRepo.Update(ctx, record); err != nil {
		return fmt.Errorf("update calendar sync record: %w", err)
	}

	if record.WorkoutID == nil || !moved {
		return nil
	}
	err := s.workoutRepo.UpdateSchedule(ctx, *record.WorkoutID, ev.Start, ev.Description)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("update workout schedule: %w", err)
	}
	return nil
}

// importEvent creates the workout, assignment and mirror for an unknown event.
func (s *calendarSyncService) importEvent(ctx context.Context, trainerID primitive.ObjectID, calendarID string, ev calendar.Event) (primitive.ObjectID, bool, error) {
	name := traineeNameFromEvent(ev)
	if name == "" {
		return primitive.NilObjectID, false, nil
	}
	trainee, err := s.userRepo.FindClientByName(ctx, trainerID, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("no trainee matches calendar event",
				zap.String("event_id", ev.ID), zap.String("name", name))
			return primitive.NilObjectID, false, nil
		}
		return primitive.NilObjectID, false, fmt.Errorf("find trainee: %w", err)
	}

	workout := &domain.Workout{
		TrainerID:   trainerID,
		WorkoutDate: ev.Start,
		Notes:       ev.Description,
		WorkoutType: domain.WorkoutTypePersonal,
	}
	workoutID, err := s.workoutRepo.Create(ctx, workout)
	if err != nil {
		return primitive.NilObjectID, false, fmt.Errorf("create workout: %w", err)
	}
	if _, err := s.assignmentRepo.Create(ctx, &domain.WorkoutAssignment{WorkoutID: workoutID, TraineeID: trainee.ID}); err != nil {
		return primitive.NilObjectID, false, fmt.Errorf("create assignment: %w", err)
	}

	now := s.clock().UTC()
	start, end := ev.Start, ev.End
	_, err = s.syncRepo.Create(ctx, &domain.CalendarSyncRecord{
		WorkoutID:          &workoutID,
		TraineeID:          trainee.ID,
		TrainerID:          trainerID,
		SyncDirection:      domain.SyncFromExternal,
		ExternalEventID:    ev.ID,
		ExternalCalendarID: calendarID,
		EventStartTime:     &start,
		EventEndTime:       &end,
		SyncStatus:         domain.SyncStatusSynced,
		Summary:            ev.Summary,
		Description:        ev.Description,
		LastSyncedAt:       &now,
	})
	if err != nil {
		// Roll back so a concurrent import of the same event leaves a single workout.
		_ = s.assignmentRepo.DeleteByWorkoutID(ctx, workoutID)
		_ = s.workoutRepo.Delete(ctx, workoutID, trainerID)
		if errors.Is(err, repository.ErrDuplicate) {
			return primitive.NilObjectID, false, nil
		}
		return primitive.NilObjectID, false, fmt.Errorf("create calendar sync record: %w", err)
	}
	return trainee.ID, true, nil
}

// detachVanished marks mirrors whose event is gone as failed and drops mirrors whose workout
// no longer exists.
func (s *calendarSyncService) detachVanished(ctx context.Context, trainerID primitive.ObjectID, calendarID string, present map[string]bool, from, to time.Time) (int, error) {
	records, err := s.syncRepo.ListSyncedInRange(ctx, trainerID, nil, from, to)
	if err != nil {
		return 0, fmt.Errorf("list calendar sync records: %w", err)
	}

	var workoutIDs []primitive.ObjectID
	for _, rec := range records {
		if rec.WorkoutID != nil {
			workoutIDs = append(workoutIDs, *rec.WorkoutID)
		}
	}
	existing := make(map[primitive.ObjectID]bool)
	if len(workoutIDs) > 0 {
		workouts, err := s.workoutRepo.GetByIDs(ctx, workoutIDs)
		if err != nil {
			return 0, fmt.Errorf("load mirrored workouts: %w", err)
		}
		for _, w := range workouts {
			existing[w.ID] = true
		}
	}

	detached := 0
	for _, rec := range records {
		if rec.WorkoutID != nil && !existing[*rec.WorkoutID] {
			if err := s.syncRepo.Delete(ctx, rec.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return detached, fmt.Errorf("delete orphaned calendar sync record: %w", err)
			}
			detached++
			continue
		}
		if !rec.HasExternalEvent() || rec.ExternalCalendarID != calendarID || present[rec.ExternalEventID] {
			continue
		}
		if err := s.syncRepo.UpdateStatus(ctx, rec.ID, domain.SyncStatusFailed, "", nil); err != nil {
			return detached, fmt.Errorf("mark calendar sync record failed: %w", err)
		}
		s.logger.Info("calendar event vanished, mirror marked failed",
			zap.String("trainer_id", trainerID.Hex()),
			zap.String("event_id", rec.ExternalEventID))
		detached++
	}
	return detached, nil
}
