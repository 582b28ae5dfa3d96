package service

import (
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/repository"
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const dateKeyLayout = "2006-01-02"

// Reasons a workout is dropped from the schedule for integrity reasons.
const (
	exclusionMissingStartTime = "missing_start_time"
)

// ScheduleEntry is one row of the today/tomorrow view. It is derived on every read and never stored.
type ScheduleEntry struct {
	Workout    domain.Workout
	Trainee    domain.User
	SyncRecord *domain.CalendarSyncRecord

	// CanonicalTime is the authoritative start of the session.
	CanonicalTime              time.Time
	IsTimePassed               bool
	IsFromExternal             bool
	HasCompletedWorkoutSameDay bool
}

// DailySchedule holds the trainer's sessions for today and tomorrow, each ordered by start.
type DailySchedule struct {
	Today    []ScheduleEntry
	Tomorrow []ScheduleEntry
}

// ScheduleService computes the trainer's schedule from workouts and their calendar mirrors.
type ScheduleService interface {
	GetScheduledWorkouts(ctx context.Context, trainerID primitive.ObjectID, traineeIDs []primitive.ObjectID) (*DailySchedule, error)
	// GetTrainerSchedule is GetScheduledWorkouts over every client of the trainer.
	GetTrainerSchedule(ctx context.Context, trainerID primitive.ObjectID) (*DailySchedule, error)
}

// scheduleService implements the ScheduleService interface.
type scheduleService struct {
	workoutRepo    repository.WorkoutRepository
	assignmentRepo repository.AssignmentRepository
	syncRepo       repository.CalendarSyncRepository
	userRepo       repository.UserRepository
	options
}

// NewScheduleService creates a new instance of scheduleService.
func NewScheduleService(
	workoutRepo repository.WorkoutRepository,
	assignmentRepo repository.AssignmentRepository,
	syncRepo repository.CalendarSyncRepository,
	userRepo repository.UserRepository,
	opts ...Option,
) ScheduleService {
	return &scheduleService{
		workoutRepo:    workoutRepo,
		assignmentRepo: assignmentRepo,
		syncRepo:       syncRepo,
		userRepo:       userRepo,
		options:        newOptions(opts),
	}
}

func (s *scheduleService) GetTrainerSchedule(ctx context.Context, trainerID primitive.ObjectID) (*DailySchedule, error) {
	if trainerID == primitive.NilObjectID {
		return nil, ErrInvalidTrainerID
	}
	clients, err := s.userRepo.GetClientsByTrainerID(ctx, trainerID)
	if err != nil {
		return nil, fmt.Errorf("load trainer clients: %w", err)
	}
	traineeIDs := make([]primitive.ObjectID, 0, len(clients))
	for _, c := range clients {
		traineeIDs = append(traineeIDs, c.ID)
	}
	return s.GetScheduledWorkouts(ctx, trainerID, traineeIDs)
}

// scheduleWindow is the [today, dayAfter) range in the configured time zone.
type scheduleWindow struct {
	now      time.Time
	today    time.Time
	tomorrow time.Time
	dayAfter time.Time
}

func (w scheduleWindow) contains(t time.Time) bool {
	return !t.Before(w.today) && t.Before(w.dayAfter)
}

func (s *scheduleService) window() scheduleWindow {
	now := s.clock().In(s.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
	return scheduleWindow{
		now:      now,
		today:    today,
		tomorrow: today.AddDate(0, 0, 1),
		dayAfter: today.AddDate(0, 0, 2),
	}
}

func (s *scheduleService) dateKey(t time.Time) string {
	return t.In(s.location).Format(dateKeyLayout)
}

// mirrorIndex is what the sync records say about each workout.
type mirrorIndex struct {
	fromExternal map[primitive.ObjectID]bool
	startTime    map[primitive.ObjectID]time.Time
	corrupt      map[primitive.ObjectID]bool
	// movedAway marks workouts whose bidirectional mirror starts outside the window.
	movedAway map[primitive.ObjectID]bool
	record    map[primitive.ObjectID]*domain.CalendarSyncRecord
}

func buildMirrorIndex(records []domain.CalendarSyncRecord, w scheduleWindow) mirrorIndex {
	idx := mirrorIndex{
		fromExternal: make(map[primitive.ObjectID]bool),
		startTime:    make(map[primitive.ObjectID]time.Time),
		corrupt:      make(map[primitive.ObjectID]bool),
		movedAway:    make(map[primitive.ObjectID]bool),
		record:       make(map[primitive.ObjectID]*domain.CalendarSyncRecord),
	}
	for i := range records {
		rec := &records[i]
		if rec.WorkoutID == nil {
			continue // Calendar-only event, nothing to join
		}
		wid := *rec.WorkoutID

		if rec.IsCorrupt() {
			idx.corrupt[wid] = true
			continue
		}
		if prev, ok := idx.record[wid]; !ok || prev.SyncStatus != domain.SyncStatusSynced {
			idx.record[wid] = rec
		}

		if rec.SyncStatus == domain.SyncStatusSynced && rec.MirrorsExternal() {
			idx.fromExternal[wid] = true
			idx.startTime[wid] = *rec.EventStartTime
		}
		if rec.SyncDirection == domain.SyncBidirectional && !w.contains(*rec.EventStartTime) {
			idx.movedAway[wid] = true
		}
	}
	return idx
}

// addWorkoutMirrors appends the mirrors of the given workouts that are not in records yet.
func (s *scheduleService) addWorkoutMirrors(ctx context.Context, records []domain.CalendarSyncRecord, workouts []domain.Workout) ([]domain.CalendarSyncRecord, error) {
	if len(workouts) == 0 {
		return records, nil
	}
	ids := make([]primitive.ObjectID, 0, len(workouts))
	for _, wk := range workouts {
		ids = append(ids, wk.ID)
	}
	more, err := s.syncRepo.ListByWorkoutIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load workout calendar sync records: %w", err)
	}
	have := make(map[primitive.ObjectID]bool, len(records))
	for _, rec := range records {
		have[rec.ID] = true
	}
	for _, rec := range more {
		if !have[rec.ID] {
			have[rec.ID] = true
			records = append(records, rec)
		}
	}
	return records, nil
}

// trainerMirrors keeps the trainer's records that belong to a requested trainee.
func trainerMirrors(records []domain.CalendarSyncRecord, trainerID primitive.ObjectID, requested map[primitive.ObjectID]bool) []domain.CalendarSyncRecord {
	out := records[:0]
	for _, rec := range records {
		if rec.TrainerID == trainerID && requested[rec.TraineeID] {
			out = append(out, rec)
		}
	}
	return out
}

// GetScheduledWorkouts returns the sessions of the given trainees for today and tomorrow.
func (s *scheduleService) GetScheduledWorkouts(ctx context.Context, trainerID primitive.ObjectID, traineeIDs []primitive.ObjectID) (*DailySchedule, error) {
	if trainerID == primitive.NilObjectID {
		return nil, ErrInvalidTrainerID
	}
	schedule := &DailySchedule{Today: []ScheduleEntry{}, Tomorrow: []ScheduleEntry{}}
	if len(traineeIDs) == 0 {
		return schedule, nil
	}
	w := s.window()

	requested := make(map[primitive.ObjectID]bool, len(traineeIDs))
	for _, id := range traineeIDs {
		requested[id] = true
	}

	// 1. Load workouts and the mirrors starting near the window concurrently. One day of
	// slack on each side covers stored dates and event times that disagree slightly.
	// Any store failure aborts the read.
	from, to := w.today.AddDate(0, 0, -1), w.dayAfter.AddDate(0, 0, 1)
	var (
		records  []domain.CalendarSyncRecord
		workouts []domain.Workout
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.syncRepo.ListByTrainerInRange(gctx, trainerID, from, to)
		if err != nil {
			return fmt.Errorf("load calendar sync records: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		workouts, err = s.workoutRepo.GetByTrainerInRange(gctx, trainerID, from, to)
		if err != nil {
			return fmt.Errorf("load workouts: %w", err)
		}
		return nil
	})
	err := g.Wait()
	if err == nil {
		// Mirrors of the loaded workouts may start anywhere, or nowhere when corrupt.
		records, err = s.addWorkoutMirrors(ctx, records, workouts)
	}
	if err != nil {
		s.logger.Error("schedule read failed",
			zap.String("operation", "get_scheduled_workouts"),
			zap.String("trainer_id", trainerID.Hex()),
			zap.Error(err))
		return nil, err
	}
	records = trainerMirrors(records, trainerID, requested)

	idx := buildMirrorIndex(records, w)

	// 2. Mirrored workouts whose stored date lies outside the coarse window are fetched by ID.
	loaded := make(map[primitive.ObjectID]bool, len(workouts))
	for _, wk := range workouts {
		loaded[wk.ID] = true
	}
	var missing []primitive.ObjectID
	for wid, start := range idx.startTime {
		if !loaded[wid] && w.contains(start) {
			missing = append(missing, wid)
		}
	}
	if len(missing) > 0 {
		extra, err := s.workoutRepo.GetByIDs(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("load mirrored workouts: %w", err)
		}
		for _, wk := range extra {
			if wk.TrainerID == trainerID {
				workouts = append(workouts, wk)
			}
		}
	}

	// 3. Pick the canonical time of each workout and keep those falling on today or tomorrow.
	todayKey, tomorrowKey := s.dateKey(w.today), s.dateKey(w.tomorrow)
	canonical := make(map[primitive.ObjectID]time.Time)
	byID := make(map[primitive.ObjectID]domain.Workout)
	for _, wk := range workouts {
		at, ok := s.canonicalTime(wk, idx, w, trainerID)
		if !ok {
			continue
		}
		if key := s.dateKey(at); key != todayKey && key != tomorrowKey {
			continue
		}
		canonical[wk.ID] = at
		byID[wk.ID] = wk
	}
	if len(canonical) == 0 {
		return schedule, nil
	}

	// 4. Join to assignments; the join is inner, so orphaned mirrors never surface.
	candidateIDs := make([]primitive.ObjectID, 0, len(canonical))
	for id := range canonical {
		candidateIDs = append(candidateIDs, id)
	}
	assignments, err := s.assignmentRepo.GetByWorkoutIDs(ctx, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}

	type pairKey struct{ trainee, workout primitive.ObjectID }
	seen := make(map[pairKey]bool)
	var entries []ScheduleEntry
	traineeSet := make(map[primitive.ObjectID]bool)
	for _, a := range assignments {
		key := pairKey{a.TraineeID, a.WorkoutID}
		if !requested[a.TraineeID] || seen[key] {
			continue
		}
		seen[key] = true
		traineeSet[a.TraineeID] = true
		entries = append(entries, ScheduleEntry{
			Workout:        byID[a.WorkoutID],
			Trainee:        domain.User{ID: a.TraineeID},
			SyncRecord:     idx.record[a.WorkoutID],
			CanonicalTime:  canonical[a.WorkoutID],
			IsFromExternal: idx.fromExternal[a.WorkoutID],
		})
	}
	if len(entries) == 0 {
		return schedule, nil
	}

	// 5. Resolve trainees; entries whose trainee is unknown are dropped.
	ids := make([]primitive.ObjectID, 0, len(traineeSet))
	for id := range traineeSet {
		ids = append(ids, id)
	}
	trainees, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load trainees: %w", err)
	}
	traineeByID := make(map[primitive.ObjectID]domain.User, len(trainees))
	for _, t := range trainees {
		traineeByID[t.ID] = t
	}

	type dayKey struct {
		trainee primitive.ObjectID
		date    string
	}
	completedOn := make(map[dayKey]bool)
	resolved := entries[:0]
	for _, e := range entries {
		t, ok := traineeByID[e.Trainee.ID]
		if !ok {
			continue
		}
		e.Trainee = t
		if e.Workout.IsCompleted {
			completedOn[dayKey{t.ID, s.dateKey(e.CanonicalTime)}] = true
		}
		resolved = append(resolved, e)
	}

	// 6. Partition by date and finish each entry.
	for _, e := range resolved {
		key := s.dateKey(e.CanonicalTime)
		e.HasCompletedWorkoutSameDay = completedOn[dayKey{e.Trainee.ID, key}]
		e.IsTimePassed = w.now.After(e.CanonicalTime)
		switch key {
		case todayKey:
			schedule.Today = append(schedule.Today, e)
		case tomorrowKey:
			schedule.Tomorrow = append(schedule.Tomorrow, e)
		}
	}

	schedule.Today = dropCompletedDuplicates(schedule.Today)
	sortEntries(schedule.Today)
	sortEntries(schedule.Tomorrow)
	return schedule, nil
}

// canonicalTime applies the time-selection rule. ok is false when the workout must be excluded.
func (s *scheduleService) canonicalTime(wk domain.Workout, idx mirrorIndex, w scheduleWindow, trainerID primitive.ObjectID) (time.Time, bool) {
	if idx.corrupt[wk.ID] {
		s.excludeCorrupt(wk, trainerID)
		return time.Time{}, false
	}
	if idx.fromExternal[wk.ID] {
		start, ok := idx.startTime[wk.ID]
		if !ok {
			s.excludeCorrupt(wk, trainerID)
			return time.Time{}, false
		}
		return start, true
	}
	if idx.movedAway[wk.ID] {
		s.logger.Debug("workout moved out of the schedule window by its calendar event",
			zap.String("workout_id", wk.ID.Hex()))
		return time.Time{}, false
	}
	return wk.WorkoutDate, true
}

func (s *scheduleService) excludeCorrupt(wk domain.Workout, trainerID primitive.ObjectID) {
	s.logger.Warn("excluding workout with calendar mirror missing its event start time",
		zap.String("operation", "get_scheduled_workouts"),
		zap.String("trainer_id", trainerID.Hex()),
		zap.String("workout_id", wk.ID.Hex()))
	s.metrics.IntegrityExclusion(exclusionMissingStartTime)
}

// dropCompletedDuplicates keeps only the open sessions of a trainee who has both open and
// completed sessions in the list.
func dropCompletedDuplicates(entries []ScheduleEntry) []ScheduleEntry {
	open := make(map[primitive.ObjectID]bool)
	done := make(map[primitive.ObjectID]bool)
	for _, e := range entries {
		if e.Workout.IsCompleted {
			done[e.Trainee.ID] = true
		} else {
			open[e.Trainee.ID] = true
		}
	}
	kept := make([]ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		if e.Workout.IsCompleted && open[e.Trainee.ID] && done[e.Trainee.ID] {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func sortEntries(entries []ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CanonicalTime.Equal(b.CanonicalTime) {
			return a.CanonicalTime.Before(b.CanonicalTime)
		}
		if a.Workout.ID != b.Workout.ID {
			return a.Workout.ID.Hex() < b.Workout.ID.Hex()
		}
		return a.Trainee.ID.Hex() < b.Trainee.ID.Hex()
	})
}
