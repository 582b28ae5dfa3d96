// Package session numbers a trainee's workouts within a calendar month and renders the
// titles of their external calendar events ("אימון - דנה 2/5").
package session

import (
	"alcyxob/fitness-calendar/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TitlePrefix opens every workout event title.
const TitlePrefix = "אימון"

// Numberer derives session ordinals from the stored workouts.
type Numberer struct {
	workouts    repository.WorkoutRepository
	assignments repository.AssignmentRepository
	users       repository.UserRepository
	location    *time.Location
}

// NewNumberer creates a Numberer whose months are calendar months in loc.
func NewNumberer(
	workouts repository.WorkoutRepository,
	assignments repository.AssignmentRepository,
	users repository.UserRepository,
	loc *time.Location,
) *Numberer {
	if loc == nil {
		loc = time.UTC
	}
	return &Numberer{
		workouts:    workouts,
		assignments: assignments,
		users:       users,
		location:    loc,
	}
}

// MonthSessions is the ordered list of one trainee's workouts in one month.
type MonthSessions struct {
	TraineeName string
	MonthStart  time.Time

	workoutIDs []primitive.ObjectID
	dates      []time.Time
}

// Len returns the number of sessions in the month.
func (m *MonthSessions) Len() int {
	return len(m.workoutIDs)
}

// Position returns the 1-based ordinal of the workout, or 0 when it is not part of the month.
// Without a workout ID the session is matched by its start time.
func (m *MonthSessions) Position(workoutID *primitive.ObjectID, at time.Time) int {
	for i := range m.workoutIDs {
		if workoutID != nil && m.workoutIDs[i] == *workoutID {
			return i + 1
		}
	}
	if workoutID == nil {
		for i := range m.dates {
			if m.dates[i].Equal(at) {
				return i + 1
			}
		}
	}
	return 0
}

// Title renders the event title of a session.
func (m *MonthSessions) Title(workoutID *primitive.ObjectID, at time.Time) string {
	if m.TraineeName == "" {
		return TitlePrefix
	}
	base := TitlePrefix + " - " + m.TraineeName
	pos := m.Position(workoutID, at)
	switch {
	case pos == 0:
		return base
	case m.Len() > 1:
		return fmt.Sprintf("%s %d/%d", base, pos, m.Len())
	default:
		return fmt.Sprintf("%s %d", base, pos)
	}
}

// MonthStart returns midnight of the first day of the month containing t.
func (n *Numberer) MonthStart(t time.Time) time.Time {
	t = t.In(n.location)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, n.location)
}

// ForMonth loads the trainee's sessions in the month containing at. Sessions are ordered by
// workout date, ties broken by workout ID.
func (n *Numberer) ForMonth(ctx context.Context, trainerID, traineeID primitive.ObjectID, at time.Time) (*MonthSessions, error) {
	start := n.MonthStart(at)
	end := start.AddDate(0, 1, 0)

	sessions := &MonthSessions{MonthStart: start}

	trainee, err := n.users.GetByID(ctx, traineeID)
	switch {
	case err == nil:
		sessions.TraineeName = trainee.Name
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("load trainee: %w", err)
	}

	workouts, err := n.workouts.GetByTrainerInRange(ctx, trainerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load month workouts: %w", err)
	}
	if len(workouts) == 0 {
		return sessions, nil
	}

	ids := make([]primitive.ObjectID, 0, len(workouts))
	for _, w := range workouts {
		ids = append(ids, w.ID)
	}
	assignments, err := n.assignments.GetByWorkoutIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load month assignments: %w", err)
	}
	assigned := make(map[primitive.ObjectID]bool)
	for _, a := range assignments {
		if a.TraineeID == traineeID {
			assigned[a.WorkoutID] = true
		}
	}

	// The store already returns (workoutDate, _id) order.
	for _, w := range workouts {
		if assigned[w.ID] {
			sessions.workoutIDs = append(sessions.workoutIDs, w.ID)
			sessions.dates = append(sessions.dates, w.WorkoutDate)
		}
	}
	return sessions, nil
}
