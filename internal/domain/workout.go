package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Workout types used when a workout is created by the system rather than a trainer form.
const (
	WorkoutTypePersonal = "personal"
)

// Workout represents a single scheduled or completed training session owned by a trainer.
// WorkoutDate is the local system-of-record time for the session.
type Workout struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TrainerID   primitive.ObjectID `bson:"trainerId" json:"trainerId"` // Owner, workouts are never shared
	WorkoutDate time.Time          `bson:"workoutDate" json:"workoutDate"`
	IsCompleted bool               `bson:"isCompleted" json:"isCompleted"`
	Notes       string             `bson:"notes,omitempty" json:"notes,omitempty"`
	WorkoutType string             `bson:"workoutType,omitempty" json:"workoutType,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}
