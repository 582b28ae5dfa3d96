package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkoutAssignment links a Workout to a trainee (a user with the client role).
// Assignments are created together with the workout, never mutated, and removed with it.
type WorkoutAssignment struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	WorkoutID primitive.ObjectID `bson:"workoutId" json:"workoutId"`
	TraineeID primitive.ObjectID `bson:"traineeId" json:"traineeId"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
