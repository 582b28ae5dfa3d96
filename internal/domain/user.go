package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role type to distinguish between user roles
type Role string

const (
	RoleTrainer Role = "trainer"
	RoleClient  Role = "client" // Trainees
)

// User is a trainer or a trainee. Account management lives elsewhere; the schedule engine
// only reads users as a directory to resolve trainees and their names.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Role      Role               `bson:"role" json:"role"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`

	// --- Trainer-specific ---
	ClientIDs []primitive.ObjectID `bson:"clientIds,omitempty" json:"clientIds,omitempty"`
	// CalendarAutoSync opts the trainer into the periodic calendar import.
	CalendarAutoSync bool `bson:"calendarAutoSync,omitempty" json:"calendarAutoSync,omitempty"`

	// --- Client-specific ---
	TrainerID *primitive.ObjectID `bson:"trainerId,omitempty" json:"trainerId,omitempty"`
}

func (u *User) IsTrainer() bool {
	return u.Role == RoleTrainer
}

func (u *User) IsClient() bool {
	return u.Role == RoleClient
}

// IsManagedBy reports whether the trainee belongs to the given trainer.
func (u *User) IsManagedBy(trainerID primitive.ObjectID) bool {
	return u.TrainerID != nil && *u.TrainerID == trainerID
}
