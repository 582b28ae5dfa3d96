package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CalendarCredentials connects a trainer to their own Google Calendar.
// One document per trainer; the OAuth client itself is shared by the deployment.
type CalendarCredentials struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TrainerID primitive.ObjectID `bson:"trainerId" json:"trainerId"`
	// CalendarID is empty for the account's primary calendar.
	CalendarID   string    `bson:"calendarId,omitempty" json:"calendarId,omitempty"`
	RefreshToken string    `bson:"refreshToken" json:"-"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}
