// Package calendar talks to the trainer's external calendar.
package calendar

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks -source=gateway.go Gateway

var (
	// ErrEventNotFound is returned when the event does not exist on the external calendar.
	ErrEventNotFound = errors.New("calendar event not found")
	// ErrUnavailable wraps transport and provider failures.
	ErrUnavailable = errors.New("calendar provider unavailable")
)

// Event statuses reported by the provider.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Attendee is a participant listed on an event.
type Attendee struct {
	Email       string
	DisplayName string
	Organizer   bool
}

// Event is a provider-neutral view of an external calendar event.
type Event struct {
	// ID is optional on create; when set the provider must use it, which makes inserts idempotent.
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Status      string
	Attendees   []Attendee
}

// Cancelled reports whether the provider marked the event as cancelled.
func (e Event) Cancelled() bool {
	return e.Status == StatusCancelled
}

// EventUpdate patches an existing event. Empty fields are left untouched.
type EventUpdate struct {
	Summary     string
	Description string
}

// Gateway is the boundary to the external calendar of the trainer.
type Gateway interface {
	// CreateEvent creates the event and returns its ID. Creating an event whose ID already
	// exists succeeds and returns that ID.
	CreateEvent(ctx context.Context, event Event) (string, error)
	UpdateEvent(ctx context.Context, eventID string, update EventUpdate) error
	// DeleteEvent removes the event. Deleting an event that is already gone is not an error.
	DeleteEvent(ctx context.Context, eventID string) error
	// ListEvents returns single (expanded) events starting in [from, to), ordered by start.
	ListEvents(ctx context.Context, from, to time.Time) ([]Event, error)
	CalendarID() string
}
