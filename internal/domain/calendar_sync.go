package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SyncDirection tells which side is the origin of truth for a mirrored event.
type SyncDirection string

const (
	SyncToExternal    SyncDirection = "to_external"
	SyncFromExternal  SyncDirection = "from_external"
	SyncBidirectional SyncDirection = "bidirectional"
)

// SyncStatus tracks the state of the last write to the external calendar.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// CalendarSyncRecord mirrors a Workout onto an event in the external calendar.
//
// WorkoutID is nil for calendar-only events that were not imported yet. For records whose
// direction is from_external or bidirectional, EventStartTime must be set; records that
// break this are corrupt and never take part in reconciliation.
type CalendarSyncRecord struct {
	ID                 primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	WorkoutID          *primitive.ObjectID `bson:"workoutId,omitempty" json:"workoutId,omitempty"`
	TraineeID          primitive.ObjectID  `bson:"traineeId" json:"traineeId"`
	TrainerID          primitive.ObjectID  `bson:"trainerId" json:"trainerId"`
	SyncDirection      SyncDirection       `bson:"syncDirection" json:"syncDirection"`
	ExternalEventID    string              `bson:"externalEventId,omitempty" json:"externalEventId,omitempty"`
	ExternalCalendarID string              `bson:"externalCalendarId,omitempty" json:"externalCalendarId,omitempty"`
	EventStartTime     *time.Time          `bson:"eventStartTime,omitempty" json:"eventStartTime,omitempty"`
	EventEndTime       *time.Time          `bson:"eventEndTime,omitempty" json:"eventEndTime,omitempty"`
	SyncStatus         SyncStatus          `bson:"syncStatus" json:"syncStatus"`
	Summary            string              `bson:"summary,omitempty" json:"summary,omitempty"`
	Description        string              `bson:"description,omitempty" json:"description,omitempty"`
	LastSyncedAt       *time.Time          `bson:"lastSyncedAt,omitempty" json:"lastSyncedAt,omitempty"`
	CreatedAt          time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// MirrorsExternal reports whether the external event time is authoritative for this record.
func (r *CalendarSyncRecord) MirrorsExternal() bool {
	return r.SyncDirection == SyncFromExternal || r.SyncDirection == SyncBidirectional
}

// IsCorrupt reports a record that mirrors the external calendar but carries no start time.
func (r *CalendarSyncRecord) IsCorrupt() bool {
	return r.MirrorsExternal() && r.EventStartTime == nil
}

// HasExternalEvent reports whether the record points at an event on the external calendar.
func (r *CalendarSyncRecord) HasExternalEvent() bool {
	return r.ExternalEventID != ""
}
