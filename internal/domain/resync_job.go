package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ResyncScope selects which of a trainee's events a resync job re-titles.
type ResyncScope string

const (
	ScopeCurrentMonth          ResyncScope = "current_month"
	ScopeCurrentMonthAndFuture ResyncScope = "current_month_and_future"
	ScopeAll                   ResyncScope = "all"
)

// Valid reports whether the scope is one the runner understands.
func (s ResyncScope) Valid() bool {
	switch s {
	case ScopeCurrentMonth, ScopeCurrentMonthAndFuture, ScopeAll:
		return true
	}
	return false
}

// ResyncJobStatus is the lifecycle of a persisted resync job.
type ResyncJobStatus string

const (
	JobPending ResyncJobStatus = "pending"
	JobRunning ResyncJobStatus = "running" // Claimed by a worker until LeaseUntil
	JobDone    ResyncJobStatus = "done"
	JobFailed  ResyncJobStatus = "failed" // Gave up after MaxAttempts
)

// ResyncJob is a durable request to re-number a trainee's external events.
type ResyncJob struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TraineeID   primitive.ObjectID `bson:"traineeId" json:"traineeId"`
	TrainerID   primitive.ObjectID `bson:"trainerId" json:"trainerId"`
	Scope       ResyncScope        `bson:"scope" json:"scope"`
	Status      ResyncJobStatus    `bson:"status" json:"status"`
	Attempts    int                `bson:"attempts" json:"attempts"`
	MaxAttempts int                `bson:"maxAttempts" json:"maxAttempts"`
	NextRunAt   time.Time          `bson:"nextRunAt" json:"nextRunAt"`
	LeaseOwner  string             `bson:"leaseOwner,omitempty" json:"leaseOwner,omitempty"`
	LeaseUntil  *time.Time         `bson:"leaseUntil,omitempty" json:"leaseUntil,omitempty"`
	LastError   string             `bson:"lastError,omitempty" json:"lastError,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}
