package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names
const (
	userCollectionName         = "users"
	workoutCollectionName      = "workouts"
	assignmentCollectionName   = "workout_assignments"
	calendarSyncCollectionName = "calendar_sync"
	resyncJobCollectionName    = "resync_jobs"
	credentialsCollectionName  = "trainer_google_credentials"
)

const defaultTimeout = 10 * time.Second

// Server error codes
const (
	codeNamespaceNotFound = 26
	codeIndexNotFound     = 27
)

// ConnectDB establishes a connection to MongoDB and verifies it with a ping on the primary.
func ConnectDB(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	if err = client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}
	return client, nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes of every collection the service owns.
// The calendar_sync unique index is what keeps a workout from getting two synced mirrors,
// so a failure here is returned rather than swallowed.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	steps := []struct {
		name string
		fn   func(context.Context, *mongo.Collection) error
	}{
		{userCollectionName, EnsureUserIndexes},
		{workoutCollectionName, EnsureWorkoutIndexes},
		{assignmentCollectionName, EnsureAssignmentIndexes},
		{calendarSyncCollectionName, EnsureCalendarSyncIndexes},
		{resyncJobCollectionName, EnsureResyncJobIndexes},
		{credentialsCollectionName, EnsureCalendarCredentialsIndexes},
	}
	for _, step := range steps {
		if err := step.fn(ctx, db.Collection(step.name)); err != nil {
			return fmt.Errorf("ensure indexes for %s: %w", step.name, err)
		}
	}
	return nil
}
