package mongo

import (
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoResyncJobRepository implements repository.ResyncJobRepository
type mongoResyncJobRepository struct {
	collection *mongo.Collection
}

// NewMongoResyncJobRepository creates the resync outbox repository.
func NewMongoResyncJobRepository(db *mongo.Database) repository.ResyncJobRepository {
	return &mongoResyncJobRepository{
		collection: db.Collection(resyncJobCollectionName),
	}
}

// Enqueue persists a new pending job.
func (r *mongoResyncJobRepository) Enqueue(ctx context.Context, job *domain.ResyncJob) (primitive.ObjectID, error) {
	if job.TraineeID == primitive.NilObjectID || job.TrainerID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("resync job requires traineeId and trainerId")
	}
	job.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	job.Status = domain.JobPending
	if job.NextRunAt.IsZero() {
		job.NextRunAt = now
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, job)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted resync job ID")
	}
	return insertedID, nil
}

// ClaimNext atomically leases the oldest due job. Jobs left running by a crashed worker are
// picked up again once their lease expires.
func (r *mongoResyncJobRepository) ClaimNext(ctx context.Context, owner string, now time.Time, lease time.Duration) (*domain.ResyncJob, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"status": domain.JobPending, "nextRunAt": bson.M{"$lte": now}},
			bson.M{"status": domain.JobRunning, "leaseUntil": bson.M{"$lt": now}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     domain.JobRunning,
			"leaseOwner": owner,
			"leaseUntil": now.Add(lease),
			"updatedAt":  now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "nextRunAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetReturnDocument(options.After)

	var job domain.ResyncJob
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// MarkDone completes a job.
func (r *mongoResyncJobRepository) MarkDone(ctx context.Context, id primitive.ObjectID) error {
	return r.set(ctx, id, bson.M{"status": domain.JobDone})
}

// MarkRetry puts a job back in the queue for a later attempt.
func (r *mongoResyncJobRepository) MarkRetry(ctx context.Context, id primitive.ObjectID, attempts int, nextRunAt time.Time, lastErr string) error {
	return r.set(ctx, id, bson.M{
		"status":    domain.JobPending,
		"attempts":  attempts,
		"nextRunAt": nextRunAt,
		"lastError": lastErr,
	})
}

// MarkFailed parks a job that used up its attempts.
func (r *mongoResyncJobRepository) MarkFailed(ctx context.Context, id primitive.ObjectID, attempts int, lastErr string) error {
	return r.set(ctx, id, bson.M{
		"status":    domain.JobFailed,
		"attempts":  attempts,
		"lastError": lastErr,
	})
}

func (r *mongoResyncJobRepository) set(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	fields["updatedAt"] = time.Now().UTC()
	update := bson.M{
		"$set":   fields,
		"$unset": bson.M{"leaseOwner": "", "leaseUntil": ""},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureResyncJobIndexes creates the indexes used by the claim query.
func EnsureResyncJobIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextRunAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "leaseUntil", Value: 1}}},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
