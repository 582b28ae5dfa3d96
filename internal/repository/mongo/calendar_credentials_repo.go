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

// mongoCalendarCredentialsRepository implements repository.CalendarCredentialsRepository
type mongoCalendarCredentialsRepository struct {
	collection *mongo.Collection
}

// NewMongoCalendarCredentialsRepository creates a new credentials repository backed by MongoDB.
func NewMongoCalendarCredentialsRepository(db *mongo.Database) repository.CalendarCredentialsRepository {
	return &mongoCalendarCredentialsRepository{
		collection: db.Collection(credentialsCollectionName),
	}
}

// GetByTrainerID returns the trainer's calendar connection.
func (r *mongoCalendarCredentialsRepository) GetByTrainerID(ctx context.Context, trainerID primitive.ObjectID) (*domain.CalendarCredentials, error) {
	var creds domain.CalendarCredentials
	err := r.collection.FindOne(ctx, bson.M{"trainerId": trainerID}).Decode(&creds)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &creds, nil
}

// Upsert stores the credentials under the trainer, keeping the original creation time.
func (r *mongoCalendarCredentialsRepository) Upsert(ctx context.Context, creds *domain.CalendarCredentials) error {
	if creds.TrainerID == primitive.NilObjectID || creds.RefreshToken == "" {
		return errors.New("calendar credentials require trainerId and refreshToken")
	}
	now := time.Now().UTC()
	creds.UpdatedAt = now

	update := bson.M{
		"$set": bson.M{
			"calendarId":   creds.CalendarID,
			"refreshToken": creds.RefreshToken,
			"updatedAt":    now,
		},
		"$setOnInsert": bson.M{
			"trainerId": creds.TrainerID,
			"createdAt": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored domain.CalendarCredentials
	if err := r.collection.FindOneAndUpdate(ctx, bson.M{"trainerId": creds.TrainerID}, update, opts).Decode(&stored); err != nil {
		return err
	}
	creds.ID = stored.ID
	creds.CreatedAt = stored.CreatedAt
	return nil
}

// DeleteByTrainerID disconnects the trainer's calendar.
func (r *mongoCalendarCredentialsRepository) DeleteByTrainerID(ctx context.Context, trainerID primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"trainerId": trainerID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureCalendarCredentialsIndexes creates the indexes for the trainer_google_credentials collection.
func EnsureCalendarCredentialsIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "trainerId", Value: 1}},
		Options: options.Index().SetName("uniq_trainer").SetUnique(true),
	})
	return err
}
