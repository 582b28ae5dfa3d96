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

// mongoCalendarSyncRepository implements repository.CalendarSyncRepository
type mongoCalendarSyncRepository struct {
	collection *mongo.Collection
}

// NewMongoCalendarSyncRepository creates a new calendar sync repository backed by MongoDB.
func NewMongoCalendarSyncRepository(db *mongo.Database) repository.CalendarSyncRepository {
	return &mongoCalendarSyncRepository{
		collection: db.Collection(calendarSyncCollectionName),
	}
}

// Create inserts a sync record. The partial unique index turns a second synced mirror for
// the same workout into ErrDuplicate.
func (r *mongoCalendarSyncRepository) Create(ctx context.Context, record *domain.CalendarSyncRecord) (primitive.ObjectID, error) {
	if record.TrainerID == primitive.NilObjectID || record.SyncDirection == "" || record.SyncStatus == "" {
		return primitive.NilObjectID, errors.New("calendar sync record requires trainerId, syncDirection and syncStatus")
	}
	record.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted calendar sync ID")
	}
	return insertedID, nil
}

// GetByWorkoutID returns the synced record of the workout, or the most recently updated one.
func (r *mongoCalendarSyncRepository) GetByWorkoutID(ctx context.Context, workoutID primitive.ObjectID) (*domain.CalendarSyncRecord, error) {
	record, err := r.findOne(ctx, bson.M{"workoutId": workoutID, "syncStatus": domain.SyncStatusSynced}, nil)
	if err == nil || !errors.Is(err, repository.ErrNotFound) {
		return record, err
	}
	latest := options.FindOne().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	return r.findOne(ctx, bson.M{"workoutId": workoutID}, latest)
}

// GetByExternalEventID looks up the mirror of an event on the trainer's calendar. Calendar ids
// such as "primary" are only unique per account, hence the trainer in the key.
func (r *mongoCalendarSyncRepository) GetByExternalEventID(ctx context.Context, trainerID primitive.ObjectID, calendarID, eventID string) (*domain.CalendarSyncRecord, error) {
	filter := bson.M{"trainerId": trainerID, "externalCalendarId": calendarID, "externalEventId": eventID}
	return r.findOne(ctx, filter, nil)
}

func (r *mongoCalendarSyncRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*domain.CalendarSyncRecord, error) {
	var record domain.CalendarSyncRecord
	var err error
	if opts != nil {
		err = r.collection.FindOne(ctx, filter, opts).Decode(&record)
	} else {
		err = r.collection.FindOne(ctx, filter).Decode(&record)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ListByTrainerInRange returns the trainer's records whose event starts in [from, to), any status.
func (r *mongoCalendarSyncRepository) ListByTrainerInRange(ctx context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.CalendarSyncRecord, error) {
	filter := bson.M{
		"trainerId":      trainerID,
		"eventStartTime": bson.M{"$gte": from, "$lt": to},
	}
	return r.find(ctx, filter)
}

// ListByWorkoutIDs returns every mirror of the given workouts.
func (r *mongoCalendarSyncRepository) ListByWorkoutIDs(ctx context.Context, workoutIDs []primitive.ObjectID) ([]domain.CalendarSyncRecord, error) {
	if len(workoutIDs) == 0 {
		return []domain.CalendarSyncRecord{}, nil
	}
	return r.find(ctx, bson.M{"workoutId": bson.M{"$in": workoutIDs}})
}

// ListSyncedInRange returns synced records whose event starts in [from, to).
func (r *mongoCalendarSyncRepository) ListSyncedInRange(ctx context.Context, trainerID primitive.ObjectID, traineeID *primitive.ObjectID, from, to time.Time) ([]domain.CalendarSyncRecord, error) {
	filter := bson.M{
		"trainerId":      trainerID,
		"syncStatus":     domain.SyncStatusSynced,
		"eventStartTime": bson.M{"$gte": from, "$lt": to},
	}
	if traineeID != nil {
		filter["traineeId"] = *traineeID
	}
	return r.find(ctx, filter)
}

func (r *mongoCalendarSyncRepository) find(ctx context.Context, filter bson.M) ([]domain.CalendarSyncRecord, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "eventStartTime", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []domain.CalendarSyncRecord{}
	if err = cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Update replaces the stored record with the given one.
func (r *mongoCalendarSyncRepository) Update(ctx context.Context, record *domain.CalendarSyncRecord) error {
	if record.ID == primitive.NilObjectID {
		return errors.New("calendar sync ID is required for update")
	}
	record.UpdatedAt = time.Now().UTC()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": record.ID}, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateStatus records the outcome of an external write. An empty summary leaves the stored one alone.
func (r *mongoCalendarSyncRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status domain.SyncStatus, summary string, syncedAt *time.Time) error {
	set := bson.M{
		"syncStatus": status,
		"updatedAt":  time.Now().UTC(),
	}
	if summary != "" {
		set["summary"] = summary
	}
	if syncedAt != nil {
		set["lastSyncedAt"] = *syncedAt
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a single record.
func (r *mongoCalendarSyncRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteByWorkoutID removes every mirror of a workout. Deleting nothing is not an error.
func (r *mongoCalendarSyncRepository) DeleteByWorkoutID(ctx context.Context, workoutID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"workoutId": workoutID})
	return err
}

// EnsureCalendarSyncIndexes creates the indexes for the calendar_sync collection.
func EnsureCalendarSyncIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// At most one synced mirror per workout
			Keys: bson.D{{Key: "workoutId", Value: 1}},
			Options: options.Index().
				SetName("uniq_synced_workout").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"workoutId":  bson.M{"$exists": true},
					"syncStatus": domain.SyncStatusSynced,
				}),
		},
		{
			// One mirror per event of a trainer's calendar
			Keys: bson.D{{Key: "trainerId", Value: 1}, {Key: "externalCalendarId", Value: 1}, {Key: "externalEventId", Value: 1}},
			Options: options.Index().
				SetName("uniq_trainer_external_event").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"externalEventId": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "trainerId", Value: 1}, {Key: "traineeId", Value: 1}, {Key: "eventStartTime", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "trainerId", Value: 1}, {Key: "eventStartTime", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "workoutId", Value: 1}},
		},
	}
	if err := dropLegacyIndex(ctx, collection, "uniq_external_event"); err != nil {
		return err
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// dropLegacyIndex removes an index that an older release created, if it is still there.
func dropLegacyIndex(ctx context.Context, collection *mongo.Collection, name string) error {
	_, err := collection.Indexes().DropOne(ctx, name)
	var cmdErr mongo.CommandError
	if err == nil || (errors.As(err, &cmdErr) && (cmdErr.Code == codeNamespaceNotFound || cmdErr.Code == codeIndexNotFound)) {
		return nil
	}
	return err
}
