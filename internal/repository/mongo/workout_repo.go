// internal/repository/mongo/workout_repo.go
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

// mongoWorkoutRepository implements repository.WorkoutRepository
type mongoWorkoutRepository struct {
	collection *mongo.Collection
}

// NewMongoWorkoutRepository creates a new Workout repository.
func NewMongoWorkoutRepository(db *mongo.Database) repository.WorkoutRepository {
	return &mongoWorkoutRepository{
		collection: db.Collection(workoutCollectionName),
	}
}

// Create inserts a new workout.
func (r *mongoWorkoutRepository) Create(ctx context.Context, workout *domain.Workout) (primitive.ObjectID, error) {
	if workout.TrainerID == primitive.NilObjectID || workout.WorkoutDate.IsZero() {
		return primitive.NilObjectID, errors.New("workout requires trainerId and workoutDate")
	}
	workout.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	workout.CreatedAt = now
	workout.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, workout)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted workout ID")
	}
	return insertedID, nil
}

// GetByID retrieves a single workout by its ID.
func (r *mongoWorkoutRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Workout, error) {
	var workout domain.Workout
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&workout)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &workout, nil
}

// GetByIDs retrieves the workouts that still exist among ids.
func (r *mongoWorkoutRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.Workout, error) {
	if len(ids) == 0 {
		return []domain.Workout{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// GetByTrainerInRange pushes the date window into the query instead of scanning the whole history.
func (r *mongoWorkoutRepository) GetByTrainerInRange(ctx context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.Workout, error) {
	filter := bson.M{
		"trainerId":   trainerID,
		"workoutDate": bson.M{"$gte": from, "$lt": to},
	}
	return r.find(ctx, filter)
}

func (r *mongoWorkoutRepository) find(ctx context.Context, filter bson.M) ([]domain.Workout, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "workoutDate", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	workouts := []domain.Workout{}
	if err = cursor.All(ctx, &workouts); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return workouts, nil
}

// UpdateSchedule moves a workout, used when the external calendar is the origin of a change.
func (r *mongoWorkoutRepository) UpdateSchedule(ctx context.Context, id primitive.ObjectID, workoutDate time.Time, notes string) error {
	update := bson.M{
		"$set": bson.M{
			"workoutDate": workoutDate,
			"notes":       notes,
			"updatedAt":   time.Now().UTC(),
		},
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

// Delete removes a workout owned by trainerID.
func (r *mongoWorkoutRepository) Delete(ctx context.Context, workoutID, trainerID primitive.ObjectID) error {
	if workoutID == primitive.NilObjectID || trainerID == primitive.NilObjectID {
		return errors.New("workout ID and trainer ID are required for deletion")
	}

	filter := bson.M{
		"_id":       workoutID,
		"trainerId": trainerID,
	}
	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureWorkoutIndexes creates necessary indexes. Call during startup.
func EnsureWorkoutIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// Windowed schedule reads
			Keys: bson.D{{Key: "trainerId", Value: 1}, {Key: "workoutDate", Value: 1}},
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
