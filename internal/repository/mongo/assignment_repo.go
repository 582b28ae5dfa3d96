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

// mongoAssignmentRepository implements repository.AssignmentRepository
type mongoAssignmentRepository struct {
	collection *mongo.Collection
}

// NewMongoAssignmentRepository creates a new WorkoutAssignment repository backed by MongoDB.
func NewMongoAssignmentRepository(db *mongo.Database) repository.AssignmentRepository {
	return &mongoAssignmentRepository{
		collection: db.Collection(assignmentCollectionName),
	}
}

// Create inserts a new assignment into the database.
func (r *mongoAssignmentRepository) Create(ctx context.Context, assignment *domain.WorkoutAssignment) (primitive.ObjectID, error) {
	if assignment.WorkoutID == primitive.NilObjectID || assignment.TraineeID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("assignment requires workoutId and traineeId")
	}

	assignment.ID = primitive.NewObjectID()
	assignment.CreatedAt = time.Now().UTC()

	result, err := r.collection.InsertOne(ctx, assignment)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted assignment ID")
	}
	return insertedID, nil
}

// GetByWorkoutID retrieves all assignments for a specific workout.
func (r *mongoAssignmentRepository) GetByWorkoutID(ctx context.Context, workoutID primitive.ObjectID) ([]domain.WorkoutAssignment, error) {
	return r.find(ctx, bson.M{"workoutId": workoutID})
}

// GetByWorkoutIDs retrieves the assignments of several workouts in one round trip.
func (r *mongoAssignmentRepository) GetByWorkoutIDs(ctx context.Context, workoutIDs []primitive.ObjectID) ([]domain.WorkoutAssignment, error) {
	if len(workoutIDs) == 0 {
		return []domain.WorkoutAssignment{}, nil
	}
	return r.find(ctx, bson.M{"workoutId": bson.M{"$in": workoutIDs}})
}

func (r *mongoAssignmentRepository) find(ctx context.Context, filter bson.M) ([]domain.WorkoutAssignment, error) {
	// Creation order decides which trainee is listed first
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	assignments := []domain.WorkoutAssignment{}
	if err = cursor.All(ctx, &assignments); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// DeleteByWorkoutID removes every assignment of a workout. Deleting nothing is not an error.
func (r *mongoAssignmentRepository) DeleteByWorkoutID(ctx context.Context, workoutID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"workoutId": workoutID})
	return err
}

// EnsureAssignmentIndexes creates necessary indexes for the workout_assignments collection.
func EnsureAssignmentIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "workoutId", Value: 1}, {Key: "traineeId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "traineeId", Value: 1}},
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
