package inmemory

import (
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/repository"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCalendarSyncRepository_Create(t *testing.T) {
	t.Parallel()

	workoutID := primitive.NewObjectID()
	trainerID := primitive.NewObjectID()
	record := func(status domain.SyncStatus, eventID string) *domain.CalendarSyncRecord {
		wid := workoutID
		return &domain.CalendarSyncRecord{
			WorkoutID:          &wid,
			TrainerID:          trainerID,
			SyncDirection:      domain.SyncToExternal,
			SyncStatus:         status,
			ExternalEventID:    eventID,
			ExternalCalendarID: "primary",
		}
	}

	otherTrainer := record(domain.SyncStatusFailed, "a")
	otherTrainer.TrainerID = primitive.NewObjectID()

	tests := []struct {
		name    string
		first   *domain.CalendarSyncRecord
		second  *domain.CalendarSyncRecord
		wantErr error
	}{
		{name: "second synced record for a workout", first: record(domain.SyncStatusSynced, "a"), second: record(domain.SyncStatusSynced, "b"), wantErr: repository.ErrDuplicate},
		{name: "failed record next to a synced one", first: record(domain.SyncStatusSynced, "a"), second: record(domain.SyncStatusFailed, "b")},
		{name: "same external event", first: record(domain.SyncStatusFailed, "a"), second: record(domain.SyncStatusFailed, "a"), wantErr: repository.ErrDuplicate},
		{name: "same event id on another trainer's calendar", first: record(domain.SyncStatusFailed, "a"), second: otherTrainer},
		{name: "records without events", first: record(domain.SyncStatusPending, ""), second: record(domain.SyncStatusPending, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := NewCalendarSyncRepository()
			ctx := context.Background()

			_, err := repo.Create(ctx, tt.first)
			require.NoError(t, err)
			_, err = repo.Create(ctx, tt.second)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Len(t, repo.All(), 1)
				return
			}
			require.NoError(t, err)
			assert.Len(t, repo.All(), 2)
		})
	}
}

func TestCalendarSyncRepository_GetByWorkoutIDPrefersSynced(t *testing.T) {
	t.Parallel()
	repo := NewCalendarSyncRepository()
	workoutID := primitive.NewObjectID()

	repo.Put(domain.CalendarSyncRecord{WorkoutID: &workoutID, SyncStatus: domain.SyncStatusFailed, UpdatedAt: time.Now()})
	synced := repo.Put(domain.CalendarSyncRecord{WorkoutID: &workoutID, SyncStatus: domain.SyncStatusSynced})

	rec, err := repo.GetByWorkoutID(context.Background(), workoutID)
	require.NoError(t, err)
	assert.Equal(t, synced, rec.ID)

	_, err = repo.GetByWorkoutID(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCalendarSyncRepository_ListSyncedInRange(t *testing.T) {
	t.Parallel()
	repo := NewCalendarSyncRepository()
	trainerID := primitive.NewObjectID()
	dana, yossi := primitive.NewObjectID(), primitive.NewObjectID()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	at := func(days int) *time.Time {
		t := base.AddDate(0, 0, days)
		return &t
	}

	late := repo.Put(domain.CalendarSyncRecord{TrainerID: trainerID, TraineeID: dana, SyncStatus: domain.SyncStatusSynced, EventStartTime: at(5)})
	early := repo.Put(domain.CalendarSyncRecord{TrainerID: trainerID, TraineeID: dana, SyncStatus: domain.SyncStatusSynced, EventStartTime: at(1)})
	other := repo.Put(domain.CalendarSyncRecord{TrainerID: trainerID, TraineeID: yossi, SyncStatus: domain.SyncStatusSynced, EventStartTime: at(2)})
	repo.Put(domain.CalendarSyncRecord{TrainerID: trainerID, TraineeID: dana, SyncStatus: domain.SyncStatusFailed, EventStartTime: at(3)})
	repo.Put(domain.CalendarSyncRecord{TrainerID: trainerID, TraineeID: dana, SyncStatus: domain.SyncStatusSynced, EventStartTime: at(10)})
	repo.Put(domain.CalendarSyncRecord{TrainerID: primitive.NewObjectID(), TraineeID: dana, SyncStatus: domain.SyncStatusSynced, EventStartTime: at(2)})

	records, err := repo.ListSyncedInRange(context.Background(), trainerID, &dana, base, *at(10))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, early, records[0].ID)
	assert.Equal(t, late, records[1].ID)

	records, err = repo.ListSyncedInRange(context.Background(), trainerID, nil, base, *at(10))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, other, records[1].ID)
}

func TestCalendarSyncRepository_WindowedLookups(t *testing.T) {
	t.Parallel()
	repo := NewCalendarSyncRepository()
	ctx := context.Background()
	trainerID := primitive.NewObjectID()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	at := func(days int) *time.Time {
		t := base.AddDate(0, 0, days)
		return &t
	}
	w1, w2 := primitive.NewObjectID(), primitive.NewObjectID()

	inRange := repo.Put(domain.CalendarSyncRecord{TrainerID: trainerID, SyncStatus: domain.SyncStatusFailed, EventStartTime: at(1)})
	repo.Put(domain.CalendarSyncRecord{TrainerID: trainerID, SyncStatus: domain.SyncStatusSynced, EventStartTime: at(40)})
	repo.Put(domain.CalendarSyncRecord{TrainerID: trainerID, SyncStatus: domain.SyncStatusSynced})
	repo.Put(domain.CalendarSyncRecord{TrainerID: primitive.NewObjectID(), SyncStatus: domain.SyncStatusSynced, EventStartTime: at(1)})
	corrupt := repo.Put(domain.CalendarSyncRecord{WorkoutID: &w1, TrainerID: trainerID, SyncDirection: domain.SyncFromExternal, SyncStatus: domain.SyncStatusSynced})
	movedAway := repo.Put(domain.CalendarSyncRecord{WorkoutID: &w2, TrainerID: trainerID, SyncStatus: domain.SyncStatusSynced, EventStartTime: at(60)})

	records, err := repo.ListByTrainerInRange(ctx, trainerID, base, *at(7))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, inRange, records[0].ID)

	records, err = repo.ListByWorkoutIDs(ctx, []primitive.ObjectID{w1, w2, primitive.NewObjectID()})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, corrupt, records[0].ID)
	assert.Equal(t, movedAway, records[1].ID)
}
