package service

import (
	"alcyxob/fitness-calendar/internal/repository/inmemory"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCalendarAccountService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	creds := inmemory.NewCalendarCredentialsRepository()
	svc := NewCalendarAccountService(creds)
	trainer := primitive.NewObjectID()

	conn, err := svc.GetConnection(ctx, trainer)
	require.NoError(t, err)
	assert.False(t, conn.Connected)

	assert.ErrorIs(t, svc.Connect(ctx, trainer, "", "   "), ErrRefreshTokenRequired)
	assert.ErrorIs(t, svc.Connect(ctx, primitive.NilObjectID, "", "rt"), ErrInvalidTrainerID)

	require.NoError(t, svc.Connect(ctx, trainer, " coach@example.com ", "rt-1"))
	conn, err = svc.GetConnection(ctx, trainer)
	require.NoError(t, err)
	assert.Equal(t, CalendarConnection{Connected: true, CalendarID: "coach@example.com"}, *conn)

	stored, err := creds.GetByTrainerID(ctx, trainer)
	require.NoError(t, err)
	assert.Equal(t, "rt-1", stored.RefreshToken)

	require.NoError(t, svc.Disconnect(ctx, trainer))
	assert.ErrorIs(t, svc.Disconnect(ctx, trainer), ErrCalendarNotConnected)
}
