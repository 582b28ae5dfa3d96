package service

import (
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/repository"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var ErrRefreshTokenRequired = errors.New("refresh token is required")

// CalendarConnection is what a trainer may see of their stored credentials.
type CalendarConnection struct {
	Connected  bool
	CalendarID string
}

// CalendarAccountService manages the link between a trainer and their own calendar.
type CalendarAccountService interface {
	GetConnection(ctx context.Context, trainerID primitive.ObjectID) (*CalendarConnection, error)
	// Connect stores the trainer's OAuth refresh token. An empty calendarID selects the
	// account's primary calendar.
	Connect(ctx context.Context, trainerID primitive.ObjectID, calendarID, refreshToken string) error
	Disconnect(ctx context.Context, trainerID primitive.ObjectID) error
}

type calendarAccountService struct {
	credsRepo repository.CalendarCredentialsRepository
	options
}

func NewCalendarAccountService(credsRepo repository.CalendarCredentialsRepository, opts ...Option) CalendarAccountService {
	return &calendarAccountService{
		credsRepo: credsRepo,
		options:   newOptions(opts),
	}
}

func (s *calendarAccountService) GetConnection(ctx context.Context, trainerID primitive.ObjectID) (*CalendarConnection, error) {
	if trainerID == primitive.NilObjectID {
		return nil, ErrInvalidTrainerID
	}
	creds, err := s.credsRepo.GetByTrainerID(ctx, trainerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &CalendarConnection{}, nil
		}
		return nil, fmt.Errorf("load calendar credentials: %w", err)
	}
	return &CalendarConnection{Connected: true, CalendarID: creds.CalendarID}, nil
}

func (s *calendarAccountService) Connect(ctx context.Context, trainerID primitive.ObjectID, calendarID, refreshToken string) error {
	if trainerID == primitive.NilObjectID {
		return ErrInvalidTrainerID
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return ErrRefreshTokenRequired
	}
	err := s.credsRepo.Upsert(ctx, &domain.CalendarCredentials{
		TrainerID:    trainerID,
		CalendarID:   strings.TrimSpace(calendarID),
		RefreshToken: refreshToken,
	})
	if err != nil {
		return fmt.Errorf("save calendar credentials: %w", err)
	}
	s.logger.Info("calendar connected",
		zap.String("operation", "connect_calendar"),
		zap.String("trainer_id", trainerID.Hex()))
	return nil
}

func (s *calendarAccountService) Disconnect(ctx context.Context, trainerID primitive.ObjectID) error {
	if trainerID == primitive.NilObjectID {
		return ErrInvalidTrainerID
	}
	if err := s.credsRepo.DeleteByTrainerID(ctx, trainerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCalendarNotConnected
		}
		return fmt.Errorf("delete calendar credentials: %w", err)
	}
	s.logger.Info("calendar disconnected",
		zap.String("operation", "disconnect_calendar"),
		zap.String("trainer_id", trainerID.Hex()))
	return nil
}
