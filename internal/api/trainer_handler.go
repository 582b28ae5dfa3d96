// internal/api/trainer_handler.go
package api

import (
	"alcyxob/fitness-calendar/internal/repository"
	"alcyxob/fitness-calendar/internal/service"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// User-facing messages. The trainer app shows them as-is.
const (
	msgScheduleLoadFailed = "שגיאה בטעינת האימונים"
	msgWorkoutNotFound    = "האימון לא נמצא"
	msgWorkoutForbidden   = "אין הרשאה לאימון זה"
	msgDeleteFailed       = "שגיאה במחיקת האימון"
	msgNoTrainee          = "שגיאה בקישור המתאמן לאימון"
	msgGroupWorkout       = "לא ניתן לסנכרן אימון קבוצתי ליומן"
	msgSyncFailed         = "שגיאה בסנכרון Google Calendar"
	msgImportFailed       = "שגיאה בסנכרון Google Calendar"
	msgInvalidTraineeID   = "מזהה מתאמן לא תקין"
	msgInvalidWorkoutID   = "מזהה אימון לא תקין"
	msgNotConnected       = "אין פרטי אימות שמורים"
)

type TrainerHandler struct {
	scheduleService service.ScheduleService
	syncService     service.CalendarSyncService
	logger          *zap.Logger
}

func NewTrainerHandler(
	scheduleService service.ScheduleService,
	syncService service.CalendarSyncService,
	logger *zap.Logger,
) *TrainerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrainerHandler{
		scheduleService: scheduleService,
		syncService:     syncService,
		logger:          logger,
	}
}

// --- DTOs for the schedule view ---

type ScheduleEntryResponse struct {
	WorkoutID                  string    `json:"workoutId"`
	TraineeID                  string    `json:"traineeId"`
	TraineeName                string    `json:"traineeName"`
	StartTime                  time.Time `json:"startTime"`
	WorkoutDate                time.Time `json:"workoutDate"`
	IsCompleted                bool      `json:"isCompleted"`
	IsTimePassed               bool      `json:"isTimePassed"`
	IsFromExternal             bool      `json:"isFromExternal"`
	HasCompletedWorkoutSameDay bool      `json:"hasCompletedWorkoutSameDay"`
	ExternalEventID            string    `json:"externalEventId,omitempty"`
	SyncStatus                 string    `json:"syncStatus,omitempty"`
}

type ScheduleResponse struct {
	Today    []ScheduleEntryResponse `json:"today"`
	Tomorrow []ScheduleEntryResponse `json:"tomorrow"`
}

// MapScheduleEntryToResponse converts a service.ScheduleEntry to its DTO.
func MapScheduleEntryToResponse(e service.ScheduleEntry) ScheduleEntryResponse {
	resp := ScheduleEntryResponse{
		WorkoutID:                  e.Workout.ID.Hex(),
		TraineeID:                  e.Trainee.ID.Hex(),
		TraineeName:                e.Trainee.Name,
		StartTime:                  e.CanonicalTime,
		WorkoutDate:                e.Workout.WorkoutDate,
		IsCompleted:                e.Workout.IsCompleted,
		IsTimePassed:               e.IsTimePassed,
		IsFromExternal:             e.IsFromExternal,
		HasCompletedWorkoutSameDay: e.HasCompletedWorkoutSameDay,
	}
	if e.SyncRecord != nil {
		resp.ExternalEventID = e.SyncRecord.ExternalEventID
		resp.SyncStatus = string(e.SyncRecord.SyncStatus)
	}
	return resp
}

// MapScheduleToResponse converts a DailySchedule, never returning null lists.
func MapScheduleToResponse(s *service.DailySchedule) ScheduleResponse {
	resp := ScheduleResponse{
		Today:    make([]ScheduleEntryResponse, 0, len(s.Today)),
		Tomorrow: make([]ScheduleEntryResponse, 0, len(s.Tomorrow)),
	}
	for _, e := range s.Today {
		resp.Today = append(resp.Today, MapScheduleEntryToResponse(e))
	}
	for _, e := range s.Tomorrow {
		resp.Tomorrow = append(resp.Tomorrow, MapScheduleEntryToResponse(e))
	}
	return resp
}

type CalendarSyncResponse struct {
	ExternalEventID string `json:"externalEventId"`
}

// --- Handler Methods ---

// GetSchedule godoc
// @Summary Get today's and tomorrow's sessions
// @Description Returns the trainer's sessions for today and tomorrow, using the calendar time where the calendar is authoritative.
// @Tags Trainer Schedule
// @Produce json
// @Security BearerAuth
// @Param traineeIds query string false "Comma separated trainee ObjectID hex strings; all clients when omitted"
// @Success 200 {object} ScheduleResponse
// @Failure 400 {object} gin.H "Invalid trainee ID"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /trainer/schedule [get]
func (h *TrainerHandler) GetSchedule(c *gin.Context) {
	trainerID, ok := trainerIDFromContext(c)
	if !ok {
		return
	}

	var (
		schedule *service.DailySchedule
		err      error
	)
	if raw := strings.TrimSpace(c.Query("traineeIds")); raw != "" {
		traineeIDs, parseErr := parseObjectIDs(raw)
		if parseErr != nil {
			abortWithError(c, http.StatusBadRequest, msgInvalidTraineeID)
			return
		}
		schedule, err = h.scheduleService.GetScheduledWorkouts(c.Request.Context(), trainerID, traineeIDs)
	} else {
		schedule, err = h.scheduleService.GetTrainerSchedule(c.Request.Context(), trainerID)
	}
	if err != nil {
		h.logger.Error("failed to load schedule", zap.String("trainer_id", trainerID.Hex()), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, msgScheduleLoadFailed)
		return
	}

	c.JSON(http.StatusOK, MapScheduleToResponse(schedule))
}

// DeleteWorkout godoc
// @Summary Delete a workout
// @Description Deletes the workout with its assignments and calendar mirror. The calendar event is removed on a best-effort basis.
// @Tags Trainer Workouts
// @Security BearerAuth
// @Param workoutId path string true "Workout ObjectID Hex"
// @Success 204 "Workout deleted"
// @Failure 400 {object} gin.H "Invalid workout ID"
// @Failure 403 {object} gin.H "Workout belongs to another trainer"
// @Failure 404 {object} gin.H "Workout not found"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /trainer/workouts/{workoutId} [delete]
func (h *TrainerHandler) DeleteWorkout(c *gin.Context) {
	trainerID, ok := trainerIDFromContext(c)
	if !ok {
		return
	}
	workoutID, err := primitive.ObjectIDFromHex(c.Param("workoutId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, msgInvalidWorkoutID)
		return
	}

	if err := h.syncService.DeleteWorkout(c.Request.Context(), trainerID, workoutID); err != nil {
		h.abortWorkoutError(c, "delete_workout", trainerID, workoutID, err, msgDeleteFailed)
		return
	}
	c.Status(http.StatusNoContent)
}

// SyncWorkoutToCalendar godoc
// @Summary Push a workout to the calendar
// @Description Creates the calendar event for a single-trainee workout. Repeated calls return the same event.
// @Tags Trainer Calendar
// @Produce json
// @Security BearerAuth
// @Param workoutId path string true "Workout ObjectID Hex"
// @Success 200 {object} CalendarSyncResponse
// @Failure 400 {object} gin.H "Invalid workout ID, or workout has no single trainee"
// @Failure 403 {object} gin.H "Workout belongs to another trainer"
// @Failure 404 {object} gin.H "Workout not found"
// @Failure 409 {object} gin.H "Trainer has not connected a calendar"
// @Failure 502 {object} gin.H "Calendar rejected the event"
// @Router /trainer/workouts/{workoutId}/calendar-sync [post]
func (h *TrainerHandler) SyncWorkoutToCalendar(c *gin.Context) {
	trainerID, ok := trainerIDFromContext(c)
	if !ok {
		return
	}
	workoutID, err := primitive.ObjectIDFromHex(c.Param("workoutId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, msgInvalidWorkoutID)
		return
	}

	eventID, err := h.syncService.SyncWorkoutToCalendar(c.Request.Context(), trainerID, workoutID)
	if err != nil {
		h.abortWorkoutError(c, "sync_workout_to_calendar", trainerID, workoutID, err, msgSyncFailed)
		return
	}
	c.JSON(http.StatusOK, CalendarSyncResponse{ExternalEventID: eventID})
}

// ImportFromCalendar godoc
// @Summary Import calendar events
// @Description Mirrors the trainer's recent and upcoming calendar events into workouts.
// @Tags Trainer Calendar
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.ImportResult
// @Failure 409 {object} gin.H "Trainer has not connected a calendar"
// @Failure 502 {object} gin.H "Calendar unavailable"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /trainer/calendar/import [post]
func (h *TrainerHandler) ImportFromCalendar(c *gin.Context) {
	trainerID, ok := trainerIDFromContext(c)
	if !ok {
		return
	}

	result, err := h.syncService.ImportFromCalendar(c.Request.Context(), trainerID)
	if err != nil {
		h.logger.Error("calendar import failed", zap.String("trainer_id", trainerID.Hex()), zap.Error(err))
		switch {
		case errors.Is(err, service.ErrCalendarNotConnected):
			abortWithError(c, http.StatusConflict, msgNotConnected)
		case errors.Is(err, service.ErrCalendarListFailed):
			abortWithError(c, http.StatusBadGateway, msgImportFailed)
		default:
			abortWithError(c, http.StatusInternalServerError, msgImportFailed)
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// abortWorkoutError maps service errors to HTTP status codes and logs the cause.
func (h *TrainerHandler) abortWorkoutError(c *gin.Context, operation string, trainerID, workoutID primitive.ObjectID, err error, fallback string) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("trainer_id", trainerID.Hex()),
		zap.String("workout_id", workoutID.Hex()),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, service.ErrWorkoutNotFound), errors.Is(err, repository.ErrNotFound):
		h.logger.Warn("workout not found", fields...)
		abortWithError(c, http.StatusNotFound, msgWorkoutNotFound)
	case errors.Is(err, service.ErrWorkoutAccessDenied):
		h.logger.Warn("workout access denied", fields...)
		abortWithError(c, http.StatusForbidden, msgWorkoutForbidden)
	case errors.Is(err, service.ErrWorkoutHasNoTrainee):
		abortWithError(c, http.StatusBadRequest, msgNoTrainee)
	case errors.Is(err, service.ErrMultipleTrainees):
		abortWithError(c, http.StatusBadRequest, msgGroupWorkout)
	case errors.Is(err, service.ErrCalendarNotConnected):
		abortWithError(c, http.StatusConflict, msgNotConnected)
	case errors.Is(err, service.ErrCalendarCreateFailed):
		h.logger.Error("calendar rejected workout", fields...)
		abortWithError(c, http.StatusBadGateway, fallback)
	default:
		h.logger.Error("workout operation failed", fields...)
		abortWithError(c, http.StatusInternalServerError, fallback)
	}
}

// parseObjectIDs parses a comma separated list of hex ids, ignoring blanks.
func parseObjectIDs(raw string) ([]primitive.ObjectID, error) {
	var ids []primitive.ObjectID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := primitive.ObjectIDFromHex(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

