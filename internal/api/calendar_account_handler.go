package api

import (
	"alcyxob/fitness-calendar/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	msgConnectionFailed     = "שגיאה בחיבור Google Calendar"
	msgRefreshTokenRequired = "חסר אסימון רענון"
	msgInvalidRequest       = "בקשה לא תקינה"
)

type CalendarAccountHandler struct {
	accountService service.CalendarAccountService
	logger         *zap.Logger
}

func NewCalendarAccountHandler(accountService service.CalendarAccountService, logger *zap.Logger) *CalendarAccountHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarAccountHandler{accountService: accountService, logger: logger}
}

type ConnectCalendarRequest struct {
	CalendarID   string `json:"calendarId"`
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type CalendarConnectionResponse struct {
	Connected  bool   `json:"connected"`
	CalendarID string `json:"calendarId,omitempty"`
}

// GetConnection godoc
// @Summary Show the calendar connection
// @Tags Trainer Calendar
// @Produce json
// @Security BearerAuth
// @Success 200 {object} CalendarConnectionResponse
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /trainer/calendar/connection [get]
func (h *CalendarAccountHandler) GetConnection(c *gin.Context) {
	trainerID, ok := trainerIDFromContext(c)
	if !ok {
		return
	}
	conn, err := h.accountService.GetConnection(c.Request.Context(), trainerID)
	if err != nil {
		h.logger.Error("load calendar connection failed", zap.String("trainer_id", trainerID.Hex()), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, msgConnectionFailed)
		return
	}
	c.JSON(http.StatusOK, CalendarConnectionResponse{Connected: conn.Connected, CalendarID: conn.CalendarID})
}

// ConnectCalendar godoc
// @Summary Connect the trainer's calendar
// @Description Stores the OAuth refresh token of the trainer's Google account. An empty calendarId selects the primary calendar.
// @Tags Trainer Calendar
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body ConnectCalendarRequest true "Credentials"
// @Success 200 {object} CalendarConnectionResponse
// @Failure 400 {object} gin.H "Missing refresh token"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /trainer/calendar/connection [put]
func (h *CalendarAccountHandler) ConnectCalendar(c *gin.Context) {
	trainerID, ok := trainerIDFromContext(c)
	if !ok {
		return
	}
	var req ConnectCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	if err := h.accountService.Connect(c.Request.Context(), trainerID, req.CalendarID, req.RefreshToken); err != nil {
		if errors.Is(err, service.ErrRefreshTokenRequired) {
			abortWithError(c, http.StatusBadRequest, msgRefreshTokenRequired)
			return
		}
		h.logger.Error("connect calendar failed", zap.String("trainer_id", trainerID.Hex()), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, msgConnectionFailed)
		return
	}
	h.GetConnection(c)
}

// DisconnectCalendar godoc
// @Summary Disconnect the trainer's calendar
// @Tags Trainer Calendar
// @Security BearerAuth
// @Success 204 "Calendar disconnected"
// @Failure 404 {object} gin.H "No calendar connected"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /trainer/calendar/connection [delete]
func (h *CalendarAccountHandler) DisconnectCalendar(c *gin.Context) {
	trainerID, ok := trainerIDFromContext(c)
	if !ok {
		return
	}
	if err := h.accountService.Disconnect(c.Request.Context(), trainerID); err != nil {
		if errors.Is(err, service.ErrCalendarNotConnected) {
			abortWithError(c, http.StatusNotFound, msgNotConnected)
			return
		}
		h.logger.Error("disconnect calendar failed", zap.String("trainer_id", trainerID.Hex()), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, msgConnectionFailed)
		return
	}
	c.Status(http.StatusNoContent)
}
