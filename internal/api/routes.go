package api

import (
	"alcyxob/fitness-calendar/internal/domain"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	gatherer prometheus.Gatherer,
	trainerHandler *TrainerHandler,
	calendarAccountHandler *CalendarAccountHandler,
) {
	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	apiV1 := router.Group("/api/v1")
	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userIDStr, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			role, _ := getUserRoleFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": userIDStr, "role": role})
		})

		// --- Trainer Specific Routes ---
		trainerApiGroup := protected.Group("/trainer")
		trainerApiGroup.Use(RoleMiddleware(domain.RoleTrainer))
		{
			// GET /api/v1/trainer/schedule?traineeIds=a,b
			trainerApiGroup.GET("/schedule", trainerHandler.GetSchedule)

			// DELETE /api/v1/trainer/workouts/{workoutId}
			trainerApiGroup.DELETE("/workouts/:workoutId", trainerHandler.DeleteWorkout)
			// POST /api/v1/trainer/workouts/{workoutId}/calendar-sync
			trainerApiGroup.POST("/workouts/:workoutId/calendar-sync", trainerHandler.SyncWorkoutToCalendar)

			// POST /api/v1/trainer/calendar/import
			trainerApiGroup.POST("/calendar/import", trainerHandler.ImportFromCalendar)

			// GET|PUT|DELETE /api/v1/trainer/calendar/connection
			trainerApiGroup.GET("/calendar/connection", calendarAccountHandler.GetConnection)
			trainerApiGroup.PUT("/calendar/connection", calendarAccountHandler.ConnectCalendar)
			trainerApiGroup.DELETE("/calendar/connection", calendarAccountHandler.DisconnectCalendar)
		}
	}
}
