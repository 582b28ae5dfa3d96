package main

import (
	"alcyxob/fitness-calendar/internal/api"
	"alcyxob/fitness-calendar/internal/autosync"
	"alcyxob/fitness-calendar/internal/calendar"
	"alcyxob/fitness-calendar/internal/config"
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/metrics"
	"alcyxob/fitness-calendar/internal/repository"
	"alcyxob/fitness-calendar/internal/repository/inmemory"
	"alcyxob/fitness-calendar/internal/repository/mongo"
	"alcyxob/fitness-calendar/internal/resync"
	"alcyxob/fitness-calendar/internal/service"
	"alcyxob/fitness-calendar/internal/session"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// @title Fitness Calendar API
// @version 1.0
// @description Trainer schedule reconciled against the external calendar.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("FATAL: Could not build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("Server exiting.")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}

// stores groups the repositories of one database driver.
type stores struct {
	users        repository.UserRepository
	workouts     repository.WorkoutRepository
	assignments  repository.AssignmentRepository
	calendarSync repository.CalendarSyncRepository
	resyncJobs   repository.ResyncJobRepository
	credentials  repository.CalendarCredentialsRepository
	close        func()
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*stores, error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return &stores{
			users:        inmemory.NewUserRepository(),
			workouts:     inmemory.NewWorkoutRepository(),
			assignments:  inmemory.NewAssignmentRepository(),
			calendarSync: inmemory.NewCalendarSyncRepository(),
			resyncJobs:   inmemory.NewResyncJobRepository(),
			credentials:  inmemory.NewCalendarCredentialsRepository(),
			close:        func() {},
		}, nil
	}

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	appDB := dbClient.Database(cfg.Name)
	logger.Info("Database connection established", zap.String("database", cfg.Name))

	// --- Ensure Indexes ---
	indexCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := mongo.EnsureIndexes(indexCtx, appDB); err != nil {
		_ = mongo.DisconnectDB(dbClient)
		return nil, err
	}

	return &stores{
		users:        mongo.NewMongoUserRepository(appDB),
		workouts:     mongo.NewMongoWorkoutRepository(appDB),
		assignments:  mongo.NewMongoAssignmentRepository(appDB),
		calendarSync: mongo.NewMongoCalendarSyncRepository(appDB),
		resyncJobs:   mongo.NewMongoResyncJobRepository(appDB),
		credentials:  mongo.NewMongoCalendarCredentialsRepository(appDB),
		close: func() {
			logger.Info("Disconnecting MongoDB...")
			if err := mongo.DisconnectDB(dbClient); err != nil {
				logger.Error("Failed to disconnect MongoDB", zap.Error(err))
			}
		},
	}, nil
}

// newCalendarProvider resolves every trainer's calendar from their stored credentials.
func newCalendarProvider(ctx context.Context, cfg config.CalendarConfig, creds repository.CalendarCredentialsRepository, logger *zap.Logger) calendar.Provider {
	if !cfg.Enabled {
		logger.Warn("Google Calendar disabled, using in-memory calendars")
		return calendar.NewMemoryProvider(cfg.CalendarID)
	}
	return calendar.NewGoogleProvider(ctx, creds, calendar.GoogleProviderConfig{
		ClientID:          cfg.ClientID,
		ClientSecret:      cfg.ClientSecret,
		DefaultCalendarID: cfg.CalendarID,
		TimeZone:          cfg.TimeZone,
	}, logger.Named("calendar"))
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Calendar.Location()
	if err != nil {
		return err
	}

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	// --- Initialize Repositories ---
	st, err := openStores(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.close()

	calendars := newCalendarProvider(ctx, cfg.Calendar, st.credentials, logger)
	numberer := session.NewNumberer(st.workouts, st.assignments, st.users, loc)

	// --- Resync Runner ---
	scope := domain.ResyncScope(cfg.Resync.Scope)
	if !scope.Valid() {
		return fmt.Errorf("invalid resync.scope %q", cfg.Resync.Scope)
	}
	runner := resync.New(st.resyncJobs, st.calendarSync, numberer, calendars,
		resync.WithPollInterval(cfg.Resync.PollInterval),
		resync.WithLease(cfg.Resync.Lease),
		resync.WithMaxAttempts(cfg.Resync.MaxAttempts),
		resync.WithUpdateDelay(cfg.Resync.UpdateDelay),
		resync.WithDefaultScope(scope),
		resync.WithLogger(logger.Named("resync")),
		resync.WithMetrics(m),
	)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := runner.Start(ctx); err != nil {
			logger.Error("resync runner stopped", zap.Error(err))
		}
	}()
	defer func() {
		stop()
		<-runnerDone
	}()

	// --- Initialize Services ---
	opts := []service.Option{
		service.WithLocation(loc),
		service.WithLogger(logger.Named("service")),
		service.WithMetrics(m),
		service.WithEventDuration(cfg.Calendar.EventDuration),
		service.WithSettleDelay(cfg.Calendar.SettleDelay),
		service.WithImportWindow(cfg.Calendar.ImportPast, cfg.Calendar.ImportFuture),
		service.WithResyncScope(scope),
	}
	scheduleService := service.NewScheduleService(st.workouts, st.assignments, st.calendarSync, st.users, opts...)
	syncService := service.NewCalendarSyncService(st.workouts, st.assignments, st.calendarSync, st.users, calendars, numberer, runner, opts...)
	accountService := service.NewCalendarAccountService(st.credentials, opts...)

	// --- Calendar Auto-Sync ---
	if cfg.AutoSync.Enabled {
		scheduler, err := autosync.New(cfg.AutoSync.Schedule, st.users, syncService, logger.Named("autosync"))
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			scheduler.Stop(stopCtx)
		}()
	}

	// --- Initialize Gin Engine ---
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(logger.Named("http")))
	api.SetupRoutes(router, cfg.JWT.Secret, registry,
		api.NewTrainerHandler(scheduleService, syncService, logger.Named("api")),
		api.NewCalendarAccountHandler(accountService, logger.Named("api")),
	)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// --- Graceful Shutdown ---
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
