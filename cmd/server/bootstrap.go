package main

import (
	"github.com/huangang/teamhub/internal/config"
	"github.com/huangang/teamhub/internal/handlers"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/internal/services"
	"github.com/huangang/teamhub/internal/utils"
	"github.com/huangang/teamhub/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	db        *gorm.DB
	hub       *services.NotificationHub
	access    *services.AccessService
	taskQueue services.TaskQueue
	worker    *services.Worker
	retention *services.RetentionService

	authHandler         *handlers.AuthHandler
	projectHandler      *handlers.ProjectHandler
	memberHandler       *handlers.MemberHandler
	invitationHandler   *handlers.InvitationHandler
	notificationHandler *handlers.NotificationHandler
	sseHandler          *handlers.SSEHandler
	systemLogHandler    *handlers.SystemLogHandler
	healthHandler       *handlers.HealthHandler
	metricsHandler      *handlers.MetricsHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}

	logMode := gormlogger.Warn
	if cfg.Server.Mode == "debug" {
		logMode = gormlogger.Info
	}
	db, err := models.Open(&cfg.Database, logMode)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	services.InitSystemLogger(db)

	return buildServices(cfg, db)
}

// buildServices wires services, workers and handlers on an open, migrated database.
func buildServices(cfg *config.Config, db *gorm.DB) *appServices {
	hub := services.NewNotificationHub()
	store := services.NewInvitationStore(db)
	access := services.NewAccessService(db, services.NewAccessCache(cfg))
	authService := services.NewAuthService(db, &cfg.JWT)
	projectService := services.NewProjectService(db, store, access)
	emailService := services.NewEmailService(&cfg.Email)

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	taskQueue := services.InitTaskQueue(cfg)
	notificationService := services.NewNotificationService(db, hub, taskQueue, emailService)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(notificationService.ProcessDelivery)
	}

	// Start async worker if Redis is enabled
	worker := services.NewWorker(&cfg.Redis)
	if worker != nil {
		worker.SetProcessor(notificationService.ProcessDelivery)
		if err := worker.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start delivery worker")
		}
	}

	invitationService := services.NewInvitationService(store, access, projectService, authService, notificationService, &cfg.Invitation)
	memberService := services.NewMemberService(store, access, projectService, notificationService)

	retention := services.NewRetentionService(db, &cfg.Retention, notificationService)
	if err := retention.StartScheduler(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start retention scheduler")
	}

	if err := authService.CreateAdminIfNotExists(cfg.Admin.Email, cfg.Admin.Password); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		db:        db,
		hub:       hub,
		access:    access,
		taskQueue: taskQueue,
		worker:    worker,
		retention: retention,

		authHandler:         handlers.NewAuthHandler(authService, emailService),
		projectHandler:      handlers.NewProjectHandler(projectService),
		memberHandler:       handlers.NewMemberHandler(memberService, access),
		invitationHandler:   handlers.NewInvitationHandler(invitationService),
		notificationHandler: handlers.NewNotificationHandler(notificationService),
		sseHandler:          handlers.NewSSEHandler(hub),
		systemLogHandler:    handlers.NewSystemLogHandler(services.NewSystemLogService(db), retention),
		healthHandler:       handlers.NewHealthHandler(db, hub, access),
		metricsHandler:      handlers.NewMetricsHandler(db, hub, access),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.retention.StopScheduler()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}
