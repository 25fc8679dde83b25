package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusops/timetable-engine/api/swagger"
	internalhandler "github.com/campusops/timetable-engine/internal/handler"
	internalmiddleware "github.com/campusops/timetable-engine/internal/middleware"
	"github.com/campusops/timetable-engine/internal/repository"
	"github.com/campusops/timetable-engine/internal/scheduler"
	"github.com/campusops/timetable-engine/internal/service"
	"github.com/campusops/timetable-engine/pkg/cache"
	"github.com/campusops/timetable-engine/pkg/config"
	"github.com/campusops/timetable-engine/pkg/database"
	"github.com/campusops/timetable-engine/pkg/logger"
	corsmiddleware "github.com/campusops/timetable-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/campusops/timetable-engine/pkg/middleware/requestid"
)

// @title Timetable Engine API
// @version 0.1.0
// @description Constraint-based university timetable scheduling service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsSvc := service.NewMetricsService()
	metricsHandler := internalhandler.NewMetricsHandler(metricsSvc)
	schedulerRecorder := service.NewSchedulerRecorder(metricsSvc.Registry())

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to initialise database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("proposal cache disabled, falling back to in-process memory", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)

	semesterScheduleRepo := repository.NewSemesterScheduleRepository(db)
	semesterSlotRepo := repository.NewSemesterScheduleSlotRepository(db)

	schedulerSvc := service.NewScheduleGeneratorService(
		semesterScheduleRepo,
		semesterSlotRepo,
		db,
		nil,
		logr,
		service.ScheduleGeneratorConfig{
			ProposalTTL: cfg.Scheduler.ProposalTTL,
			Engine: scheduler.Config{
				MaxAttempts:              cfg.Scheduler.MaxAttempts,
				MaxLocalSearchIterations: cfg.Scheduler.MaxLocalSearchIterations,
				Concurrency:              cfg.Scheduler.Concurrency,
			},
			Cache:                 redisClient,
			Metrics:               schedulerRecorder,
			ExportsDir:            cfg.Scheduler.ExportsDir,
			ExportSignedURLSecret: cfg.Scheduler.ExportSignedURLSecret,
			ExportSignedURLTTL:    cfg.Scheduler.ExportSignedURLTTL,
		},
	)
	schedulerHandler := internalhandler.NewScheduleGeneratorHandler(schedulerSvc)

	schedulerGroup := api.Group("")
	schedulerGroup.POST("/schedule/generate", schedulerHandler.Generate)
	schedulerGroup.POST("/schedules/generator", schedulerHandler.GenerateAlias)
	schedulerGroup.POST("/schedule/save", schedulerHandler.Save)
	schedulerGroup.GET("/semester-schedule", schedulerHandler.List)
	schedulerGroup.GET("/semester-schedule/:id/slots", schedulerHandler.Slots)
	schedulerGroup.GET("/semester-schedule/:id/export", schedulerHandler.Export)
	schedulerGroup.GET("/semester-schedule/:id/export-link", schedulerHandler.ExportLink)
	schedulerGroup.GET("/downloads/:token", schedulerHandler.Download)
	schedulerGroup.DELETE("/semester-schedule/:id", schedulerHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
