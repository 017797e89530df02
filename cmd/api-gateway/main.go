package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campushq/session-attendance-api/api/swagger"
	"github.com/campushq/session-attendance-api/internal/handler"
	"github.com/campushq/session-attendance-api/internal/middleware"
	"github.com/campushq/session-attendance-api/internal/models"
	"github.com/campushq/session-attendance-api/internal/repository"
	"github.com/campushq/session-attendance-api/internal/service"
	"github.com/campushq/session-attendance-api/pkg/cache"
	"github.com/campushq/session-attendance-api/pkg/config"
	"github.com/campushq/session-attendance-api/pkg/database"
	"github.com/campushq/session-attendance-api/pkg/logger"
	corsmiddleware "github.com/campushq/session-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushq/session-attendance-api/pkg/middleware/requestid"
)

// @title Session Attendance API
// @version 1.0.0
// @description Class-session scheduling and attendance integrity engine
// @BasePath /
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	timetableRepo := repository.NewTimetableRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	correctionRepo := repository.NewCorrectionRepository(db)
	substituteRepo := repository.NewSubstituteRepository(db)

	auditSvc := service.NewAuditService(auditRepo, metricsSvc, cfg.Audit, logr)
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	timetableSvc := service.NewTimetableService(timetableRepo, nil, auditSvc, logr)
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, timetable cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, cfg.Cache.TimetableTTL)
			timetableSvc = service.NewTimetableService(timetableRepo, cacheRepo, auditSvc, logr)
		}
	}

	events := service.NewLogEmitter(logr, metricsSvc)
	resolverSvc := service.NewResolverService(timetableSvc, substituteRepo, cfg.Engine.GracePeriod, metricsSvc, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, resolverSvc, auditSvc, events, validate, logr)
	lockingSvc := service.NewLockingService(attendanceRepo, resolverSvc, attendanceSvc, auditSvc, cfg.Engine.GracePeriod, metricsSvc, logr)
	correctionSvc := service.NewCorrectionService(correctionRepo, attendanceRepo, auditSvc, validate, logr)
	substituteSvc := service.NewSubstituteService(substituteRepo, resolverSvc, auditSvc, validate, logr)
	notifierSvc := service.NewNotifierService(timetableSvc, attendanceRepo, events, cfg.Engine.GracePeriod, logr)

	lockingSvc.StartSweeper(ctx, cfg.Engine.SweepInterval)
	notifierSvc.Start(ctx, cfg.Engine.NotifierInterval)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg,
		handler.NewTimetableHandler(timetableSvc),
		handler.NewAttendanceHandler(attendanceSvc, resolverSvc),
		handler.NewLockingHandler(lockingSvc),
		handler.NewCorrectionHandler(correctionSvc),
		handler.NewSubstituteHandler(substituteSvc),
		handler.NewAuditHandler(auditSvc),
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func registerRoutes(r *gin.Engine, cfg *config.Config,
	timetables *handler.TimetableHandler,
	attendance *handler.AttendanceHandler,
	locking *handler.LockingHandler,
	corrections *handler.CorrectionHandler,
	substitutes *handler.SubstituteHandler,
	audit *handler.AuditHandler,
) {
	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.Actor(cfg.ActorToken))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)

	api.GET("/timetables", timetables.Sections)
	api.GET("/timetables/:section", timetables.Get)
	api.POST("/timetables/upload", adminOnly, timetables.Upload)

	api.GET("/sessions/current", staff, attendance.Current)

	api.POST("/attendance", staff, attendance.Mark)
	api.GET("/attendance", staff, attendance.List)
	api.GET("/attendance/:id", attendance.Get)
	api.POST("/attendance/:id/lock", staff, locking.Lock)
	api.POST("/attendance/:id/unlock", adminOnly, locking.Unlock)
	api.POST("/attendance/:id/override", adminOnly, locking.Override)
	api.POST("/attendance/retroactive", adminOnly, locking.Retroactive)
	api.POST("/attendance/sweep", adminOnly, locking.Sweep)

	api.GET("/students/:id/attendance", attendance.StudentHistory)
	api.GET("/students/:id/attendance/summary", attendance.StudentSummary)

	api.POST("/corrections", corrections.Submit)
	api.GET("/corrections", corrections.List)
	api.GET("/corrections/:id", corrections.Get)
	api.POST("/corrections/:id/review", staff, corrections.Review)

	api.POST("/substitutes", adminOnly, substitutes.Assign)
	api.GET("/substitutes", staff, substitutes.ListByDate)
	api.GET("/substitutes/:id", staff, substitutes.Get)
	api.PUT("/substitutes/:id/status", adminOnly, substitutes.UpdateStatus)

	api.GET("/audit/actors/:id", adminOnly, audit.ActorTrail)
	api.GET("/audit/sections/:section", adminOnly, audit.SectionTrail)
	api.GET("/audit/:type/:id", adminOnly, audit.EntityTrail)
}
