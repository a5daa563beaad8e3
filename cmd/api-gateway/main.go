package main

import (
	"context"
	"errors"
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
	"go.uber.org/zap"

	_ "github.com/noah-isme/studio-makeup-api/api/swagger"
	"github.com/noah-isme/studio-makeup-api/internal/handler"
	"github.com/noah-isme/studio-makeup-api/internal/middleware"
	"github.com/noah-isme/studio-makeup-api/internal/models"
	"github.com/noah-isme/studio-makeup-api/internal/repository"
	"github.com/noah-isme/studio-makeup-api/internal/service"
	"github.com/noah-isme/studio-makeup-api/pkg/cache"
	"github.com/noah-isme/studio-makeup-api/pkg/calendar"
	"github.com/noah-isme/studio-makeup-api/pkg/config"
	"github.com/noah-isme/studio-makeup-api/pkg/database"
	"github.com/noah-isme/studio-makeup-api/pkg/jobs"
	"github.com/noah-isme/studio-makeup-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/studio-makeup-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/studio-makeup-api/pkg/middleware/requestid"
)

// @title Studio Makeup API
// @version 1.0.0
// @description Makeup-class availability, deadline and booking engine for recurring studio classes.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		version, err := database.Migrate(ctx, db, logr)
		if err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("database migrated", zap.Int64("version", version))
	}

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Makeup.DeadlineCacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, deadline cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			cacheRepo = repository.NewCacheRepository(client, cfg.Redis.Namespace, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Makeup.DeadlineCacheTTL, logr, cfg.Makeup.DeadlineCacheEnabled)

	txManager := repository.NewTxManager(db)
	slotRepo := repository.NewSlotRepository(db)
	holidayRepo := repository.NewHolidayRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	rescheduleRepo := repository.NewRescheduleRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	absenceRepo := repository.NewAbsenceRepository(db)

	validate := validator.New()
	clock := calendar.StudioClock(cfg.Makeup.Timezone)

	availabilitySvc := service.NewAvailabilityService(service.AvailabilityReaders{
		Slots:       slotRepo,
		Holidays:    holidayRepo,
		Enrollments: enrollmentRepo,
		Reschedules: rescheduleRepo,
		Usages:      creditRepo,
	}, service.OccupancyPolicy{ZeroCapacityUnlimited: cfg.Makeup.ZeroCapacityUnlimited}, cfg.Makeup.HorizonDays, logr)
	deadlineSvc := service.NewDeadlineService(availabilitySvc, absenceRepo, creditRepo, cacheSvc, metrics, service.DeadlineConfig{
		RepaymentUsableDays: cfg.Makeup.RepaymentUsableDays,
		CreditUsableDays:    cfg.Makeup.CreditUsableDays,
		HorizonDays:         cfg.Makeup.HorizonDays,
		CacheTTL:            cfg.Makeup.DeadlineCacheTTL,
	}, logr)
	bookingSvc := service.NewBookingService(service.BookingDeps{
		Tx:          txManager,
		Slots:       slotRepo,
		Enrollments: enrollmentRepo,
		Reschedules: rescheduleRepo,
		Credits:     creditRepo,
		Absences:    absenceRepo,
		Snapshots:   availabilitySvc,
		Deadlines:   deadlineSvc,
		Cache:       cacheSvc,
		Metrics:     metrics,
	}, validate, logr)
	rescheduleSvc := service.NewRescheduleService(txManager, rescheduleRepo, bookingSvc, absenceRepo, deadlineSvc, cacheSvc, logr)
	creditSvc := service.NewCreditService(txManager, creditRepo, cacheSvc, validate, logr)
	ledgerSvc := service.NewLedgerService(creditRepo, metrics, logr)
	absenceSvc := service.NewAbsenceService(absenceRepo, rescheduleRepo, deadlineSvc, metrics, cfg.Jobs.AbsenceLookbackDays, logr)
	slotSvc := service.NewSlotService(slotRepo, cacheSvc, logr)
	holidaySvc := service.NewHolidayService(holidayRepo, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(txManager, enrollmentRepo, slotRepo, availabilitySvc, cfg.Makeup.HorizonDays, cacheSvc, validate, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret})

	makeupHandler := handler.NewMakeupHandler(availabilitySvc, absenceSvc, creditSvc, deadlineSvc, clock)
	rescheduleHandler := handler.NewRescheduleHandler(bookingSvc, rescheduleSvc, clock)
	creditHandler := handler.NewCreditHandler(creditSvc, bookingSvc, clock)
	slotHandler := handler.NewSlotHandler(slotSvc, availabilitySvc, clock)
	holidayHandler := handler.NewHolidayHandler(holidaySvc, clock)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, clock)
	ledgerHandler := handler.NewLedgerHandler(ledgerSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staffOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	{
		makeup := api.Group("/makeup")
		makeup.GET("/calendar", makeupHandler.Calendar)
		makeup.GET("/bookable-slots", makeupHandler.BookableSlots)
		makeup.GET("/absences/:id", makeupHandler.Absence)
		makeup.GET("/absences/:id/deadline", makeupHandler.AbsenceDeadline)
		makeup.GET("/credits/:id/deadline", makeupHandler.CreditDeadline)

		reschedules := api.Group("/reschedules")
		reschedules.POST("", rescheduleHandler.Create)
		reschedules.GET("/:id", rescheduleHandler.Get)
		reschedules.DELETE("/:id", rescheduleHandler.Delete)
		reschedules.POST("/:id/approve", staffOnly, rescheduleHandler.Approve)
		reschedules.POST("/:id/reject", staffOnly, rescheduleHandler.Reject)
		reschedules.POST("/:id/revert", staffOnly, rescheduleHandler.Revert)

		credits := api.Group("/credits")
		credits.POST("", staffOnly, creditHandler.Grant)
		credits.GET("/:id", creditHandler.Get)
		credits.POST("/:id/usages", creditHandler.Use)
		credits.DELETE("/:id", staffOnly, creditHandler.Delete)

		slots := api.Group("/slots")
		slots.GET("", slotHandler.List)
		slots.GET("/:id/occupancy", slotHandler.Occupancy)
		slots.DELETE("/:id", staffOnly, slotHandler.Deactivate)

		holidays := api.Group("/holidays")
		holidays.GET("", holidayHandler.List)
		holidays.POST("", staffOnly, holidayHandler.Add)
		holidays.DELETE("/:date", staffOnly, holidayHandler.Remove)

		api.POST("/enrollments", staffOnly, enrollmentHandler.Create)

		admin := api.Group("/admin", staffOnly)
		admin.GET("/ledger/discrepancies", ledgerHandler.Discrepancies)
		admin.GET("/ledger/credits/:id", ledgerHandler.CheckCredit)
	}

	if cfg.Jobs.Enabled {
		worker := service.NewMaintenanceWorker(absenceSvc, ledgerSvc, clock, logr)
		queue := jobs.NewQueue("maintenance", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Jobs.Workers,
			MaxRetries: cfg.Jobs.Retries,
			RetryDelay: 30 * time.Second,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()
		if err := queue.Every(service.JobAbsenceExpiry, cfg.Jobs.AbsenceExpiryEvery); err != nil {
			logr.Error("failed to schedule absence expiry", zap.Error(err))
		}
		if err := queue.Every(service.JobLedgerCheck, cfg.Jobs.LedgerCheckEvery); err != nil {
			logr.Error("failed to schedule ledger check", zap.Error(err))
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
