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

	_ "time/tzdata"

	_ "github.com/noah-isme/lms-api/api/swagger"
	"github.com/noah-isme/lms-api/internal/handler"
	"github.com/noah-isme/lms-api/internal/middleware"
	"github.com/noah-isme/lms-api/internal/repository"
	"github.com/noah-isme/lms-api/internal/service"
	"github.com/noah-isme/lms-api/pkg/cache"
	"github.com/noah-isme/lms-api/pkg/config"
	"github.com/noah-isme/lms-api/pkg/database"
	"github.com/noah-isme/lms-api/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// @title LMS API
// @version 1.0.0
// @description Course catalog and enrollment workflow
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var metrics *service.MetricsService
	var observer middleware.HTTPObserver
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
		observer = metrics
	}

	guard, err := service.NewDateGuard(cfg.Enrollment.Timezone)
	if err != nil {
		logr.Fatal("invalid enrollment timezone", zap.String("timezone", cfg.Enrollment.Timezone), zap.Error(err))
	}

	tx := database.NewTxManager(db, cfg.Database.TxIsolation)
	users := repository.NewUserRepository(db)
	profiles := repository.NewProfileRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	prerequisites := repository.NewPrerequisiteRepository(db)
	schedules := repository.NewScheduleRepository(db)
	catalog := repository.NewCatalogRepository(db)

	cacheEnabled := cfg.Catalog.CacheEnabled && redisClient != nil
	cacheService := service.NewCacheService(repository.NewCacheRepository(redisClient), metrics, cfg.Catalog.CacheTTL, logr, cacheEnabled)

	validate := validator.New()
	authService := service.NewAuthService(users, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	courseService := service.NewCourseService(service.CourseServiceParams{
		Tx:            tx,
		Courses:       courseRepo,
		Prerequisites: prerequisites,
		Schedules:     schedules,
		Catalog:       catalog,
		Tutors:        profiles,
		Enrollments:   enrollmentRepo,
		Audit:         users,
		Cache:         cacheService,
		Metrics:       metrics,
		Validator:     validate,
		Logger:        logr,
		Config: service.CourseServiceConfig{
			CacheTTL:            cfg.Catalog.CacheTTL,
			CountAllForCapacity: cfg.Enrollment.CountAllForCapacity,
		},
	})

	enrollmentService := service.NewEnrollmentService(service.EnrollmentServiceParams{
		Tx:            tx,
		Enrollments:   enrollmentRepo,
		Courses:       courseRepo,
		Schedules:     schedules,
		Prerequisites: prerequisites,
		Profiles:      profiles,
		Users:         users,
		Audit:         users,
		Guard:         guard,
		Cache:         cacheService,
		Metrics:       metrics,
		Logger:        logr,
		Config: service.EnrollmentServiceConfig{
			CountAllForCapacity: cfg.Enrollment.CountAllForCapacity,
		},
	})

	routerCfg := handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logr,
		Auth:           authService,
		Observer:       observer,
		Courses:        handler.NewCourseHandler(courseService),
		Enrollments:    handler.NewEnrollmentHandler(enrollmentService),
		System:         handler.NewMetricsHandler(metrics, db),
	}
	if cfg.Env != config.EnvProduction {
		routerCfg.Docs = ginSwagger.WrapHandler(swaggerFiles.Handler)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "cache", cacheEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
