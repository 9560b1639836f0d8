package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/middleware"
	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lms-api/pkg/middleware/requestid"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	Logger         *zap.Logger
	Auth           middleware.TokenValidator
	Observer       middleware.HTTPObserver
	Courses        *CourseHandler
	Enrollments    *EnrollmentHandler
	System         *MetricsHandler
	// Docs serves the API documentation when set.
	Docs gin.HandlerFunc
}

// NewRouter assembles the HTTP surface.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(cfg.Observer))

	if cfg.System != nil {
		r.GET("/health", cfg.System.Health)
		r.GET("/ready", cfg.System.Ready)
		r.GET("/metrics", cfg.System.Prometheus)
	}
	if cfg.Docs != nil {
		r.GET("/docs/*any", cfg.Docs)
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.Auth), middleware.WithResponseMeta())

	admin := middleware.RequireRoles(models.RoleAdmin)
	tutor := middleware.RequireRoles(models.RoleTutor)
	student := middleware.RequireRoles(models.RoleStudent)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTutor)
	learners := middleware.RequireRoles(models.RoleStudent, models.RoleTutor)

	courses := api.Group("/courses")
	courses.GET("", cfg.Courses.List)
	courses.POST("", tutor, cfg.Courses.Create)
	courses.GET("/:id", cfg.Courses.Get)
	courses.PUT("/:id", tutor, cfg.Courses.Update)
	courses.DELETE("/:id", staff, cfg.Courses.Archive)
	courses.PATCH("/:id/publish", admin, cfg.Courses.Publish)
	courses.POST("/:id/tutors", tutor, cfg.Courses.AssignTutor)
	courses.DELETE("/:id/tutors/:tutorId", tutor, cfg.Courses.UnassignTutor)

	courses.POST("/:id/enrollments", student, cfg.Enrollments.Enroll)
	courses.GET("/:id/enrollments", staff, cfg.Enrollments.ListByCourse)
	courses.GET("/:id/enrollments/export", staff, cfg.Enrollments.Export)
	courses.GET("/:id/enrollments/:studentProfileId", cfg.Enrollments.Get)
	courses.PATCH("/:id/enrollments/:studentProfileId", learners, cfg.Enrollments.UpdateStatus)

	enrollments := api.Group("/enrollments")
	enrollments.GET("", admin, cfg.Enrollments.List)
	enrollments.GET("/mine", student, cfg.Enrollments.ListMine)

	return r
}
