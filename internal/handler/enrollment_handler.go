package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/service"
	"github.com/noah-isme/lms-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, studentUserID, courseID string) (*models.Enrollment, error)
	GetEnrollment(ctx context.Context, actor models.Actor, courseID, studentProfileID string) (*models.EnrollmentDetail, error)
	UpdateStatus(ctx context.Context, actor models.Actor, courseID, studentProfileID string, status models.EnrollmentStatus) (*models.Enrollment, error)
	ListByCourse(ctx context.Context, actor models.Actor, courseID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	ListMine(ctx context.Context, studentUserID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	ExportRoster(ctx context.Context, actor models.Actor, courseID, format string) (*service.RosterExport, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

func enrollmentFilter(c *gin.Context) models.EnrollmentFilter {
	return models.EnrollmentFilter{
		StudentID: c.Query("studentId"),
		CourseID:  c.Query("courseId"),
		Status:    models.EnrollmentStatus(strings.ToUpper(c.Query("status"))),
		Limit:     queryInt(c, "limit"),
		Offset:    queryInt(c, "offset"),
	}
}

// Enroll godoc
// @Summary Enroll in course
// @Description Creates a pending enrollment for the calling student.
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), actor.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Param studentProfileId path string true "Student profile ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/enrollments/{studentProfileId} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	detail, err := h.enrollments.GetEnrollment(c.Request.Context(), actor, c.Param("id"), c.Param("studentProfileId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// UpdateStatus godoc
// @Summary Change enrollment status
// @Description An empty status returns the enrollment unchanged.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param studentProfileId path string true "Student profile ID"
// @Param payload body dto.UpdateEnrollmentRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/enrollments/{studentProfileId} [patch]
func (h *EnrollmentHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if status == "" {
		h.Get(c)
		return
	}
	enrollment, err := h.enrollments.UpdateStatus(c.Request.Context(), actor, c.Param("id"), c.Param("studentProfileId"), models.EnrollmentStatus(status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// ListByCourse godoc
// @Summary List course enrollments
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Param status query string false "Filter by status"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/enrollments [get]
func (h *EnrollmentHandler) ListByCourse(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, pagination, err := h.enrollments.ListByCourse(c.Request.Context(), actor, c.Param("id"), enrollmentFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ListMine godoc
// @Summary List my enrollments
// @Tags Enrollments
// @Produce json
// @Param status query string false "Filter by status"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/mine [get]
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, pagination, err := h.enrollments.ListMine(c.Request.Context(), actor.UserID, enrollmentFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Student profile filter"
// @Param courseId query string false "Course filter"
// @Param status query string false "Filter by status"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	items, pagination, err := h.enrollments.List(c.Request.Context(), enrollmentFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Export godoc
// @Summary Export course roster
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /courses/{id}/enrollments/export [get]
func (h *EnrollmentHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	out, err := h.enrollments.ExportRoster(c.Request.Context(), actor, c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, out.Filename, out.ContentType, out.Payload)
}
