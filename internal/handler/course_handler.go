package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/middleware"
	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
	"github.com/noah-isme/lms-api/pkg/response"
)

type courseService interface {
	Create(ctx context.Context, tutorUserID string, req dto.CreateCourseRequest) (*models.CourseDetail, error)
	Update(ctx context.Context, tutorUserID, courseID string, req dto.UpdateCourseRequest) (*models.CourseDetail, error)
	Publish(ctx context.Context, actor models.Actor, courseID string) (*models.CourseDetail, error)
	Archive(ctx context.Context, actor models.Actor, courseID string) (*models.CourseDetail, error)
	AssignTutor(ctx context.Context, requesterUserID, courseID, tutorUserID string) (*models.CourseDetail, error)
	UnassignTutor(ctx context.Context, requesterUserID, courseID, tutorUserID string) (*models.CourseDetail, error)
	Get(ctx context.Context, actor models.Actor, courseID string) (*models.CourseDetail, bool, error)
	List(ctx context.Context, actor models.Actor, query dto.CourseQuery) ([]models.CourseSummary, *models.Pagination, bool, error)
}

// CourseHandler exposes catalog endpoints.
type CourseHandler struct {
	courses courseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses courseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List godoc
// @Summary List courses
// @Description Non-admin callers only see published courses.
// @Tags Courses
// @Produce json
// @Param title query string false "Title contains"
// @Param status query string false "DRAFT, PUBLISHED or ARCHIVED"
// @Param categoryId query string false "Category filter"
// @Param tutorProfileId query string false "Tutor filter"
// @Param tagIds query []string false "Tag filter" collectionFormat(csv)
// @Param sortBy query string false "title, created_at, enrollments or spots_left"
// @Param sortOrder query string false "asc or desc"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	query := dto.CourseQuery{
		Title:          c.Query("title"),
		Status:         c.Query("status"),
		CategoryID:     c.Query("categoryId"),
		TutorProfileID: c.Query("tutorProfileId"),
		TagIDs:         queryList(c, "tagIds"),
		SortBy:         c.Query("sortBy"),
		SortOrder:      c.Query("sortOrder"),
		Limit:          queryInt(c, "limit"),
		Offset:         queryInt(c, "offset"),
	}
	items, pagination, hit, err := h.courses.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, items, pagination, middleware.ResponseMeta(c))
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	detail, hit, err := h.courses.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, detail, nil, middleware.ResponseMeta(c))
}

// Create godoc
// @Summary Create course
// @Description The calling tutor becomes the first assigned tutor. Courses start as drafts.
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body dto.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	detail, err := h.courses.Create(c.Request.Context(), actor.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// Update godoc
// @Summary Update course
// @Description Drafts accept every field. Published courses accept description, capacity increases and tags.
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.UpdateCourseRequest true "Course patch"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	detail, err := h.courses.Update(c.Request.Context(), actor.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Publish godoc
// @Summary Publish course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/publish [patch]
func (h *CourseHandler) Publish(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	detail, err := h.courses.Publish(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Archive godoc
// @Summary Archive course
// @Description Tutors may only archive courses they are assigned to.
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [delete]
func (h *CourseHandler) Archive(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	detail, err := h.courses.Archive(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// AssignTutor godoc
// @Summary Assign tutor
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.AssignTutorRequest true "Tutor user"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/tutors [post]
func (h *CourseHandler) AssignTutor(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.AssignTutorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	if req.TutorID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "tutor_id is required"))
		return
	}
	detail, err := h.courses.AssignTutor(c.Request.Context(), actor.UserID, c.Param("id"), req.TutorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// UnassignTutor godoc
// @Summary Unassign tutor
// @Description A course always keeps at least one tutor.
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Param tutorId path string true "Tutor user ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/tutors/{tutorId} [delete]
func (h *CourseHandler) UnassignTutor(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	detail, err := h.courses.UnassignTutor(c.Request.Context(), actor.UserID, c.Param("id"), c.Param("tutorId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
