package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/repository"
	"github.com/noah-isme/lms-api/pkg/database"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

const (
	courseCachePattern   = "courses:*"
	courseDetailCacheKey = "courses:detail:%s"
	courseListCacheKey   = "courses:list:%s"
)

// Reasons reported when a prerequisite candidate is skipped.
const (
	skipReasonSelf      = "self_reference"
	skipReasonCycle     = "cycle"
	skipReasonMalformed = "malformed_id"
	skipReasonMissing   = "unknown_course"
)

type courseStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error)
	Update(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.CourseStatus) error
	FindRefs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.CourseRef, error)
	ListTutors(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.TutorProfile, error)
	AddTutor(ctx context.Context, exec sqlx.ExtContext, courseID, tutorProfileID string) error
	RemoveTutor(ctx context.Context, exec sqlx.ExtContext, courseID, tutorProfileID string) error
	ListTags(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.Tag, error)
	ReplaceTags(ctx context.Context, exec sqlx.ExtContext, courseID string, tagIDs []string) error
	ListPrerequisites(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.CourseRef, error)
	List(ctx context.Context, filter models.CourseFilter, countStatuses []models.EnrollmentStatus) ([]models.CourseSummary, int, error)
}

type prerequisiteStore interface {
	LockGraph(ctx context.Context, exec sqlx.ExtContext) error
	ListEdges(ctx context.Context, exec sqlx.ExtContext) ([]models.Prerequisite, error)
	Add(ctx context.Context, exec sqlx.ExtContext, edge models.Prerequisite) error
	DeleteByTarget(ctx context.Context, exec sqlx.ExtContext, targetCourseID string) error
}

type scheduleStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	Replace(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error)
}

type catalogReader interface {
	FindCategoryByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Category, error)
	FindTagsByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Tag, error)
}

type tutorProfileReader interface {
	FindTutorByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.TutorProfile, error)
}

type enrollmentCounter interface {
	CountByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string, statuses []models.EnrollmentStatus) (int, error)
}

// CourseServiceConfig tunes catalog behaviour.
type CourseServiceConfig struct {
	CacheTTL            time.Duration
	CountAllForCapacity bool
}

// CourseServiceParams groups constructor dependencies.
type CourseServiceParams struct {
	Tx            unitOfWork
	Courses       courseStore
	Prerequisites prerequisiteStore
	Schedules     scheduleStore
	Catalog       catalogReader
	Tutors        tutorProfileReader
	Enrollments   enrollmentCounter
	Audit         auditLogger
	Cache         *CacheService
	Metrics       *MetricsService
	Validator     *validator.Validate
	Logger        *zap.Logger
	Config        CourseServiceConfig
}

// CourseService manages the course catalog: lifecycle, tutor membership, tags and prerequisites.
type CourseService struct {
	tx            unitOfWork
	courses       courseStore
	prerequisites prerequisiteStore
	schedules     scheduleStore
	catalog       catalogReader
	tutors        tutorProfileReader
	enrollments   enrollmentCounter
	audit         auditLogger
	cache         *CacheService
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	cfg           CourseServiceConfig
}

// NewCourseService constructs CourseService.
func NewCourseService(params CourseServiceParams) *CourseService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &CourseService{
		tx:            params.Tx,
		courses:       params.Courses,
		prerequisites: params.Prerequisites,
		schedules:     params.Schedules,
		catalog:       params.Catalog,
		tutors:        params.Tutors,
		enrollments:   params.Enrollments,
		audit:         params.Audit,
		cache:         params.Cache,
		metrics:       params.Metrics,
		validator:     validate,
		logger:        logger,
		cfg:           cfg,
	}
}

// Create adds a draft course owned by the calling tutor.
func (s *CourseService) Create(ctx context.Context, tutorUserID string, req dto.CreateCourseRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	schedule, err := BuildSchedule(req.Schedule)
	if err != nil {
		return nil, err
	}

	course := &models.Course{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		MaxCapacity: req.MaxCapacity,
		Status:      models.CourseStatusDraft,
		CategoryID:  req.CategoryID,
	}
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		tutor, err := s.tutors.FindTutorByUserID(ctx, exec, tutorUserID)
		if err != nil {
			return lookupError(err, "tutor not found", "failed to load tutor")
		}
		if _, err := s.catalog.FindCategoryByID(ctx, exec, req.CategoryID); err != nil {
			return lookupError(err, "category not found", "failed to load category")
		}

		if err := s.schedules.Create(ctx, exec, schedule); err != nil {
			return internalError(err, "failed to create schedule")
		}
		course.ScheduleID = schedule.ID

		if err := s.courses.Create(ctx, exec, course); err != nil {
			return s.courseWriteError(err, "failed to create course")
		}
		if err := s.courses.AddTutor(ctx, exec, course.ID, tutor.ID); err != nil {
			return internalError(err, "failed to assign creator as tutor")
		}
		if err := s.replaceTags(ctx, exec, course.ID, req.TagIDs); err != nil {
			return err
		}
		return s.attachPrerequisites(ctx, exec, course.ID, req.PrerequisiteIDs, false)
	})
	if err != nil {
		return nil, recordRejection(s.metrics, "create_course", txError(err, "failed to create course"))
	}

	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("tutor_user_id", tutorUserID))
	s.afterMutation(ctx, tutorUserID, models.AuditActionCourseCreate, course.ID, nil, courseAuditValues(course))
	return s.loadDetail(ctx, course.ID)
}

// Update edits a course. Drafts accept every field, published courses only description,
// capacity and tags, and archived courses reject the call.
func (s *CourseService) Update(ctx context.Context, tutorUserID, courseID string, req dto.UpdateCourseRequest) (*models.CourseDetail, error) {
	if err := requireUUID(courseID, "course id"); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	var schedule *models.Schedule
	if req.Schedule != nil {
		built, err := BuildSchedule(req.Schedule)
		if err != nil {
			return nil, err
		}
		schedule = built
	}

	var before, after map[string]interface{}
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		course, err := s.courses.LockByID(ctx, exec, courseID)
		if err != nil {
			return lookupError(err, "course not found", "failed to load course")
		}
		if _, err := s.assignedTutors(ctx, exec, course.ID, tutorUserID); err != nil {
			return err
		}
		before = courseAuditValues(course)

		switch course.Status {
		case models.CourseStatusArchived:
			return appErrors.Clone(appErrors.ErrCourseArchived, "")
		case models.CourseStatusPublished:
			err = s.updatePublished(ctx, exec, course, req)
		default:
			err = s.updateDraft(ctx, exec, course, req, schedule)
		}
		if err != nil {
			return err
		}
		after = courseAuditValues(course)
		return nil
	})
	if err != nil {
		return nil, recordRejection(s.metrics, "update_course", txError(err, "failed to update course"))
	}

	s.logger.Info("course updated", zap.String("course_id", courseID))
	s.afterMutation(ctx, tutorUserID, models.AuditActionCourseUpdate, courseID, before, after)
	return s.loadDetail(ctx, courseID)
}

func (s *CourseService) updatePublished(ctx context.Context, exec sqlx.ExtContext, course *models.Course, req dto.UpdateCourseRequest) error {
	if req.Title != nil || req.CategoryID != nil || req.PrerequisiteIDs != nil || req.Schedule != nil {
		s.logger.Debug("ignoring fields locked by publication", zap.String("course_id", course.ID))
	}
	if req.Description != nil && strings.TrimSpace(*req.Description) != "" {
		course.Description = strings.TrimSpace(*req.Description)
	}
	if req.MaxCapacity != nil {
		requested := *req.MaxCapacity
		if requested > 0 {
			active, err := s.enrollments.CountByCourse(ctx, exec, course.ID, []models.EnrollmentStatus{models.EnrollmentStatusActive})
			if err != nil {
				return internalError(err, "failed to count active enrollments")
			}
			if requested < active {
				return appErrors.Clonef(appErrors.ErrCapacityBelowEnrollment, "max capacity %d is below the %d active enrollments", requested, active)
			}
			if course.HasCapacityLimit() && requested < *course.MaxCapacity {
				return appErrors.Clone(appErrors.ErrConflict, "max capacity can only be increased once a course is published")
			}
		}
		course.MaxCapacity = &requested
	}
	if err := s.courses.Update(ctx, exec, course); err != nil {
		return s.courseWriteError(err, "failed to update course")
	}
	if req.TagIDs != nil {
		return s.replaceTags(ctx, exec, course.ID, req.TagIDs)
	}
	return nil
}

func (s *CourseService) updateDraft(ctx context.Context, exec sqlx.ExtContext, course *models.Course, req dto.UpdateCourseRequest, schedule *models.Schedule) error {
	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		course.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil && strings.TrimSpace(*req.Description) != "" {
		course.Description = strings.TrimSpace(*req.Description)
	}
	if req.MaxCapacity != nil {
		capacity := *req.MaxCapacity
		course.MaxCapacity = &capacity
	}
	if req.CategoryID != nil && *req.CategoryID != "" && *req.CategoryID != course.CategoryID {
		if _, err := s.catalog.FindCategoryByID(ctx, exec, *req.CategoryID); err != nil {
			return lookupError(err, "category not found", "failed to load category")
		}
		course.CategoryID = *req.CategoryID
	}
	if err := s.courses.Update(ctx, exec, course); err != nil {
		return s.courseWriteError(err, "failed to update course")
	}
	if req.TagIDs != nil {
		if err := s.replaceTags(ctx, exec, course.ID, req.TagIDs); err != nil {
			return err
		}
	}
	if req.PrerequisiteIDs != nil {
		if err := s.attachPrerequisites(ctx, exec, course.ID, req.PrerequisiteIDs, true); err != nil {
			return err
		}
	}
	if schedule != nil {
		schedule.ID = course.ScheduleID
		if err := s.schedules.Replace(ctx, exec, schedule); err != nil {
			return internalError(err, "failed to replace schedule")
		}
	}
	return nil
}

// Publish opens a course for enrollment.
func (s *CourseService) Publish(ctx context.Context, actor models.Actor, courseID string) (*models.CourseDetail, error) {
	return s.setStatus(ctx, actor, courseID, models.CourseStatusPublished, models.AuditActionCoursePublish, false)
}

// Archive retires a course. Tutors must be assigned to it; admins may archive any course.
func (s *CourseService) Archive(ctx context.Context, actor models.Actor, courseID string) (*models.CourseDetail, error) {
	return s.setStatus(ctx, actor, courseID, models.CourseStatusArchived, models.AuditActionCourseArchive, actor.Role == models.RoleTutor)
}

func (s *CourseService) setStatus(ctx context.Context, actor models.Actor, courseID string, status models.CourseStatus, action string, requireTutor bool) (*models.CourseDetail, error) {
	if err := requireUUID(courseID, "course id"); err != nil {
		return nil, err
	}
	var previous models.CourseStatus
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		course, err := s.courses.LockByID(ctx, exec, courseID)
		if err != nil {
			return lookupError(err, "course not found", "failed to load course")
		}
		if requireTutor {
			if _, err := s.assignedTutors(ctx, exec, course.ID, actor.UserID); err != nil {
				return err
			}
		}
		previous = course.Status
		if previous == models.CourseStatusArchived && status != models.CourseStatusArchived {
			return appErrors.Clone(appErrors.ErrCourseArchived, "archived courses cannot be reopened")
		}
		if err := s.courses.UpdateStatus(ctx, exec, course.ID, status); err != nil {
			return internalError(err, "failed to update course status")
		}
		return nil
	})
	if err != nil {
		operation := "archive_course"
		if status == models.CourseStatusPublished {
			operation = "publish_course"
		}
		return nil, recordRejection(s.metrics, operation, txError(err, "failed to update course status"))
	}

	s.logger.Info("course status changed",
		zap.String("course_id", courseID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)))
	s.afterMutation(ctx, actor.UserID, action, courseID,
		map[string]interface{}{"status": previous},
		map[string]interface{}{"status": status})
	return s.loadDetail(ctx, courseID)
}

// AssignTutor adds the tutor owned by tutorUserID to a course. Only tutors already assigned may do so.
func (s *CourseService) AssignTutor(ctx context.Context, requesterUserID, courseID, tutorUserID string) (*models.CourseDetail, error) {
	if err := requireUUID(courseID, "course id"); err != nil {
		return nil, err
	}
	if err := requireUUID(tutorUserID, "tutor id"); err != nil {
		return nil, err
	}
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if _, err := s.courses.LockByID(ctx, exec, courseID); err != nil {
			return lookupError(err, "course not found", "failed to load course")
		}
		tutors, err := s.assignedTutors(ctx, exec, courseID, requesterUserID)
		if err != nil {
			return err
		}
		target, err := s.tutors.FindTutorByUserID(ctx, exec, tutorUserID)
		if err != nil {
			return lookupError(err, "tutor not found", "failed to load tutor")
		}
		for _, tutor := range tutors {
			if tutor.ID == target.ID {
				return appErrors.Clone(appErrors.ErrTutorAlreadyAssigned, "")
			}
		}
		if err := s.courses.AddTutor(ctx, exec, courseID, target.ID); err != nil {
			if database.IsUniqueViolation(err, "") {
				return appErrors.Clone(appErrors.ErrTutorAlreadyAssigned, "")
			}
			return internalError(err, "failed to assign tutor")
		}
		return nil
	})
	if err != nil {
		return nil, recordRejection(s.metrics, "assign_tutor", txError(err, "failed to assign tutor"))
	}

	s.logger.Info("tutor assigned", zap.String("course_id", courseID), zap.String("tutor_user_id", tutorUserID))
	s.afterMutation(ctx, requesterUserID, models.AuditActionTutorAssign, courseID, nil, map[string]interface{}{"tutor_user_id": tutorUserID})
	return s.loadDetail(ctx, courseID)
}

// UnassignTutor removes a tutor from a course. A course always keeps at least one tutor.
func (s *CourseService) UnassignTutor(ctx context.Context, requesterUserID, courseID, tutorUserID string) (*models.CourseDetail, error) {
	if err := requireUUID(courseID, "course id"); err != nil {
		return nil, err
	}
	if err := requireUUID(tutorUserID, "tutor id"); err != nil {
		return nil, err
	}
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if _, err := s.courses.LockByID(ctx, exec, courseID); err != nil {
			return lookupError(err, "course not found", "failed to load course")
		}
		tutors, err := s.assignedTutors(ctx, exec, courseID, requesterUserID)
		if err != nil {
			return err
		}
		var target *models.TutorProfile
		for i := range tutors {
			if tutors[i].UserID == tutorUserID {
				target = &tutors[i]
				break
			}
		}
		if target == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
		}
		if len(tutors) <= 1 {
			return appErrors.Clone(appErrors.ErrLastTutor, "")
		}
		if err := s.courses.RemoveTutor(ctx, exec, courseID, target.ID); err != nil {
			return internalError(err, "failed to unassign tutor")
		}
		return nil
	})
	if err != nil {
		return nil, recordRejection(s.metrics, "unassign_tutor", txError(err, "failed to unassign tutor"))
	}

	s.logger.Info("tutor unassigned", zap.String("course_id", courseID), zap.String("tutor_user_id", tutorUserID))
	s.afterMutation(ctx, requesterUserID, models.AuditActionTutorUnassign, courseID, map[string]interface{}{"tutor_user_id": tutorUserID}, nil)
	return s.loadDetail(ctx, courseID)
}

// Get returns a course. Unpublished courses are only visible to admins and assigned tutors.
func (s *CourseService) Get(ctx context.Context, actor models.Actor, courseID string) (*models.CourseDetail, bool, error) {
	if err := requireUUID(courseID, "course id"); err != nil {
		return nil, false, err
	}

	key := fmt.Sprintf(courseDetailCacheKey, courseID)
	var detail models.CourseDetail
	hit, _ := s.cache.Get(ctx, key, &detail)
	if !hit {
		loaded, err := s.loadDetail(ctx, courseID)
		if err != nil {
			return nil, false, err
		}
		detail = *loaded
		_ = s.cache.Set(ctx, key, detail, s.cfg.CacheTTL)
	}

	if detail.Status != models.CourseStatusPublished && actor.Role != models.RoleAdmin && !detail.TaughtBy(actor.UserID) {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return &detail, hit, nil
}

type courseListPage struct {
	Items []models.CourseSummary `json:"items"`
	Total int                    `json:"total"`
}

// List returns catalog entries. Non admins only ever see published courses.
func (s *CourseService) List(ctx context.Context, actor models.Actor, query dto.CourseQuery) ([]models.CourseSummary, *models.Pagination, bool, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course query")
	}

	status := models.CourseStatus(strings.ToUpper(query.Status))
	if actor.Role != models.RoleAdmin {
		if status == "" {
			status = models.CourseStatusPublished
		}
		if status != models.CourseStatusPublished {
			return nil, nil, false, appErrors.Clone(appErrors.ErrValidation, "only published courses can be listed")
		}
	}
	for _, id := range query.TagIDs {
		if err := requireUUID(id, "tag id"); err != nil {
			return nil, nil, false, err
		}
	}

	limit, offset := models.NormalizePage(query.Limit, query.Offset)
	filter := models.CourseFilter{
		Title:          strings.TrimSpace(query.Title),
		Status:         status,
		CategoryID:     query.CategoryID,
		TutorProfileID: query.TutorProfileID,
		TagIDs:         dedupe(query.TagIDs),
		SortBy:         query.SortBy,
		SortOrder:      query.SortOrder,
		Limit:          limit,
		Offset:         offset,
	}
	pagination := &models.Pagination{Limit: limit, Offset: offset}

	key := fmt.Sprintf(courseListCacheKey, listCacheFragment(filter))
	var page courseListPage
	if hit, _ := s.cache.Get(ctx, key, &page); hit {
		pagination.TotalCount = page.Total
		return page.Items, pagination, true, nil
	}

	items, total, err := s.courses.List(ctx, filter, capacityStatuses(s.cfg.CountAllForCapacity))
	if err != nil {
		return nil, nil, false, internalError(err, "failed to list courses")
	}
	if items == nil {
		items = []models.CourseSummary{}
	}
	_ = s.cache.Set(ctx, key, courseListPage{Items: items, Total: total}, s.cfg.CacheTTL)
	pagination.TotalCount = total
	return items, pagination, false, nil
}

func (s *CourseService) loadDetail(ctx context.Context, courseID string) (*models.CourseDetail, error) {
	course, err := s.courses.FindByID(ctx, nil, courseID)
	if err != nil {
		return nil, lookupError(err, "course not found", "failed to load course")
	}
	detail := &models.CourseDetail{Course: *course}

	if category, err := s.catalog.FindCategoryByID(ctx, nil, course.CategoryID); err == nil {
		detail.Category = category
	} else {
		s.logger.Warn("course category missing", zap.String("course_id", courseID), zap.Error(err))
	}
	if course.ScheduleID != "" {
		schedule, err := s.schedules.FindByID(ctx, nil, course.ScheduleID)
		if err != nil {
			return nil, lookupError(err, "schedule not found", "failed to load schedule")
		}
		detail.Schedule = schedule
	}
	if detail.Tags, err = s.courses.ListTags(ctx, nil, courseID); err != nil {
		return nil, internalError(err, "failed to load course tags")
	}
	if detail.Tutors, err = s.courses.ListTutors(ctx, nil, courseID); err != nil {
		return nil, internalError(err, "failed to load course tutors")
	}
	if detail.Prerequisites, err = s.courses.ListPrerequisites(ctx, nil, courseID); err != nil {
		return nil, internalError(err, "failed to load course prerequisites")
	}
	if detail.EnrollmentCount, err = s.enrollments.CountByCourse(ctx, nil, courseID, capacityStatuses(s.cfg.CountAllForCapacity)); err != nil {
		return nil, internalError(err, "failed to count enrollments")
	}
	if course.HasCapacityLimit() {
		left := *course.MaxCapacity - detail.EnrollmentCount
		if left < 0 {
			left = 0
		}
		detail.SpotsLeft = &left
	}
	if detail.Tags == nil {
		detail.Tags = []models.Tag{}
	}
	if detail.Tutors == nil {
		detail.Tutors = []models.TutorProfile{}
	}
	if detail.Prerequisites == nil {
		detail.Prerequisites = []models.CourseRef{}
	}
	return detail, nil
}

// assignedTutors returns the tutors of a course after checking that the requester is one of them.
func (s *CourseService) assignedTutors(ctx context.Context, exec sqlx.ExtContext, courseID, requesterUserID string) ([]models.TutorProfile, error) {
	tutors, err := s.courses.ListTutors(ctx, exec, courseID)
	if err != nil {
		return nil, internalError(err, "failed to load course tutors")
	}
	for _, tutor := range tutors {
		if tutor.UserID == requesterUserID {
			return tutors, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrForbidden, "only tutors assigned to the course can modify it")
}

// replaceTags swaps the tag set of a course. Unknown tag ids are dropped.
func (s *CourseService) replaceTags(ctx context.Context, exec sqlx.ExtContext, courseID string, tagIDs []string) error {
	var candidates []string
	for _, id := range dedupe(tagIDs) {
		if isUUID(id) {
			candidates = append(candidates, id)
		}
	}
	var ids []string
	if len(candidates) > 0 {
		tags, err := s.catalog.FindTagsByIDs(ctx, exec, candidates)
		if err != nil {
			return internalError(err, "failed to resolve tags")
		}
		for _, tag := range tags {
			ids = append(ids, tag.ID)
		}
		if skipped := len(candidates) - len(ids); skipped > 0 {
			s.logger.Debug("unknown tags ignored", zap.String("course_id", courseID), zap.Int("skipped", skipped))
		}
	}
	if err := s.courses.ReplaceTags(ctx, exec, courseID, ids); err != nil {
		return internalError(err, "failed to update course tags")
	}
	return nil
}

// attachPrerequisites links candidate prerequisite courses to courseID. Candidates that are malformed,
// unknown, the course itself or that would close a cycle are skipped. With replace set the current
// prerequisite set is cleared first.
func (s *CourseService) attachPrerequisites(ctx context.Context, exec sqlx.ExtContext, courseID string, candidates []string, replace bool) error {
	if len(candidates) == 0 && !replace {
		return nil
	}
	if err := s.prerequisites.LockGraph(ctx, exec); err != nil {
		return internalError(err, "failed to lock prerequisite graph")
	}
	if replace {
		if err := s.prerequisites.DeleteByTarget(ctx, exec, courseID); err != nil {
			return internalError(err, "failed to clear prerequisites")
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	var wellFormed []string
	for _, id := range dedupe(candidates) {
		if !isUUID(id) {
			s.skipPrerequisite(courseID, id, skipReasonMalformed)
			continue
		}
		wellFormed = append(wellFormed, id)
	}
	if len(wellFormed) == 0 {
		return nil
	}

	refs, err := s.courses.FindRefs(ctx, exec, wellFormed)
	if err != nil {
		return internalError(err, "failed to resolve prerequisite courses")
	}
	known := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		known[ref.ID] = struct{}{}
	}

	edges, err := s.prerequisites.ListEdges(ctx, exec)
	if err != nil {
		return internalError(err, "failed to load prerequisite graph")
	}
	graph := NewPrerequisiteGraph(edges)

	for _, id := range wellFormed {
		switch {
		case id == courseID:
			s.skipPrerequisite(courseID, id, skipReasonSelf)
			continue
		case !containsKey(known, id):
			s.skipPrerequisite(courseID, id, skipReasonMissing)
			continue
		case graph.WouldCycle(courseID, id):
			s.skipPrerequisite(courseID, id, skipReasonCycle)
			continue
		}
		if err := s.prerequisites.Add(ctx, exec, models.Prerequisite{TargetCourseID: courseID, PrerequisiteCourseID: id}); err != nil {
			return internalError(err, "failed to attach prerequisite")
		}
		graph.Add(courseID, id)
	}
	return nil
}

func (s *CourseService) skipPrerequisite(courseID, candidate, reason string) {
	s.metrics.IncPrerequisiteSkipped(reason)
	s.logger.Info("prerequisite skipped",
		zap.String("course_id", courseID),
		zap.String("candidate", candidate),
		zap.String("reason", reason))
}

func (s *CourseService) courseWriteError(err error, failure string) error {
	if database.IsUniqueViolation(err, repository.CourseTitleConstraint) {
		return appErrors.Clone(appErrors.ErrDuplicateTitle, "")
	}
	if database.IsForeignKeyViolation(err, "") {
		return appErrors.Clone(appErrors.ErrNotFound, "referenced record not found")
	}
	return internalError(err, failure)
}

func (s *CourseService) afterMutation(ctx context.Context, userID, action, courseID string, oldValues, newValues map[string]interface{}) {
	_ = s.cache.Invalidate(ctx, courseCachePattern)
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "course",
		ResourceID: &courseID,
		OldValues:  auditPayload(oldValues),
		NewValues:  auditPayload(newValues),
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record course audit log", zap.String("action", action), zap.Error(err))
	}
}

func courseAuditValues(course *models.Course) map[string]interface{} {
	values := map[string]interface{}{
		"title":       course.Title,
		"description": course.Description,
		"status":      course.Status,
		"category_id": course.CategoryID,
	}
	if course.MaxCapacity != nil {
		values["max_capacity"] = *course.MaxCapacity
	}
	return values
}

func listCacheFragment(filter models.CourseFilter) string {
	tags := append([]string(nil), filter.TagIDs...)
	sort.Strings(tags)
	return strings.Join([]string{
		strings.ToLower(filter.Title),
		string(filter.Status),
		filter.CategoryID,
		filter.TutorProfileID,
		strings.Join(tags, ","),
		filter.SortBy,
		strings.ToLower(filter.SortOrder),
		fmt.Sprint(filter.Limit),
		fmt.Sprint(filter.Offset),
	}, "|")
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
