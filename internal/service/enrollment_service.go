package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/repository"
	"github.com/noah-isme/lms-api/pkg/database"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
	"github.com/noah-isme/lms-api/pkg/export"
)

type enrollmentStore interface {
	Find(ctx context.Context, exec sqlx.ExtContext, courseID, studentID string) (*models.Enrollment, error)
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, courseID, studentID string) (*models.Enrollment, error)
	FindDetail(ctx context.Context, exec sqlx.ExtContext, courseID, studentID string) (*models.EnrollmentDetail, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	CountByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string, statuses []models.EnrollmentStatus) (int, error)
	CourseIDsWithStatus(ctx context.Context, exec sqlx.ExtContext, studentID string, status models.EnrollmentStatus, courseIDs []string) ([]string, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListAllByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
}

type enrollmentCourseReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error)
	ListTutors(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.TutorProfile, error)
}

type scheduleReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error)
}

type prerequisiteIDLister interface {
	ListPrerequisiteIDs(ctx context.Context, exec sqlx.ExtContext, targetCourseID string) ([]string, error)
}

type profileReader interface {
	FindStudentByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.StudentProfile, error)
	FindStudentByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.StudentProfile, error)
	FindTutorByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.TutorProfile, error)
}

// EnrollmentServiceConfig tunes enrollment eligibility.
type EnrollmentServiceConfig struct {
	// CountAllForCapacity counts enrollments in every status against capacity.
	// When false only pending and active enrollments occupy a seat.
	CountAllForCapacity bool
}

// EnrollmentServiceParams groups constructor dependencies.
type EnrollmentServiceParams struct {
	Tx            unitOfWork
	Enrollments   enrollmentStore
	Courses       enrollmentCourseReader
	Schedules     scheduleReader
	Prerequisites prerequisiteIDLister
	Profiles      profileReader
	Users         userReader
	Audit         auditLogger
	Guard         *DateGuard
	Cache         *CacheService
	Metrics       *MetricsService
	Logger        *zap.Logger
	Config        EnrollmentServiceConfig
}

// EnrollmentService runs the enrollment lifecycle: eligibility on enroll, visibility on reads
// and role scoped status transitions.
type EnrollmentService struct {
	tx            unitOfWork
	enrollments   enrollmentStore
	courses       enrollmentCourseReader
	schedules     scheduleReader
	prerequisites prerequisiteIDLister
	profiles      profileReader
	users         userReader
	audit         auditLogger
	guard         *DateGuard
	cache         *CacheService
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time
	cfg           EnrollmentServiceConfig
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(params EnrollmentServiceParams) *EnrollmentService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	guard := params.Guard
	if guard == nil {
		guard, _ = NewDateGuard("")
	}
	return &EnrollmentService{
		tx:            params.Tx,
		enrollments:   params.Enrollments,
		courses:       params.Courses,
		schedules:     params.Schedules,
		prerequisites: params.Prerequisites,
		profiles:      params.Profiles,
		users:         params.Users,
		audit:         params.Audit,
		guard:         guard,
		cache:         params.Cache,
		metrics:       params.Metrics,
		logger:        logger,
		now:           time.Now,
		cfg:           params.Config,
	}
}

// RosterExport is a rendered course roster.
type RosterExport struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// Enroll creates a pending enrollment for the student owned by studentUserID.
// Checks run in a fixed order and the first failure is returned.
func (s *EnrollmentService) Enroll(ctx context.Context, studentUserID, courseID string) (*models.Enrollment, error) {
	if err := requireUUID(courseID, "course id"); err != nil {
		return nil, err
	}

	var enrollment *models.Enrollment
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		student, err := s.profiles.FindStudentByUserID(ctx, exec, studentUserID)
		if err != nil {
			return lookupError(err, "student profile not found", "failed to load student profile")
		}

		// Row lock serialises enrollments per course so the capacity count below stays accurate.
		course, err := s.courses.LockByID(ctx, exec, courseID)
		if err != nil {
			return lookupError(err, "course not found", "failed to load course")
		}
		if course.Status != models.CourseStatusPublished {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}

		if _, err := s.enrollments.Find(ctx, exec, course.ID, student.ID); err == nil {
			return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return internalError(err, "failed to check existing enrollment")
		}

		ended, err := s.courseEnded(ctx, exec, course)
		if err != nil {
			return err
		}
		if ended {
			return appErrors.Clone(appErrors.ErrCourseEnded, "course has ended, enrollment is closed")
		}

		if course.HasCapacityLimit() {
			count, err := s.enrollments.CountByCourse(ctx, exec, course.ID, capacityStatuses(s.cfg.CountAllForCapacity))
			if err != nil {
				return internalError(err, "failed to count enrollments")
			}
			if count >= *course.MaxCapacity {
				return appErrors.Clone(appErrors.ErrCourseFull, "no spots left, course reached its max capacity")
			}
		}

		if err := s.checkPrerequisites(ctx, exec, student.ID, course.ID); err != nil {
			return err
		}

		enrollment = &models.Enrollment{
			StudentID:  student.ID,
			CourseID:   course.ID,
			Status:     models.EnrollmentStatusPending,
			EnrolledAt: s.now().UTC(),
		}
		if err := s.enrollments.Create(ctx, exec, enrollment); err != nil {
			if database.IsUniqueViolation(err, repository.EnrollmentKeyConstraint) {
				return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
			}
			return internalError(err, "failed to create enrollment")
		}
		return nil
	})
	if err != nil {
		return nil, recordRejection(s.metrics, "enroll", txError(err, "failed to enroll"))
	}

	s.metrics.IncEnrollmentCreated()
	s.invalidateCourseCache(ctx)
	s.logger.Info("enrollment created",
		zap.String("course_id", enrollment.CourseID),
		zap.String("student_id", enrollment.StudentID))
	s.recordAudit(ctx, studentUserID, models.AuditActionEnroll, enrollment, nil, map[string]interface{}{
		"status": enrollment.Status,
	})
	return enrollment, nil
}

// GetEnrollment returns one enrollment. Admins see any, students only their own
// and tutors only those of courses they teach.
func (s *EnrollmentService) GetEnrollment(ctx context.Context, actor models.Actor, courseID, studentProfileID string) (*models.EnrollmentDetail, error) {
	if err := s.validateKeys(courseID, studentProfileID); err != nil {
		return nil, err
	}
	if _, err := s.resolveScope(ctx, nil, actor, courseID, studentProfileID, false); err != nil {
		return nil, err
	}
	detail, err := s.enrollments.FindDetail(ctx, nil, courseID, studentProfileID)
	if err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	return detail, nil
}

// UpdateStatus moves an enrollment to a new status according to the role scoped transition table.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, actor models.Actor, courseID, studentProfileID string, status models.EnrollmentStatus) (*models.Enrollment, error) {
	if err := s.validateKeys(courseID, studentProfileID); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "invalid enrollment status %q", status)
	}

	var (
		enrollment *models.Enrollment
		from       models.EnrollmentStatus
		role       models.UserRole
	)
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		scope, err := s.resolveScope(ctx, exec, actor, courseID, studentProfileID, true)
		if err != nil {
			return err
		}
		role = scope.role

		enrollment, err = s.enrollments.FindForUpdate(ctx, exec, courseID, studentProfileID)
		if err != nil {
			return lookupError(err, "enrollment not found", "failed to load enrollment")
		}

		ended, err := s.courseEnded(ctx, exec, scope.course)
		if err != nil {
			return err
		}
		if err := checkTransition(role, enrollment.Status, status, ended); err != nil {
			return err
		}

		from = enrollment.Status
		enrollment.Status = status
		if status.Terminal() {
			completedAt := s.now().UTC()
			enrollment.CompletedAt = &completedAt
		}
		if err := s.enrollments.UpdateStatus(ctx, exec, enrollment); err != nil {
			return internalError(err, "failed to update enrollment")
		}
		return nil
	})
	if err != nil {
		return nil, recordRejection(s.metrics, "update_enrollment_status", txError(err, "failed to update enrollment"))
	}

	s.metrics.IncEnrollmentTransition(from, status, role)
	s.invalidateCourseCache(ctx)
	s.logger.Info("enrollment status changed",
		zap.String("course_id", courseID),
		zap.String("student_id", studentProfileID),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
		zap.String("role", string(role)))
	s.recordAudit(ctx, actor.UserID, models.AuditActionEnrollmentStatus, enrollment,
		map[string]interface{}{"status": from},
		map[string]interface{}{"status": status})
	return enrollment, nil
}

// ListByCourse lists enrollments of one course for admins and the course's tutors.
func (s *EnrollmentService) ListByCourse(ctx context.Context, actor models.Actor, courseID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if err := requireUUID(courseID, "course id"); err != nil {
		return nil, nil, err
	}
	if _, err := s.authorizeCourseStaff(ctx, actor, courseID); err != nil {
		return nil, nil, err
	}
	filter.CourseID = courseID
	filter.StudentID = ""
	return s.list(ctx, filter)
}

// ListMine lists the enrollments of the student owned by studentUserID.
func (s *EnrollmentService) ListMine(ctx context.Context, studentUserID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	student, err := s.profiles.FindStudentByUserID(ctx, nil, studentUserID)
	if err != nil {
		return nil, nil, lookupError(err, "student profile not found", "failed to load student profile")
	}
	filter.StudentID = student.ID
	filter.CourseID = ""
	return s.list(ctx, filter)
}

// List returns enrollments across courses. Intended for administrators.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if filter.StudentID != "" {
		if err := requireUUID(filter.StudentID, "student profile id"); err != nil {
			return nil, nil, err
		}
		if _, err := s.profiles.FindStudentByID(ctx, nil, filter.StudentID); err != nil {
			return nil, nil, lookupError(err, "student profile not found", "failed to load student profile")
		}
	}
	if filter.CourseID != "" {
		if err := requireUUID(filter.CourseID, "course id"); err != nil {
			return nil, nil, err
		}
	}
	return s.list(ctx, filter)
}

// ExportRoster renders every enrollment of a course as CSV or PDF.
func (s *EnrollmentService) ExportRoster(ctx context.Context, actor models.Actor, courseID, format string) (*RosterExport, error) {
	if err := requireUUID(courseID, "course id"); err != nil {
		return nil, err
	}
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	course, err := s.authorizeCourseStaff(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	rows, err := s.enrollments.ListAllByCourse(ctx, courseID)
	if err != nil {
		return nil, internalError(err, "failed to load roster")
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("%s roster", course.Title),
		Headers: []string{"Student ID", "Student", "Email", "Status", "Enrolled At", "Completed At"},
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		completed := ""
		if row.CompletedAt != nil {
			completed = row.CompletedAt.UTC().Format(models.DateLayout)
		}
		dataset.Rows = append(dataset.Rows, []string{
			row.StudentID,
			row.StudentName,
			row.StudentEmail,
			string(row.Status),
			row.EnrolledAt.UTC().Format(models.DateLayout),
			completed,
		})
	}

	renderer := export.RendererFor(parsed)
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, internalError(err, "failed to render roster")
	}

	s.logger.Info("roster exported", zap.String("course_id", courseID), zap.String("format", string(parsed)), zap.Int("rows", len(rows)))
	s.recordAuditEntry(ctx, actor.UserID, models.AuditActionEnrollmentExported, "course", courseID, nil, map[string]interface{}{
		"format": parsed,
		"rows":   len(rows),
	})

	return &RosterExport{
		Filename:    fmt.Sprintf("roster-%s.%s", courseID, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Payload:     payload,
	}, nil
}

type enrollmentScope struct {
	role   models.UserRole
	course *models.Course
}

// resolveScope loads the requester, the student profile and the course and checks that the
// requester may act on the pair. Students on non-published courses see NotFound when
// studentsNeedPublished is set.
func (s *EnrollmentService) resolveScope(ctx context.Context, exec sqlx.ExtContext, actor models.Actor, courseID, studentProfileID string, studentsNeedPublished bool) (*enrollmentScope, error) {
	requester, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unable to find requesting user")
		}
		return nil, internalError(err, "failed to load requesting user")
	}

	student, err := s.profiles.FindStudentByID(ctx, exec, studentProfileID)
	if err != nil {
		return nil, lookupError(err, "student profile not found", "failed to load student profile")
	}

	switch requester.Role {
	case models.RoleAdmin, models.RoleTutor:
	case models.RoleStudent:
		if student.UserID != requester.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only access their own enrollments")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}

	course, err := s.courses.FindByID(ctx, exec, courseID)
	if err != nil {
		return nil, lookupError(err, "course not found", "failed to load course")
	}
	if studentsNeedPublished && requester.Role == models.RoleStudent && course.Status != models.CourseStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	if requester.Role == models.RoleTutor {
		assigned, err := s.isAssignedTutor(ctx, exec, course.ID, requester.ID)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "tutors can only access enrollments of courses they are assigned to")
		}
	}

	return &enrollmentScope{role: requester.Role, course: course}, nil
}

func (s *EnrollmentService) authorizeCourseStaff(ctx context.Context, actor models.Actor, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, nil, courseID)
	if err != nil {
		return nil, lookupError(err, "course not found", "failed to load course")
	}
	switch actor.Role {
	case models.RoleAdmin:
		return course, nil
	case models.RoleTutor:
		assigned, err := s.isAssignedTutor(ctx, nil, courseID, actor.UserID)
		if err != nil {
			return nil, err
		}
		if assigned {
			return course, nil
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "tutors can only access enrollments of courses they are assigned to")
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}
}

func (s *EnrollmentService) isAssignedTutor(ctx context.Context, exec sqlx.ExtContext, courseID, tutorUserID string) (bool, error) {
	tutors, err := s.courses.ListTutors(ctx, exec, courseID)
	if err != nil {
		return false, internalError(err, "failed to load course tutors")
	}
	for _, tutor := range tutors {
		if tutor.UserID == tutorUserID {
			return true, nil
		}
	}
	return false, nil
}

func (s *EnrollmentService) courseEnded(ctx context.Context, exec sqlx.ExtContext, course *models.Course) (bool, error) {
	if course.ScheduleID == "" {
		return false, nil
	}
	schedule, err := s.schedules.FindByID(ctx, exec, course.ScheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, internalError(err, "failed to load course schedule")
	}
	return s.guard.CourseEnded(schedule), nil
}

func (s *EnrollmentService) checkPrerequisites(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) error {
	required, err := s.prerequisites.ListPrerequisiteIDs(ctx, exec, courseID)
	if err != nil {
		return internalError(err, "failed to load prerequisites")
	}
	if len(required) == 0 {
		return nil
	}
	passed, err := s.enrollments.CourseIDsWithStatus(ctx, exec, studentID, models.EnrollmentStatusPassed, required)
	if err != nil {
		return internalError(err, "failed to check prerequisites")
	}
	done := make(map[string]struct{}, len(passed))
	for _, id := range passed {
		done[id] = struct{}{}
	}
	missing := 0
	for _, id := range required {
		if _, ok := done[id]; !ok {
			missing++
		}
	}
	if missing > 0 {
		return appErrors.Clonef(appErrors.ErrPrerequisitesNotMet, "%d of %d prerequisite courses not passed yet", missing, len(required))
	}
	return nil
}

func (s *EnrollmentService) validateKeys(courseID, studentProfileID string) error {
	if err := requireUUID(courseID, "course id"); err != nil {
		return err
	}
	return requireUUID(studentProfileID, "student profile id")
}

func (s *EnrollmentService) list(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clonef(appErrors.ErrValidation, "invalid enrollment status %q", filter.Status)
	}
	filter.Limit, filter.Offset = models.NormalizePage(filter.Limit, filter.Offset)
	items, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list enrollments")
	}
	if items == nil {
		items = []models.EnrollmentDetail{}
	}
	return items, &models.Pagination{Limit: filter.Limit, Offset: filter.Offset, TotalCount: total}, nil
}

// invalidateCourseCache drops cached course reads whose enrollment figures are now stale.
func (s *EnrollmentService) invalidateCourseCache(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, courseCachePattern)
}

func (s *EnrollmentService) recordAudit(ctx context.Context, userID, action string, enrollment *models.Enrollment, oldValues, newValues map[string]interface{}) {
	resourceID := enrollment.CourseID + ":" + enrollment.StudentID
	s.recordAuditEntry(ctx, userID, action, "enrollment", resourceID, oldValues, newValues)
}

func (s *EnrollmentService) recordAuditEntry(ctx context.Context, userID, action, resource, resourceID string, oldValues, newValues map[string]interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		OldValues:  auditPayload(oldValues),
		NewValues:  auditPayload(newValues),
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record enrollment audit log", zap.String("action", action), zap.Error(err))
	}
}
