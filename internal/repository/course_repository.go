package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-api/internal/models"
)

// CourseTitleConstraint is the unique constraint guarding course titles.
const CourseTitleConstraint = "courses_title_key"

const courseColumns = `c.id, c.title, c.description, c.max_capacity, c.status, c.category_id, c.schedule_id, c.created_at, c.updated_at`

// CourseRepository handles persistence of courses and their tutor and tag links.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.Status == "" {
		course.Status = models.CourseStatusDraft
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, title, description, max_capacity, status, category_id, schedule_id, created_at, updated_at)
VALUES (:id, :title, :description, :max_capacity, :status, :category_id, :schedule_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByID returns a course by id.
func (r *CourseRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses c WHERE c.id = $1`
	var course models.Course
	if err := sqlx.GetContext(ctx, r.exec(exec), &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// LockByID returns a course holding a row lock until the surrounding transaction ends.
func (r *CourseRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses c WHERE c.id = $1 FOR UPDATE`
	var course models.Course
	if err := sqlx.GetContext(ctx, r.exec(exec), &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Update persists mutable course fields.
func (r *CourseRepository) Update(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, description = :description, max_capacity = :max_capacity,
status = :status, category_id = :category_id, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// UpdateStatus sets the course status.
func (r *CourseRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.CourseStatus) error {
	const query = `UPDATE courses SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	return nil
}

// FindRefs resolves the subset of ids that exist as courses.
func (r *CourseRepository) FindRefs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.CourseRef, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, title FROM courses WHERE id = ANY($1)`
	var refs []models.CourseRef
	if err := sqlx.SelectContext(ctx, r.exec(exec), &refs, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find course refs: %w", err)
	}
	return refs, nil
}

// ListTutors returns tutors assigned to a course.
func (r *CourseRepository) ListTutors(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.TutorProfile, error) {
	const query = `SELECT tp.id, tp.user_id, u.full_name, tp.bio, tp.created_at
FROM course_tutors ct
JOIN tutor_profiles tp ON tp.id = ct.tutor_profile_id
JOIN users u ON u.id = tp.user_id
WHERE ct.course_id = $1
ORDER BY ct.assigned_at, tp.id`
	var tutors []models.TutorProfile
	if err := sqlx.SelectContext(ctx, r.exec(exec), &tutors, query, courseID); err != nil {
		return nil, fmt.Errorf("list course tutors: %w", err)
	}
	return tutors, nil
}

// AddTutor links a tutor profile to a course.
func (r *CourseRepository) AddTutor(ctx context.Context, exec sqlx.ExtContext, courseID, tutorProfileID string) error {
	const query = `INSERT INTO course_tutors (course_id, tutor_profile_id, assigned_at) VALUES ($1, $2, $3)`
	if _, err := r.exec(exec).ExecContext(ctx, query, courseID, tutorProfileID, time.Now().UTC()); err != nil {
		return fmt.Errorf("assign tutor: %w", err)
	}
	return nil
}

// RemoveTutor unlinks a tutor profile from a course.
func (r *CourseRepository) RemoveTutor(ctx context.Context, exec sqlx.ExtContext, courseID, tutorProfileID string) error {
	const query = `DELETE FROM course_tutors WHERE course_id = $1 AND tutor_profile_id = $2`
	if _, err := r.exec(exec).ExecContext(ctx, query, courseID, tutorProfileID); err != nil {
		return fmt.Errorf("unassign tutor: %w", err)
	}
	return nil
}

// ListTags returns the tags attached to a course.
func (r *CourseRepository) ListTags(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.Tag, error) {
	const query = `SELECT t.id, t.name FROM course_tags ct JOIN tags t ON t.id = ct.tag_id WHERE ct.course_id = $1 ORDER BY t.name`
	var tags []models.Tag
	if err := sqlx.SelectContext(ctx, r.exec(exec), &tags, query, courseID); err != nil {
		return nil, fmt.Errorf("list course tags: %w", err)
	}
	return tags, nil
}

// ReplaceTags swaps the full tag set of a course.
func (r *CourseRepository) ReplaceTags(ctx context.Context, exec sqlx.ExtContext, courseID string, tagIDs []string) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM course_tags WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("clear course tags: %w", err)
	}
	if len(tagIDs) == 0 {
		return nil
	}
	const query = `INSERT INTO course_tags (course_id, tag_id) SELECT $1, UNNEST($2::uuid[]) ON CONFLICT DO NOTHING`
	if _, err := target.ExecContext(ctx, query, courseID, pq.Array(tagIDs)); err != nil {
		return fmt.Errorf("attach course tags: %w", err)
	}
	return nil
}

// ListPrerequisites returns the courses a course directly requires.
func (r *CourseRepository) ListPrerequisites(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.CourseRef, error) {
	const query = `SELECT c.id, c.title FROM course_prerequisites p JOIN courses c ON c.id = p.prerequisite_course_id
WHERE p.target_course_id = $1 ORDER BY c.title`
	var refs []models.CourseRef
	if err := sqlx.SelectContext(ctx, r.exec(exec), &refs, query, courseID); err != nil {
		return nil, fmt.Errorf("list course prerequisites: %w", err)
	}
	return refs, nil
}

// List returns courses filtered by the provided criteria together with the total count.
// Enrollment figures count rows whose status is in countStatuses, or every row when it is empty.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter, countStatuses []models.EnrollmentStatus) ([]models.CourseSummary, int, error) {
	var conditions []string
	var args []interface{}

	countJoin := `LEFT JOIN (SELECT course_id, COUNT(*) AS cnt FROM enrollments GROUP BY course_id) ec ON ec.course_id = c.id`
	if len(countStatuses) > 0 {
		statuses := make([]string, len(countStatuses))
		for i, s := range countStatuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		countJoin = fmt.Sprintf(`LEFT JOIN (SELECT course_id, COUNT(*) AS cnt FROM enrollments WHERE status = ANY($%d) GROUP BY course_id) ec ON ec.course_id = c.id`, len(args))
	}

	if filter.Title != "" {
		args = append(args, filter.Title)
		conditions = append(conditions, fmt.Sprintf("c.title ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)))
	}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		conditions = append(conditions, fmt.Sprintf("c.category_id = $%d", len(args)))
	}
	if filter.TutorProfileID != "" {
		args = append(args, filter.TutorProfileID)
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM course_tutors ct WHERE ct.course_id = c.id AND ct.tutor_profile_id = $%d)", len(args)))
	}
	if len(filter.TagIDs) > 0 {
		args = append(args, pq.Array(filter.TagIDs))
		conditions = append(conditions, fmt.Sprintf("(SELECT COUNT(DISTINCT t.tag_id) FROM course_tags t WHERE t.course_id = c.id AND t.tag_id = ANY($%d)) = %d", len(args), len(filter.TagIDs)))
	}

	base := `FROM courses c
JOIN categories cat ON cat.id = c.category_id
` + countJoin
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"title":       "c.title",
		"created_at":  "c.created_at",
		"enrollments": "enrollment_count",
		"spots_left":  "spots_left",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
		if orderBy == "c.created_at" {
			order = "DESC"
		}
	}
	limit, offset := models.NormalizePage(filter.Limit, filter.Offset)

	query := fmt.Sprintf(`SELECT %s, cat.name AS category_name,
COALESCE(ec.cnt, 0) AS enrollment_count,
CASE WHEN c.max_capacity IS NULL OR c.max_capacity = 0 THEN NULL ELSE GREATEST(c.max_capacity - COALESCE(ec.cnt, 0), 0) END AS spots_left
%s%s ORDER BY %s %s NULLS LAST, c.id LIMIT %d OFFSET %d`, courseColumns, base, clause, orderBy, order, limit, offset)

	var courses []models.CourseSummary
	if err := sqlx.SelectContext(ctx, r.db, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s%s", base, clause)
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}
