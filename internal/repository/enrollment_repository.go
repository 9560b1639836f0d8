package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-api/internal/models"
)

// EnrollmentKeyConstraint is the composite primary key of enrollments.
const EnrollmentKeyConstraint = "enrollments_pkey"

const enrollmentColumns = `e.student_id, e.course_id, e.status, e.enrolled_at, e.completed_at`

const enrollmentDetailSelect = `SELECT ` + enrollmentColumns + `,
u.full_name AS student_name, u.email AS student_email, c.title AS course_title
FROM enrollments e
JOIN student_profiles sp ON sp.id = e.student_id
JOIN users u ON u.id = sp.user_id
JOIN courses c ON c.id = e.course_id`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Find returns the enrollment for a (course, student) pair.
func (r *EnrollmentRepository) Find(ctx context.Context, exec sqlx.ExtContext, courseID, studentID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments e WHERE e.course_id = $1 AND e.student_id = $2`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, courseID, studentID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindForUpdate is Find with a row lock held until the transaction ends.
func (r *EnrollmentRepository) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, courseID, studentID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments e WHERE e.course_id = $1 AND e.student_id = $2 FOR UPDATE`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, courseID, studentID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetail returns an enrollment with student and course info.
func (r *EnrollmentRepository) FindDetail(ctx context.Context, exec sqlx.ExtContext, courseID, studentID string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.course_id = $1 AND e.student_id = $2`
	var detail models.EnrollmentDetail
	if err := sqlx.GetContext(ctx, r.exec(exec), &detail, query, courseID, studentID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	const query = `INSERT INTO enrollments (student_id, course_id, status, enrolled_at, completed_at)
VALUES (:student_id, :course_id, :status, :enrolled_at, :completed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus writes status and completed_at.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	const query = `UPDATE enrollments SET status = $3, completed_at = $4 WHERE course_id = $1 AND student_id = $2`
	if _, err := r.exec(exec).ExecContext(ctx, query, enrollment.CourseID, enrollment.StudentID, enrollment.Status, enrollment.CompletedAt); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// CountByCourse counts enrollments of a course whose status is in statuses, or every row when statuses is empty.
func (r *EnrollmentRepository) CountByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string, statuses []models.EnrollmentStatus) (int, error) {
	query := `SELECT COUNT(*) FROM enrollments WHERE course_id = $1`
	args := []interface{}{courseID}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(statusStrings(statuses)))
	}
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, args...); err != nil {
		return 0, fmt.Errorf("count course enrollments: %w", err)
	}
	return count, nil
}

// CourseIDsWithStatus returns the subset of courseIDs in which the student holds an enrollment with the given status.
func (r *EnrollmentRepository) CourseIDsWithStatus(ctx context.Context, exec sqlx.ExtContext, studentID string, status models.EnrollmentStatus, courseIDs []string) ([]string, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT course_id FROM enrollments WHERE student_id = $1 AND status = $2 AND course_id = ANY($3)`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, studentID, status, pq.Array(courseIDs)); err != nil {
		return nil, fmt.Errorf("find student course statuses: %w", err)
	}
	return ids, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	limit, offset := models.NormalizePage(filter.Limit, filter.Offset)

	query := fmt.Sprintf(`%s%s ORDER BY e.enrolled_at DESC, e.student_id LIMIT %d OFFSET %d`, enrollmentDetailSelect, clause, limit, offset)
	var enrollments []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.db, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM enrollments e` + clause
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListAllByCourse returns every enrollment of a course ordered by student name.
func (r *EnrollmentRepository) ListAllByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.course_id = $1 ORDER BY u.full_name, e.student_id`
	var enrollments []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.db, &enrollments, query, courseID); err != nil {
		return nil, fmt.Errorf("list course roster: %w", err)
	}
	return enrollments, nil
}

func statusStrings(statuses []models.EnrollmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
