package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/pkg/database"
)

func TestEnrollmentRepositoryCreateDefaultsToPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{StudentID: "sp-1", CourseID: "c-1"}
	require.NoError(t, repo.Create(context.Background(), nil, enrollment))
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	assert.False(t, enrollment.EnrolledAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateKeepsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505", Constraint: EnrollmentKeyConstraint})

	err := repo.Create(context.Background(), nil, &models.Enrollment{StudentID: "sp-1", CourseID: "c-1"})
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err, EnrollmentKeyConstraint))
}

func TestEnrollmentRepositoryFindForUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"student_id", "course_id", "status", "enrolled_at", "completed_at"}).
		AddRow("sp-1", "c-1", string(models.EnrollmentStatusActive), now, nil)
	mock.ExpectQuery(`FROM enrollments e WHERE e.course_id = \$1 AND e.student_id = \$2 FOR UPDATE`).
		WithArgs("c-1", "sp-1").
		WillReturnRows(rows)

	enrollment, err := repo.FindForUpdate(context.Background(), nil, "c-1", "sp-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Nil(t, enrollment.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("FROM enrollments e WHERE").WithArgs("c-1", "sp-1").WillReturnError(sql.ErrNoRows)

	_, err := repo.Find(context.Background(), nil, "c-1", "sp-1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestEnrollmentRepositoryCountByCourse(t *testing.T) {
	t.Run("all rows", func(t *testing.T) {
		db, mock, cleanup := newMock(t)
		defer cleanup()
		repo := NewEnrollmentRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1")).
			WithArgs("c-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

		count, err := repo.CountByCourse(context.Background(), nil, "c-1", nil)
		require.NoError(t, err)
		assert.Equal(t, 5, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("selected statuses", func(t *testing.T) {
		db, mock, cleanup := newMock(t)
		defer cleanup()
		repo := NewEnrollmentRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = ANY($2)")).
			WithArgs("c-1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		count, err := repo.CountByCourse(context.Background(), nil, "c-1", []models.EnrollmentStatus{models.EnrollmentStatusActive})
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEnrollmentRepositoryCourseIDsWithStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT course_id FROM enrollments WHERE student_id = $1 AND status = $2 AND course_id = ANY($3)")).
		WithArgs("sp-1", models.EnrollmentStatusPassed, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}).AddRow("c-0"))

	ids, err := repo.CourseIDsWithStatus(context.Background(), nil, "sp-1", models.EnrollmentStatusPassed, []string{"c-0", "c-9"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c-0"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCourseIDsWithStatusEmptyInput(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	ids, err := repo.CourseIDsWithStatus(context.Background(), nil, "sp-1", models.EnrollmentStatusPassed, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"student_id", "course_id", "status", "enrolled_at", "completed_at", "student_name", "student_email", "course_title"}).
		AddRow("sp-1", "c-1", string(models.EnrollmentStatusPassed), now, now, "Sam", "sam@example.com", "Go 101")
	mock.ExpectQuery(`(?s)FROM enrollments e.*WHERE e.student_id = \$1 AND e.status = \$2 ORDER BY e.enrolled_at DESC`).
		WithArgs("sp-1", models.EnrollmentStatusPassed).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments e WHERE e.student_id = $1 AND e.status = $2")).
		WithArgs("sp-1", models.EnrollmentStatusPassed).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.EnrollmentFilter{StudentID: "sp-1", Status: models.EnrollmentStatusPassed})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Go 101", items[0].CourseTitle)
	require.NotNil(t, items[0].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
