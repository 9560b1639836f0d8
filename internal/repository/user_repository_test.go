package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
)

func TestUserRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "role", "active", "created_at", "updated_at"}).
		AddRow("u-1", "tutor@example.com", "Tina Tutor", string(models.RoleTutor), true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, full_name, role, active, created_at, updated_at FROM users WHERE id = $1")).
		WithArgs("u-1").
		WillReturnRows(rows)

	user, err := repo.FindByID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTutor, user.Role)
	assert.Equal(t, "Tina Tutor", user.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	userID := "u-1"
	entry := &models.AuditLog{UserID: &userID, Action: models.AuditActionEnroll, Resource: "enrollment"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
