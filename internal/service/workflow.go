package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

// unitOfWork runs fn inside one transaction. It is satisfied by *database.TxManager.
type unitOfWork interface {
	WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func requireUUID(id, field string) error {
	if !isUUID(id) {
		return appErrors.Clonef(appErrors.ErrValidation, "invalid %s", field)
	}
	return nil
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// lookupError maps a missing row to NotFound and anything else to an internal error.
func lookupError(err error, notFound, failure string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return internalError(err, failure)
}

// txError passes domain errors through and wraps infrastructure failures.
func txError(err error, failure string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return internalError(err, failure)
}

func auditPayload(values map[string]interface{}) []byte {
	if len(values) == 0 {
		return nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return raw
}

// recordRejection counts business rule conflicts and returns err unchanged.
func recordRejection(metrics *MetricsService, operation string, err error) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && appErr.Status == http.StatusConflict {
		metrics.IncWorkflowRejection(operation, appErr.Code)
	}
	return err
}

// capacityStatuses returns the statuses that occupy a seat. Nil means every enrollment counts.
func capacityStatuses(countAll bool) []models.EnrollmentStatus {
	if countAll {
		return nil
	}
	return []models.EnrollmentStatus{models.EnrollmentStatusPending, models.EnrollmentStatusActive}
}
