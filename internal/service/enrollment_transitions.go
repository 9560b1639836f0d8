package service

import (
	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type transitionGuard int

const (
	guardAlways transitionGuard = iota
	guardNotEnded
	guardEnded
)

type transitionRule struct {
	to    models.EnrollmentStatus
	guard transitionGuard
}

// enrollmentTransitions lists, per role and current status, the statuses that role may move an enrollment to.
// Roles without an entry cannot change enrollment status at all.
var enrollmentTransitions = map[models.UserRole]map[models.EnrollmentStatus][]transitionRule{
	models.RoleTutor: {
		models.EnrollmentStatusPending: {
			{to: models.EnrollmentStatusActive, guard: guardNotEnded},
			{to: models.EnrollmentStatusSuspended, guard: guardNotEnded},
		},
		models.EnrollmentStatusActive: {
			{to: models.EnrollmentStatusPassed, guard: guardEnded},
			{to: models.EnrollmentStatusFailed, guard: guardEnded},
			{to: models.EnrollmentStatusSuspended, guard: guardNotEnded},
		},
		models.EnrollmentStatusSuspended: {
			{to: models.EnrollmentStatusPending, guard: guardAlways},
			{to: models.EnrollmentStatusActive, guard: guardNotEnded},
		},
	},
	models.RoleStudent: {
		models.EnrollmentStatusPending: {
			{to: models.EnrollmentStatusDropped, guard: guardAlways},
		},
		models.EnrollmentStatusActive: {
			{to: models.EnrollmentStatusDropped, guard: guardAlways},
		},
		models.EnrollmentStatusDropped: {
			{to: models.EnrollmentStatusPending, guard: guardNotEnded},
		},
	},
}

// checkTransition validates moving an enrollment from one status to another for the given role.
func checkTransition(role models.UserRole, from, to models.EnrollmentStatus, courseEnded bool) error {
	for _, rule := range enrollmentTransitions[role][from] {
		if rule.to != to {
			continue
		}
		switch rule.guard {
		case guardNotEnded:
			if courseEnded {
				return appErrors.Clonef(appErrors.ErrInvalidTransition, "cannot move to %s since the course has ended", to)
			}
		case guardEnded:
			if !courseEnded {
				return appErrors.Clonef(appErrors.ErrInvalidTransition, "cannot move to %s since the course has not ended yet", to)
			}
		}
		return nil
	}
	return appErrors.Clonef(appErrors.ErrInvalidTransition, "cannot move from %s to %s", from, to)
}
