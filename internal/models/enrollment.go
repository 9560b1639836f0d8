package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusPassed    EnrollmentStatus = "PASSED"
	EnrollmentStatusFailed    EnrollmentStatus = "FAILED"
	EnrollmentStatusSuspended EnrollmentStatus = "SUSPENDED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
)

// EnrollmentStatuses lists every status in display order.
var EnrollmentStatuses = []EnrollmentStatus{
	EnrollmentStatusPending,
	EnrollmentStatusActive,
	EnrollmentStatusPassed,
	EnrollmentStatusFailed,
	EnrollmentStatusSuspended,
	EnrollmentStatusDropped,
}

// Valid reports whether the status is known.
func (s EnrollmentStatus) Valid() bool {
	for _, known := range EnrollmentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions may leave this status.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusPassed || s == EnrollmentStatusFailed
}

// Enrollment is keyed by (student, course).
type Enrollment struct {
	StudentID   string           `db:"student_id" json:"student_id"`
	CourseID    string           `db:"course_id" json:"course_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	CourseTitle  string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Limit     int
	Offset    int
}
