package dto

// UpdateEnrollmentRequest moves an enrollment to a new status.
type UpdateEnrollmentRequest struct {
	Status string `json:"status" validate:"omitempty,oneof=PENDING ACTIVE PASSED FAILED SUSPENDED DROPPED"`
}

// EnrollmentQuery holds list parameters from the query string.
type EnrollmentQuery struct {
	StudentID string `form:"studentId" validate:"omitempty,uuid"`
	CourseID  string `form:"courseId" validate:"omitempty,uuid"`
	Status    string `form:"status" validate:"omitempty,oneof=PENDING ACTIVE PASSED FAILED SUSPENDED DROPPED"`
	Limit     int    `form:"limit" validate:"gte=0"`
	Offset    int    `form:"offset" validate:"gte=0"`
}
