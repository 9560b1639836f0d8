package dto

// ScheduleRequest describes a course schedule. Dates use YYYY-MM-DD.
type ScheduleRequest struct {
	StartDate string           `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string           `json:"end_date" validate:"required,datetime=2006-01-02"`
	Sessions  []SessionRequest `json:"sessions" validate:"dive"`
}

// SessionRequest is one weekly session. DayOfWeek runs from 0 (Monday) to 6 (Sunday).
type SessionRequest struct {
	DayOfWeek int    `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
	Location  string `json:"location" validate:"max=200"`
}

// CreateCourseRequest is the payload for creating a course.
type CreateCourseRequest struct {
	Title           string           `json:"title" validate:"required,max=200"`
	Description     string           `json:"description" validate:"max=5000"`
	MaxCapacity     *int             `json:"max_capacity" validate:"omitempty,gte=0"`
	CategoryID      string           `json:"category_id" validate:"required,uuid"`
	TagIDs          []string         `json:"tag_ids"`
	PrerequisiteIDs []string         `json:"prerequisite_ids"`
	Schedule        *ScheduleRequest `json:"schedule" validate:"required"`
}

// UpdateCourseRequest is a patch. Nil fields are left untouched and a
// non-nil slice replaces the whole set.
type UpdateCourseRequest struct {
	Title           *string          `json:"title" validate:"omitempty,max=200"`
	Description     *string          `json:"description" validate:"omitempty,max=5000"`
	MaxCapacity     *int             `json:"max_capacity" validate:"omitempty,gte=0"`
	CategoryID      *string          `json:"category_id" validate:"omitempty,uuid"`
	TagIDs          []string         `json:"tag_ids"`
	PrerequisiteIDs []string         `json:"prerequisite_ids"`
	Schedule        *ScheduleRequest `json:"schedule"`
}

// AssignTutorRequest names the tutor user to add to a course.
type AssignTutorRequest struct {
	TutorID string `json:"tutor_id" validate:"required"`
}

// CourseQuery holds list parameters from the query string.
type CourseQuery struct {
	Title          string   `form:"title"`
	Status         string   `form:"status" validate:"omitempty,oneof=DRAFT PUBLISHED ARCHIVED"`
	CategoryID     string   `form:"categoryId" validate:"omitempty,uuid"`
	TutorProfileID string   `form:"tutorProfileId" validate:"omitempty,uuid"`
	TagIDs         []string `form:"tagIds"`
	SortBy         string   `form:"sortBy" validate:"omitempty,oneof=title created_at enrollments spots_left"`
	SortOrder      string   `form:"sortOrder" validate:"omitempty,oneof=asc desc ASC DESC"`
	Limit          int      `form:"limit" validate:"gte=0"`
	Offset         int      `form:"offset" validate:"gte=0"`
}
