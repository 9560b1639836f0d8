package models

import "time"

// CourseStatus represents the lifecycle of a course.
type CourseStatus string

const (
	CourseStatusDraft     CourseStatus = "DRAFT"
	CourseStatusPublished CourseStatus = "PUBLISHED"
	CourseStatusArchived  CourseStatus = "ARCHIVED"
)

// Valid reports whether the status is known.
func (s CourseStatus) Valid() bool {
	switch s {
	case CourseStatusDraft, CourseStatusPublished, CourseStatusArchived:
		return true
	}
	return false
}

// Course is a catalog entry.
type Course struct {
	ID          string       `db:"id" json:"id"`
	Title       string       `db:"title" json:"title"`
	Description string       `db:"description" json:"description"`
	MaxCapacity *int         `db:"max_capacity" json:"max_capacity,omitempty"`
	Status      CourseStatus `db:"status" json:"status"`
	CategoryID  string       `db:"category_id" json:"category_id"`
	ScheduleID  string       `db:"schedule_id" json:"schedule_id"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// HasCapacityLimit reports whether enrollments are capped. Nil and zero mean unlimited.
func (c Course) HasCapacityLimit() bool {
	return c.MaxCapacity != nil && *c.MaxCapacity > 0
}

// CourseRef is a lightweight course reference.
type CourseRef struct {
	ID    string `db:"id" json:"id"`
	Title string `db:"title" json:"title"`
}

// CourseSummary is a list row with aggregate enrollment figures.
type CourseSummary struct {
	Course
	CategoryName    string `db:"category_name" json:"category_name"`
	EnrollmentCount int    `db:"enrollment_count" json:"enrollment_count"`
	SpotsLeft       *int   `db:"spots_left" json:"spots_left,omitempty"`
}

// CourseDetail is the full read model of a course.
type CourseDetail struct {
	Course
	Category        *Category      `json:"category,omitempty"`
	Schedule        *Schedule      `json:"schedule,omitempty"`
	Tags            []Tag          `json:"tags"`
	Tutors          []TutorProfile `json:"tutors"`
	Prerequisites   []CourseRef    `json:"prerequisites"`
	EnrollmentCount int            `json:"enrollment_count"`
	SpotsLeft       *int           `json:"spots_left,omitempty"`
}

// TaughtBy reports whether the user holds a tutor profile assigned to the course.
func (d *CourseDetail) TaughtBy(userID string) bool {
	if d == nil || userID == "" {
		return false
	}
	for _, t := range d.Tutors {
		if t.UserID == userID {
			return true
		}
	}
	return false
}

// CourseFilter captures list criteria.
type CourseFilter struct {
	Title          string
	Status         CourseStatus
	CategoryID     string
	TutorProfileID string
	TagIDs         []string
	SortBy         string
	SortOrder      string
	Limit          int
	Offset         int
}
