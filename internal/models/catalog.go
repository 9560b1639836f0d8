package models

// Category groups courses. Category CRUD lives outside this service.
type Category struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Tag labels courses.
type Tag struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Prerequisite is a directed edge: TargetCourseID requires PrerequisiteCourseID.
type Prerequisite struct {
	TargetCourseID       string `db:"target_course_id" json:"target_course_id"`
	PrerequisiteCourseID string `db:"prerequisite_course_id" json:"prerequisite_course_id"`
}
