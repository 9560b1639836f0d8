package models

import "time"

// DateLayout is the wire and storage format of schedule dates.
const DateLayout = "2006-01-02"

// TimeLayout is the format of session start and end times.
const TimeLayout = "15:04"

// Schedule describes the running window of a course. Dates are inclusive.
type Schedule struct {
	ID        string            `db:"id" json:"id"`
	StartDate time.Time         `db:"start_date" json:"start_date"`
	EndDate   time.Time         `db:"end_date" json:"end_date"`
	Sessions  []ScheduleSession `db:"-" json:"sessions"`
}

// ScheduleSession is one weekly meeting. DayOfWeek runs from 0 (Monday) to 6 (Sunday).
type ScheduleSession struct {
	ID         string `db:"id" json:"id"`
	ScheduleID string `db:"schedule_id" json:"-"`
	DayOfWeek  int    `db:"day_of_week" json:"day_of_week"`
	StartTime  string `db:"start_time" json:"start_time"`
	EndTime    string `db:"end_time" json:"end_time"`
	Location   string `db:"location" json:"location"`
}

// Weekday converts the Monday based day index to time.Weekday.
func (s ScheduleSession) Weekday() time.Weekday {
	return time.Weekday((s.DayOfWeek + 1) % 7)
}
