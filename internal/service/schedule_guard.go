package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

// DateGuard decides whether a course has ended relative to the current calendar date.
type DateGuard struct {
	now func() time.Time
	loc *time.Location
}

// NewDateGuard builds a guard for the named IANA timezone. An empty name means UTC.
func NewDateGuard(timezone string) (*DateGuard, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load enrollment timezone %q: %w", timezone, err)
		}
	}
	return &DateGuard{now: time.Now, loc: loc}, nil
}

// Today returns the current calendar date at midnight UTC.
func (g *DateGuard) Today() time.Time {
	y, m, d := g.now().In(g.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CourseEnded reports whether today is strictly after the schedule end date.
// Courses without a schedule or end date never end.
func (g *DateGuard) CourseEnded(schedule *models.Schedule) bool {
	if schedule == nil || schedule.EndDate.IsZero() {
		return false
	}
	y, m, d := schedule.EndDate.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return g.Today().After(end)
}

// BuildSchedule converts a schedule payload into a model, checking date order and session times.
func BuildSchedule(req *dto.ScheduleRequest) (*models.Schedule, error) {
	if req == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule is required")
	}
	start, err := time.Parse(models.DateLayout, req.StartDate)
	if err != nil {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "invalid start date %q", req.StartDate)
	}
	end, err := time.Parse(models.DateLayout, req.EndDate)
	if err != nil {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "invalid end date %q", req.EndDate)
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule end date must not be before start date")
	}

	schedule := &models.Schedule{StartDate: start, EndDate: end, Sessions: make([]models.ScheduleSession, 0, len(req.Sessions))}
	for i, s := range req.Sessions {
		if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "session %d: day of week must be between 0 and 6", i)
		}
		from, err := time.Parse(models.TimeLayout, s.StartTime)
		if err != nil {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "session %d: invalid start time %q", i, s.StartTime)
		}
		to, err := time.Parse(models.TimeLayout, s.EndTime)
		if err != nil {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "session %d: invalid end time %q", i, s.EndTime)
		}
		if !to.After(from) {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "session %d: end time must be after start time", i)
		}
		schedule.Sessions = append(schedule.Sessions, models.ScheduleSession{
			DayOfWeek: s.DayOfWeek,
			StartTime: from.Format(models.TimeLayout),
			EndTime:   to.Format(models.TimeLayout),
			Location:  s.Location,
		})
	}
	return schedule, nil
}
