package service

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

func fixedGuard(t *testing.T, tz string, now time.Time) *DateGuard {
	t.Helper()
	guard, err := NewDateGuard(tz)
	require.NoError(t, err)
	guard.now = func() time.Time { return now }
	return guard
}

func scheduleEnding(date string) *models.Schedule {
	end, _ := time.Parse(models.DateLayout, date)
	return &models.Schedule{StartDate: end.AddDate(0, -1, 0), EndDate: end}
}

func TestCourseEndedBoundary(t *testing.T) {
	schedule := scheduleEnding("2026-03-10")

	onEndDate := fixedGuard(t, "UTC", time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC))
	assert.False(t, onEndDate.CourseEnded(schedule))

	dayAfter := fixedGuard(t, "UTC", time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC))
	assert.True(t, dayAfter.CourseEnded(schedule))
}

func TestCourseEndedUsesConfiguredTimezone(t *testing.T) {
	schedule := scheduleEnding("2026-03-10")
	// 2026-03-10 20:00 UTC is already 2026-03-11 in Jakarta.
	now := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)

	assert.False(t, fixedGuard(t, "UTC", now).CourseEnded(schedule))
	assert.True(t, fixedGuard(t, "Asia/Jakarta", now).CourseEnded(schedule))
}

func TestCourseEndedWithoutSchedule(t *testing.T) {
	guard := fixedGuard(t, "", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, guard.CourseEnded(nil))
	assert.False(t, guard.CourseEnded(&models.Schedule{}))
}

func TestNewDateGuardRejectsUnknownZone(t *testing.T) {
	_, err := NewDateGuard("Mars/Olympus")
	assert.Error(t, err)
}

func TestBuildSchedule(t *testing.T) {
	schedule, err := BuildSchedule(&dto.ScheduleRequest{
		StartDate: "2026-01-05",
		EndDate:   "2026-03-27",
		Sessions:  []dto.SessionRequest{{DayOfWeek: 2, StartTime: "09:00", EndTime: "10:30", Location: "Lab 1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 27, 0, 0, 0, 0, time.UTC), schedule.EndDate)
	require.Len(t, schedule.Sessions, 1)
	assert.Equal(t, time.Wednesday, schedule.Sessions[0].Weekday())
}

func TestBuildScheduleRejectsInvalidInput(t *testing.T) {
	cases := map[string]*dto.ScheduleRequest{
		"missing":         nil,
		"bad start":       {StartDate: "05/01/2026", EndDate: "2026-03-27"},
		"end before":      {StartDate: "2026-03-27", EndDate: "2026-01-05"},
		"bad day":         {StartDate: "2026-01-05", EndDate: "2026-03-27", Sessions: []dto.SessionRequest{{DayOfWeek: 7, StartTime: "09:00", EndTime: "10:00"}}},
		"bad time":        {StartDate: "2026-01-05", EndDate: "2026-03-27", Sessions: []dto.SessionRequest{{DayOfWeek: 1, StartTime: "9am", EndTime: "10:00"}}},
		"end before time": {StartDate: "2026-01-05", EndDate: "2026-03-27", Sessions: []dto.SessionRequest{{DayOfWeek: 1, StartTime: "10:00", EndTime: "10:00"}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildSchedule(req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrValidation))
		})
	}
}
