package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
)

// ScheduleRepository persists course schedules and their weekly sessions.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a schedule with its sessions.
func (r *ScheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	target := r.exec(exec)
	const query = `INSERT INTO schedules (id, start_date, end_date) VALUES (:id, :start_date, :end_date)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, schedule); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return r.insertSessions(ctx, target, schedule)
}

// Replace overwrites the dates and the full session set of an existing schedule.
func (r *ScheduleRepository) Replace(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	target := r.exec(exec)
	const query = `UPDATE schedules SET start_date = :start_date, end_date = :end_date WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, target, query, schedule); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if _, err := target.ExecContext(ctx, `DELETE FROM schedule_sessions WHERE schedule_id = $1`, schedule.ID); err != nil {
		return fmt.Errorf("clear schedule sessions: %w", err)
	}
	return r.insertSessions(ctx, target, schedule)
}

// FindByID returns a schedule with its sessions ordered by day and start time.
func (r *ScheduleRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	target := r.exec(exec)
	var schedule models.Schedule
	if err := sqlx.GetContext(ctx, target, &schedule, `SELECT id, start_date, end_date FROM schedules WHERE id = $1`, id); err != nil {
		return nil, err
	}
	const sessionsQuery = `SELECT id, schedule_id, day_of_week, start_time, end_time, location
FROM schedule_sessions WHERE schedule_id = $1 ORDER BY day_of_week, start_time`
	if err := sqlx.SelectContext(ctx, target, &schedule.Sessions, sessionsQuery, id); err != nil {
		return nil, fmt.Errorf("list schedule sessions: %w", err)
	}
	return &schedule, nil
}

func (r *ScheduleRepository) insertSessions(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	const query = `INSERT INTO schedule_sessions (id, schedule_id, day_of_week, start_time, end_time, location)
VALUES (:id, :schedule_id, :day_of_week, :start_time, :end_time, :location)`
	for i := range schedule.Sessions {
		session := &schedule.Sessions[i]
		if session.ID == "" {
			session.ID = uuid.NewString()
		}
		session.ScheduleID = schedule.ID
		if _, err := sqlx.NamedExecContext(ctx, exec, query, session); err != nil {
			return fmt.Errorf("create schedule session: %w", err)
		}
	}
	return nil
}
