package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
)

// ProfileRepository reads student and tutor profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const studentProfileSelect = `SELECT sp.id, sp.user_id, u.full_name, u.email, sp.created_at
FROM student_profiles sp JOIN users u ON u.id = sp.user_id`

const tutorProfileSelect = `SELECT tp.id, tp.user_id, u.full_name, tp.bio, tp.created_at
FROM tutor_profiles tp JOIN users u ON u.id = tp.user_id`

// FindStudentByID returns a student profile by profile id.
func (r *ProfileRepository) FindStudentByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.StudentProfile, error) {
	var profile models.StudentProfile
	if err := sqlx.GetContext(ctx, r.exec(exec), &profile, studentProfileSelect+` WHERE sp.id = $1`, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindStudentByUserID returns the student profile owned by a user.
func (r *ProfileRepository) FindStudentByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.StudentProfile, error) {
	var profile models.StudentProfile
	if err := sqlx.GetContext(ctx, r.exec(exec), &profile, studentProfileSelect+` WHERE sp.user_id = $1`, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindTutorByUserID returns the tutor profile owned by a user.
func (r *ProfileRepository) FindTutorByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.TutorProfile, error) {
	var profile models.TutorProfile
	if err := sqlx.GetContext(ctx, r.exec(exec), &profile, tutorProfileSelect+` WHERE tp.user_id = $1`, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}
