package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
)

// prerequisiteGraphLockKey identifies the advisory lock serialising prerequisite edge writes.
const prerequisiteGraphLockKey int64 = 0x4c4d535052455132

// PrerequisiteRepository persists the course prerequisite graph.
type PrerequisiteRepository struct {
	db *sqlx.DB
}

// NewPrerequisiteRepository constructs the repository.
func NewPrerequisiteRepository(db *sqlx.DB) *PrerequisiteRepository {
	return &PrerequisiteRepository{db: db}
}

func (r *PrerequisiteRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockGraph takes a transaction scoped advisory lock so that edge validation
// and insertion observe a stable edge set. Must run inside a transaction.
func (r *PrerequisiteRepository) LockGraph(ctx context.Context, exec sqlx.ExtContext) error {
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, prerequisiteGraphLockKey); err != nil {
		return fmt.Errorf("lock prerequisite graph: %w", err)
	}
	return nil
}

// ListEdges returns every prerequisite edge.
func (r *PrerequisiteRepository) ListEdges(ctx context.Context, exec sqlx.ExtContext) ([]models.Prerequisite, error) {
	const query = `SELECT target_course_id, prerequisite_course_id FROM course_prerequisites`
	var edges []models.Prerequisite
	if err := sqlx.SelectContext(ctx, r.exec(exec), &edges, query); err != nil {
		return nil, fmt.Errorf("list prerequisite edges: %w", err)
	}
	return edges, nil
}

// ListPrerequisiteIDs returns the ids of courses the target directly requires.
func (r *PrerequisiteRepository) ListPrerequisiteIDs(ctx context.Context, exec sqlx.ExtContext, targetCourseID string) ([]string, error) {
	const query = `SELECT prerequisite_course_id FROM course_prerequisites WHERE target_course_id = $1`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, targetCourseID); err != nil {
		return nil, fmt.Errorf("list prerequisite ids: %w", err)
	}
	return ids, nil
}

// Add inserts an edge. Duplicate edges are ignored.
func (r *PrerequisiteRepository) Add(ctx context.Context, exec sqlx.ExtContext, edge models.Prerequisite) error {
	const query = `INSERT INTO course_prerequisites (target_course_id, prerequisite_course_id)
VALUES (:target_course_id, :prerequisite_course_id) ON CONFLICT DO NOTHING`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, edge); err != nil {
		return fmt.Errorf("add prerequisite: %w", err)
	}
	return nil
}

// DeleteByTarget removes every edge where the course is the target.
func (r *PrerequisiteRepository) DeleteByTarget(ctx context.Context, exec sqlx.ExtContext, targetCourseID string) error {
	const query = `DELETE FROM course_prerequisites WHERE target_course_id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, targetCourseID); err != nil {
		return fmt.Errorf("delete prerequisites: %w", err)
	}
	return nil
}
