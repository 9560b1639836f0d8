package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-api/internal/models"
)

// CatalogRepository reads categories and tags owned by the catalog admin tools.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindCategoryByID returns a category by id.
func (r *CatalogRepository) FindCategoryByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Category, error) {
	const query = `SELECT id, name FROM categories WHERE id = $1`
	var category models.Category
	if err := sqlx.GetContext(ctx, r.exec(exec), &category, query, id); err != nil {
		return nil, err
	}
	return &category, nil
}

// FindTagsByIDs returns the tags that exist among ids.
func (r *CatalogRepository) FindTagsByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Tag, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, name FROM tags WHERE id = ANY($1) ORDER BY name`
	var tags []models.Tag
	if err := sqlx.SelectContext(ctx, r.exec(exec), &tags, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find tags: %w", err)
	}
	return tags, nil
}
