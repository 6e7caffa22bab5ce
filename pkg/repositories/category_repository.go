package repositories

import (
	"context"
	"fmt"

	"github.com/duitwise/duitwise-engine/pkg/models"
)

// CategoryRepository lists a user's spending categories. The analyzer uses
// category names to resolve entity mentions in free-form questions.
type CategoryRepository interface {
	ListCategories(ctx context.Context, userID string) ([]models.Category, error)
}

type categoryRepository struct {
	db Querier
}

// NewCategoryRepository creates a CategoryRepository over the pool.
func NewCategoryRepository(db Querier) CategoryRepository {
	return &categoryRepository{db: db}
}

var _ CategoryRepository = (*categoryRepository)(nil)

func (r *categoryRepository) ListCategories(ctx context.Context, userID string) ([]models.Category, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name
		FROM categories
		WHERE user_id = $1
		ORDER BY name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	return categories, nil
}
