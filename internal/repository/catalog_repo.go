package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glimra/backend/internal/models"
)

// CatalogRepo reads the administrative level catalog. The engine never
// writes these rows.
type CatalogRepo struct {
	pool *pgxpool.Pool
}

func NewCatalogRepo(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

// ListLevels returns the level catalog for a user type, ascending by level
// number (and therefore by threshold).
func (r *CatalogRepo) ListLevels(ctx context.Context, userType string) ([]*models.Level, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_type, level_number, points_required, name, rewards
		FROM levels WHERE user_type = $1 ORDER BY level_number ASC
	`, userType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Level
	for rows.Next() {
		var l models.Level
		var rewards []byte
		if err := rows.Scan(&l.UserType, &l.LevelNumber, &l.PointsRequired, &l.Name, &rewards); err != nil {
			return nil, err
		}
		if len(rewards) > 0 {
			if err := json.Unmarshal(rewards, &l.Rewards); err != nil {
				return nil, err
			}
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}
