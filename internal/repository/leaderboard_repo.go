package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glimra/backend/internal/models"
)

// LeaderboardRepo owns the leaderboard_cache table. Entries are stored as a
// single jsonb document per (metric, timeframe, user_type, tenant) key; the
// whole row is replaced on refresh.
type LeaderboardRepo struct {
	pool *pgxpool.Pool
}

func NewLeaderboardRepo(pool *pgxpool.Pool) *LeaderboardRepo {
	return &LeaderboardRepo{pool: pool}
}

func (r *LeaderboardRepo) Get(ctx context.Context, metric, timeframe, userType string, tenantID uuid.UUID) (*models.LeaderboardCache, error) {
	var c models.LeaderboardCache
	var entries []byte
	err := r.pool.QueryRow(ctx, `
		SELECT metric, timeframe, user_type, tenant_id, entries, updated_at
		FROM leaderboard_cache
		WHERE metric = $1 AND timeframe = $2 AND user_type = $3 AND tenant_id = $4
	`, metric, timeframe, userType, tenantID).Scan(&c.Metric, &c.Timeframe, &c.UserType, &c.TenantID, &entries, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(entries, &c.Entries); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *LeaderboardRepo) Upsert(ctx context.Context, c *models.LeaderboardCache) error {
	entries, err := json.Marshal(c.Entries)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO leaderboard_cache (metric, timeframe, user_type, tenant_id, entries, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (metric, timeframe, user_type, tenant_id)
		DO UPDATE SET entries = EXCLUDED.entries, updated_at = now()
	`, c.Metric, c.Timeframe, c.UserType, c.TenantID, entries)
	return err
}
