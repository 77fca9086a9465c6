package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glimra/backend/internal/models"
)

// PointsRepo owns gamification_accounts and point_transactions.
type PointsRepo struct {
	pool *pgxpool.Pool
}

func NewPointsRepo(pool *pgxpool.Pool) *PointsRepo {
	return &PointsRepo{pool: pool}
}

// EnsureAccount creates the account row with a zero balance if it does not
// exist yet. Safe to call on every award.
func (r *PointsRepo) EnsureAccount(ctx context.Context, userID, tenantID uuid.UUID, userType string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO gamification_accounts (user_id, tenant_id, user_type, total_points, current_level)
		VALUES ($1, $2, $3, 0, 1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, tenantID, userType)
	return err
}

func (r *PointsRepo) GetAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, tenant_id, user_type, total_points, current_level, created_at, updated_at
		FROM gamification_accounts WHERE user_id = $1
	`, userID).Scan(&a.UserID, &a.TenantID, &a.UserType, &a.TotalPoints, &a.CurrentLevel, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ApplyAward increments total_points and appends the ledger row in one
// transaction, so the aggregate can never disagree with sum(ledger). The
// increment itself is a server-side atomic add, safe under concurrent
// awards. t.Points must be positive.
func (r *PointsRepo) ApplyAward(ctx context.Context, t *models.PointTransaction) (newTotal int, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		UPDATE gamification_accounts SET total_points = total_points + $1, updated_at = now()
		WHERE user_id = $2
		RETURNING total_points
	`, t.Points, t.UserID).Scan(&newTotal)
	if err != nil {
		return 0, err
	}
	if err := insertTransaction(ctx, tx, t); err != nil {
		return 0, err
	}
	return newTotal, tx.Commit(ctx)
}

// ApplyDeduction deducts and appends the negative ledger row in one
// transaction, if the balance covers it. t.Points must be negative.
// Returns pgx.ErrNoRows when the balance is insufficient.
func (r *PointsRepo) ApplyDeduction(ctx context.Context, t *models.PointTransaction) (newTotal int, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		UPDATE gamification_accounts SET total_points = total_points + $1, updated_at = now()
		WHERE user_id = $2 AND total_points + $1 >= 0
		RETURNING total_points
	`, t.Points, t.UserID).Scan(&newTotal)
	if err != nil {
		return 0, err
	}
	if err := insertTransaction(ctx, tx, t); err != nil {
		return 0, err
	}
	return newTotal, tx.Commit(ctx)
}

// RaiseLevel persists a recomputed level only when it is higher than the
// stored one. Concurrent awards may apply their level writes out of order;
// the guard keeps the stored level from moving backwards.
func (r *PointsRepo) RaiseLevel(ctx context.Context, userID uuid.UUID, level int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE gamification_accounts SET current_level = $2, updated_at = now()
		WHERE user_id = $1 AND current_level < $2
	`, userID, level)
	return err
}

// SetLevel persists a recomputed level unconditionally. Used after
// deductions, where the level may legitimately drop.
func (r *PointsRepo) SetLevel(ctx context.Context, userID uuid.UUID, level int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE gamification_accounts SET current_level = $2, updated_at = now()
		WHERE user_id = $1
	`, userID, level)
	return err
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t *models.PointTransaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO point_transactions (id, user_id, user_type, points, action, source_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, t.ID, t.UserID, t.UserType, t.Points, t.Action, t.SourceID, t.Metadata).Scan(&t.CreatedAt)
}

// HistoryFilter narrows and pages ledger reads.
type HistoryFilter struct {
	Action string
	Since  *time.Time
	Limit  int
	Offset int
}

// ListTransactions returns ledger entries for a user, newest first.
func (r *PointsRepo) ListTransactions(ctx context.Context, userID uuid.UUID, f HistoryFilter) ([]*models.PointTransaction, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, user_type, points, action, source_id, metadata, created_at
		FROM point_transactions
		WHERE user_id = $1
		  AND ($2 = '' OR action = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, userID, f.Action, f.Since, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PointTransaction
	for rows.Next() {
		var t models.PointTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.UserType, &t.Points, &t.Action, &t.SourceID, &t.Metadata, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// CountRecentTransactions counts ledger entries since the given time. Streak
// badge criteria use this as an activity-recency approximation.
func (r *PointsRepo) CountRecentTransactions(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM point_transactions WHERE user_id = $1 AND created_at >= $2
	`, userID, since).Scan(&n)
	return n, err
}
