package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glimra/backend/internal/models"
)

// StatsRepo issues read-only aggregate queries against the platform's
// booking, review, referral, and user tables. The engine never writes to
// these read models.
type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

// counterpartyColumn picks which side of a booking the user type occupies.
func counterpartyColumn(userType string) string {
	if userType == models.UserTypeProvider {
		return "provider_id"
	}
	return "company_id"
}

// PostedJobCount counts bookings a company has posted.
func (r *StatsRepo) PostedJobCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM bookings WHERE company_id = $1
	`, userID).Scan(&n)
	return n, err
}

// CompletedJobCount counts completed bookings scoped to the user's role.
func (r *StatsRepo) CompletedJobCount(ctx context.Context, userID uuid.UUID, userType string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM bookings WHERE `+counterpartyColumn(userType)+` = $1 AND status = 'completed'
	`, userID).Scan(&n)
	return n, err
}

// ReviewStats returns how many reviews name the user as the rated party and
// their average rating. Reviews reference bookings, so the rated party is
// resolved through the booking row.
func (r *StatsRepo) ReviewStats(ctx context.Context, userID uuid.UUID, userType string) (count int, avg float64, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(rv.id), COALESCE(AVG(rv.rating), 0)
		FROM reviews rv
		JOIN bookings b ON b.id = rv.booking_id
		WHERE b.`+counterpartyColumn(userType)+` = $1
	`, userID).Scan(&count, &avg)
	return count, avg, err
}

// SubmittedReviewCount counts reviews the user has written.
func (r *StatsRepo) SubmittedReviewCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM reviews WHERE reviewer_id = $1
	`, userID).Scan(&n)
	return n, err
}

// CompletedReferralCount counts completed referrals by referrer.
func (r *StatsRepo) CompletedReferralCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND status = 'completed'
	`, userID).Scan(&n)
	return n, err
}

// AggregateQuery scopes a leaderboard aggregate. Since nil means no lower
// time bound (all_time).
type AggregateQuery struct {
	UserType string
	TenantID uuid.UUID
	Since    *time.Time
	Limit    int
}

func (r *StatsRepo) scoreRows(ctx context.Context, sql string, args ...any) ([]models.ScoreRow, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ScoreRow
	for rows.Next() {
		var s models.ScoreRow
		if err := rows.Scan(&s.UserID, &s.Score); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TopPointEarners sums ledger points per user within the window.
func (r *StatsRepo) TopPointEarners(ctx context.Context, q AggregateQuery) ([]models.ScoreRow, error) {
	return r.scoreRows(ctx, `
		SELECT pt.user_id, SUM(pt.points)::float8 AS score
		FROM point_transactions pt
		JOIN gamification_accounts ga ON ga.user_id = pt.user_id
		WHERE pt.user_type = $1 AND ga.tenant_id = $2
		  AND ($3::timestamptz IS NULL OR pt.created_at >= $3)
		GROUP BY pt.user_id
		HAVING SUM(pt.points) > 0
		ORDER BY score DESC, pt.user_id ASC
		LIMIT $4
	`, q.UserType, q.TenantID, q.Since, q.Limit)
}

// TopJobCounts counts completed bookings per counterparty within the window.
func (r *StatsRepo) TopJobCounts(ctx context.Context, q AggregateQuery) ([]models.ScoreRow, error) {
	col := counterpartyColumn(q.UserType)
	return r.scoreRows(ctx, `
		SELECT `+col+`, COUNT(*)::float8 AS score
		FROM bookings
		WHERE tenant_id = $1 AND status = 'completed'
		  AND ($2::timestamptz IS NULL OR completed_at >= $2)
		GROUP BY `+col+`
		ORDER BY score DESC, `+col+` ASC
		LIMIT $3
	`, q.TenantID, q.Since, q.Limit)
}

// TopRatings averages review ratings per rated party within the window.
func (r *StatsRepo) TopRatings(ctx context.Context, q AggregateQuery) ([]models.ScoreRow, error) {
	col := counterpartyColumn(q.UserType)
	return r.scoreRows(ctx, `
		SELECT b.`+col+`, AVG(rv.rating)::float8 AS score
		FROM reviews rv
		JOIN bookings b ON b.id = rv.booking_id
		WHERE b.tenant_id = $1
		  AND ($2::timestamptz IS NULL OR rv.created_at >= $2)
		GROUP BY b.`+col+`
		ORDER BY score DESC, b.`+col+` ASC
		LIMIT $3
	`, q.TenantID, q.Since, q.Limit)
}

// TopReferrers counts completed referrals per referrer within the window.
func (r *StatsRepo) TopReferrers(ctx context.Context, q AggregateQuery) ([]models.ScoreRow, error) {
	return r.scoreRows(ctx, `
		SELECT rf.referrer_id, COUNT(*)::float8 AS score
		FROM referrals rf
		JOIN gamification_accounts ga ON ga.user_id = rf.referrer_id
		WHERE ga.user_type = $1 AND ga.tenant_id = $2 AND rf.status = 'completed'
		  AND ($3::timestamptz IS NULL OR rf.completed_at >= $3)
		GROUP BY rf.referrer_id
		ORDER BY score DESC, rf.referrer_id ASC
		LIMIT $4
	`, q.UserType, q.TenantID, q.Since, q.Limit)
}

// DisplayNames resolves display names from the user directory.
func (r *StatsRepo) DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, display_name FROM users WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make(map[uuid.UUID]string, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

// TenantIDs lists every tenant with at least one gamification account.
// The scheduler walks this set when refreshing caches.
func (r *StatsRepo) TenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM gamification_accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
