package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glimra/backend/internal/models"
)

// ChallengeRepo owns challenge catalog reads and user_challenges progress.
type ChallengeRepo struct {
	pool *pgxpool.Pool
}

func NewChallengeRepo(pool *pgxpool.Pool) *ChallengeRepo {
	return &ChallengeRepo{pool: pool}
}

const challengeColumns = `id, tenant_id, user_type, title, description, start_date, end_date, criteria, rewards, status, created_at`

func scanChallenge(row interface{ Scan(...any) error }) (*models.Challenge, error) {
	var c models.Challenge
	var criteria, rewards []byte
	if err := row.Scan(&c.ID, &c.TenantID, &c.UserType, &c.Title, &c.Description, &c.StartDate, &c.EndDate, &criteria, &rewards, &c.Status, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(criteria, &c.Criteria); err != nil {
		return nil, err
	}
	if len(rewards) > 0 {
		if err := json.Unmarshal(rewards, &c.Rewards); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func (r *ChallengeRepo) GetChallenge(ctx context.Context, id uuid.UUID) (*models.Challenge, error) {
	return scanChallenge(r.pool.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id))
}

// ListActive returns challenges of a user type whose status is active and
// whose window contains now.
func (r *ChallengeRepo) ListActive(ctx context.Context, userType string, tenantID uuid.UUID, now time.Time) ([]*models.Challenge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+challengeColumns+` FROM challenges
		WHERE user_type = $1 AND tenant_id = $2 AND status = 'active'
		  AND start_date <= $3 AND end_date >= $3
		ORDER BY end_date ASC
	`, userType, tenantID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *ChallengeRepo) GetUserChallenge(ctx context.Context, userID, challengeID uuid.UUID) (*models.UserChallenge, error) {
	var uc models.UserChallenge
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, challenge_id, progress, target, completed, completed_at, started_at
		FROM user_challenges WHERE user_id = $1 AND challenge_id = $2
	`, userID, challengeID).Scan(&uc.UserID, &uc.ChallengeID, &uc.Progress, &uc.Target, &uc.Completed, &uc.CompletedAt, &uc.StartedAt)
	if err != nil {
		return nil, err
	}
	return &uc, nil
}

// CreateUserChallenge inserts a fresh progress record. The primary key on
// (user_id, challenge_id) rejects double joins; violations surface as
// pgconn.PgError 23505.
func (r *ChallengeRepo) CreateUserChallenge(ctx context.Context, uc *models.UserChallenge) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO user_challenges (user_id, challenge_id, progress, target, completed)
		VALUES ($1, $2, $3, $4, false)
		RETURNING started_at
	`, uc.UserID, uc.ChallengeID, uc.Progress, uc.Target).Scan(&uc.StartedAt)
}

// SetProgress stores a non-completing progress value. The completed guard
// keeps terminal records immutable.
func (r *ChallengeRepo) SetProgress(ctx context.Context, userID, challengeID uuid.UUID, progress int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_challenges SET progress = $3
		WHERE user_id = $1 AND challenge_id = $2 AND completed = false
	`, userID, challengeID, progress)
	return err
}

// Complete marks the record completed in a single conditional update.
// transitioned reports whether this call performed the transition; rewards
// must be applied only when it did, so a concurrent double-completion cannot
// double-award.
func (r *ChallengeRepo) Complete(ctx context.Context, userID, challengeID uuid.UUID, progress int) (transitioned bool, err error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_challenges SET progress = $3, completed = true, completed_at = now()
		WHERE user_id = $1 AND challenge_id = $2 AND completed = false
	`, userID, challengeID, progress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Stats aggregates participation for one challenge.
func (r *ChallengeRepo) Stats(ctx context.Context, challengeID uuid.UUID) (*models.ChallengeStats, error) {
	var s models.ChallengeStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE completed)
		FROM user_challenges WHERE challenge_id = $1
	`, challengeID).Scan(&s.TotalParticipants, &s.CompletedCount)
	if err != nil {
		return nil, err
	}
	if s.TotalParticipants > 0 {
		s.CompletionRate = float64(s.CompletedCount) / float64(s.TotalParticipants) * 100
	}
	return &s, nil
}
