package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glimra/backend/internal/models"
)

// BadgeRepo owns the badge catalog reads and user_badges awards.
type BadgeRepo struct {
	pool *pgxpool.Pool
}

func NewBadgeRepo(pool *pgxpool.Pool) *BadgeRepo {
	return &BadgeRepo{pool: pool}
}

const badgeColumns = `id, code, name, description, user_type, criteria, points_reward, created_at`

func scanBadge(row interface{ Scan(...any) error }) (*models.Badge, error) {
	var b models.Badge
	var criteria []byte
	if err := row.Scan(&b.ID, &b.Code, &b.Name, &b.Description, &b.UserType, &criteria, &b.PointsReward, &b.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(criteria, &b.Criteria); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BadgeRepo) GetBadge(ctx context.Context, id uuid.UUID) (*models.Badge, error) {
	return scanBadge(r.pool.QueryRow(ctx, `SELECT `+badgeColumns+` FROM badges WHERE id = $1`, id))
}

func (r *BadgeRepo) GetBadgeByCode(ctx context.Context, code string) (*models.Badge, error) {
	return scanBadge(r.pool.QueryRow(ctx, `SELECT `+badgeColumns+` FROM badges WHERE code = $1`, code))
}

// ListByCriteriaType returns badges of a user type whose criteria match one
// of the given types. Used by the event layer to pick which badges to check
// after a trigger.
func (r *BadgeRepo) ListByCriteriaType(ctx context.Context, userType string, criteriaTypes []string) ([]*models.Badge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+badgeColumns+` FROM badges
		WHERE user_type = $1 AND criteria->>'type' = ANY($2)
		ORDER BY created_at ASC
	`, userType, criteriaTypes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (r *BadgeRepo) HasBadge(ctx context.Context, userID, badgeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM user_badges WHERE user_id = $1 AND badge_id = $2)
	`, userID, badgeID).Scan(&exists)
	return exists, err
}

// InsertUserBadge awards a badge at most once. The unique constraint on
// (user_id, badge_id) plus ON CONFLICT DO NOTHING makes the award race-free;
// inserted reports whether this call created the row.
func (r *BadgeRepo) InsertUserBadge(ctx context.Context, ub *models.UserBadge) (inserted bool, err error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_id, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, ub.UserID, ub.BadgeID, ub.Metadata)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListEarned returns a user's badges with definitions, newest first.
func (r *BadgeRepo) ListEarned(ctx context.Context, userID uuid.UUID) ([]*models.EarnedBadge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.code, b.name, b.description, b.user_type, b.criteria, b.points_reward, b.created_at, ub.earned_at
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		WHERE ub.user_id = $1
		ORDER BY ub.earned_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EarnedBadge
	for rows.Next() {
		var e models.EarnedBadge
		var criteria []byte
		if err := rows.Scan(&e.Badge.ID, &e.Badge.Code, &e.Badge.Name, &e.Badge.Description, &e.Badge.UserType, &criteria, &e.Badge.PointsReward, &e.Badge.CreatedAt, &e.EarnedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(criteria, &e.Badge.Criteria); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
