package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glimra/backend/internal/models"
)

// NotificationRepo inserts records for the notification sink. Delivery is
// another subsystem's job.
type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, n.ID, n.UserID, n.Type, n.Title, n.Body, n.Metadata).Scan(&n.CreatedAt)
}
