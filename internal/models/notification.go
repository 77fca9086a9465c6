package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification types the engine inserts. Rendering and delivery belong to
// the notification subsystem.
const (
	NotificationLevelUp     = "level_up"
	NotificationBadgeEarned = "badge_earned"
)

// Notification is a record handed to the notification sink.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
