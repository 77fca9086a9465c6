package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Badge criteria types. The set is closed: evaluation switches over these
// and treats anything else (including "custom") as not eligible.
const (
	CriteriaPoints    = "points"
	CriteriaJobs      = "jobs"
	CriteriaRatings   = "ratings"
	CriteriaStreak    = "streak"
	CriteriaReferrals = "referrals"
	CriteriaCustom    = "custom"
)

// BadgeCriteria describes when a badge becomes earnable. Threshold is the
// required count (or point total); Exact and MinCount refine the "ratings"
// type; Custom carries opaque metadata for externally evaluated badges.
type BadgeCriteria struct {
	Type      string          `json:"type"`
	Threshold int             `json:"threshold"`
	Exact     *float64        `json:"exact,omitempty"`
	MinCount  *int            `json:"min_count,omitempty"`
	Custom    json.RawMessage `json:"custom,omitempty"`
}

// Badge is an administrative badge definition.
type Badge struct {
	ID           uuid.UUID     `json:"id"`
	Code         string        `json:"code"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	UserType     string        `json:"user_type"`
	Criteria     BadgeCriteria `json:"criteria"`
	PointsReward int           `json:"points_reward"`
	CreatedAt    time.Time     `json:"created_at"`
}

// UserBadge records that a user earned a badge. At most one row exists per
// (user_id, badge_id); the table carries a unique constraint on the pair.
type UserBadge struct {
	UserID   uuid.UUID       `json:"user_id"`
	BadgeID  uuid.UUID       `json:"badge_id"`
	EarnedAt time.Time       `json:"earned_at"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// EarnedBadge joins a badge definition with the earning record for reads.
type EarnedBadge struct {
	Badge    Badge     `json:"badge"`
	EarnedAt time.Time `json:"earned_at"`
}
