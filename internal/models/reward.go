package models

import "encoding/json"

// Reward types shared by badge, challenge, and level rewards.
// "discount" and "feature" are recorded but applied by other subsystems.
const (
	RewardPoints   = "points"
	RewardBadge    = "badge"
	RewardDiscount = "discount"
	RewardFeature  = "feature"
)

// Reward is one entry of a reward list. Which fields are meaningful depends
// on Type: Points for "points", BadgeCode for "badge", Value for the rest.
type Reward struct {
	Type      string          `json:"type"`
	Points    int             `json:"points,omitempty"`
	BadgeCode string          `json:"badge_code,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
}
