package models

import (
	"time"

	"github.com/google/uuid"
)

// Challenge lifecycle statuses. Transitions are controlled by administrative
// tooling; the engine only reads them.
const (
	ChallengeStatusDraft     = "draft"
	ChallengeStatusActive    = "active"
	ChallengeStatusCompleted = "completed"
	ChallengeStatusCancelled = "cancelled"
)

// ChallengeCriteria defines what a participant must accumulate to complete
// the challenge. Type names the tracked quantity (jobs, points, ...);
// Target is copied into each participant's progress record on join.
type ChallengeCriteria struct {
	Type   string `json:"type"`
	Target int    `json:"target"`
}

// Challenge is a time-boxed objective with configurable rewards.
type Challenge struct {
	ID          uuid.UUID         `json:"id"`
	TenantID    uuid.UUID         `json:"tenant_id"`
	UserType    string            `json:"user_type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	StartDate   time.Time         `json:"start_date"`
	EndDate     time.Time         `json:"end_date"`
	Criteria    ChallengeCriteria `json:"criteria"`
	Rewards     []Reward          `json:"rewards"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// UserChallenge tracks one user's progress in a challenge. Completed is
// terminal: once true, progress never changes again.
type UserChallenge struct {
	UserID      uuid.UUID  `json:"user_id"`
	ChallengeID uuid.UUID  `json:"challenge_id"`
	Progress    int        `json:"progress"`
	Target      int        `json:"target"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
}

// ChallengeStats is the participation aggregate for one challenge.
type ChallengeStats struct {
	TotalParticipants int     `json:"total_participants"`
	CompletedCount    int     `json:"completed_count"`
	CompletionRate    float64 `json:"completion_rate"`
}
