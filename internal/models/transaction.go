package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Point transaction actions. Base actions are triggered by domain events,
// milestone actions by exact count matches, and the reward actions attribute
// points granted by badges, challenges, and level-ups.
const (
	ActionJobPosted              = "job_posted"
	ActionJobCompleted           = "job_completed"
	ActionRatingSubmitted        = "rating_submitted"
	ActionReferralCompleted      = "referral_completed"
	ActionProfileCompleted       = "profile_completed"
	ActionCertificationCompleted = "certification_completed"

	ActionFirstJobPosted    = "first_job_posted"
	ActionJobsPosted10      = "jobs_posted_10"
	ActionJobsPosted50      = "jobs_posted_50"
	ActionFirstJobCompleted = "first_job_completed"
	ActionJobsCompleted10   = "jobs_completed_10"
	ActionJobsCompleted50   = "jobs_completed_50"
	ActionFirstReferral     = "first_referral"
	ActionReferrals10       = "referrals_10"
	ActionReferrals50       = "referrals_50"
	ActionFirstRating       = "first_rating"
	ActionRatings10         = "ratings_10"
	ActionRatings50         = "ratings_50"

	ActionBadgeReward     = "badge_reward"
	ActionChallengeReward = "challenge_reward"
	ActionLevelReward     = "level_reward"
)

// actionPoints is the static action -> points table, distinct per user type.
// Zero means the action does not apply to that population.
var actionPoints = map[string]map[string]int{
	UserTypeCompany: {
		ActionJobPosted:         10,
		ActionJobCompleted:      25,
		ActionRatingSubmitted:   5,
		ActionReferralCompleted: 100,
		ActionProfileCompleted:  50,
		ActionFirstJobPosted:    25,
		ActionJobsPosted10:      100,
		ActionJobsPosted50:      500,
		ActionFirstJobCompleted: 25,
		ActionJobsCompleted10:   100,
		ActionJobsCompleted50:   500,
		ActionFirstReferral:     50,
		ActionReferrals10:       250,
		ActionReferrals50:       1000,
		ActionFirstRating:       10,
		ActionRatings10:         50,
		ActionRatings50:         200,
	},
	UserTypeProvider: {
		ActionJobCompleted:           50,
		ActionReferralCompleted:      100,
		ActionProfileCompleted:       75,
		ActionCertificationCompleted: 600,
		ActionFirstJobCompleted:      50,
		ActionJobsCompleted10:        200,
		ActionJobsCompleted50:        1000,
		ActionFirstReferral:          50,
		ActionReferrals10:            250,
		ActionReferrals50:            1000,
		ActionFirstRating:            15,
		ActionRatings10:              75,
		ActionRatings50:              300,
	},
}

// PointsFor resolves the static point value for an action and user type.
// Returns 0 when the action is unknown or does not apply to the population.
func PointsFor(userType, action string) int {
	return actionPoints[userType][action]
}

// PointTransaction is one immutable ledger entry. The full ledger for a user
// must always sum to Account.TotalPoints.
type PointTransaction struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	UserType  string          `json:"user_type"`
	Points    int             `json:"points"`
	Action    string          `json:"action"`
	SourceID  *uuid.UUID      `json:"source_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
