package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Leaderboard metrics.
const (
	MetricPoints    = "points"
	MetricJobs      = "jobs"
	MetricRatings   = "ratings"
	MetricReferrals = "referrals"
)

// Leaderboard timeframes.
const (
	TimeframeDaily   = "daily"
	TimeframeWeekly  = "weekly"
	TimeframeMonthly = "monthly"
	TimeframeAllTime = "all_time"
)

// Metrics and Timeframes list every valid value, in sweep order.
var (
	Metrics    = []string{MetricPoints, MetricJobs, MetricRatings, MetricReferrals}
	Timeframes = []string{TimeframeDaily, TimeframeWeekly, TimeframeMonthly, TimeframeAllTime}
)

// CacheTTL returns the maximum age at which a cached ranking is still served.
// Daily entries are written by the sweep but never read (always recomputed).
func CacheTTL(timeframe string) time.Duration {
	switch timeframe {
	case TimeframeDaily:
		return 15 * time.Minute
	case TimeframeWeekly:
		return time.Hour
	case TimeframeMonthly:
		return 6 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// TimeframeStart returns the start of the scoring window relative to now,
// or nil for all_time (no lower bound).
func TimeframeStart(timeframe string, now time.Time) *time.Time {
	var start time.Time
	switch timeframe {
	case TimeframeDaily:
		start = now.Add(-24 * time.Hour)
	case TimeframeWeekly:
		start = now.Add(-7 * 24 * time.Hour)
	case TimeframeMonthly:
		start = now.Add(-30 * 24 * time.Hour)
	default:
		return nil
	}
	return &start
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank        int             `json:"rank"`
	UserID      uuid.UUID       `json:"user_id"`
	DisplayName string          `json:"display_name"`
	Score       float64         `json:"score"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// LeaderboardCache is a materialized ranking for one
// (metric, timeframe, user_type, tenant) key. Derived data only: safe to
// drop and recompute at any time, never a source of truth.
type LeaderboardCache struct {
	Metric    string             `json:"metric"`
	Timeframe string             `json:"timeframe"`
	UserType  string             `json:"user_type"`
	TenantID  uuid.UUID          `json:"tenant_id"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ScoreRow is an unranked aggregate row produced by the read-model queries.
type ScoreRow struct {
	UserID uuid.UUID
	Score  float64
}

// UserRank is a single user's position within a leaderboard. TotalUsers is
// the size of the ranked window the rank was computed over (boards keep the
// top 1000 entries), not the whole user population.
type UserRank struct {
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	TotalUsers int     `json:"total_users"`
}
