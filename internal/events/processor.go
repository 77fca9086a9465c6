package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glimra/backend/internal/leaderboard"
	"github.com/glimra/backend/internal/models"
	"github.com/glimra/backend/internal/points"
)

// Domain event kinds the engine reacts to. Producers call ProcessEvent after
// their own transaction commits; gamification state is eventually consistent
// with domain state, never transactionally coupled to it.
const (
	KindJobPosted         = "job_posted"
	KindJobCompleted      = "job_completed"
	KindRatingSubmitted   = "rating_submitted"
	KindReferralCompleted = "referral_completed"
	KindProfileCompleted  = "profile_completed"
)

// Kinds lists every accepted event kind.
var Kinds = []string{KindJobPosted, KindJobCompleted, KindRatingSubmitted, KindReferralCompleted, KindProfileCompleted}

// ErrUnknownKind rejects events outside the closed kind set.
var ErrUnknownKind = errors.New("unknown event kind")

// statsTimeout bounds milestone count queries; a timed-out check is skipped
// and recovers on the next event.
const statsTimeout = 3 * time.Second

// Event is one domain occurrence routed through the engine.
type Event struct {
	Kind     string          `json:"kind"`
	UserID   uuid.UUID       `json:"user_id"`
	UserType string          `json:"user_type"`
	TenantID uuid.UUID       `json:"tenant_id"`
	SourceID *uuid.UUID      `json:"source_id,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// PointsService is the ledger interface the processor mutates through.
type PointsService interface {
	AwardPoints(ctx context.Context, req points.AwardRequest) (*points.AwardResult, error)
	GetAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	RecalculateLevel(ctx context.Context, userID uuid.UUID) (int, error)
}

// BadgeService runs opportunistic badge checks and direct awards.
type BadgeService interface {
	CheckTrigger(ctx context.Context, userID uuid.UUID, userType string, tenantID uuid.UUID, criteriaTypes ...string)
	Award(ctx context.Context, userID uuid.UUID, userType string, tenantID uuid.UUID, code string) (bool, error)
}

// StatsRepo supplies the counts milestone detection re-queries.
type StatsRepo interface {
	PostedJobCount(ctx context.Context, userID uuid.UUID) (int, error)
	CompletedJobCount(ctx context.Context, userID uuid.UUID, userType string) (int, error)
	SubmittedReviewCount(ctx context.Context, userID uuid.UUID) (int, error)
	CompletedReferralCount(ctx context.Context, userID uuid.UUID) (int, error)
}

// LevelCatalog resolves level-up rewards.
type LevelCatalog interface {
	RewardsFor(ctx context.Context, level int, userType string) ([]models.Reward, error)
}

// Notifier hands level-up records to the notification sink.
type Notifier interface {
	Create(ctx context.Context, n *models.Notification) error
}

// EnqueueRefreshFunc enqueues a background leaderboard refresh. main wires
// this to river.Client.Insert.
type EnqueueRefreshFunc func(ctx context.Context, args leaderboard.RefreshArgs) error

// Processor dispatches domain events: base points, exact-count milestones,
// badge checks, level-up handling, and leaderboard refresh kickoff.
type Processor struct {
	points         PointsService
	badges         BadgeService
	stats          StatsRepo
	catalog        LevelCatalog
	notifier       Notifier
	enqueueRefresh EnqueueRefreshFunc
	log            *slog.Logger
}

func NewProcessor(pointsSvc PointsService, badgeSvc BadgeService, stats StatsRepo, catalog LevelCatalog, notifier Notifier, enqueueRefresh EnqueueRefreshFunc, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		points:         pointsSvc,
		badges:         badgeSvc,
		stats:          stats,
		catalog:        catalog,
		notifier:       notifier,
		enqueueRefresh: enqueueRefresh,
		log:            log,
	}
}

// milestone bonus actions by exact count, per event kind.
var milestoneActions = map[string]map[int]string{
	KindJobPosted: {
		1:  models.ActionFirstJobPosted,
		10: models.ActionJobsPosted10,
		50: models.ActionJobsPosted50,
	},
	KindJobCompleted: {
		1:  models.ActionFirstJobCompleted,
		10: models.ActionJobsCompleted10,
		50: models.ActionJobsCompleted50,
	},
	KindRatingSubmitted: {
		1:  models.ActionFirstRating,
		10: models.ActionRatings10,
		50: models.ActionRatings50,
	},
	KindReferralCompleted: {
		1:  models.ActionFirstReferral,
		10: models.ActionReferrals10,
		50: models.ActionReferrals50,
	},
}

// badge criteria types worth re-checking after each event kind.
var badgeTriggers = map[string][]string{
	KindJobPosted:         {models.CriteriaJobs, models.CriteriaPoints},
	KindJobCompleted:      {models.CriteriaJobs, models.CriteriaPoints, models.CriteriaStreak},
	KindRatingSubmitted:   {models.CriteriaRatings, models.CriteriaPoints},
	KindReferralCompleted: {models.CriteriaReferrals, models.CriteriaPoints},
	KindProfileCompleted:  {models.CriteriaPoints, models.CriteriaStreak},
}

// leaderboard metrics affected by each event kind.
var affectedMetrics = map[string][]string{
	KindJobPosted:         {models.MetricPoints, models.MetricJobs},
	KindJobCompleted:      {models.MetricPoints, models.MetricJobs},
	KindRatingSubmitted:   {models.MetricPoints, models.MetricRatings},
	KindReferralCompleted: {models.MetricPoints, models.MetricReferrals},
	KindProfileCompleted:  {models.MetricPoints},
}

// base ledger action per event kind.
var baseActions = map[string]string{
	KindJobPosted:         models.ActionJobPosted,
	KindJobCompleted:      models.ActionJobCompleted,
	KindRatingSubmitted:   models.ActionRatingSubmitted,
	KindReferralCompleted: models.ActionReferralCompleted,
	KindProfileCompleted:  models.ActionProfileCompleted,
}

// ProcessEvent runs the full reaction chain for one event. Only base-award
// ledger failures are returned; milestone, badge, level, and leaderboard
// steps log and continue so gamification never blocks the domain flow.
func (p *Processor) ProcessEvent(ctx context.Context, ev Event) error {
	action, ok := baseActions[ev.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}
	if !models.ValidUserType(ev.UserType) {
		return fmt.Errorf("unknown user type %q", ev.UserType)
	}

	// A missing account means a genuinely new user at level 1. Any other
	// read failure leaves the prior level unknown; defaulting it to 1 would
	// replay every level-up notification and reward on the next event, so
	// level finalization is skipped for this event instead.
	priorLevel := 1
	priorKnown := true
	if acct, err := p.points.GetAccount(ctx, ev.UserID); err == nil {
		priorLevel = acct.CurrentLevel
	} else if !errors.Is(err, points.ErrAccountNotFound) {
		priorKnown = false
		p.log.Warn("prior level read failed, skipping level finalization", "user_id", ev.UserID, "error", err)
	}

	if models.PointsFor(ev.UserType, action) > 0 {
		_, err := p.points.AwardPoints(ctx, points.AwardRequest{
			UserID:   ev.UserID,
			TenantID: ev.TenantID,
			UserType: ev.UserType,
			Action:   action,
			SourceID: ev.SourceID,
			Metadata: ev.Metadata,
		})
		if err != nil {
			return fmt.Errorf("base award for %s: %w", ev.Kind, err)
		}
	}

	p.checkMilestones(ctx, ev)
	p.badges.CheckTrigger(ctx, ev.UserID, ev.UserType, ev.TenantID, badgeTriggers[ev.Kind]...)
	if priorKnown {
		p.finalizeLevel(ctx, ev, priorLevel)
	}
	p.kickoffRefresh(ctx, ev)
	return nil
}

// checkMilestones re-queries the relevant count and awards the bonus action
// when the count exactly equals a milestone value. A missed or duplicated
// domain event therefore skips the milestone; the count match is exact by
// design of the original reward rules.
func (p *Processor) checkMilestones(ctx context.Context, ev Event) {
	actions := milestoneActions[ev.Kind]
	if len(actions) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	count, err := p.milestoneCount(cctx, ev)
	if err != nil {
		p.log.Warn("milestone check skipped", "kind", ev.Kind, "user_id", ev.UserID, "error", err)
		return
	}
	action, ok := actions[count]
	if !ok {
		return
	}
	if models.PointsFor(ev.UserType, action) <= 0 {
		return
	}
	_, err = p.points.AwardPoints(ctx, points.AwardRequest{
		UserID:   ev.UserID,
		TenantID: ev.TenantID,
		UserType: ev.UserType,
		Action:   action,
		SourceID: ev.SourceID,
	})
	if err != nil {
		p.log.Error("milestone award failed", "action", action, "user_id", ev.UserID, "error", err)
	}
}

func (p *Processor) milestoneCount(ctx context.Context, ev Event) (int, error) {
	switch ev.Kind {
	case KindJobPosted:
		return p.stats.PostedJobCount(ctx, ev.UserID)
	case KindJobCompleted:
		return p.stats.CompletedJobCount(ctx, ev.UserID, ev.UserType)
	case KindRatingSubmitted:
		return p.stats.SubmittedReviewCount(ctx, ev.UserID)
	case KindReferralCompleted:
		return p.stats.CompletedReferralCount(ctx, ev.UserID)
	default:
		return 0, nil
	}
}

// finalizeLevel recomputes the level after all awards and, when it rose,
// inserts a notification and applies the catalog rewards for each level
// gained.
func (p *Processor) finalizeLevel(ctx context.Context, ev Event, priorLevel int) {
	newLevel, err := p.points.RecalculateLevel(ctx, ev.UserID)
	if err != nil {
		p.log.Warn("level recompute failed", "user_id", ev.UserID, "error", err)
		return
	}
	if newLevel <= priorLevel {
		return
	}

	meta, _ := json.Marshal(map[string]int{"level": newLevel})
	if err := p.notifier.Create(ctx, &models.Notification{
		ID:       uuid.New(),
		UserID:   ev.UserID,
		Type:     models.NotificationLevelUp,
		Title:    "Level up",
		Body:     fmt.Sprintf("You reached level %d", newLevel),
		Metadata: meta,
	}); err != nil {
		p.log.Warn("level-up notification insert failed", "user_id", ev.UserID, "error", err)
	}

	for level := priorLevel + 1; level <= newLevel; level++ {
		rewards, err := p.catalog.RewardsFor(ctx, level, ev.UserType)
		if err != nil {
			p.log.Warn("level reward lookup failed", "level", level, "error", err)
			continue
		}
		p.applyLevelRewards(ctx, ev, level, rewards)
	}
}

func (p *Processor) applyLevelRewards(ctx context.Context, ev Event, level int, rewards []models.Reward) {
	for _, rw := range rewards {
		switch rw.Type {
		case models.RewardPoints:
			pts := rw.Points
			_, err := p.points.AwardPoints(ctx, points.AwardRequest{
				UserID:         ev.UserID,
				TenantID:       ev.TenantID,
				UserType:       ev.UserType,
				Action:         models.ActionLevelReward,
				OverridePoints: &pts,
			})
			if err != nil {
				p.log.Error("level point reward failed", "level", level, "user_id", ev.UserID, "error", err)
			}
		case models.RewardBadge:
			if _, err := p.badges.Award(ctx, ev.UserID, ev.UserType, ev.TenantID, rw.BadgeCode); err != nil {
				p.log.Error("level badge reward failed", "level", level, "badge", rw.BadgeCode, "error", err)
			}
		case models.RewardDiscount, models.RewardFeature:
			p.log.Info("level reward requires external handling", "level", level, "type", rw.Type, "user_id", ev.UserID)
		default:
			p.log.Warn("unknown level reward type", "level", level, "type", rw.Type)
		}
	}
}

// kickoffRefresh enqueues cache refreshes for the affected metrics on the
// cacheable timeframes. Daily boards are always computed live, so they need
// no refresh. Enqueue failures are logged and swallowed.
func (p *Processor) kickoffRefresh(ctx context.Context, ev Event) {
	if p.enqueueRefresh == nil {
		return
	}
	for _, metric := range affectedMetrics[ev.Kind] {
		for _, timeframe := range []string{models.TimeframeWeekly, models.TimeframeMonthly, models.TimeframeAllTime} {
			args := leaderboard.RefreshArgs{
				Metric:    metric,
				Timeframe: timeframe,
				UserType:  ev.UserType,
				TenantID:  ev.TenantID,
			}
			if err := p.enqueueRefresh(ctx, args); err != nil {
				p.log.Warn("leaderboard refresh enqueue failed", "metric", metric, "timeframe", timeframe, "error", err)
			}
		}
	}
}
