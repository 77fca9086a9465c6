package badges

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/glimra/backend/internal/models"
	"github.com/glimra/backend/internal/points"
)

// statsTimeout bounds each external aggregate query so a slow read model
// cannot stall event processing. A timed-out check is skipped and retried
// on the next trigger.
const statsTimeout = 3 * time.Second

// BadgeRepo is the badge catalog and award store interface.
type BadgeRepo interface {
	GetBadge(ctx context.Context, id uuid.UUID) (*models.Badge, error)
	GetBadgeByCode(ctx context.Context, code string) (*models.Badge, error)
	HasBadge(ctx context.Context, userID, badgeID uuid.UUID) (bool, error)
	InsertUserBadge(ctx context.Context, ub *models.UserBadge) (bool, error)
	ListByCriteriaType(ctx context.Context, userType string, criteriaTypes []string) ([]*models.Badge, error)
	ListEarned(ctx context.Context, userID uuid.UUID) ([]*models.EarnedBadge, error)
}

// StatsRepo reads the external booking/review/referral aggregates.
type StatsRepo interface {
	CompletedJobCount(ctx context.Context, userID uuid.UUID, userType string) (int, error)
	ReviewStats(ctx context.Context, userID uuid.UUID, userType string) (int, float64, error)
	CompletedReferralCount(ctx context.Context, userID uuid.UUID) (int, error)
}

// LedgerReader counts recent ledger activity for streak criteria.
type LedgerReader interface {
	CountRecentTransactions(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

// PointsService awards the badge's point reward and reads point totals.
type PointsService interface {
	AwardPoints(ctx context.Context, req points.AwardRequest) (*points.AwardResult, error)
	GetAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error)
}

// Notifier hands badge-earned records to the notification sink.
type Notifier interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Service evaluates badge criteria and awards badges at most once each.
type Service struct {
	repo     BadgeRepo
	stats    StatsRepo
	ledger   LedgerReader
	points   PointsService
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewService(repo BadgeRepo, stats StatsRepo, ledger LedgerReader, pointsSvc PointsService, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, stats: stats, ledger: ledger, points: pointsSvc, notifier: notifier, log: log, now: time.Now}
}

// CheckAndAward evaluates eligibility and awards the badge if earned.
// Returns (false, nil) when the badge is already held, belongs to the other
// population, or the criteria are not met.
func (s *Service) CheckAndAward(ctx context.Context, userID uuid.UUID, userType string, tenantID uuid.UUID, badgeID uuid.UUID) (bool, error) {
	has, err := s.repo.HasBadge(ctx, userID, badgeID)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}
	badge, err := s.repo.GetBadge(ctx, badgeID)
	if err != nil {
		return false, err
	}
	if badge.UserType != userType {
		return false, nil
	}
	eligible, err := s.eligible(ctx, userID, userType, badge.Criteria)
	if err != nil {
		return false, err
	}
	if !eligible {
		return false, nil
	}
	return s.award(ctx, userID, userType, tenantID, badge)
}

// Award grants a badge without criteria evaluation. Challenge and level
// rewards use this path; idempotence still holds through the unique index.
func (s *Service) Award(ctx context.Context, userID uuid.UUID, userType string, tenantID uuid.UUID, code string) (bool, error) {
	badge, err := s.repo.GetBadgeByCode(ctx, code)
	if err != nil {
		return false, err
	}
	return s.award(ctx, userID, userType, tenantID, badge)
}

// CheckTrigger runs CheckAndAward for every badge of the user's type whose
// criteria match the given types. Failures are logged and skipped so one
// badge cannot block the rest; the check reruns on the next trigger.
func (s *Service) CheckTrigger(ctx context.Context, userID uuid.UUID, userType string, tenantID uuid.UUID, criteriaTypes ...string) {
	candidates, err := s.repo.ListByCriteriaType(ctx, userType, criteriaTypes)
	if err != nil {
		s.log.Warn("badge candidate lookup failed", "user_id", userID, "error", err)
		return
	}
	for _, b := range candidates {
		if _, err := s.CheckAndAward(ctx, userID, userType, tenantID, b.ID); err != nil {
			s.log.Warn("badge check failed", "user_id", userID, "badge", b.Code, "error", err)
		}
	}
}

// ListEarned returns a user's badges, newest first.
func (s *Service) ListEarned(ctx context.Context, userID uuid.UUID) ([]*models.EarnedBadge, error) {
	return s.repo.ListEarned(ctx, userID)
}

func (s *Service) award(ctx context.Context, userID uuid.UUID, userType string, tenantID uuid.UUID, badge *models.Badge) (bool, error) {
	inserted, err := s.repo.InsertUserBadge(ctx, &models.UserBadge{UserID: userID, BadgeID: badge.ID})
	if err != nil {
		return false, err
	}
	if !inserted {
		// Lost the race to a concurrent trigger; the badge is already held.
		return false, nil
	}
	if badge.PointsReward > 0 {
		reward := badge.PointsReward
		badgeID := badge.ID
		_, err := s.points.AwardPoints(ctx, points.AwardRequest{
			UserID:         userID,
			TenantID:       tenantID,
			UserType:       userType,
			Action:         models.ActionBadgeReward,
			SourceID:       &badgeID,
			OverridePoints: &reward,
		})
		if err != nil {
			s.log.Error("badge point reward failed", "user_id", userID, "badge", badge.Code, "error", err)
		}
	}
	if err := s.notifier.Create(ctx, &models.Notification{
		ID:     uuid.New(),
		UserID: userID,
		Type:   models.NotificationBadgeEarned,
		Title:  "Badge earned",
		Body:   badge.Name,
	}); err != nil {
		s.log.Warn("badge notification insert failed", "user_id", userID, "badge", badge.Code, "error", err)
	}
	return true, nil
}

// eligible evaluates one criteria value. The union is closed; "custom" is
// evaluated by external tooling and always reads false here.
func (s *Service) eligible(ctx context.Context, userID uuid.UUID, userType string, c models.BadgeCriteria) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	switch c.Type {
	case models.CriteriaPoints:
		acct, err := s.points.GetAccount(ctx, userID)
		if err != nil {
			if errors.Is(err, points.ErrAccountNotFound) {
				return false, nil
			}
			return false, err
		}
		return acct.TotalPoints >= c.Threshold, nil

	case models.CriteriaJobs:
		n, err := s.stats.CompletedJobCount(ctx, userID, userType)
		if err != nil {
			return false, err
		}
		return n >= c.Threshold, nil

	case models.CriteriaRatings:
		count, avg, err := s.stats.ReviewStats(ctx, userID, userType)
		if err != nil {
			return false, err
		}
		minCount := 1
		if c.MinCount != nil {
			minCount = *c.MinCount
		}
		if count < minCount {
			return false, nil
		}
		if c.Exact != nil {
			return math.Abs(avg-*c.Exact) < 1e-9, nil
		}
		return avg >= float64(c.Threshold), nil

	case models.CriteriaStreak:
		// Approximation: N ledger entries within the last N days, not true
		// consecutive-day tracking.
		since := s.now().AddDate(0, 0, -c.Threshold)
		n, err := s.ledger.CountRecentTransactions(ctx, userID, since)
		if err != nil {
			return false, err
		}
		return n >= c.Threshold, nil

	case models.CriteriaReferrals:
		n, err := s.stats.CompletedReferralCount(ctx, userID)
		if err != nil {
			return false, err
		}
		return n >= c.Threshold, nil

	default:
		return false, nil
	}
}
