package challenges

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/glimra/backend/internal/models"
	"github.com/glimra/backend/internal/points"
)

var (
	// ErrChallengeNotFound is returned for unknown challenge IDs.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeNotActive rejects joins outside the active status/window.
	ErrChallengeNotActive = errors.New("challenge not active")
	// ErrAlreadyJoined rejects double joins.
	ErrAlreadyJoined = errors.New("challenge already joined")
)

// Repo is the challenge catalog and progress store interface.
type Repo interface {
	GetChallenge(ctx context.Context, id uuid.UUID) (*models.Challenge, error)
	ListActive(ctx context.Context, userType string, tenantID uuid.UUID, now time.Time) ([]*models.Challenge, error)
	GetUserChallenge(ctx context.Context, userID, challengeID uuid.UUID) (*models.UserChallenge, error)
	CreateUserChallenge(ctx context.Context, uc *models.UserChallenge) error
	SetProgress(ctx context.Context, userID, challengeID uuid.UUID, progress int) error
	Complete(ctx context.Context, userID, challengeID uuid.UUID, progress int) (bool, error)
	Stats(ctx context.Context, challengeID uuid.UUID) (*models.ChallengeStats, error)
}

// PointsService awards challenge point rewards.
type PointsService interface {
	AwardPoints(ctx context.Context, req points.AwardRequest) (*points.AwardResult, error)
}

// BadgeAwarder grants badge rewards by code.
type BadgeAwarder interface {
	Award(ctx context.Context, userID uuid.UUID, userType string, tenantID uuid.UUID, code string) (bool, error)
}

// Service runs time-boxed challenges: joining, progress, completion, and
// reward application.
type Service struct {
	repo   Repo
	points PointsService
	badges BadgeAwarder
	log    *slog.Logger
	now    func() time.Time
}

func NewService(repo Repo, pointsSvc PointsService, badges BadgeAwarder, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, points: pointsSvc, badges: badges, log: log, now: time.Now}
}

// JoinChallenge creates a zero-progress record for an active challenge.
func (s *Service) JoinChallenge(ctx context.Context, userID, challengeID uuid.UUID) (*models.UserChallenge, error) {
	ch, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	now := s.now()
	if ch.Status != models.ChallengeStatusActive || now.Before(ch.StartDate) || now.After(ch.EndDate) {
		return nil, ErrChallengeNotActive
	}
	uc := &models.UserChallenge{
		UserID:      userID,
		ChallengeID: challengeID,
		Progress:    0,
		Target:      ch.Criteria.Target,
	}
	if err := s.repo.CreateUserChallenge(ctx, uc); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyJoined
		}
		return nil, err
	}
	return uc, nil
}

// ProgressResult reports progress state after an update.
type ProgressResult struct {
	Progress  int  `json:"progress"`
	Target    int  `json:"target"`
	Completed bool `json:"completed"`
}

// UpdateProgress clamps progress to [0, target] and completes the challenge
// when the target is reached. Completion is terminal: updates after it are
// no-ops that report the stored state. Rewards are applied exactly once,
// gated on the atomic completed=false -> true transition.
func (s *Service) UpdateProgress(ctx context.Context, userID, challengeID uuid.UUID, progress int) (*ProgressResult, error) {
	uc, err := s.repo.GetUserChallenge(ctx, userID, challengeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	if uc.Completed {
		return &ProgressResult{Progress: uc.Progress, Target: uc.Target, Completed: true}, nil
	}

	if progress < 0 {
		progress = 0
	}
	if progress > uc.Target {
		progress = uc.Target
	}

	if progress < uc.Target {
		if err := s.repo.SetProgress(ctx, userID, challengeID, progress); err != nil {
			return nil, err
		}
		return &ProgressResult{Progress: progress, Target: uc.Target, Completed: false}, nil
	}

	transitioned, err := s.repo.Complete(ctx, userID, challengeID, progress)
	if err != nil {
		return nil, err
	}
	if transitioned {
		ch, err := s.repo.GetChallenge(ctx, challengeID)
		if err != nil {
			s.log.Error("challenge reward lookup failed", "challenge_id", challengeID, "error", err)
		} else {
			s.awardRewards(ctx, userID, ch)
		}
	}
	return &ProgressResult{Progress: progress, Target: uc.Target, Completed: true}, nil
}

// GetChallengeStats aggregates participation for one challenge.
func (s *Service) GetChallengeStats(ctx context.Context, challengeID uuid.UUID) (*models.ChallengeStats, error) {
	stats, err := s.repo.Stats(ctx, challengeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	return stats, nil
}

// ListActive returns joinable challenges for a population.
func (s *Service) ListActive(ctx context.Context, userType string, tenantID uuid.UUID) ([]*models.Challenge, error) {
	return s.repo.ListActive(ctx, userType, tenantID, s.now())
}

// awardRewards walks the challenge's reward list. Reward failures are logged
// and skipped; completion itself already persisted.
func (s *Service) awardRewards(ctx context.Context, userID uuid.UUID, ch *models.Challenge) {
	for _, rw := range ch.Rewards {
		switch rw.Type {
		case models.RewardPoints:
			pts := rw.Points
			chID := ch.ID
			_, err := s.points.AwardPoints(ctx, points.AwardRequest{
				UserID:         userID,
				TenantID:       ch.TenantID,
				UserType:       ch.UserType,
				Action:         models.ActionChallengeReward,
				SourceID:       &chID,
				OverridePoints: &pts,
			})
			if err != nil {
				s.log.Error("challenge point reward failed", "challenge_id", ch.ID, "user_id", userID, "error", err)
			}
		case models.RewardBadge:
			if _, err := s.badges.Award(ctx, userID, ch.UserType, ch.TenantID, rw.BadgeCode); err != nil {
				s.log.Error("challenge badge reward failed", "challenge_id", ch.ID, "badge", rw.BadgeCode, "error", err)
			}
		case models.RewardDiscount, models.RewardFeature:
			// Applied by the billing/feature subsystems; recorded here only.
			s.log.Info("challenge reward requires external handling", "challenge_id", ch.ID, "type", rw.Type, "user_id", userID)
		default:
			s.log.Warn("unknown challenge reward type", "challenge_id", ch.ID, "type", fmt.Sprintf("%q", rw.Type))
		}
	}
}
