package points

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/glimra/backend/internal/models"
	"github.com/glimra/backend/internal/repository"
)

var (
	// ErrInvalidPointValue is returned when the resolved point value for an
	// award is not positive. No side effects occur.
	ErrInvalidPointValue = errors.New("invalid point value")
	// ErrInsufficientBalance is returned when a deduction exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAccountNotFound is returned by reads against users who have never
	// earned points. Most callers treat it as "no data".
	ErrAccountNotFound = errors.New("gamification account not found")
)

// Repo is the account/ledger store interface the service needs.
type Repo interface {
	EnsureAccount(ctx context.Context, userID, tenantID uuid.UUID, userType string) error
	GetAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	ApplyAward(ctx context.Context, t *models.PointTransaction) (int, error)
	ApplyDeduction(ctx context.Context, t *models.PointTransaction) (int, error)
	RaiseLevel(ctx context.Context, userID uuid.UUID, level int) error
	SetLevel(ctx context.Context, userID uuid.UUID, level int) error
	ListTransactions(ctx context.Context, userID uuid.UUID, f repository.HistoryFilter) ([]*models.PointTransaction, error)
}

// LevelCatalog answers level questions for the service.
type LevelCatalog interface {
	LevelFor(ctx context.Context, points int, userType string) (int, error)
	Progress(ctx context.Context, points int, userType string) (*models.LevelProgress, error)
}

// Service is the points engine: append-only ledger plus the cached account
// aggregate. The aggregate is mutated only through atomic server-side
// increments, never read-modify-write in application code.
type Service struct {
	repo    Repo
	catalog LevelCatalog
	log     *slog.Logger
}

func NewService(repo Repo, catalog LevelCatalog, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, log: log}
}

// AwardRequest describes one point award. OverridePoints, when non-nil,
// replaces the static action table lookup.
type AwardRequest struct {
	UserID         uuid.UUID
	TenantID       uuid.UUID
	UserType       string
	Action         string
	SourceID       *uuid.UUID
	Metadata       json.RawMessage
	OverridePoints *int
}

// AwardResult reports the outcome of an award.
type AwardResult struct {
	PointsAwarded int  `json:"points_awarded"`
	NewTotal      int  `json:"new_total"`
	PreviousLevel int  `json:"previous_level"`
	NewLevel      int  `json:"new_level"`
	LeveledUp     bool `json:"leveled_up"`
}

// AwardPoints appends a ledger entry and increments the account aggregate.
// The account is created lazily; the level is recomputed from the new total.
func (s *Service) AwardPoints(ctx context.Context, req AwardRequest) (*AwardResult, error) {
	if !models.ValidUserType(req.UserType) {
		return nil, fmt.Errorf("unknown user type %q", req.UserType)
	}
	pts := models.PointsFor(req.UserType, req.Action)
	if req.OverridePoints != nil {
		pts = *req.OverridePoints
	}
	if pts <= 0 {
		return nil, ErrInvalidPointValue
	}

	if err := s.repo.EnsureAccount(ctx, req.UserID, req.TenantID, req.UserType); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	prior, err := s.repo.GetAccount(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("read account: %w", err)
	}

	// Increment and ledger append commit together; a failure of either
	// leaves the account exactly as it was, so retries cannot double-award.
	newTotal, err := s.repo.ApplyAward(ctx, &models.PointTransaction{
		ID:       uuid.New(),
		UserID:   req.UserID,
		UserType: req.UserType,
		Points:   pts,
		Action:   req.Action,
		SourceID: req.SourceID,
		Metadata: req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("apply award: %w", err)
	}

	res := &AwardResult{
		PointsAwarded: pts,
		NewTotal:      newTotal,
		PreviousLevel: prior.CurrentLevel,
		NewLevel:      prior.CurrentLevel,
	}
	newLevel, err := s.catalog.LevelFor(ctx, newTotal, req.UserType)
	if err != nil {
		// Points are awarded; the level catches up on the next mutation.
		s.log.Warn("level recompute failed after award", "user_id", req.UserID, "error", err)
		return res, nil
	}
	if newLevel > prior.CurrentLevel {
		if err := s.repo.RaiseLevel(ctx, req.UserID, newLevel); err != nil {
			s.log.Warn("level persist failed after award", "user_id", req.UserID, "error", err)
			return res, nil
		}
		res.NewLevel = newLevel
		res.LeveledUp = true
	}
	return res, nil
}

// DeductPoints commits a negative ledger entry together with an atomic
// conditional decrement. A deduction may implicitly lower the level; the level is always
// recomputed so the aggregate stays consistent with the catalog.
func (s *Service) DeductPoints(ctx context.Context, userID uuid.UUID, pts int, reason string, metadata json.RawMessage) (newTotal int, err error) {
	if pts <= 0 {
		return 0, ErrInvalidPointValue
	}
	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrInsufficientBalance
		}
		return 0, fmt.Errorf("read account: %w", err)
	}
	newTotal, err = s.repo.ApplyDeduction(ctx, &models.PointTransaction{
		ID:       uuid.New(),
		UserID:   userID,
		UserType: acct.UserType,
		Points:   -pts,
		Action:   reason,
		Metadata: metadata,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrInsufficientBalance
		}
		return 0, fmt.Errorf("apply deduction: %w", err)
	}
	if _, err := s.RecalculateLevel(ctx, userID); err != nil {
		s.log.Warn("level recompute failed after deduction", "user_id", userID, "error", err)
	}
	return newTotal, nil
}

// GetBalance returns the balance view for a user.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*models.LevelProgress, error) {
	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return s.catalog.Progress(ctx, acct.TotalPoints, acct.UserType)
}

// GetHistory returns ledger entries, newest first.
func (s *Service) GetHistory(ctx context.Context, userID uuid.UUID, f repository.HistoryFilter) ([]*models.PointTransaction, error) {
	return s.repo.ListTransactions(ctx, userID, f)
}

// GetAccount exposes the raw aggregate row.
func (s *Service) GetAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acct, nil
}

// RecalculateLevel re-derives the level from the current total and persists
// it unconditionally.
func (s *Service) RecalculateLevel(ctx context.Context, userID uuid.UUID) (int, error) {
	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	level, err := s.catalog.LevelFor(ctx, acct.TotalPoints, acct.UserType)
	if err != nil {
		return 0, err
	}
	if level != acct.CurrentLevel {
		if err := s.repo.SetLevel(ctx, userID, level); err != nil {
			return 0, err
		}
	}
	return level, nil
}
