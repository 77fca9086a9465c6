package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/glimra/backend/internal/models"
	"github.com/glimra/backend/internal/repository"
)

// maxEntries caps how many ranked rows are computed and cached per key.
// Rank lookups search within this window.
const maxEntries = 1000

const defaultLimit = 20

// asyncPersistTimeout bounds the fire-and-forget cache write.
const asyncPersistTimeout = 10 * time.Second

// CacheRepo is the materialized-ranking store interface.
type CacheRepo interface {
	Get(ctx context.Context, metric, timeframe, userType string, tenantID uuid.UUID) (*models.LeaderboardCache, error)
	Upsert(ctx context.Context, c *models.LeaderboardCache) error
}

// AggregateRepo computes live scores from the domain read models and
// resolves display names from the user directory.
type AggregateRepo interface {
	TopPointEarners(ctx context.Context, q repository.AggregateQuery) ([]models.ScoreRow, error)
	TopJobCounts(ctx context.Context, q repository.AggregateQuery) ([]models.ScoreRow, error)
	TopRatings(ctx context.Context, q repository.AggregateQuery) ([]models.ScoreRow, error)
	TopReferrers(ctx context.Context, q repository.AggregateQuery) ([]models.ScoreRow, error)
	DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// Service computes rankings and manages the TTL-stamped cache. The cache is
// derived data: stale or missing entries trigger a live recompute, and
// persisting the result never blocks the caller.
type Service struct {
	cache CacheRepo
	agg   AggregateRepo
	log   *slog.Logger
	now   func() time.Time

	// persist stores a freshly computed ranking. The default implementation
	// is fire-and-forget; tests replace it to observe writes synchronously.
	persist func(c *models.LeaderboardCache)
}

func NewService(cache CacheRepo, agg AggregateRepo, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{cache: cache, agg: agg, log: log, now: time.Now}
	s.persist = s.persistAsync
	return s
}

// Query identifies one leaderboard page.
type Query struct {
	Metric    string
	Timeframe string
	UserType  string
	TenantID  uuid.UUID
	Limit     int
	Offset    int
}

// Result is a paginated slice of a ranking.
type Result struct {
	Entries []models.LeaderboardEntry `json:"entries"`
	Cached  bool                      `json:"cached"`
}

// GetLeaderboard serves a page, from cache when the entry is younger than
// the timeframe's TTL. Daily boards are always recomputed live. A live
// compute kicks off a background cache write for the cacheable timeframes.
func (s *Service) GetLeaderboard(ctx context.Context, q Query) (*Result, error) {
	entries, cached, err := s.ranked(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Result{Entries: page(entries, q.Offset, q.Limit), Cached: cached}, nil
}

// GetUserRank finds a user's position in the top maxEntries of a board.
// TotalUsers in the result counts that ranked window, not everyone with
// activity; users outside the window get (nil, nil), as do users with no
// qualifying activity at all.
func (s *Service) GetUserRank(ctx context.Context, userID uuid.UUID, q Query) (*models.UserRank, error) {
	entries, _, err := s.ranked(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.UserID == userID {
			return &models.UserRank{Rank: e.Rank, Score: e.Score, TotalUsers: len(entries)}, nil
		}
	}
	return nil, nil
}

// Refresh recomputes one board and writes the cache synchronously. The
// scheduler and the post-event refresh jobs run through here.
func (s *Service) Refresh(ctx context.Context, metric, timeframe, userType string, tenantID uuid.UUID) error {
	entries, err := s.compute(ctx, Query{Metric: metric, Timeframe: timeframe, UserType: userType, TenantID: tenantID})
	if err != nil {
		return err
	}
	return s.cache.Upsert(ctx, &models.LeaderboardCache{
		Metric:    metric,
		Timeframe: timeframe,
		UserType:  userType,
		TenantID:  tenantID,
		Entries:   entries,
	})
}

// ranked returns the full ranked set for a key, consulting the cache first
// for non-daily timeframes.
func (s *Service) ranked(ctx context.Context, q Query) (entries []models.LeaderboardEntry, cached bool, err error) {
	if q.Timeframe != models.TimeframeDaily {
		c, err := s.cache.Get(ctx, q.Metric, q.Timeframe, q.UserType, q.TenantID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn("leaderboard cache read failed", "metric", q.Metric, "timeframe", q.Timeframe, "error", err)
		}
		if c != nil && s.fresh(c) {
			return c.Entries, true, nil
		}
	}

	entries, err = s.compute(ctx, q)
	if err != nil {
		return nil, false, err
	}
	if q.Timeframe != models.TimeframeDaily {
		s.persist(&models.LeaderboardCache{
			Metric:    q.Metric,
			Timeframe: q.Timeframe,
			UserType:  q.UserType,
			TenantID:  q.TenantID,
			Entries:   entries,
		})
	}
	return entries, false, nil
}

// fresh applies the TTL table; an entry aged exactly TTL is stale.
func (s *Service) fresh(c *models.LeaderboardCache) bool {
	return s.now().Sub(c.UpdatedAt) < models.CacheTTL(c.Timeframe)
}

// compute aggregates the relevant read model, orders by score descending
// (ties broken by user ID so recomputation is deterministic), and attaches
// display names.
func (s *Service) compute(ctx context.Context, q Query) ([]models.LeaderboardEntry, error) {
	aq := repository.AggregateQuery{
		UserType: q.UserType,
		TenantID: q.TenantID,
		Since:    models.TimeframeStart(q.Timeframe, s.now()),
		Limit:    maxEntries,
	}

	var rows []models.ScoreRow
	var err error
	switch q.Metric {
	case models.MetricPoints:
		rows, err = s.agg.TopPointEarners(ctx, aq)
	case models.MetricJobs:
		rows, err = s.agg.TopJobCounts(ctx, aq)
	case models.MetricRatings:
		rows, err = s.agg.TopRatings(ctx, aq)
	case models.MetricReferrals:
		rows, err = s.agg.TopReferrers(ctx, aq)
	default:
		return nil, fmt.Errorf("unknown leaderboard metric %q", q.Metric)
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", q.Metric, err)
	}

	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.UserID
	}
	names := map[uuid.UUID]string{}
	if len(ids) > 0 {
		names, err = s.agg.DisplayNames(ctx, ids)
		if err != nil {
			// Names are presentation only; serve the ranking without them.
			s.log.Warn("display name lookup failed", "error", err)
			names = map[uuid.UUID]string{}
		}
	}

	entries := make([]models.LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = models.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      r.UserID,
			DisplayName: names[r.UserID],
			Score:       r.Score,
		}
	}
	return entries, nil
}

// persistAsync writes the cache in the background. Failures are logged and
// swallowed; the next read recomputes anyway.
func (s *Service) persistAsync(c *models.LeaderboardCache) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncPersistTimeout)
		defer cancel()
		if err := s.cache.Upsert(ctx, c); err != nil {
			s.log.Warn("leaderboard cache write failed", "metric", c.Metric, "timeframe", c.Timeframe, "error", err)
		}
	}()
}

func page(entries []models.LeaderboardEntry, offset, limit int) []models.LeaderboardEntry {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return []models.LeaderboardEntry{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}
