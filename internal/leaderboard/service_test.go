package leaderboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/glimra/backend/internal/models"
	"github.com/glimra/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// In-memory mocks for the cache store and the aggregate reads.
// ---------------------------------------------------------------------------

type cacheKey struct {
	metric, timeframe, userType string
	tenant                      uuid.UUID
}

type mockCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*models.LeaderboardCache
	gets    int
	upserts int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[cacheKey]*models.LeaderboardCache)}
}

func (m *mockCache) Get(_ context.Context, metric, timeframe, userType string, tenantID uuid.UUID) (*models.LeaderboardCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	c, ok := m.entries[cacheKey{metric, timeframe, userType, tenantID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (m *mockCache) Upsert(_ context.Context, c *models.LeaderboardCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	cp := *c
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	m.entries[cacheKey{c.Metric, c.Timeframe, c.UserType, c.TenantID}] = &cp
	return nil
}

func (m *mockCache) seed(c *models.LeaderboardCache) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cacheKey{c.Metric, c.Timeframe, c.UserType, c.TenantID}] = c
}

func (m *mockCache) stats() (gets, upserts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets, m.upserts
}

// ---

type mockAgg struct {
	mu       sync.Mutex
	rows     []models.ScoreRow
	names    map[uuid.UUID]string
	computes int
}

func (m *mockAgg) top(_ repository.AggregateQuery) ([]models.ScoreRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.computes++
	out := make([]models.ScoreRow, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *mockAgg) TopPointEarners(_ context.Context, q repository.AggregateQuery) ([]models.ScoreRow, error) {
	return m.top(q)
}

func (m *mockAgg) TopJobCounts(_ context.Context, q repository.AggregateQuery) ([]models.ScoreRow, error) {
	return m.top(q)
}

func (m *mockAgg) TopRatings(_ context.Context, q repository.AggregateQuery) ([]models.ScoreRow, error) {
	return m.top(q)
}

func (m *mockAgg) TopReferrers(_ context.Context, q repository.AggregateQuery) ([]models.ScoreRow, error) {
	return m.top(q)
}

func (m *mockAgg) DisplayNames(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	for _, id := range ids {
		if name, ok := m.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (m *mockAgg) computeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.computes
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestService(cache *mockCache, agg *mockAgg) *Service {
	svc := NewService(cache, agg, nil)
	// Synchronous persist so tests can assert on cache writes.
	svc.persist = func(c *models.LeaderboardCache) {
		_ = cache.Upsert(context.Background(), c)
	}
	return svc
}

func scoreRows(scores ...float64) ([]models.ScoreRow, []uuid.UUID) {
	rows := make([]models.ScoreRow, len(scores))
	ids := make([]uuid.UUID, len(scores))
	for i, s := range scores {
		ids[i] = uuid.New()
		rows[i] = models.ScoreRow{UserID: ids[i], Score: s}
	}
	return rows, ids
}

func baseQuery(timeframe string) Query {
	return Query{
		Metric:    models.MetricPoints,
		Timeframe: timeframe,
		UserType:  models.UserTypeProvider,
		TenantID:  uuid.New(),
	}
}

// ---------------------------------------------------------------------------
// 1. TestGetLeaderboard_RanksAndNames
// ---------------------------------------------------------------------------

func TestGetLeaderboard_RanksAndNames(t *testing.T) {
	rows, ids := scoreRows(500, 300, 100)
	agg := &mockAgg{rows: rows, names: map[uuid.UUID]string{ids[0]: "Alta Cleaning", ids[1]: "Bright Homes"}}
	svc := newTestService(newMockCache(), agg)

	res, err := svc.GetLeaderboard(context.Background(), baseQuery(models.TimeframeAllTime))
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if res.Cached {
		t.Error("first read must be a live compute")
	}
	if len(res.Entries) != 3 {
		t.Fatalf("entries: got %d, want 3", len(res.Entries))
	}
	for i, e := range res.Entries {
		if e.Rank != i+1 {
			t.Errorf("entry %d: rank %d, want %d", i, e.Rank, i+1)
		}
	}
	if res.Entries[0].DisplayName != "Alta Cleaning" {
		t.Errorf("display name: got %q", res.Entries[0].DisplayName)
	}
	// Missing directory rows still rank, just unnamed.
	if res.Entries[2].DisplayName != "" {
		t.Errorf("unnamed entry: got %q, want empty", res.Entries[2].DisplayName)
	}
}

// ---------------------------------------------------------------------------
// 2. TestGetLeaderboard_CacheLifecycle
//    A live compute writes the cache; a second read within TTL serves it; an
//    entry aged exactly TTL is stale and recomputes.
// ---------------------------------------------------------------------------

func TestGetLeaderboard_CacheLifecycle(t *testing.T) {
	rows, _ := scoreRows(42)
	cache := newMockCache()
	agg := &mockAgg{rows: rows}
	svc := newTestService(cache, agg)
	q := baseQuery(models.TimeframeWeekly)
	ctx := context.Background()

	res, err := svc.GetLeaderboard(ctx, q)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if res.Cached {
		t.Error("first read must not be cached")
	}
	if _, upserts := cache.stats(); upserts != 1 {
		t.Errorf("cache writes after first read: got %d, want 1", upserts)
	}

	res, err = svc.GetLeaderboard(ctx, q)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if !res.Cached {
		t.Error("second read within TTL must be cached")
	}
	if agg.computeCount() != 1 {
		t.Errorf("computes: got %d, want 1", agg.computeCount())
	}

	// Age the entry to exactly the weekly TTL: stale by definition.
	fixed := time.Now()
	svc.now = func() time.Time { return fixed }
	cache.seed(&models.LeaderboardCache{
		Metric: q.Metric, Timeframe: q.Timeframe, UserType: q.UserType, TenantID: q.TenantID,
		Entries:   []models.LeaderboardEntry{},
		UpdatedAt: fixed.Add(-models.CacheTTL(models.TimeframeWeekly)),
	})
	res, err = svc.GetLeaderboard(ctx, q)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if res.Cached {
		t.Error("entry aged exactly TTL must be recomputed")
	}
}

// ---------------------------------------------------------------------------
// 3. TestGetLeaderboard_DailyBypassesCache
// ---------------------------------------------------------------------------

func TestGetLeaderboard_DailyBypassesCache(t *testing.T) {
	rows, _ := scoreRows(10, 5)
	cache := newMockCache()
	agg := &mockAgg{rows: rows}
	svc := newTestService(cache, agg)
	q := baseQuery(models.TimeframeDaily)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := svc.GetLeaderboard(ctx, q)
		if err != nil {
			t.Fatalf("GetLeaderboard: %v", err)
		}
		if res.Cached {
			t.Error("daily boards must never serve from cache")
		}
	}
	gets, upserts := cache.stats()
	if gets != 0 || upserts != 0 {
		t.Errorf("daily reads touched the cache: gets=%d upserts=%d", gets, upserts)
	}
	if agg.computeCount() != 3 {
		t.Errorf("computes: got %d, want 3", agg.computeCount())
	}
}

// ---------------------------------------------------------------------------
// 4. TestGetLeaderboard_Pagination
// ---------------------------------------------------------------------------

func TestGetLeaderboard_Pagination(t *testing.T) {
	rows, ids := scoreRows(50, 40, 30, 20, 10)
	agg := &mockAgg{rows: rows}
	svc := newTestService(newMockCache(), agg)
	q := baseQuery(models.TimeframeDaily)
	ctx := context.Background()

	q.Limit, q.Offset = 2, 2
	res, err := svc.GetLeaderboard(ctx, q)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("page size: got %d, want 2", len(res.Entries))
	}
	// Ranks are absolute, not page-relative.
	if res.Entries[0].Rank != 3 || res.Entries[0].UserID != ids[2] {
		t.Errorf("first entry of page: rank=%d user=%s", res.Entries[0].Rank, res.Entries[0].UserID)
	}

	// Offset past the end yields an empty page, not an error.
	q.Offset = 99
	res, err = svc.GetLeaderboard(ctx, q)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Errorf("past-the-end page: got %d entries, want 0", len(res.Entries))
	}
}

// ---------------------------------------------------------------------------
// 5. TestGetUserRank
// ---------------------------------------------------------------------------

func TestGetUserRank(t *testing.T) {
	rows, ids := scoreRows(50, 40, 30)
	agg := &mockAgg{rows: rows}
	svc := newTestService(newMockCache(), agg)
	q := baseQuery(models.TimeframeDaily)
	ctx := context.Background()

	rank, err := svc.GetUserRank(ctx, ids[1], q)
	if err != nil {
		t.Fatalf("GetUserRank: %v", err)
	}
	if rank == nil || rank.Rank != 2 || rank.Score != 40 || rank.TotalUsers != 3 {
		t.Errorf("rank: got %+v, want rank=2 score=40 total=3", rank)
	}

	// Unknown user: no rank, no error.
	rank, err = svc.GetUserRank(ctx, uuid.New(), q)
	if err != nil {
		t.Fatalf("GetUserRank: %v", err)
	}
	if rank != nil {
		t.Errorf("absent user: got %+v, want nil", rank)
	}
}

// ---------------------------------------------------------------------------
// 6. TestRefresh
// ---------------------------------------------------------------------------

func TestRefresh(t *testing.T) {
	rows, _ := scoreRows(10)
	cache := newMockCache()
	agg := &mockAgg{rows: rows}
	svc := newTestService(cache, agg)
	q := baseQuery(models.TimeframeMonthly)
	ctx := context.Background()

	if err := svc.Refresh(ctx, q.Metric, q.Timeframe, q.UserType, q.TenantID); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, upserts := cache.stats(); upserts != 1 {
		t.Errorf("cache writes: got %d, want 1", upserts)
	}

	// The refreshed cache serves subsequent reads.
	res, err := svc.GetLeaderboard(ctx, q)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if !res.Cached {
		t.Error("read after refresh should hit the cache")
	}
}

// ---------------------------------------------------------------------------
// 7. TestTimeframesDueAt
// ---------------------------------------------------------------------------

func TestTimeframesDueAt(t *testing.T) {
	cases := []struct {
		hour int
		want []string
	}{
		{1, []string{models.TimeframeDaily}},
		{6, []string{models.TimeframeDaily, models.TimeframeWeekly}},
		{4, []string{models.TimeframeDaily, models.TimeframeMonthly, models.TimeframeAllTime}},
		{0, []string{models.TimeframeDaily, models.TimeframeWeekly}},
	}
	for _, tc := range cases {
		got := timeframesDueAt(tc.hour)
		if len(got) != len(tc.want) {
			t.Errorf("hour %d: got %v, want %v", tc.hour, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("hour %d: got %v, want %v", tc.hour, got, tc.want)
				break
			}
		}
	}
}
