package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/glimra/backend/internal/leaderboard"
	"github.com/glimra/backend/internal/models"
	"github.com/glimra/backend/internal/points"
)

// ---------------------------------------------------------------------------
// In-memory mocks for the processor's collaborators.
// ---------------------------------------------------------------------------

type mockPoints struct {
	mu         sync.Mutex
	total      int
	level      int
	awards     []points.AwardRequest
	accountErr error
}

func (m *mockPoints) AwardPoints(_ context.Context, req points.AwardRequest) (*points.AwardResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pts := models.PointsFor(req.UserType, req.Action)
	if req.OverridePoints != nil {
		pts = *req.OverridePoints
	}
	m.total += pts
	m.awards = append(m.awards, req)
	return &points.AwardResult{PointsAwarded: pts, NewTotal: m.total}, nil
}

func (m *mockPoints) GetAccount(_ context.Context, userID uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	if m.level == 0 {
		return nil, points.ErrAccountNotFound
	}
	return &models.Account{UserID: userID, TotalPoints: m.total, CurrentLevel: m.level}, nil
}

func (m *mockPoints) RecalculateLevel(_ context.Context, _ uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Provider ladder thresholds.
	level := 1
	for i, threshold := range []int{0, 300, 1000, 2500, 5000} {
		if m.total >= threshold {
			level = i + 1
		}
	}
	m.level = level
	return level, nil
}

func (m *mockPoints) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.awards))
	for i, a := range m.awards {
		out[i] = a.Action
	}
	return out
}

// ---

type mockBadges struct {
	mu       sync.Mutex
	triggers [][]string
	awards   []string
}

func (m *mockBadges) CheckTrigger(_ context.Context, _ uuid.UUID, _ string, _ uuid.UUID, criteriaTypes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, criteriaTypes)
}

func (m *mockBadges) Award(_ context.Context, _ uuid.UUID, _ string, _ uuid.UUID, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.awards = append(m.awards, code)
	return true, nil
}

// ---

type mockStats struct {
	posted    int
	completed int
	reviews   int
	referrals int
	err       error
}

func (m *mockStats) PostedJobCount(_ context.Context, _ uuid.UUID) (int, error) {
	return m.posted, m.err
}

func (m *mockStats) CompletedJobCount(_ context.Context, _ uuid.UUID, _ string) (int, error) {
	return m.completed, m.err
}

func (m *mockStats) SubmittedReviewCount(_ context.Context, _ uuid.UUID) (int, error) {
	return m.reviews, m.err
}

func (m *mockStats) CompletedReferralCount(_ context.Context, _ uuid.UUID) (int, error) {
	return m.referrals, m.err
}

// ---

type mockCatalog struct {
	rewards map[int][]models.Reward
}

func (m *mockCatalog) RewardsFor(_ context.Context, level int, _ string) ([]models.Reward, error) {
	return m.rewards[level], nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []*models.Notification
}

func (m *mockNotifier) Create(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.sent = append(m.sent, &cp)
	return nil
}

type refreshRecorder struct {
	mu   sync.Mutex
	args []leaderboard.RefreshArgs
}

func (r *refreshRecorder) enqueue(_ context.Context, args leaderboard.RefreshArgs) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.args = append(r.args, args)
	return nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type fixture struct {
	processor *Processor
	points    *mockPoints
	badges    *mockBadges
	stats     *mockStats
	notifier  *mockNotifier
	refresh   *refreshRecorder
	catalog   *mockCatalog
}

func newFixture(stats *mockStats) *fixture {
	f := &fixture{
		points:   &mockPoints{},
		badges:   &mockBadges{},
		stats:    stats,
		notifier: &mockNotifier{},
		refresh:  &refreshRecorder{},
		catalog:  &mockCatalog{rewards: map[int][]models.Reward{}},
	}
	f.processor = NewProcessor(f.points, f.badges, stats, f.catalog, f.notifier, f.refresh.enqueue, nil)
	return f
}

func providerEvent(kind string) Event {
	src := uuid.New()
	return Event{
		Kind:     kind,
		UserID:   uuid.New(),
		UserType: models.UserTypeProvider,
		TenantID: uuid.New(),
		SourceID: &src,
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// 1. TestProcessEvent_UnknownKind
// ---------------------------------------------------------------------------

func TestProcessEvent_UnknownKind(t *testing.T) {
	f := newFixture(&mockStats{})
	err := f.processor.ProcessEvent(context.Background(), providerEvent("booking_cancelled"))
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("got %v, want ErrUnknownKind", err)
	}
	if len(f.points.awards) != 0 {
		t.Error("unknown kinds must not touch the ledger")
	}
}

func TestProcessEvent_UnknownUserType(t *testing.T) {
	f := newFixture(&mockStats{})
	ev := providerEvent(KindJobCompleted)
	ev.UserType = "admin"
	if err := f.processor.ProcessEvent(context.Background(), ev); err == nil {
		t.Error("unknown user type must be rejected")
	}
}

// ---------------------------------------------------------------------------
// 2. TestProcessEvent_BaseAward
// ---------------------------------------------------------------------------

func TestProcessEvent_BaseAward(t *testing.T) {
	f := newFixture(&mockStats{completed: 5})
	ev := providerEvent(KindJobCompleted)

	if err := f.processor.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	actions := f.points.actions()
	if !contains(actions, models.ActionJobCompleted) {
		t.Errorf("actions %v missing base award", actions)
	}
	// Count 5 matches no milestone.
	for _, a := range actions {
		if a == models.ActionFirstJobCompleted || a == models.ActionJobsCompleted10 {
			t.Errorf("unexpected milestone award %q at count 5", a)
		}
	}
}

// A company posting jobs earns points a provider would not: zero-point
// actions are skipped without error.
func TestProcessEvent_ZeroPointActionSkipsBaseAward(t *testing.T) {
	f := newFixture(&mockStats{posted: 5})
	ev := providerEvent(KindJobPosted) // providers earn nothing for posting

	if err := f.processor.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if contains(f.points.actions(), models.ActionJobPosted) {
		t.Error("zero-point base action must not reach the ledger")
	}
}

// ---------------------------------------------------------------------------
// 3. TestProcessEvent_Milestones
//    Bonuses fire only when the re-queried count exactly equals a milestone.
// ---------------------------------------------------------------------------

func TestProcessEvent_Milestones(t *testing.T) {
	cases := []struct {
		count  int
		bonus  string
		expect bool
	}{
		{1, models.ActionFirstJobCompleted, true},
		{2, "", false},
		{10, models.ActionJobsCompleted10, true},
		{11, "", false},
		{50, models.ActionJobsCompleted50, true},
		{51, "", false},
	}
	for _, tc := range cases {
		f := newFixture(&mockStats{completed: tc.count})
		if err := f.processor.ProcessEvent(context.Background(), providerEvent(KindJobCompleted)); err != nil {
			t.Fatalf("ProcessEvent(count=%d): %v", tc.count, err)
		}
		actions := f.points.actions()
		if tc.expect && !contains(actions, tc.bonus) {
			t.Errorf("count %d: actions %v missing %q", tc.count, actions, tc.bonus)
		}
		if !tc.expect && len(actions) != 1 {
			t.Errorf("count %d: got %v, want base award only", tc.count, actions)
		}
	}
}

func TestProcessEvent_MilestoneCheckFailureIsNonFatal(t *testing.T) {
	f := newFixture(&mockStats{err: errors.New("read model down")})
	if err := f.processor.ProcessEvent(context.Background(), providerEvent(KindJobCompleted)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	// The base award still lands; the milestone check was skipped.
	if actions := f.points.actions(); len(actions) != 1 || actions[0] != models.ActionJobCompleted {
		t.Errorf("actions: got %v, want base award only", actions)
	}
}

// ---------------------------------------------------------------------------
// 4. TestProcessEvent_BadgeTrigger
// ---------------------------------------------------------------------------

func TestProcessEvent_BadgeTrigger(t *testing.T) {
	f := newFixture(&mockStats{completed: 3})
	if err := f.processor.ProcessEvent(context.Background(), providerEvent(KindJobCompleted)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if len(f.badges.triggers) != 1 {
		t.Fatalf("badge triggers: got %d, want 1", len(f.badges.triggers))
	}
	got := f.badges.triggers[0]
	for _, want := range []string{models.CriteriaJobs, models.CriteriaPoints, models.CriteriaStreak} {
		if !contains(got, want) {
			t.Errorf("trigger criteria %v missing %q", got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// 5. TestProcessEvent_LevelUp
//    One notification per processed event even when several awards stack,
//    and per-level catalog rewards are applied for each level gained.
// ---------------------------------------------------------------------------

func TestProcessEvent_LevelUp(t *testing.T) {
	f := newFixture(&mockStats{completed: 10})
	f.catalog.rewards[2] = []models.Reward{{Type: models.RewardBadge, BadgeCode: "rising_star"}}
	f.points.total = 250 // existing balance just under the 300 threshold
	f.points.level = 1

	// Base award (50) + jobs_completed_10 bonus (200) crosses 300.
	if err := f.processor.ProcessEvent(context.Background(), providerEvent(KindJobCompleted)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("notifications: got %d, want 1", len(f.notifier.sent))
	}
	n := f.notifier.sent[0]
	if n.Type != models.NotificationLevelUp {
		t.Errorf("notification type: got %q, want level_up", n.Type)
	}
	if len(f.badges.awards) != 1 || f.badges.awards[0] != "rising_star" {
		t.Errorf("level rewards: got %v, want [rising_star]", f.badges.awards)
	}
}

// A transient account read failure must not be mistaken for a new user at
// level 1: an established user would otherwise be "re-leveled" from 2 up,
// replaying every notification and level reward.
func TestProcessEvent_PriorLevelReadFailureSkipsLevelRewards(t *testing.T) {
	f := newFixture(&mockStats{completed: 10})
	f.catalog.rewards[2] = []models.Reward{{Type: models.RewardBadge, BadgeCode: "rising_star"}}
	f.points.total = 250
	f.points.level = 1
	f.points.accountErr = errors.New("connection reset")

	// The awards still land; only level finalization is deferred.
	if err := f.processor.ProcessEvent(context.Background(), providerEvent(KindJobCompleted)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if !contains(f.points.actions(), models.ActionJobCompleted) {
		t.Error("base award must still land when the prior level is unreadable")
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("notifications: got %d, want 0", len(f.notifier.sent))
	}
	if len(f.badges.awards) != 0 {
		t.Errorf("level rewards: got %v, want none", f.badges.awards)
	}

	// Once the store recovers, the next event levels up exactly once.
	f.points.accountErr = nil
	f.stats.completed = 11 // no milestone bonus this time
	if err := f.processor.ProcessEvent(context.Background(), providerEvent(KindJobCompleted)); err != nil {
		t.Fatalf("ProcessEvent after recovery: %v", err)
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("notifications after recovery: got %d, want 1", len(f.notifier.sent))
	}
	if len(f.badges.awards) != 1 || f.badges.awards[0] != "rising_star" {
		t.Errorf("level rewards after recovery: got %v, want [rising_star]", f.badges.awards)
	}
}

func TestProcessEvent_NoLevelUpNoNotification(t *testing.T) {
	f := newFixture(&mockStats{completed: 3})
	f.points.total = 10
	f.points.level = 1

	if err := f.processor.ProcessEvent(context.Background(), providerEvent(KindJobCompleted)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("notifications: got %d, want 0", len(f.notifier.sent))
	}
}

// ---------------------------------------------------------------------------
// 6. TestProcessEvent_RefreshKickoff
//    Affected metrics x cacheable timeframes; daily is never enqueued.
// ---------------------------------------------------------------------------

func TestProcessEvent_RefreshKickoff(t *testing.T) {
	f := newFixture(&mockStats{completed: 3})
	ev := providerEvent(KindJobCompleted)
	if err := f.processor.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	// job_completed affects points and jobs, over 3 cacheable timeframes.
	if len(f.refresh.args) != 6 {
		t.Fatalf("refresh jobs: got %d, want 6", len(f.refresh.args))
	}
	for _, args := range f.refresh.args {
		if args.Timeframe == models.TimeframeDaily {
			t.Error("daily boards must not be refresh targets")
		}
		if args.Metric != models.MetricPoints && args.Metric != models.MetricJobs {
			t.Errorf("unexpected metric %q", args.Metric)
		}
		if args.UserType != ev.UserType || args.TenantID != ev.TenantID {
			t.Errorf("refresh args carry wrong scope: %+v", args)
		}
	}
}
