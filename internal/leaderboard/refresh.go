package leaderboard

import (
	"context"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// RefreshArgs asks the worker to recompute one cached board. Events enqueue
// these for the combinations they affect; failures retry on River's policy
// and never surface to the triggering request.
type RefreshArgs struct {
	Metric    string    `json:"metric"`
	Timeframe string    `json:"timeframe"`
	UserType  string    `json:"user_type"`
	TenantID  uuid.UUID `json:"tenant_id"`
}

func (RefreshArgs) Kind() string { return "leaderboard_refresh" }

// RefreshWorker recomputes and upserts a single leaderboard cache entry.
type RefreshWorker struct {
	river.WorkerDefaults[RefreshArgs]
	svc *Service
}

func NewRefreshWorker(svc *Service) *RefreshWorker {
	return &RefreshWorker{svc: svc}
}

func (w *RefreshWorker) Work(ctx context.Context, job *river.Job[RefreshArgs]) error {
	a := job.Args
	return w.svc.Refresh(ctx, a.Metric, a.Timeframe, a.UserType, a.TenantID)
}
