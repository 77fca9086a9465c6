package leaderboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/glimra/backend/internal/models"
)

// SweepArgs is the hourly scheduler tick. It carries no payload; the worker
// decides from the wall-clock hour which timeframes are due.
type SweepArgs struct{}

func (SweepArgs) Kind() string { return "leaderboard_sweep" }

// TenantSource lists the tenants whose boards the sweep walks.
type TenantSource interface {
	TenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// SweepWorker force-refreshes caches across all (tenant x user_type x
// metric) combinations for the timeframes due this hour: daily every run,
// weekly every sixth hour, monthly and all_time once a day.
type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	svc     *Service
	tenants TenantSource
	log     *slog.Logger
	now     func() time.Time
}

func NewSweepWorker(svc *Service, tenants TenantSource, log *slog.Logger) *SweepWorker {
	if log == nil {
		log = slog.Default()
	}
	return &SweepWorker{svc: svc, tenants: tenants, log: log, now: time.Now}
}

func (w *SweepWorker) Work(ctx context.Context, job *river.Job[SweepArgs]) error {
	due := timeframesDueAt(w.now().Hour())
	tenants, err := w.tenants.TenantIDs(ctx)
	if err != nil {
		return err
	}
	for _, tenant := range tenants {
		for _, userType := range []string{models.UserTypeCompany, models.UserTypeProvider} {
			for _, metric := range models.Metrics {
				for _, timeframe := range due {
					if err := w.svc.Refresh(ctx, metric, timeframe, userType, tenant); err != nil {
						// Best effort: the board stays stale until the next pass.
						w.log.Warn("sweep refresh failed",
							"tenant_id", tenant, "metric", metric, "timeframe", timeframe, "user_type", userType, "error", err)
					}
				}
			}
		}
	}
	return nil
}

// timeframesDueAt maps an hour of day to the timeframes to refresh.
func timeframesDueAt(hour int) []string {
	due := []string{models.TimeframeDaily}
	if hour%6 == 0 {
		due = append(due, models.TimeframeWeekly)
	}
	if hour == 4 {
		due = append(due, models.TimeframeMonthly, models.TimeframeAllTime)
	}
	return due
}
