package cron

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/billing"
)

// RefreshJobName is the scheduled_jobs row and lock name of the refresh job.
const RefreshJobName = "refresh_today_cost"

// RefreshJob resolves today's cost for each schedule, which stores a
// snapshot, and then checks the daily budget. Snapshots past the retention
// period are pruned at the end of every run.
func RefreshJob(svc *billing.Service, schedules []string, logger *zap.Logger) Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) error {
		var errs []error
		for _, key := range schedules {
			res, err := svc.TodayCost(ctx, key)
			if err != nil {
				errs = append(errs, fmt.Errorf("schedule %s: %w", key, err))
				continue
			}
			logger.Info("today cost refreshed",
				zap.String("schedule", res.Schedule),
				zap.String("method", res.Method),
				zap.Float64("kwh", res.KWh),
				zap.Float64("cost", res.Cost))

			if fired, err := svc.CheckBudget(ctx, res); err != nil {
				errs = append(errs, fmt.Errorf("budget alert %s: %w", key, err))
			} else if fired {
				logger.Info("budget alert sent", zap.String("schedule", res.Schedule))
			}
		}

		if n, err := svc.PruneSnapshots(ctx); err != nil {
			errs = append(errs, err)
		} else if n > 0 {
			logger.Info("cost snapshots pruned", zap.Int64("removed", n))
		}
		return errors.Join(errs...)
	}
}
