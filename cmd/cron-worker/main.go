package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/internal/bootstrap"
	"github.com/angelmondragon/commitscribe-backend/internal/cron"
	"github.com/angelmondragon/commitscribe-backend/internal/events"
	"github.com/angelmondragon/commitscribe-backend/pkg/metrics"
	"github.com/angelmondragon/commitscribe-backend/pkg/scheduler"
)

func main() {
	bootstrap.Main("cron-worker", func(ctx context.Context, rt *bootstrap.Runtime) error {
		service, err := buildMaintenance(rt, prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		return service.Run(ctx)
	})
}

// buildMaintenance registers the periodic sweeps in the order they run:
// stale events first so the audit sees settled counts.
func buildMaintenance(rt *bootstrap.Runtime, reg prometheus.Registerer) (*cron.Service, error) {
	cfg, logg, conn := rt.Config, rt.Logger, rt.DB.DB()

	aggs, err := aggregates.NewMaintainer(aggregates.MaintainerParams{DB: conn, Tx: rt.DB, Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("aggregates: %w", err)
	}
	eventSvc, err := events.NewService(events.ServiceParams{Repo: events.NewRepository(conn), Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	sched, err := scheduler.NewScheduler(scheduler.SchedulerParams{Store: scheduler.NewRepository(conn), Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	stale, err := cron.NewStaleEventJob(cron.StaleEventJobParams{
		Logger: logg,
		Events: eventSvc,
		MaxAge: cfg.Maintenance.StaleEventAge,
	})
	if err != nil {
		return nil, fmt.Errorf("stale event job: %w", err)
	}
	retention, err := cron.NewJobRetentionJob(cron.JobRetentionJobParams{
		Logger:    logg,
		Scheduler: sched,
		Retention: cfg.Maintenance.JobRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("job retention job: %w", err)
	}
	audit, err := cron.NewAggregateAuditJob(cron.AggregateAuditJobParams{
		Logger:     logg,
		Aggregates: aggs,
		BatchSize:  cfg.Maintenance.AuditBatchSize,
		Repair:     cfg.FeatureFlags.AutoBackfill,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate audit job: %w", err)
	}

	registry, err := cron.NewRegistry(stale, retention, audit)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     rt.Redis.Lease("maintenance", cfg.Maintenance.Interval),
		Metrics:  metrics.NewJobMetrics(reg),
		Interval: cfg.Maintenance.Interval,
	})
}
