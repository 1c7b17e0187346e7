package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/internal/bootstrap"
	"github.com/angelmondragon/commitscribe-backend/internal/commits"
	"github.com/angelmondragon/commitscribe-backend/internal/crons"
	"github.com/angelmondragon/commitscribe-backend/internal/events"
	"github.com/angelmondragon/commitscribe-backend/internal/pullrequests"
	"github.com/angelmondragon/commitscribe-backend/internal/repositories"
	"github.com/angelmondragon/commitscribe-backend/internal/summaries"
	"github.com/angelmondragon/commitscribe-backend/pkg/config"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/github"
	"github.com/angelmondragon/commitscribe-backend/pkg/llm"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/metrics"
	"github.com/angelmondragon/commitscribe-backend/pkg/redis"
	"github.com/angelmondragon/commitscribe-backend/pkg/scheduler"
)

func main() {
	bootstrap.Main("worker", func(ctx context.Context, rt *bootstrap.Runtime) error {
		dispatcher, err := buildDispatcher(rt.Config, rt.Logger, rt.DB, rt.Redis, prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		service, err := NewService(ServiceParams{
			Config:     rt.Config,
			Logger:     rt.Logger,
			DB:         rt.DB,
			Redis:      rt.Redis,
			Dispatcher: dispatcher,
		})
		if err != nil {
			return err
		}
		return service.Run(rt.Logger.WithField(ctx, "owner", dispatcher.Owner()))
	})
}

// buildDispatcher registers the summarization and cron-run handlers.
func buildDispatcher(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*scheduler.Dispatcher, error) {
	conn := dbClient.DB()

	aggs, err := aggregates.NewMaintainer(aggregates.MaintainerParams{DB: conn, Tx: dbClient, Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("aggregates: %w", err)
	}
	repoSvc, err := repositories.NewService(repositories.ServiceParams{Repo: repositories.NewRepository(conn), Aggregates: aggs, Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("repositories: %w", err)
	}
	commitSvc, err := commits.NewService(commits.ServiceParams{Repo: commits.NewRepository(conn), Aggregates: aggs, Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("commits: %w", err)
	}
	prSvc, err := pullrequests.NewService(pullrequests.ServiceParams{Repo: pullrequests.NewRepository(conn), Aggregates: aggs, Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("pull requests: %w", err)
	}
	eventSvc, err := events.NewService(events.ServiceParams{Repo: events.NewRepository(conn), Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}

	githubClient, err := github.NewClient(cfg.GitHub)
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}
	llmClient, err := llm.NewClient(cfg.OpenAI, logg)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	pipeline, err := summaries.NewPipeline(summaries.PipelineParams{
		Tx:           dbClient,
		Repositories: repoSvc,
		Commits:      commitSvc,
		PullRequests: prSvc,
		Diffs:        githubClient,
		Generator:    llmClient,
		Logger:       logg,
		Metrics:      metrics.NewPipelineMetrics(reg),
		Config:       cfg.Summaries,
	})
	if err != nil {
		return nil, fmt.Errorf("summaries pipeline: %w", err)
	}
	jobs, err := summaries.NewJobs(pipeline, eventSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("summary jobs: %w", err)
	}
	runner, err := crons.NewRunner(crons.RunnerParams{
		Repo:         crons.NewRepository(conn),
		Tx:           dbClient,
		Repositories: repoSvc,
		GitHub:       githubClient,
		Commits:      commitSvc,
		Summarizer:   pipeline,
		Logger:       logg,
		Lookback:     cfg.Summaries.CronLookback,
	})
	if err != nil {
		return nil, fmt.Errorf("cron runner: %w", err)
	}

	registry := scheduler.NewRegistry()
	if err := jobs.Register(registry); err != nil {
		return nil, fmt.Errorf("register summary jobs: %w", err)
	}
	if err := runner.Register(registry); err != nil {
		return nil, fmt.Errorf("register cron runner: %w", err)
	}

	waker, err := scheduler.NewRedisWaker(redisClient, cfg.Scheduler.WakeChannel)
	if err != nil {
		return nil, fmt.Errorf("scheduler waker: %w", err)
	}

	return scheduler.NewDispatcher(scheduler.DispatcherParams{
		Store:        scheduler.NewRepository(conn),
		Registry:     registry,
		Logger:       logg,
		Metrics:      metrics.NewJobMetrics(reg),
		Wake:         waker,
		Ready:        []func(context.Context) error{dbClient.Ping, redisClient.Ping},
		Workers:      cfg.Scheduler.Workers,
		BatchSize:    cfg.Scheduler.BatchSize,
		PollInterval: cfg.Scheduler.PollInterval,
		Lease:        cfg.Scheduler.LeaseDuration,
	})
}
