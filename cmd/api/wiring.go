package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/commitscribe-backend/api/routes"
	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/internal/blogs"
	"github.com/angelmondragon/commitscribe-backend/internal/commits"
	"github.com/angelmondragon/commitscribe-backend/internal/crons"
	"github.com/angelmondragon/commitscribe-backend/internal/events"
	"github.com/angelmondragon/commitscribe-backend/internal/installations"
	"github.com/angelmondragon/commitscribe-backend/internal/pullrequests"
	"github.com/angelmondragon/commitscribe-backend/internal/repositories"
	"github.com/angelmondragon/commitscribe-backend/internal/summaries"
	"github.com/angelmondragon/commitscribe-backend/internal/users"
	"github.com/angelmondragon/commitscribe-backend/internal/webhooks"
	clerkwebhook "github.com/angelmondragon/commitscribe-backend/internal/webhooks/clerk"
	githubwebhook "github.com/angelmondragon/commitscribe-backend/internal/webhooks/github"
	pkgauth "github.com/angelmondragon/commitscribe-backend/pkg/auth"
	"github.com/angelmondragon/commitscribe-backend/pkg/config"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/github"
	"github.com/angelmondragon/commitscribe-backend/pkg/llm"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/metrics"
	"github.com/angelmondragon/commitscribe-backend/pkg/redis"
	"github.com/angelmondragon/commitscribe-backend/pkg/scheduler"
	"github.com/angelmondragon/commitscribe-backend/pkg/signature"
)

// buildDependencies constructs every service the API routes need. Metrics is
// left for the caller so tests can skip the global registry.
func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*routes.Dependencies, error) {
	conn := dbClient.DB()
	pipelineMetrics := metrics.NewPipelineMetrics(reg)

	aggs, err := aggregates.NewMaintainer(aggregates.MaintainerParams{DB: conn, Tx: dbClient, Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("aggregates: %w", err)
	}
	userSvc, err := users.NewService(users.ServiceParams{Repo: users.NewRepository(conn), Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
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

	waker, err := scheduler.NewRedisWaker(redisClient, cfg.Scheduler.WakeChannel)
	if err != nil {
		return nil, fmt.Errorf("scheduler waker: %w", err)
	}
	sched, err := scheduler.NewScheduler(scheduler.SchedulerParams{Store: scheduler.NewRepository(conn), Notifier: waker, Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
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
		Metrics:      pipelineMetrics,
		Config:       cfg.Summaries,
	})
	if err != nil {
		return nil, fmt.Errorf("summaries pipeline: %w", err)
	}

	cronSvc, err := crons.NewService(crons.ServiceParams{
		Repo:         crons.NewRepository(conn),
		Tx:           dbClient,
		Scheduler:    sched,
		Aggregates:   aggs,
		Repositories: repoSvc,
		Logger:       logg,
	})
	if err != nil {
		return nil, fmt.Errorf("crons: %w", err)
	}
	blogSvc, err := blogs.NewService(blogs.ServiceParams{
		Repo:       blogs.NewRepository(conn),
		Tx:         dbClient,
		Commits:    commitSvc,
		Generator:  llmClient,
		Aggregates: aggs,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("blogs: %w", err)
	}
	installSvc, err := installations.NewService(installations.ServiceParams{
		States:       redisClient,
		Users:        userSvc,
		Repositories: repoSvc,
		GitHub:       githubClient,
		Tx:           dbClient,
		InstallURL:   cfg.GitHub.InstallURL(),
		StateTTL:     cfg.Webhooks.InstallStateTTL,
		Logger:       logg,
	})
	if err != nil {
		return nil, fmt.Errorf("installations: %w", err)
	}

	githubSvc, err := githubwebhook.NewService(githubwebhook.ServiceParams{
		Tx:           dbClient,
		Events:       eventSvc,
		Users:        userSvc,
		Repositories: repoSvc,
		Commits:      commitSvc,
		PullRequests: prSvc,
		Scheduler:    sched,
		Tokens:       githubClient,
		Metrics:      pipelineMetrics,
		Logger:       logg,
		PushDelay:    cfg.Summaries.PushDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("github webhook service: %w", err)
	}
	clerkSvc, err := clerkwebhook.NewService(clerkwebhook.ServiceParams{
		Tx:           dbClient,
		Events:       eventSvc,
		Users:        userSvc,
		Repositories: repoSvc,
		Metrics:      pipelineMetrics,
		Logger:       logg,
	})
	if err != nil {
		return nil, fmt.Errorf("clerk webhook service: %w", err)
	}

	githubVerifier, err := signature.NewGitHubVerifier(cfg.GitHub.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("github verifier: %w", err)
	}
	githubGuard, err := webhooks.NewDeliveryGuard(redisClient, cfg.Webhooks.IdempotencyTTL, "github")
	if err != nil {
		return nil, fmt.Errorf("github delivery guard: %w", err)
	}
	clerkGuard, err := webhooks.NewDeliveryGuard(redisClient, cfg.Webhooks.IdempotencyTTL, "clerk")
	if err != nil {
		return nil, fmt.Errorf("clerk delivery guard: %w", err)
	}
	sessions, err := pkgauth.NewSessionVerifier(cfg.Clerk)
	if err != nil {
		return nil, fmt.Errorf("session verifier: %w", err)
	}

	deps := &routes.Dependencies{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Limiter:        redisClient,
		Idempotency:    redisClient,
		Sessions:       sessions,
		Accounts:       userSvc,
		GitHubWebhook:  githubSvc,
		GitHubVerifier: githubVerifier,
		GitHubGuard:    githubGuard,
		ClerkWebhook:   clerkSvc,
		ClerkGuard:     clerkGuard,
		Users:          userSvc,
		Repositories:   repoSvc,
		Installations:  installSvc,
		Commits:        commitSvc,
		PullRequests:   prSvc,
		Regenerator:    pipeline,
		Crons:          cronSvc,
		Blogs:          blogSvc,
		Aggregates:     aggs,
		Events:         eventSvc,
		Now:            time.Now,
	}

	// Clerk webhooks stay disabled until a signing secret is configured.
	if cfg.Clerk.WebhookSecret != "" {
		clerkVerifier, err := signature.NewSvixVerifier(cfg.Clerk.WebhookSecret)
		if err != nil {
			return nil, fmt.Errorf("clerk verifier: %w", err)
		}
		deps.ClerkVerifier = clerkVerifier
	} else {
		logg.Warn(context.Background(), "clerk webhook secret not set; clerk webhooks will be rejected")
	}

	return deps, nil
}
