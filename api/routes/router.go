package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/commitscribe-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/commitscribe-backend/api/controllers/webhooks"
	"github.com/angelmondragon/commitscribe-backend/api/middleware"
	"github.com/angelmondragon/commitscribe-backend/pkg/config"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/commitscribe-backend/pkg/redis"
)

// Dependencies are the collaborators the API routes are built from. Nil
// services surface as 500s on their routes rather than panics.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	DB          controllers.Pinger
	Redis       controllers.Pinger
	Limiter     middleware.WindowLimiter
	Idempotency pkgredis.IdempotencyStore
	Metrics     http.Handler

	Sessions middleware.SessionVerifier
	Accounts middleware.UserProvisioner

	GitHubWebhook  webhookcontrollers.GitHubWebhookService
	GitHubVerifier webhookcontrollers.GitHubSignatureVerifier
	GitHubGuard    webhookcontrollers.DeliveryGuard
	ClerkWebhook   webhookcontrollers.ClerkWebhookService
	ClerkVerifier  webhookcontrollers.SvixSignatureVerifier
	ClerkGuard     webhookcontrollers.DeliveryGuard

	Users         controllers.UserReader
	Repositories  controllers.RepositoryLister
	Installations controllers.InstallationService
	Commits       controllers.CommitReader
	PullRequests  controllers.PullRequestReader
	Regenerator   interface {
		controllers.CommitRegenerator
		controllers.PullRequestRegenerator
	}
	Crons      controllers.CronService
	Blogs      controllers.BlogService
	Aggregates interface {
		controllers.StatsReader
		controllers.AggregateRepairer
	}
	Events controllers.EventReader
	Now    func() time.Time
}

func NewRouter(deps Dependencies) http.Handler {
	cfg, logg := deps.Config, deps.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.FrontendURL),
	)

	generationPolicy := middleware.RateLimitPolicy{
		Name:   "generation",
		Window: cfg.RateLimit.GenerationWindow,
		Limit:  cfg.RateLimit.GenerationLimit,
	}
	webhookPolicy := middleware.RateLimitPolicy{
		Name:   "webhooks",
		Window: cfg.RateLimit.WebhookWindow,
		Limit:  cfg.RateLimit.WebhookLimit,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"postgres": deps.DB,
			"redis":    deps.Redis,
		}, logg))
	})
	if cfg.FeatureFlags.ExposeMetrics && deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.Ping(controllers.PingPublic, deps.Now))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, deps.Limiter, logg))
		r.Post("/github", webhookcontrollers.GitHubWebhook(deps.GitHubWebhook, deps.GitHubVerifier, deps.GitHubGuard, logg))
		r.Post("/clerk", webhookcontrollers.ClerkWebhook(deps.ClerkWebhook, deps.ClerkVerifier, deps.ClerkGuard, logg))
	})

	// Idempotency is attached per route: it matches on the full chi pattern,
	// which is only known once routing has finished.
	idempotent := middleware.Idempotency(deps.Idempotency, logg)
	generation := middleware.RateLimit(generationPolicy, deps.Limiter, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Sessions, deps.Accounts, cfg.Auth, logg))

		r.Get("/ping", controllers.Ping(controllers.PingPrivate, deps.Now))
		r.Get("/me", controllers.Me(deps.Users, logg))
		r.Get("/stats", controllers.Stats(deps.Aggregates, deps.Now, logg))
		r.Get("/repositories", controllers.ListRepositories(deps.Repositories, logg))

		r.Route("/github", func(r chi.Router) {
			r.Get("/install-url", controllers.GitHubInstallURL(deps.Installations, logg))
			r.Get("/callback", controllers.GitHubCallback(deps.Installations, logg))
		})

		r.Route("/commits", func(r chi.Router) {
			r.Get("/", controllers.ListCommits(deps.Commits, logg))
			r.Get("/{commitID}", controllers.GetCommit(deps.Commits, logg))
			r.With(idempotent, generation).
				Post("/{commitID}/regenerate", controllers.RegenerateCommit(deps.Regenerator, logg))
		})

		r.Route("/pull-requests", func(r chi.Router) {
			r.Get("/", controllers.ListPullRequests(deps.PullRequests, logg))
			r.Get("/{pullRequestID}", controllers.GetPullRequest(deps.PullRequests, logg))
			r.With(idempotent, generation).
				Post("/{pullRequestID}/regenerate", controllers.RegeneratePullRequest(deps.Regenerator, logg))
		})

		r.Route("/crons", func(r chi.Router) {
			r.Get("/", controllers.ListCrons(deps.Crons, logg))
			r.With(idempotent).Post("/", controllers.CreateCron(deps.Crons, logg))
			r.Get("/{cronID}", controllers.GetCron(deps.Crons, logg))
			r.Patch("/{cronID}", controllers.UpdateCron(deps.Crons, logg))
			r.Put("/{cronID}/status", controllers.SetCronStatus(deps.Crons, logg))
			r.Delete("/{cronID}", controllers.DeleteCron(deps.Crons, logg))
			r.Get("/{cronID}/history", controllers.CronHistory(deps.Crons, logg))
		})

		r.Route("/blogs", func(r chi.Router) {
			r.Get("/", controllers.ListBlogs(deps.Blogs, logg))
			r.With(idempotent, generation).
				Post("/", controllers.GenerateBlog(deps.Blogs, logg))
			r.Get("/{blogID}", controllers.GetBlog(deps.Blogs, logg))
			r.Delete("/{blogID}", controllers.DeleteBlog(deps.Blogs, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Sessions, deps.Accounts, cfg.Auth, logg))
		r.Use(middleware.RequireAdmin(logg))

		r.Get("/ping", controllers.Ping(controllers.PingAdmin, deps.Now))
		r.Get("/events", controllers.AdminListEvents(deps.Events, logg))
		r.Get("/events/{eventID}", controllers.AdminGetEvent(deps.Events, logg))
		r.Get("/users/{userID}/aggregates/audit", controllers.AdminAuditAggregates(deps.Aggregates, logg))
		r.Post("/users/{userID}/aggregates/backfill", controllers.AdminBackfillAggregates(deps.Aggregates, logg))
	})

	return r
}
