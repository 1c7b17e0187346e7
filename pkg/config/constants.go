package config

const (
	EnvPrefix = "COMMITSCRIBE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "COMMITSCRIBE_APP_ENV"
	EnvPort     = "COMMITSCRIBE_APP_PORT"
	EnvDBDSN    = "COMMITSCRIBE_DB_DSN"
	EnvDBHost   = "COMMITSCRIBE_DB_HOST"
	EnvDBUser   = "COMMITSCRIBE_DB_USER"
	EnvDBName   = "COMMITSCRIBE_DB_NAME"
	EnvRedisURL = "COMMITSCRIBE_REDIS_URL"

	EnvGitHubWebhookSecret = "COMMITSCRIBE_GITHUB_WEBHOOK_SECRET"
	EnvGitHubAppID         = "COMMITSCRIBE_GITHUB_APP_ID"
	EnvGitHubAppSlug       = "COMMITSCRIBE_GITHUB_APP_SLUG"
	EnvClerkWebhookSecret  = "COMMITSCRIBE_CLERK_WEBHOOK_SECRET"
	EnvOpenAIAPIKey        = "COMMITSCRIBE_OPENAI_API_KEY"
	EnvSchedulerWorkers    = "COMMITSCRIBE_SCHEDULER_WORKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
