package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GitHub       GitHubConfig
	Clerk        ClerkConfig
	Auth         AuthConfig
	OpenAI       OpenAIConfig
	Scheduler    SchedulerConfig
	Summaries    SummariesConfig
	Webhooks     WebhooksConfig
	RateLimit    RateLimitConfig
	Maintenance  MaintenanceConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.GitHub.WebhookSecret) == "" {
		return nil, fmt.Errorf("%s must not be blank", EnvGitHubWebhookSecret)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"COMMITSCRIBE_APP_ENV" required:"true"`
	Port         string `envconfig:"COMMITSCRIBE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"COMMITSCRIBE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COMMITSCRIBE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"COMMITSCRIBE_LOG_FORMAT" default:"json"`
	FrontendURL  string `envconfig:"COMMITSCRIBE_FRONTEND_URL" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"COMMITSCRIBE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"COMMITSCRIBE_DB_DSN"`
	Driver string `envconfig:"COMMITSCRIBE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"COMMITSCRIBE_DB_HOST"`
	LegacyPort     int    `envconfig:"COMMITSCRIBE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COMMITSCRIBE_DB_USER"`
	LegacyPassword string `envconfig:"COMMITSCRIBE_DB_PASSWORD"`
	LegacyName     string `envconfig:"COMMITSCRIBE_DB_NAME"`
	LegacySSLMode  string `envconfig:"COMMITSCRIBE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COMMITSCRIBE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COMMITSCRIBE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COMMITSCRIBE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COMMITSCRIBE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"COMMITSCRIBE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COMMITSCRIBE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COMMITSCRIBE_REDIS_ADDR"`
	Password     string        `envconfig:"COMMITSCRIBE_REDIS_PASSWORD"`
	DB           int           `envconfig:"COMMITSCRIBE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COMMITSCRIBE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COMMITSCRIBE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COMMITSCRIBE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COMMITSCRIBE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COMMITSCRIBE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// GitHubConfig holds the GitHub App credentials. PrivateKey is the PEM encoded
// RSA key issued for the app.
type GitHubConfig struct {
	AppID          int64         `envconfig:"COMMITSCRIBE_GITHUB_APP_ID"`
	AppSlug        string        `envconfig:"COMMITSCRIBE_GITHUB_APP_SLUG" default:"commitscribe"`
	PrivateKey     string        `envconfig:"COMMITSCRIBE_GITHUB_PRIVATE_KEY"`
	WebhookSecret  string        `envconfig:"COMMITSCRIBE_GITHUB_WEBHOOK_SECRET" required:"true"`
	APIURL         string        `envconfig:"COMMITSCRIBE_GITHUB_API_URL" default:"https://api.github.com"`
	WebURL         string        `envconfig:"COMMITSCRIBE_GITHUB_WEB_URL" default:"https://github.com"`
	RequestTimeout time.Duration `envconfig:"COMMITSCRIBE_GITHUB_REQUEST_TIMEOUT" default:"30s"`
}

// InstallURL returns the app installation page for the configured slug.
func (g GitHubConfig) InstallURL() string {
	base := strings.TrimRight(g.WebURL, "/")
	return fmt.Sprintf("%s/apps/%s/installations/new", base, url.PathEscape(g.AppSlug))
}

type ClerkConfig struct {
	WebhookSecret string `envconfig:"COMMITSCRIBE_CLERK_WEBHOOK_SECRET"`
	JWTPublicKey  string `envconfig:"COMMITSCRIBE_CLERK_JWT_PUBLIC_KEY"`
	Issuer        string `envconfig:"COMMITSCRIBE_CLERK_ISSUER"`
}

type AuthConfig struct {
	AdminClerkIDs []string `envconfig:"COMMITSCRIBE_ADMIN_CLERK_IDS"`
}

// IsAdmin reports whether the external identity belongs to an operator.
func (a AuthConfig) IsAdmin(clerkID string) bool {
	for _, id := range a.AdminClerkIDs {
		if strings.TrimSpace(id) == clerkID && clerkID != "" {
			return true
		}
	}
	return false
}

type OpenAIConfig struct {
	APIKey    string        `envconfig:"COMMITSCRIBE_OPENAI_API_KEY"`
	BaseURL   string        `envconfig:"COMMITSCRIBE_OPENAI_BASE_URL"`
	Model     string        `envconfig:"COMMITSCRIBE_OPENAI_MODEL" default:"gpt-4o-mini"`
	MaxTokens int           `envconfig:"COMMITSCRIBE_OPENAI_MAX_TOKENS" default:"800"`
	Timeout   time.Duration `envconfig:"COMMITSCRIBE_OPENAI_TIMEOUT" default:"60s"`
}

type SchedulerConfig struct {
	Workers       int           `envconfig:"COMMITSCRIBE_SCHEDULER_WORKERS" default:"4"`
	BatchSize     int           `envconfig:"COMMITSCRIBE_SCHEDULER_BATCH_SIZE" default:"10"`
	PollInterval  time.Duration `envconfig:"COMMITSCRIBE_SCHEDULER_POLL_INTERVAL" default:"5s"`
	LeaseDuration time.Duration `envconfig:"COMMITSCRIBE_SCHEDULER_LEASE" default:"10m"`
	WakeChannel   string        `envconfig:"COMMITSCRIBE_SCHEDULER_WAKE_CHANNEL" default:"cs:scheduler:wake"`
}

type SummariesConfig struct {
	MaxFileDiffBytes int           `envconfig:"COMMITSCRIBE_SUMMARIES_MAX_FILE_DIFF_BYTES" default:"6000"`
	MaxPromptFiles   int           `envconfig:"COMMITSCRIBE_SUMMARIES_MAX_PROMPT_FILES" default:"40"`
	CronLookback     time.Duration `envconfig:"COMMITSCRIBE_SUMMARIES_CRON_LOOKBACK" default:"24h"`
	PushDelay        time.Duration `envconfig:"COMMITSCRIBE_SUMMARIES_PUSH_DELAY" default:"0s"`
}

type WebhooksConfig struct {
	IdempotencyTTL  time.Duration `envconfig:"COMMITSCRIBE_WEBHOOKS_IDEMPOTENCY_TTL" default:"72h"`
	InstallStateTTL time.Duration `envconfig:"COMMITSCRIBE_WEBHOOKS_INSTALL_STATE_TTL" default:"10m"`
}

// RateLimitConfig throttles generation endpoints per user and webhook intake
// per source IP. A zero limit disables the policy.
type RateLimitConfig struct {
	GenerationLimit  int64         `envconfig:"COMMITSCRIBE_RATE_LIMIT_GENERATION" default:"30"`
	GenerationWindow time.Duration `envconfig:"COMMITSCRIBE_RATE_LIMIT_GENERATION_WINDOW" default:"1h"`
	WebhookLimit     int64         `envconfig:"COMMITSCRIBE_RATE_LIMIT_WEBHOOK" default:"600"`
	WebhookWindow    time.Duration `envconfig:"COMMITSCRIBE_RATE_LIMIT_WEBHOOK_WINDOW" default:"1m"`
}

type MaintenanceConfig struct {
	Interval       time.Duration `envconfig:"COMMITSCRIBE_MAINTENANCE_INTERVAL" default:"1h"`
	JobRetention   time.Duration `envconfig:"COMMITSCRIBE_MAINTENANCE_JOB_RETENTION" default:"720h"`
	StaleEventAge  time.Duration `envconfig:"COMMITSCRIBE_MAINTENANCE_STALE_EVENT_AGE" default:"2h"`
	AuditBatchSize int           `envconfig:"COMMITSCRIBE_MAINTENANCE_AUDIT_BATCH_SIZE" default:"200"`
}

type FeatureFlagsConfig struct {
	AutoMigrate   bool `envconfig:"COMMITSCRIBE_AUTO_MIGRATE" default:"false"`
	AutoBackfill  bool `envconfig:"COMMITSCRIBE_AUTO_BACKFILL" default:"false"`
	ExposeMetrics bool `envconfig:"COMMITSCRIBE_EXPOSE_METRICS" default:"true"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
