package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Database
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`
	AutoMigrate        bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	// Scheduling & quota
	ServiceTimezone    string `envconfig:"SERVICE_TIMEZONE" default:"Asia/Kolkata"`
	SchedulerEnabled   bool   `envconfig:"SCHEDULER_ENABLED" default:"true"`
	SchedulerCron      string `envconfig:"SCHEDULER_CRON" default:"30 3-19 * * *"`
	FreeDailyPostLimit int    `envconfig:"FREE_DAILY_POST_LIMIT" default:"2"`
	DryRun             bool   `envconfig:"DRY_RUN" default:"false"`

	// Content source (Perplexity)
	PerplexityAPIKey  string `envconfig:"PERPLEXITY_API_KEY"`
	PerplexityBaseURL string `envconfig:"PERPLEXITY_BASE_URL" default:"https://api.perplexity.ai"`
	PerplexityModel   string `envconfig:"PERPLEXITY_MODEL" default:"sonar"`
	ContentTimeoutSec int    `envconfig:"CONTENT_TIMEOUT_SEC" default:"20"`

	// Publisher (X/Twitter)
	TwitterBaseURL    string `envconfig:"TWITTER_BASE_URL" default:"https://api.twitter.com"`
	PublishTimeoutSec int    `envconfig:"PUBLISH_TIMEOUT_SEC" default:"15"`

	// Credentials: "postgres" or "secretmanager"
	CredentialsBackend       string `envconfig:"CREDENTIALS_BACKEND" default:"postgres"`
	CredentialsEncryptionKey string `envconfig:"CREDENTIALS_ENCRYPTION_KEY"`

	// GCP
	GCPProjectID       string `envconfig:"GCP_PROJECT_ID"`
	GCPCredentialsFile string `envconfig:"GCP_CREDENTIALS_FILE"`
	PubSubEmulatorHost string `envconfig:"PUBSUB_EMULATOR_HOST"`
	PubSubPostsTopic   string `envconfig:"PUBSUB_POSTS_TOPIC"`

	// Raw generation archive (S3 compatible)
	S3URL       string `envconfig:"S3_URL"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`

	// Manual trigger rate limiting
	RedisAddr            string `envconfig:"REDIS_ADDR"`
	RedisPassword        string `envconfig:"REDIS_PASSWORD"`
	RedisDB              int    `envconfig:"REDIS_DB" default:"0"`
	TriggerRateLimit     int    `envconfig:"TRIGGER_RATE_LIMIT" default:"5"`
	TriggerRateWindowSec int    `envconfig:"TRIGGER_RATE_WINDOW_SEC" default:"3600"`

	// API auth
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Billing
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripePricePaid     string `envconfig:"STRIPE_PRICE_PAID"`
	StripeReturnURL     string `envconfig:"STRIPE_RETURN_URL" default:"http://localhost:8080/"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks rules that span more than one field.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.ServiceTimezone); err != nil {
		return fmt.Errorf("invalid SERVICE_TIMEZONE %q: %w", c.ServiceTimezone, err)
	}
	switch c.CredentialsBackend {
	case "postgres":
		if c.CredentialsEncryptionKey == "" {
			return fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY is required for the postgres credentials backend")
		}
	case "secretmanager":
		if c.GCPProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required for the secretmanager credentials backend")
		}
	default:
		return fmt.Errorf("unknown CREDENTIALS_BACKEND %q", c.CredentialsBackend)
	}
	if c.FreeDailyPostLimit < 0 {
		return fmt.Errorf("FREE_DAILY_POST_LIMIT must not be negative")
	}
	if !c.DryRun && c.PerplexityAPIKey == "" {
		return fmt.Errorf("PERPLEXITY_API_KEY is required unless DRY_RUN is set")
	}
	return nil
}

// Location returns the service-local time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ServiceTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) ContentTimeout() time.Duration {
	return time.Duration(c.ContentTimeoutSec) * time.Second
}

func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutSec) * time.Second
}

// PubSubEnabled reports whether post events should be published.
func (c *Config) PubSubEnabled() bool {
	return c.GCPProjectID != "" && c.PubSubPostsTopic != ""
}

// ArchiveEnabled reports whether raw generations should be archived to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) BillingEnabled() bool {
	return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
}
