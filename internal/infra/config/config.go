package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shift_sms_gateway/internal/domain/sms"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"` // Empty disables inbound dedup
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB,default=0"`
	DedupTTL time.Duration `env:"REDIS_DEDUP_TTL,default=24h"`
}

type HTTPConfig struct {
	Addr        string `env:"HTTP_ADDR,default=:8080"`
	MetricsAddr string `env:"METRICS_ADDR,default=:9090"`
	// PublicBaseURL is how carriers reach this server; callbacks are disabled without it.
	PublicBaseURL string `env:"PUBLIC_WEBHOOK_BASE_URL"`
}

type SMSConfig struct {
	Provider          string `env:"SMS_PROVIDER"`
	FromNumber        string `env:"SMS_FROM_NUMBER"`
	AccountSID        string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken         string `env:"TWILIO_AUTH_TOKEN"`
	ClientID          string `env:"RINGCENTRAL_CLIENT_ID"`
	ClientSecret      string `env:"RINGCENTRAL_CLIENT_SECRET"`
	ServerURL         string `env:"RINGCENTRAL_SERVER_URL"`
	JWT               string `env:"RINGCENTRAL_JWT"`
	VerificationToken string `env:"RINGCENTRAL_VERIFICATION_TOKEN"`
	// ProviderFile is a YAML file that overrides the settings above and is watched for changes.
	ProviderFile  string  `env:"SMS_PROVIDER_FILE"`
	RatePerSecond float64 `env:"SMS_RATE_PER_SECOND,default=1"`
	RateBurst     int     `env:"SMS_RATE_BURST,default=1"`
}

type CronConfig struct {
	ReminderReprocess   string        `env:"CRON_SPEC_REMINDER_REPROCESS,default=0 * * * *"`
	SubscriptionRenewal string        `env:"CRON_SPEC_SUBSCRIPTION_RENEWAL,default=0 */12 * * *"`
	StatusPoll          string        `env:"CRON_SPEC_STATUS_POLL,default=*/10 * * * *"`
	ReminderWindow      time.Duration `env:"REMINDER_WINDOW,default=24h"`
	StatusPollBatch     int           `env:"STATUS_POLL_BATCH,default=50"`
}

// AppConfig holds all configuration for the application
type AppConfig struct {
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	Environment string `env:"ENVIRONMENT,default=development"`

	DatabaseDriver string `env:"DATABASE_DRIVER,default=postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`

	AppBaseURL string `env:"APP_BASE_URL"` // Used for claim links in templates

	TelegramToken   string `env:"TELEGRAM_TOKEN"` // Empty disables the supervisor bot
	AdminTelegramID int64  `env:"ADMIN_TELEGRAM_ID"`

	Redis RedisConfig
	HTTP  HTTPConfig
	SMS   SMSConfig
	Cron  CronConfig
}

// Load reads configuration from environment variables and .env file (if present).
func Load(ctx context.Context) (*AppConfig, error) {
	// godotenv.Load does not override variables that are already set.
	_ = godotenv.Load()
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := envconfig.ProcessWith(ctx, cfg, l); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Environment = strings.ToLower(cfg.Environment)
	cfg.SMS.Provider = strings.ToLower(strings.TrimSpace(cfg.SMS.Provider))
	cfg.HTTP.PublicBaseURL = strings.TrimRight(cfg.HTTP.PublicBaseURL, "/")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	if cfg.TelegramToken != "" && cfg.AdminTelegramID == 0 {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
	}
	if cfg.SMS.RatePerSecond <= 0 {
		return nil, fmt.Errorf("invalid SMS_RATE_PER_SECOND: %v", cfg.SMS.RatePerSecond)
	}

	switch sms.ProviderType(cfg.SMS.Provider) {
	case "":
	case sms.ProviderTwilio:
		if cfg.SMS.AccountSID == "" {
			return nil, fmt.Errorf("TWILIO_ACCOUNT_SID is not set")
		}
		if cfg.SMS.AuthToken == "" {
			return nil, fmt.Errorf("TWILIO_AUTH_TOKEN is not set")
		}
	case sms.ProviderRingCentral:
		if cfg.SMS.ClientID == "" || cfg.SMS.ClientSecret == "" {
			return nil, fmt.Errorf("RINGCENTRAL_CLIENT_ID and RINGCENTRAL_CLIENT_SECRET must be set")
		}
		if cfg.SMS.JWT == "" {
			return nil, fmt.Errorf("RINGCENTRAL_JWT is not set")
		}
	default:
		return nil, fmt.Errorf("invalid SMS_PROVIDER %q", cfg.SMS.Provider)
	}
	if cfg.SMS.Provider != "" && cfg.SMS.FromNumber == "" {
		return nil, fmt.Errorf("SMS_FROM_NUMBER is not set")
	}

	return cfg, nil
}

// ProviderConfig returns the provider settings from the environment, or ok=false
// when SMS_PROVIDER is unset. inboundURL is registered with carriers that push
// replies through a subscription.
func (c *AppConfig) ProviderConfig(inboundURL string) (sms.ProviderConfig, bool) {
	if c.SMS.Provider == "" {
		return sms.ProviderConfig{}, false
	}
	return c.providerConfig(sms.ProviderType(c.SMS.Provider), inboundURL), true
}

// ProviderConfigFor builds the configuration for provider t from the
// environment. ok is false when that provider's credentials are not all set.
func (c *AppConfig) ProviderConfigFor(t sms.ProviderType, inboundURL string) (sms.ProviderConfig, bool) {
	if c.SMS.FromNumber == "" {
		return sms.ProviderConfig{}, false
	}
	switch t {
	case sms.ProviderTwilio:
		if c.SMS.AccountSID == "" || c.SMS.AuthToken == "" {
			return sms.ProviderConfig{}, false
		}
	case sms.ProviderRingCentral:
		if c.SMS.ClientID == "" || c.SMS.ClientSecret == "" || c.SMS.JWT == "" {
			return sms.ProviderConfig{}, false
		}
	default:
		return sms.ProviderConfig{}, false
	}
	return c.providerConfig(t, inboundURL), true
}

func (c *AppConfig) providerConfig(t sms.ProviderType, inboundURL string) sms.ProviderConfig {
	return sms.ProviderConfig{
		Provider:          t,
		FromNumber:        c.SMS.FromNumber,
		AccountSID:        c.SMS.AccountSID,
		AuthToken:         c.SMS.AuthToken,
		ClientID:          c.SMS.ClientID,
		ClientSecret:      c.SMS.ClientSecret,
		ServerURL:         c.SMS.ServerURL,
		JWT:               c.SMS.JWT,
		VerificationToken: c.SMS.VerificationToken,
		WebhookURL:        inboundURL,
	}
}

// PublicURL joins path onto the public webhook base, or returns "" when none is configured.
func (c *AppConfig) PublicURL(path string) string {
	if c.HTTP.PublicBaseURL == "" {
		return ""
	}
	return c.HTTP.PublicBaseURL + path
}
