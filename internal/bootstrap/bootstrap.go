package bootstrap

import (
	"context"
	"fmt"

	"shift_sms_gateway/internal/app"
	"shift_sms_gateway/internal/infra/audit"
	"shift_sms_gateway/internal/infra/cache"
	"shift_sms_gateway/internal/infra/config"
	idb "shift_sms_gateway/internal/infra/database"
	"shift_sms_gateway/internal/infra/provider"
	"shift_sms_gateway/internal/infra/providerwatch"
	"shift_sms_gateway/internal/infra/ratelimit"
	"shift_sms_gateway/internal/infra/webhook"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// App holds the services shared by the gateway server and the admin CLI.
type App struct {
	Config *config.AppConfig
	DB     *sqlx.DB
	Redis  *redis.Client // nil when REDIS_ADDR is unset

	Gateway      *provider.Gateway
	Employees    *idb.EmployeeRepository
	Templates    *idb.TemplateRepository
	AuditEntries *idb.AuditRepository

	TemplateService *app.TemplateService
	Notifications   *app.NotificationServiceImpl
	Commands        *app.CommandService
	Delivery        *app.DeliveryService
	Admin           *app.AdminService

	logger *logrus.Entry
}

// New connects storage and wires the services. supervisor may be nil when no
// supervisor chat is configured.
func New(ctx context.Context, cfg *config.AppConfig, supervisor app.SupervisorNotifier, logger *logrus.Entry) (*App, error) {
	db, err := idb.NewConnection(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if err := idb.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	logger.WithField("driver", cfg.DatabaseDriver).Info("Database connection established successfully.")

	a := &App{Config: cfg, DB: db, logger: logger}

	var dedup app.InboundDeduplicator
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.Redis = rdb
		dedup = cache.NewInboundDedup(rdb, cfg.Redis.DedupTTL)
		logger.Info("Inbound dedup backed by Redis.")
	} else {
		logger.Warn("REDIS_ADDR is not set, inbound webhook retries will not be deduplicated")
	}

	a.Employees = idb.NewEmployeeRepository(db)
	employees := a.Employees
	shifts := idb.NewShiftRepository(db)
	messages := idb.NewMessageRepository(db)
	settingsRepo := idb.NewSettingsRepository(db)
	a.Templates = idb.NewTemplateRepository(db)
	a.AuditEntries = idb.NewAuditRepository(db)
	auditSink := audit.NewDBSink(a.AuditEntries, logger)

	a.Gateway = provider.NewGateway(provider.DefaultFactory(logger), logger)
	limiter := ratelimit.New(cfg.SMS.RatePerSecond, cfg.SMS.RateBurst)
	statusURL := cfg.PublicURL(webhook.StatusPath)

	a.TemplateService = app.NewTemplateService(a.Templates, cfg.AppBaseURL, logger)
	a.Notifications = app.NewNotificationServiceImpl(employees, shifts, messages, settingsRepo,
		a.TemplateService, a.Gateway, limiter, auditSink, statusURL, logger)
	a.Commands = app.NewCommandService(shifts, employees, messages, a.TemplateService, auditSink, supervisor, logger)
	a.Delivery = app.NewDeliveryService(a.Gateway, employees, messages, a.Commands, dedup, auditSink, statusURL, logger)
	a.Admin = app.NewAdminService(a.Notifications, a.TemplateService, a.Gateway, auditSink, cfg.AdminTelegramID)
	return a, nil
}

// InboundURL is the public URL carriers deliver replies to.
func (a *App) InboundURL() string {
	return a.Config.PublicURL(webhook.InboundPath)
}

// ProviderWatcher returns a watcher for SMS_PROVIDER_FILE, or nil when it is unset.
func (a *App) ProviderWatcher() *providerwatch.Watcher {
	if a.Config.SMS.ProviderFile == "" {
		return nil
	}
	return providerwatch.New(a.Config.SMS.ProviderFile, a.InboundURL(), a.Admin, a.logger)
}

// ActivateProvider configures the gateway from the provider file when one is
// set, otherwise from the environment. With neither, sends fail with NO_PROVIDER.
func (a *App) ActivateProvider(ctx context.Context) error {
	if w := a.ProviderWatcher(); w != nil {
		return w.Apply(ctx)
	}
	cfg, ok := a.Config.ProviderConfig(a.InboundURL())
	if !ok {
		a.logger.Warn("No SMS provider configured")
		return nil
	}
	return a.Admin.ReloadProvider(ctx, cfg)
}

// Close releases the provider, Redis and the database.
func (a *App) Close(ctx context.Context) {
	if err := a.Gateway.Close(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to dispose SMS provider")
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close Redis client")
		}
	}
	if err := a.DB.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
}
