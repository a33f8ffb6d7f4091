package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shift_sms_gateway/internal/app"
	"shift_sms_gateway/internal/bootstrap"
	"shift_sms_gateway/internal/domain/sms"
	"shift_sms_gateway/internal/infra/config"
	"shift_sms_gateway/internal/infra/logger"
	"shift_sms_gateway/internal/infra/scheduler"
	"shift_sms_gateway/internal/infra/telegram"
	"shift_sms_gateway/internal/infra/webhook"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"db_driver":   cfg.DatabaseDriver,
		"provider":    cfg.SMS.Provider,
	}).Info("Configuration loaded")

	// The supervisor bot is optional; without it unknown replies are only logged.
	var bot *telebot.Bot
	var supervisor app.SupervisorNotifier
	if cfg.TelegramToken != "" {
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) { // Global error handler
				entry := logger.Component("telebot").WithError(err)
				if c != nil && c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Error("Telegram handler failed")
			},
		})
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		supervisor = telegram.NewSupervisorNotifier(bot, cfg.AdminTelegramID)
	}

	a, err := bootstrap.New(ctx, cfg, supervisor, logger.Log.WithField("app", "gateway"))
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not initialize application")
	}
	defer a.Close(context.Background())

	a.Gateway.EnableSubscriptions()
	if err := a.ActivateProvider(ctx); err != nil {
		mainLogger.WithError(err).Error("SMS provider not activated, outbound SMS will fail until it is fixed")
	}
	if w := a.ProviderWatcher(); w != nil {
		if err := w.Start(ctx); err != nil {
			mainLogger.WithError(err).Fatal("Could not watch SMS provider file")
		}
		defer w.Close()
	}

	smsScheduler := scheduler.NewSMSScheduler(a.Notifications, a.Delivery, a.Gateway, cfg.Cron, logger.Log.WithField("app", "gateway"))
	if err := smsScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	handler := webhook.NewHandler(a.Gateway, a.Delivery, cfg.HTTP.PublicBaseURL, logger.Log.WithField("app", "gateway"))
	server := webhook.NewServer(handler, prometheus.DefaultRegisterer)
	metricsServer := webhook.NewMetricsServer()
	webhook.Run(server, cfg.HTTP.Addr, mainLogger)
	webhook.Run(metricsServer, cfg.HTTP.MetricsAddr, mainLogger)

	if bot != nil {
		telegram.RegisterBotCommands(bot, cfg.AdminTelegramID, logger.Component("telegram"))
		credentials := func(t sms.ProviderType) (sms.ProviderConfig, bool) {
			return cfg.ProviderConfigFor(t, a.InboundURL())
		}
		telegram.RegisterAdminHandlers(ctx, bot, a.Admin, credentials, logger.Component("telegram"))
		// Start bot in a goroutine so it doesn't block graceful shutdown handling
		go bot.Start()
	}

	mainLogger.Info("Application setup complete. Webhooks, scheduler and bot are running.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	if bot != nil {
		bot.Stop()
	}
	webhook.Shutdown(10*time.Second, mainLogger, server, metricsServer)
	smsScheduler.Stop()
	cancel()
	mainLogger.Info("Application shut down gracefully.")
}
