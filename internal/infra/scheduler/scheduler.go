package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shift_sms_gateway/internal/app"
	"shift_sms_gateway/internal/infra/config"
	"shift_sms_gateway/internal/infra/provider"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type reminderReprocessor interface {
	ReprocessReminders(ctx context.Context, window time.Duration) (app.SendSummary, error)
}

type statusPoller interface {
	PollPendingStatuses(ctx context.Context, limit int) (int, error)
}

type subscriptionMaintainer interface {
	MaintainSubscription(ctx context.Context) error
}

// SMSScheduler runs the periodic gateway jobs: reminder catch-up, delivery
// status polling and push subscription renewal.
type SMSScheduler struct {
	cronEngine    *cron.Cron
	reminders     reminderReprocessor
	statuses      statusPoller
	subscriptions subscriptionMaintainer
	cronCfg       config.CronConfig
	logger        *logrus.Entry
}

func NewSMSScheduler(
	reminders reminderReprocessor,
	statuses statusPoller,
	subscriptions subscriptionMaintainer,
	cronCfg config.CronConfig,
	logger *logrus.Entry,
) *SMSScheduler {
	return &SMSScheduler{
		cronEngine:    cron.New(cron.WithLocation(time.Local)), // Use server's local time for cron
		reminders:     reminders,
		statuses:      statuses,
		subscriptions: subscriptions,
		cronCfg:       cronCfg,
		logger:        logger.WithField("component", "scheduler"),
	}
}

// Start registers the jobs and starts the cron engine.
func (s *SMSScheduler) Start() error {
	s.logger.Info("Starting SMS scheduler...")

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"reminder_reprocess", s.cronCfg.ReminderReprocess, s.runReminders},
		{"status_poll", s.cronCfg.StatusPoll, s.runStatusPoll},
		{"subscription_renewal", s.cronCfg.SubscriptionRenewal, s.runSubscriptionRenewal},
	}
	for _, job := range jobs {
		if job.spec == "" {
			s.logger.WithField("job", job.name).Info("Job disabled, no cron spec")
			continue
		}
		if _, err := s.cronEngine.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("could not add %s cron job: %w", job.name, err)
		}
	}

	s.cronEngine.Start()
	s.logger.Info("SMS scheduler started with jobs.")
	return nil
}

func (s *SMSScheduler) runReminders() {
	log := s.logger.WithField("job", "reminder_reprocess")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute) // Longer timeout for potentially more items
	defer cancel()

	summary, err := s.reminders.ReprocessReminders(ctx, s.cronCfg.ReminderWindow)
	if err != nil {
		log.WithError(err).Error("Error during reminder reprocessing")
		return
	}
	log.WithFields(logrus.Fields{"sent": summary.Sent, "failed": summary.Failed}).Info("Reminder reprocessing finished")
}

func (s *SMSScheduler) runStatusPoll() {
	log := s.logger.WithField("job", "status_poll")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	updated, err := s.statuses.PollPendingStatuses(ctx, s.cronCfg.StatusPollBatch)
	if err != nil {
		log.WithError(err).Error("Error during delivery status polling")
		return
	}
	if updated > 0 {
		log.WithField("updated", updated).Info("Delivery statuses refreshed")
	}
}

func (s *SMSScheduler) runSubscriptionRenewal() {
	log := s.logger.WithField("job", "subscription_renewal")
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	if err := s.subscriptions.MaintainSubscription(ctx); err != nil {
		if errors.Is(err, provider.ErrNoProvider) {
			log.Debug("No SMS provider configured, skipping subscription renewal")
			return
		}
		log.WithError(err).Error("Error during subscription renewal")
	}
}

func (s *SMSScheduler) Stop() {
	s.logger.Info("Stopping SMS scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("SMS scheduler gracefully stopped.")
}
