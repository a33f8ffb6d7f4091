package telegram

import (
	"context"
	"fmt"
	"testing"
	"time"

	"shift_sms_gateway/internal/app"
	"shift_sms_gateway/internal/domain/audit"
	"shift_sms_gateway/internal/domain/message"
	"shift_sms_gateway/internal/domain/sms"
	idb "shift_sms_gateway/internal/infra/database"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"gopkg.in/telebot.v3"
)

const testAdminID = int64(99)

type stubNotifications struct {
	app.NotificationService
	bulkIDs  []int64
	bulkText string
	window   time.Duration
	sendErr  error
	result   sms.SendResult
}

func (s *stubNotifications) SendOne(_ context.Context, employeeID int64, text string) (*message.Message, error) {
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	return &message.Message{ID: 11, EmployeeID: employeeID, Content: text, Status: message.StatusSent}, nil
}

func (s *stubNotifications) SendBulk(_ context.Context, ids []int64, text string) (app.SendSummary, error) {
	s.bulkIDs, s.bulkText = ids, text
	return app.SendSummary{Sent: 2, Failed: 1}, nil
}

func (s *stubNotifications) ReprocessReminders(_ context.Context, window time.Duration) (app.SendSummary, error) {
	s.window = window
	return app.SendSummary{Sent: 1}, nil
}

func (s *stubNotifications) TestCredentials(context.Context, string) sms.SendResult { return s.result }

type stubSwitcher struct {
	active  sms.ProviderType
	applied sms.ProviderConfig
	err     error
}

func (s *stubSwitcher) Initialize(_ context.Context, cfg sms.ProviderConfig) error {
	if s.err != nil {
		return s.err
	}
	s.active, s.applied = cfg.Provider, cfg
	return nil
}
func (s *stubSwitcher) ProviderType() sms.ProviderType { return s.active }
func (s *stubSwitcher) IsConfigured() bool             { return s.active != "" }

type nopAudit struct{}

func (nopAudit) LogAuditEvent(context.Context, audit.Event) {}

func newTestHandlers(ns *stubNotifications) *AdminHandlers {
	logger := logrus.NewEntry(logrus.New())
	templates := app.NewTemplateService(nil, "", logger)
	admin := app.NewAdminService(ns, templates, &stubSwitcher{active: sms.ProviderTwilio}, nopAudit{}, testAdminID)
	return NewAdminHandlers(admin, nil, logger)
}

func TestSplitFirst(t *testing.T) {
	first, rest := splitFirst("  12   Please call   the office ")
	assert.Equal(t, "12", first)
	assert.Equal(t, "Please call   the office", rest)

	first, rest = splitFirst("solo")
	assert.Equal(t, "solo", first)
	assert.Empty(t, rest)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs("1, 2,3")
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	ids, err = parseIDs("ALL")
	assert.NoError(t, err)
	assert.Nil(t, ids)

	_, err = parseIDs("1,x")
	assert.Error(t, err)
	_, err = parseIDs(",")
	assert.Error(t, err)
}

func TestAdminHandlers_SendSMS(t *testing.T) {
	ctx := context.Background()
	ns := &stubNotifications{}
	h := newTestHandlers(ns)
	log := h.logger

	assert.Equal(t, "SMS to employee 5 is sent (message #11).", h.sendSMS(ctx, log, testAdminID, "5 Please call the office"))
	assert.Contains(t, h.sendSMS(ctx, log, testAdminID, "five hello"), "Invalid format")
	assert.Contains(t, h.sendSMS(ctx, log, testAdminID, "5"), "Invalid format")
	assert.Equal(t, replyUnauthorized, h.sendSMS(ctx, log, 1, "5 hi"))

	ns.sendErr = fmt.Errorf("failed to get employee 5: %w", idb.ErrEmployeeNotFound)
	assert.Equal(t, "Employee 5 not found.", h.sendSMS(ctx, log, testAdminID, "5 hi"))

	ns.sendErr = app.ErrEmployeeUnreachable
	assert.Contains(t, h.sendSMS(ctx, log, testAdminID, "5 hi"), "opted out")
}

func TestAdminHandlers_Broadcast(t *testing.T) {
	ns := &stubNotifications{}
	h := newTestHandlers(ns)

	reply := h.broadcast(context.Background(), h.logger, testAdminID, "1,2,3 Shift swap fair at noon")
	assert.Equal(t, "Broadcast finished: 2 sent, 1 failed.", reply)
	assert.Equal(t, []int64{1, 2, 3}, ns.bulkIDs)
	assert.Equal(t, "Shift swap fair at noon", ns.bulkText)

	assert.Contains(t, h.broadcast(context.Background(), h.logger, testAdminID, "all"), "Invalid format")
}

func TestAdminHandlers_TestSMSAndReminders(t *testing.T) {
	ctx := context.Background()
	ns := &stubNotifications{result: sms.Failed("20003", "Authenticate")}
	h := newTestHandlers(ns)

	assert.Equal(t, "Test SMS failed (20003): Authenticate", h.testSMS(ctx, h.logger, testAdminID, "+15550001111"))
	ns.result = sms.SendResult{Success: true, ProviderMessageID: "SM1"}
	assert.Equal(t, "Test SMS sent, provider id SM1.", h.testSMS(ctx, h.logger, testAdminID, "+15550001111"))

	assert.Contains(t, h.reprocessReminders(ctx, h.logger, testAdminID, ""), "1 sent")
	assert.Equal(t, 24*time.Hour, ns.window)
	h.reprocessReminders(ctx, h.logger, testAdminID, "6")
	assert.Equal(t, 6*time.Hour, ns.window)
	assert.Contains(t, h.reprocessReminders(ctx, h.logger, testAdminID, "-1"), "Invalid format")
}

func TestAdminHandlers_ProviderAndPreview(t *testing.T) {
	h := newTestHandlers(&stubNotifications{})

	assert.Equal(t, "Active SMS provider: twilio", h.providerStatus(context.Background(), h.logger, testAdminID, ""))

	reply := h.previewTemplate(context.Background(), h.logger, testAdminID, "welcome Welcome {{firstName}} {{bogus}}")
	assert.Contains(t, reply, "Preview:\nWelcome Jordan")
	assert.Contains(t, reply, "Error: unknown variable {{bogus}}")

	assert.Contains(t, h.previewTemplate(context.Background(), h.logger, testAdminID, "nope hi"), "Unknown category")
}

func TestAdminHandlers_SwitchProvider(t *testing.T) {
	assert := assert.New(t)
	logger := logrus.NewEntry(logrus.New())
	switcher := &stubSwitcher{active: sms.ProviderTwilio}
	admin := app.NewAdminService(&stubNotifications{}, app.NewTemplateService(nil, "", logger), switcher, nopAudit{}, testAdminID)
	credentials := func(t sms.ProviderType) (sms.ProviderConfig, bool) {
		if t != sms.ProviderRingCentral {
			return sms.ProviderConfig{}, false
		}
		return sms.ProviderConfig{Provider: t, ClientID: "client", WebhookURL: "https://hooks.example.com/sms/inbound"}, true
	}
	h := NewAdminHandlers(admin, credentials, logger)
	ctx := context.Background()

	assert.Contains(h.switchProvider(ctx, h.logger, testAdminID, "carrier-pigeon"), "Invalid format")
	assert.Contains(h.switchProvider(ctx, h.logger, testAdminID, "twilio"), "No twilio credentials")
	assert.Equal(replyUnauthorized, h.switchProvider(ctx, h.logger, 1, "ringcentral"))
	assert.Equal(sms.ProviderTwilio, switcher.active)

	assert.Equal("Active SMS provider: ringcentral", h.switchProvider(ctx, h.logger, testAdminID, "RingCentral"))
	assert.Equal("https://hooks.example.com/sms/inbound", switcher.applied.WebhookURL)

	switcher.err = fmt.Errorf("missing: jwt")
	reply := h.switchProvider(ctx, h.logger, testAdminID, "ringcentral")
	assert.Contains(reply, "Switch failed")
	assert.Contains(reply, "Active SMS provider: ringcentral")
}

func TestStartText(t *testing.T) {
	assert.Contains(t, startText(testAdminID, testAdminID, "Sam"), "Hi Sam!")
	assert.NotContains(t, startText(1, testAdminID, "Sam"), "Sam")
	assert.Contains(t, adminHelpText(), "/send_sms")
}

type recordingBot struct {
	to   telebot.Recipient
	what interface{}
}

func (r *recordingBot) Send(to telebot.Recipient, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	r.to, r.what = to, what
	return &telebot.Message{}, nil
}

func TestSupervisorNotifier(t *testing.T) {
	bot := &recordingBot{}
	n := NewSupervisorNotifier(bot, testAdminID)

	assert.NoError(t, n.NotifySupervisor(context.Background(), "Ana: running late"))
	assert.Equal(t, "99", bot.to.Recipient())
	assert.Equal(t, "Ana: running late", bot.what)

	assert.Error(t, NewSupervisorNotifier(bot, 0).NotifySupervisor(context.Background(), "x"))
}

