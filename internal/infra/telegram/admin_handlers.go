package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shift_sms_gateway/internal/app"
	"shift_sms_gateway/internal/domain/sms"
	"shift_sms_gateway/internal/domain/template"
	idb "shift_sms_gateway/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	replyUnauthorized     = "Error: you are not allowed to run this command."
	defaultReminderWindow = 24 * time.Hour
)

// commandFunc handles the text after the command and returns the reply.
type commandFunc func(ctx context.Context, log *logrus.Entry, senderID int64, payload string) string

// CredentialSource returns the server-side configuration for a provider, so
// secrets never pass through the chat.
type CredentialSource func(t sms.ProviderType) (sms.ProviderConfig, bool)

// AdminHandlers serves the supervisor's SMS commands.
type AdminHandlers struct {
	adminService *app.AdminService
	credentials  CredentialSource
	logger       *logrus.Entry
}

func NewAdminHandlers(adminService *app.AdminService, credentials CredentialSource, baseLogger *logrus.Entry) *AdminHandlers {
	return &AdminHandlers{
		adminService: adminService,
		credentials:  credentials,
		logger:       baseLogger.WithField("handler_group", "admin"),
	}
}

// RegisterAdminHandlers registers handlers for admin commands.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, credentials CredentialSource, baseLogger *logrus.Entry) {
	h := NewAdminHandlers(adminService, credentials, baseLogger)
	b.Handle("/send_sms", h.wrap(ctx, "/send_sms", h.sendSMS))
	b.Handle("/broadcast", h.wrap(ctx, "/broadcast", h.broadcast))
	b.Handle("/test_sms", h.wrap(ctx, "/test_sms", h.testSMS))
	b.Handle("/reprocess_reminders", h.wrap(ctx, "/reprocess_reminders", h.reprocessReminders))
	b.Handle("/sms_provider", h.wrap(ctx, "/sms_provider", h.providerStatus))
	b.Handle("/sms_provider_switch", h.wrap(ctx, "/sms_provider_switch", h.switchProvider))
	b.Handle("/preview_template", h.wrap(ctx, "/preview_template", h.previewTemplate))
}

func (h *AdminHandlers) wrap(ctx context.Context, name string, fn commandFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		handlerLogger := h.logger.WithFields(logrus.Fields{
			"handler":   name,
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != h.adminService.AdminID() {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(replyUnauthorized)
		}

		var payload string
		if m := c.Message(); m != nil {
			payload = strings.TrimSpace(m.Payload)
		}
		return c.Send(fn(ctx, handlerLogger, c.Sender().ID, payload))
	}
}

// splitFirst returns the first word of payload and the trimmed remainder.
func splitFirst(payload string) (string, string) {
	payload = strings.TrimSpace(payload)
	idx := strings.IndexAny(payload, " \t\n")
	if idx < 0 {
		return payload, ""
	}
	return payload[:idx], strings.TrimSpace(payload[idx+1:])
}

// parseIDs parses "1,2,3". "all" yields nil, meaning every opted-in employee.
func parseIDs(raw string) ([]int64, error) {
	if strings.EqualFold(raw, "all") {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid employee id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("no employee ids given")
	}
	return ids, nil
}

// Expected format: /send_sms <EmployeeID> <text>
func (h *AdminHandlers) sendSMS(ctx context.Context, log *logrus.Entry, senderID int64, payload string) string {
	rawID, text := splitFirst(payload)
	employeeID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || text == "" {
		return "Invalid format. Use: /send_sms <EmployeeID> <text>"
	}
	log = log.WithField("employee_id", employeeID)

	msg, err := h.adminService.SendToEmployee(ctx, senderID, employeeID, text)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrAdminNotAuthorized):
		log.WithError(err).Warn("Admin not authorized (service level)")
		return replyUnauthorized
	case errors.Is(err, idb.ErrEmployeeNotFound):
		return fmt.Sprintf("Employee %d not found.", employeeID)
	case errors.Is(err, app.ErrEmployeeUnreachable):
		return fmt.Sprintf("Employee %d has opted out of SMS or has no phone number.", employeeID)
	default:
		log.WithError(err).Error("Failed to send SMS")
		return fmt.Sprintf("Failed to send SMS: %s", err.Error())
	}

	log.WithFields(logrus.Fields{"message_id": msg.ID, "status": msg.Status}).Info("Operator SMS processed")
	if msg.ErrorMessage.Valid {
		return fmt.Sprintf("SMS to employee %d failed: %s", employeeID, msg.ErrorMessage.String)
	}
	return fmt.Sprintf("SMS to employee %d is %s (message #%d).", employeeID, msg.Status, msg.ID)
}

// Expected format: /broadcast <all|ID,ID,...> <text>
func (h *AdminHandlers) broadcast(ctx context.Context, log *logrus.Entry, senderID int64, payload string) string {
	rawIDs, text := splitFirst(payload)
	ids, err := parseIDs(rawIDs)
	if err != nil || text == "" {
		return "Invalid format. Use: /broadcast <all|ID,ID,...> <text>"
	}

	summary, err := h.adminService.Broadcast(ctx, senderID, ids, text)
	if err != nil {
		if errors.Is(err, app.ErrAdminNotAuthorized) {
			return replyUnauthorized
		}
		log.WithError(err).Error("Broadcast failed")
		return fmt.Sprintf("Broadcast stopped after %d sent, %d failed: %s", summary.Sent, summary.Failed, err.Error())
	}
	log.WithFields(logrus.Fields{"sent": summary.Sent, "failed": summary.Failed}).Info("Broadcast finished")
	return fmt.Sprintf("Broadcast finished: %d sent, %d failed.", summary.Sent, summary.Failed)
}

// Expected format: /test_sms <phone>
func (h *AdminHandlers) testSMS(ctx context.Context, log *logrus.Entry, senderID int64, payload string) string {
	phone, _ := splitFirst(payload)
	if phone == "" {
		return "Invalid format. Use: /test_sms <phone>"
	}

	result, err := h.adminService.TestCredentials(ctx, senderID, phone)
	if err != nil {
		return replyUnauthorized
	}
	if !result.Success {
		log.WithField("error_code", result.ErrorCode).Warn("Credential test failed")
		return fmt.Sprintf("Test SMS failed (%s): %s", result.ErrorCode, result.ErrorMessage)
	}
	return fmt.Sprintf("Test SMS sent, provider id %s.", result.ProviderMessageID)
}

// Expected format: /reprocess_reminders [hours]
func (h *AdminHandlers) reprocessReminders(ctx context.Context, log *logrus.Entry, senderID int64, payload string) string {
	window := defaultReminderWindow
	if raw, _ := splitFirst(payload); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			return "Invalid format. Use: /reprocess_reminders [hours]"
		}
		window = time.Duration(hours) * time.Hour
	}

	summary, err := h.adminService.ReprocessReminders(ctx, senderID, window)
	if err != nil {
		if errors.Is(err, app.ErrAdminNotAuthorized) {
			return replyUnauthorized
		}
		log.WithError(err).Error("Reminder reprocessing failed")
		return fmt.Sprintf("Reminder reprocessing failed: %s", err.Error())
	}
	return fmt.Sprintf("Reminders for the next %s: %d sent, %d failed.", window, summary.Sent, summary.Failed)
}

func (h *AdminHandlers) providerStatus(_ context.Context, _ *logrus.Entry, _ int64, _ string) string {
	return h.adminService.ProviderStatus()
}

// Expected format: /sms_provider_switch <twilio|ringcentral>
func (h *AdminHandlers) switchProvider(ctx context.Context, log *logrus.Entry, senderID int64, payload string) string {
	raw, _ := splitFirst(payload)
	target := sms.ProviderType(strings.ToLower(raw))
	if target != sms.ProviderTwilio && target != sms.ProviderRingCentral {
		return "Invalid format. Use: /sms_provider_switch <twilio|ringcentral>"
	}
	if h.credentials == nil {
		return fmt.Sprintf("No %s credentials are configured on the server.", target)
	}
	cfg, ok := h.credentials(target)
	if !ok {
		return fmt.Sprintf("No %s credentials are configured on the server.", target)
	}
	log = log.WithField("provider", target)

	if err := h.adminService.SwitchProvider(ctx, senderID, cfg); err != nil {
		if errors.Is(err, app.ErrAdminNotAuthorized) {
			return replyUnauthorized
		}
		log.WithError(err).Error("SMS provider switch failed")
		return fmt.Sprintf("Switch failed: %s\n%s", err.Error(), h.adminService.ProviderStatus())
	}
	log.Info("SMS provider switched")
	return h.adminService.ProviderStatus()
}

// Expected format: /preview_template <category> <content>
func (h *AdminHandlers) previewTemplate(_ context.Context, log *logrus.Entry, _ int64, payload string) string {
	rawCategory, content := splitFirst(payload)
	if rawCategory == "" || content == "" {
		return "Invalid format. Use: /preview_template <category> <content>"
	}

	rendered, result, err := h.adminService.PreviewTemplate(template.Category(strings.ToLower(rawCategory)), content)
	if err != nil {
		names := make([]string, 0, len(template.Categories))
		for _, c := range template.Categories {
			names = append(names, string(c))
		}
		return fmt.Sprintf("Unknown category %q. Known categories: %s", rawCategory, strings.Join(names, ", "))
	}
	log.WithField("valid", result.Valid).Debug("Template previewed")

	var response strings.Builder
	response.WriteString("Preview:\n")
	response.WriteString(rendered)
	for _, e := range result.Errors {
		response.WriteString("\nError: ")
		response.WriteString(e)
	}
	for _, w := range result.Warnings {
		response.WriteString("\nWarning: ")
		response.WriteString(w)
	}
	return response.String()
}
