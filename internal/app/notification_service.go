package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shift_sms_gateway/internal/domain/audit"
	"shift_sms_gateway/internal/domain/employee"
	"shift_sms_gateway/internal/domain/message"
	"shift_sms_gateway/internal/domain/settings"
	"shift_sms_gateway/internal/domain/shift"
	"shift_sms_gateway/internal/domain/sms"
	"shift_sms_gateway/internal/domain/template"

	"github.com/sirupsen/logrus"
)

var (
	ErrEmployeeUnreachable = errors.New("employee is inactive, opted out or has no phone")
	ErrShiftNotAssigned    = errors.New("shift has no assigned employee")
	ErrEmptyMessage        = errors.New("message text is empty")
)

const testMessageBody = "Test message from the shift SMS gateway. No reply needed."

// SendSummary counts the outcome of a notification batch.
type SendSummary struct {
	Sent   int
	Failed int
}

func (s *SendSummary) add(ok bool) {
	if ok {
		s.Sent++
	} else {
		s.Failed++
	}
}

// NotificationService sends outbound shift SMS. Every method checks the
// relevant feature flag first and returns an empty summary when it is off.
type NotificationService interface {
	NotifyNewShift(ctx context.Context, shiftID int64) (SendSummary, error)
	SendAssignmentConfirmation(ctx context.Context, shiftID int64) (SendSummary, error)
	SendShiftReminder(ctx context.Context, shiftID int64, urgent bool) (SendSummary, error)
	NotifyShiftFilled(ctx context.Context, shiftID int64) (SendSummary, error)
	ReprocessReminders(ctx context.Context, window time.Duration) (SendSummary, error)

	SendOne(ctx context.Context, employeeID int64, text string) (*message.Message, error)
	SendBulk(ctx context.Context, employeeIDs []int64, text string) (SendSummary, error)
	TestCredentials(ctx context.Context, to string) sms.SendResult
}

type NotificationServiceImpl struct {
	employeeRepo employee.Repository
	shiftRepo    shift.Repository
	messageRepo  message.Repository
	templates    *TemplateService
	gateway      SMSGateway
	limiter      Limiter
	audit        audit.Sink
	flags        featureFlags
	sender       *messageSender
	now          func() time.Time
	logger       *logrus.Entry
}

func NewNotificationServiceImpl(
	er employee.Repository,
	sr shift.Repository,
	mr message.Repository,
	settingsRepo settings.Repository,
	templates *TemplateService,
	gateway SMSGateway,
	limiter Limiter,
	auditSink audit.Sink,
	statusCallbackURL string,
	logger *logrus.Entry,
) *NotificationServiceImpl {
	log := logger.WithField("component", "notification_service")
	return &NotificationServiceImpl{
		employeeRepo: er,
		shiftRepo:    sr,
		messageRepo:  mr,
		templates:    templates,
		gateway:      gateway,
		limiter:      limiter,
		audit:        auditSink,
		flags:        featureFlags{repo: settingsRepo, logger: log},
		sender: &messageSender{
			gateway:           gateway,
			messageRepo:       mr,
			audit:             auditSink,
			statusCallbackURL: statusCallbackURL,
			retry:             sms.DefaultRetryOptions(),
			logger:            log,
		},
		now:    time.Now,
		logger: log,
	}
}

func (s *NotificationServiceImpl) render(ctx context.Context, category template.Category, fallback string, rc RenderContext) string {
	if body, ok := s.templates.GetRenderedTemplate(ctx, category, rc); ok {
		return body
	}
	return s.templates.RenderTemplate(fallback, rc)
}

// pace blocks on the limiter; a cancelled context aborts the batch.
func (s *NotificationServiceImpl) pace(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// suppressed reports whether a non-urgent send must be skipped right now.
func (s *NotificationServiceImpl) suppressed(ctx context.Context, key string, log *logrus.Entry) bool {
	if !s.flags.allows(ctx, key) {
		log.WithField("flag", key).Info("SMS category disabled, skipping")
		return true
	}
	if s.flags.quiet(ctx, s.now()) {
		log.Info("Quiet hours in effect, skipping")
		return true
	}
	return false
}

func positionMatches(sh *shift.Shift, e *employee.Employee) bool {
	return sh.Position == "" || e.Position == "" || strings.EqualFold(sh.Position, e.Position)
}

// NotifyNewShift broadcasts an available shift to every opted-in employee in its area and position.
func (s *NotificationServiceImpl) NotifyNewShift(ctx context.Context, shiftID int64) (SendSummary, error) {
	log := s.logger.WithField("shift_id", shiftID)
	var summary SendSummary
	if s.suppressed(ctx, settings.KeyNewShiftNotifications, log) {
		return summary, nil
	}

	sh, err := s.shiftRepo.GetByID(ctx, shiftID)
	if err != nil {
		return summary, fmt.Errorf("failed to get shift %d: %w", shiftID, err)
	}
	if sh.Status != shift.StatusAvailable {
		log.WithField("status", sh.Status).Info("Shift is not available, not broadcasting")
		return summary, nil
	}

	employees, err := s.employeeRepo.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list active employees: %w", err)
	}

	for _, e := range employees {
		if !e.CanReceiveSMS() || !e.InArea(sh.AreaID) || !positionMatches(sh, e) {
			continue
		}
		if err := s.pace(ctx); err != nil {
			return summary, err
		}
		body := s.render(ctx, template.CategoryShiftNotification, fallbackNewShift, RenderContext{Shift: sh, Employee: e})
		_, ok := s.sender.send(ctx, e, body, sendOptions{Type: message.TypeShiftNotification, ShiftID: sh.ID})
		summary.add(ok)
	}

	log.WithFields(logrus.Fields{"sent": summary.Sent, "failed": summary.Failed}).Info("New shift broadcast finished")
	return summary, nil
}

func (s *NotificationServiceImpl) assignedEmployee(ctx context.Context, sh *shift.Shift) (*employee.Employee, error) {
	if !sh.AssignedEmployeeID.Valid {
		return nil, ErrShiftNotAssigned
	}
	e, err := s.employeeRepo.GetByID(ctx, sh.AssignedEmployeeID.Int64)
	if err != nil {
		return nil, fmt.Errorf("failed to get employee %d: %w", sh.AssignedEmployeeID.Int64, err)
	}
	return e, nil
}

// SendAssignmentConfirmation tells the assigned employee the shift is theirs.
func (s *NotificationServiceImpl) SendAssignmentConfirmation(ctx context.Context, shiftID int64) (SendSummary, error) {
	log := s.logger.WithField("shift_id", shiftID)
	var summary SendSummary
	if s.suppressed(ctx, settings.KeyConfirmations, log) {
		return summary, nil
	}

	sh, err := s.shiftRepo.GetByID(ctx, shiftID)
	if err != nil {
		return summary, fmt.Errorf("failed to get shift %d: %w", shiftID, err)
	}
	e, err := s.assignedEmployee(ctx, sh)
	if err != nil {
		return summary, err
	}
	if !e.CanReceiveSMS() {
		log.WithField("employee_id", e.ID).Info("Assigned employee cannot receive SMS")
		return summary, nil
	}

	body := s.render(ctx, template.CategoryShiftConfirmation, fallbackConfirmation, RenderContext{Shift: sh, Employee: e})
	_, ok := s.sender.send(ctx, e, body, sendOptions{Type: message.TypeShiftConfirmation, ShiftID: sh.ID, WithRetry: true})
	summary.add(ok)
	return summary, nil
}

// SendShiftReminder reminds the assigned employee. Urgent reminders ignore quiet hours.
func (s *NotificationServiceImpl) SendShiftReminder(ctx context.Context, shiftID int64, urgent bool) (SendSummary, error) {
	log := s.logger.WithFields(logrus.Fields{"shift_id": shiftID, "urgent": urgent})
	var summary SendSummary
	if !s.flags.allows(ctx, settings.KeyReminders) {
		log.Info("Shift reminders disabled, skipping")
		return summary, nil
	}
	if !urgent && s.flags.quiet(ctx, s.now()) {
		log.Info("Quiet hours in effect, skipping reminder")
		return summary, nil
	}

	sh, err := s.shiftRepo.GetByID(ctx, shiftID)
	if err != nil {
		return summary, fmt.Errorf("failed to get shift %d: %w", shiftID, err)
	}
	if sh.Status != shift.StatusClaimed {
		log.WithField("status", sh.Status).Info("Shift is not claimed, no reminder")
		return summary, nil
	}
	e, err := s.assignedEmployee(ctx, sh)
	if err != nil {
		return summary, err
	}
	if !e.CanReceiveSMS() {
		return summary, nil
	}

	body := s.render(ctx, template.CategoryShiftReminder, fallbackReminder, RenderContext{Shift: sh, Employee: e})
	_, ok := s.sender.send(ctx, e, body, sendOptions{Type: message.TypeShiftReminder, ShiftID: sh.ID, WithRetry: true})
	summary.add(ok)
	return summary, nil
}

// NotifyShiftFilled tells everyone who replied YES, except the assignee, that the shift is gone.
func (s *NotificationServiceImpl) NotifyShiftFilled(ctx context.Context, shiftID int64) (SendSummary, error) {
	log := s.logger.WithField("shift_id", shiftID)
	var summary SendSummary
	if s.suppressed(ctx, settings.KeyShiftFilledNotices, log) {
		return summary, nil
	}

	sh, err := s.shiftRepo.GetByID(ctx, shiftID)
	if err != nil {
		return summary, fmt.Errorf("failed to get shift %d: %w", shiftID, err)
	}
	interests, err := s.shiftRepo.ListInterests(ctx, shiftID)
	if err != nil {
		return summary, fmt.Errorf("failed to list interests for shift %d: %w", shiftID, err)
	}

	for _, in := range interests {
		if sh.AssignedEmployeeID.Valid && in.EmployeeID == sh.AssignedEmployeeID.Int64 {
			continue
		}
		e, err := s.employeeRepo.GetByID(ctx, in.EmployeeID)
		if err != nil {
			log.WithError(err).WithField("employee_id", in.EmployeeID).Warn("Skipping interested employee")
			continue
		}
		if !e.CanReceiveSMS() {
			continue
		}
		if err := s.pace(ctx); err != nil {
			return summary, err
		}
		body := s.templates.RenderTemplate(fallbackShiftFilled, RenderContext{Shift: sh, Employee: e})
		_, ok := s.sender.send(ctx, e, body, sendOptions{Type: message.TypeGeneral, ShiftID: sh.ID})
		summary.add(ok)
	}
	return summary, nil
}

// ReprocessReminders sends reminders for claimed shifts inside the window that
// have no successful reminder yet.
func (s *NotificationServiceImpl) ReprocessReminders(ctx context.Context, window time.Duration) (SendSummary, error) {
	var summary SendSummary
	now := s.now()
	until := now.Add(window)
	shifts, err := s.shiftRepo.ListUpcomingAssigned(ctx, now, until)
	if err != nil {
		return summary, fmt.Errorf("failed to list upcoming shifts: %w", err)
	}

	for _, sh := range shifts {
		// The query works on dates; drop shifts already started or past the window.
		if start, ok := sh.StartsAt(now.Location()); ok && (!start.After(now) || start.After(until)) {
			continue
		}
		reminded, err := s.hasReminder(ctx, sh)
		if err != nil {
			s.logger.WithError(err).WithField("shift_id", sh.ID).Warn("Failed to check reminder history")
			continue
		}
		if reminded {
			continue
		}
		res, err := s.SendShiftReminder(ctx, sh.ID, false)
		if err != nil {
			s.logger.WithError(err).WithField("shift_id", sh.ID).Warn("Reminder failed")
			summary.Failed++
			continue
		}
		summary.Sent += res.Sent
		summary.Failed += res.Failed
	}

	s.logger.WithFields(logrus.Fields{"shifts": len(shifts), "sent": summary.Sent, "failed": summary.Failed}).Info("Reminder reprocessing finished")
	return summary, nil
}

func (s *NotificationServiceImpl) hasReminder(ctx context.Context, sh *shift.Shift) (bool, error) {
	msgs, err := s.messageRepo.ListByEmployee(ctx, sh.AssignedEmployeeID.Int64)
	if err != nil {
		return false, err
	}
	for _, m := range msgs {
		if m.MessageType == message.TypeShiftReminder && m.RelatedShiftID.Valid &&
			m.RelatedShiftID.Int64 == sh.ID && m.Status != message.StatusFailed {
			return true, nil
		}
	}
	return false, nil
}

// SendOne sends an operator-written message to one employee. Operator sends
// are not subject to quiet hours.
func (s *NotificationServiceImpl) SendOne(ctx context.Context, employeeID int64, text string) (*message.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	e, err := s.employeeRepo.GetByID(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get employee %d: %w", employeeID, err)
	}
	if !e.CanReceiveSMS() {
		return nil, ErrEmployeeUnreachable
	}

	body := s.render(ctx, template.CategoryGeneral, "{{message}}", RenderContext{Employee: e, Message: text})
	msg, _ := s.sender.send(ctx, e, body, sendOptions{Type: message.TypeGeneral, WithRetry: true})
	if msg == nil {
		return nil, fmt.Errorf("failed to record message for employee %d", employeeID)
	}
	return msg, nil
}

// SendBulk sends text to the given employees, or to every opted-in employee
// when employeeIDs is empty.
func (s *NotificationServiceImpl) SendBulk(ctx context.Context, employeeIDs []int64, text string) (SendSummary, error) {
	var summary SendSummary
	if strings.TrimSpace(text) == "" {
		return summary, ErrEmptyMessage
	}
	if s.suppressed(ctx, settings.KeySmsEnabled, s.logger.WithField("operation", "bulk")) {
		return summary, nil
	}

	var recipients []*employee.Employee
	if len(employeeIDs) == 0 {
		all, err := s.employeeRepo.ListActive(ctx)
		if err != nil {
			return summary, fmt.Errorf("failed to list active employees: %w", err)
		}
		recipients = all
	} else {
		for _, id := range employeeIDs {
			e, err := s.employeeRepo.GetByID(ctx, id)
			if err != nil {
				s.logger.WithError(err).WithField("employee_id", id).Warn("Skipping bulk recipient")
				summary.Failed++
				continue
			}
			recipients = append(recipients, e)
		}
	}

	for _, e := range recipients {
		if !e.CanReceiveSMS() {
			continue
		}
		if err := s.pace(ctx); err != nil {
			return summary, err
		}
		_, ok := s.sender.send(ctx, e, text, sendOptions{Type: message.TypeBulk})
		summary.add(ok)
	}
	return summary, nil
}

// TestCredentials sends a fixed message to an arbitrary number without recording a Message row.
func (s *NotificationServiceImpl) TestCredentials(ctx context.Context, to string) sms.SendResult {
	result := s.gateway.SendSMS(ctx, to, testMessageBody, "")
	event := audit.Event{
		Action:     audit.ActionSmsSent,
		Actor:      systemActor,
		TargetType: "phone",
		TargetID:   to,
		Details:    map[string]any{"test": true, "provider": string(s.gateway.ProviderType())},
	}
	if !result.Success {
		event.Action = audit.ActionSmsFailed
		event.Details["error_code"] = result.ErrorCode
	}
	s.audit.LogAuditEvent(ctx, event)
	s.logger.WithFields(logrus.Fields{"success": result.Success, "error_code": result.ErrorCode}).Info("Credential test finished")
	return result
}

func idString(id int64) string { return strconv.FormatInt(id, 10) }
