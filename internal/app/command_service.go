package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"shift_sms_gateway/internal/domain/audit"
	"shift_sms_gateway/internal/domain/employee"
	"shift_sms_gateway/internal/domain/message"
	"shift_sms_gateway/internal/domain/shift"
	"shift_sms_gateway/internal/domain/template"
	idb "shift_sms_gateway/internal/infra/database"
	"shift_sms_gateway/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxListedShifts = 5

const helpText = "Shift SMS commands:\n" +
	"YES <code> - claim an open shift\n" +
	"NO - pass on the last shift offered\n" +
	"STATUS - your upcoming shifts\n" +
	"SHIFTS - open shifts for you\n" +
	"CONFIRM - confirm your next shift\n" +
	"CANCEL - withdraw interest or drop your next shift\n" +
	"STOP - stop texts, START - resume"

const (
	replyUnknown     = "Thanks for your message. A supervisor will get back to you soon. Reply HELP for a list of commands."
	replyNoShiftRef  = "Sorry, we couldn't tell which shift you mean. Reply SHIFTS to see open shifts."
	replyDeclined    = "No problem, thanks for letting us know."
	replyNothingOpen = "There are no open shifts for you right now. We'll text you when one is posted."
	replyStopped     = "You've been unsubscribed from shift texts. Reply START to resubscribe."
	replyStarted     = "You're subscribed to shift texts again. Reply HELP for commands."
)

// CommandService executes inbound SMS commands for a known employee and
// builds the reply text.
type CommandService struct {
	shiftRepo    shift.Repository
	employeeRepo employee.Repository
	messageRepo  message.Repository
	templates    *TemplateService
	audit        audit.Sink
	supervisor   SupervisorNotifier
	now          func() time.Time
	logger       *logrus.Entry
}

func NewCommandService(
	sr shift.Repository,
	er employee.Repository,
	mr message.Repository,
	ts *TemplateService,
	auditSink audit.Sink,
	supervisor SupervisorNotifier,
	logger *logrus.Entry,
) *CommandService {
	return &CommandService{
		shiftRepo:    sr,
		employeeRepo: er,
		messageRepo:  mr,
		templates:    ts,
		audit:        auditSink,
		supervisor:   supervisor,
		now:          time.Now,
		logger:       logger.WithField("component", "command_service"),
	}
}

// Process parses body and executes it. The reply is empty only when nothing
// should be sent back.
func (s *CommandService) Process(ctx context.Context, e *employee.Employee, body string) (ParsedCommand, string) {
	cmd := ParseInboundCommand(body)
	metrics.RecordCommand(string(cmd.Type))
	log := s.logger.WithFields(logrus.Fields{"employee_id": e.ID, "command": cmd.Type})
	log.Info("Processing inbound SMS command")

	reply, err := s.execute(ctx, e, cmd)
	if err != nil {
		log.WithError(err).Error("Failed to process inbound SMS command")
		return cmd, "Sorry, something went wrong on our side. Please try again later."
	}
	return cmd, reply
}

func (s *CommandService) execute(ctx context.Context, e *employee.Employee, cmd ParsedCommand) (string, error) {
	switch cmd.Type {
	case CommandInterestYes:
		return s.handleInterest(ctx, e, cmd.ShiftCode)
	case CommandInterestNo:
		return s.handleDecline(ctx, e)
	case CommandConfirm:
		return s.handleConfirm(ctx, e)
	case CommandCancel:
		return s.handleCancel(ctx, e)
	case CommandStatus:
		return s.handleStatus(ctx, e)
	case CommandShifts:
		return s.handleShifts(ctx, e)
	case CommandHelp:
		return helpText, nil
	case CommandStop:
		return s.handleOptIn(ctx, e, false)
	case CommandStart:
		return s.handleOptIn(ctx, e, true)
	}
	return s.handleUnknown(ctx, e, cmd.Raw)
}

// today is the local calendar date at UTC midnight, the form shift dates are stored in.
func (s *CommandService) today() time.Time {
	n := s.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// reply renders the operator's template for category, or returns fallback
// when none is active.
func (s *CommandService) reply(ctx context.Context, category template.Category, rc RenderContext, fallback string) string {
	if s.templates == nil {
		return fallback
	}
	if body, ok := s.templates.GetRenderedTemplate(ctx, category, rc); ok {
		return body
	}
	return fallback
}

func (s *CommandService) logEvent(ctx context.Context, e *employee.Employee, action string, sh *shift.Shift, details map[string]any) {
	event := audit.Event{
		Action:     action,
		Actor:      e.FullName(),
		TargetType: "employee",
		TargetID:   idString(e.ID),
		TargetName: e.FullName(),
		Details:    map[string]any{"source": "sms", "phone": e.Phone},
	}
	if sh != nil {
		event.TargetType = "shift"
		event.TargetID = idString(sh.ID)
		event.TargetName = shiftSummary(sh, s.now())
		event.Details["employee_id"] = e.ID
		event.Details["sms_code"] = sh.SmsCode
	}
	for k, v := range details {
		event.Details[k] = v
	}
	s.audit.LogAuditEvent(ctx, event)
}

// lastOfferedShift returns the shift of the employee's most recent shift notification.
func (s *CommandService) lastOfferedShift(ctx context.Context, e *employee.Employee) (*shift.Shift, error) {
	msgs, err := s.messageRepo.ListByEmployee(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	for _, m := range msgs {
		if m.Direction != message.DirectionOutbound || m.MessageType != message.TypeShiftNotification || !m.RelatedShiftID.Valid {
			continue
		}
		sh, err := s.shiftRepo.GetByID(ctx, m.RelatedShiftID.Int64)
		if errors.Is(err, idb.ErrShiftNotFound) {
			continue
		}
		return sh, err
	}
	return nil, idb.ErrShiftNotFound
}

func (s *CommandService) resolveInterestShift(ctx context.Context, e *employee.Employee, code string) (*shift.Shift, string, error) {
	if code != "" {
		sh, err := s.shiftRepo.GetBySmsCode(ctx, code)
		if err == nil {
			return sh, "", nil
		}
		if !errors.Is(err, idb.ErrShiftNotFound) {
			return nil, "", err
		}
		// Letters-only words such as "PLEASE" are not codes; fall back to the last offer.
		if hasDigit(code) {
			return nil, fmt.Sprintf("Sorry, we couldn't find shift %s. Reply SHIFTS to see open shifts.", code), nil
		}
	}
	sh, err := s.lastOfferedShift(ctx, e)
	if errors.Is(err, idb.ErrShiftNotFound) {
		return nil, replyNoShiftRef, nil
	}
	if err != nil {
		return nil, "", err
	}
	return sh, "", nil
}

func (s *CommandService) handleInterest(ctx context.Context, e *employee.Employee, code string) (string, error) {
	sh, reply, err := s.resolveInterestShift(ctx, e, code)
	if err != nil || sh == nil {
		return reply, err
	}
	summary := shiftSummary(sh, s.now())

	if sh.Status != shift.StatusAvailable {
		if sh.AssignedEmployeeID.Valid && sh.AssignedEmployeeID.Int64 == e.ID {
			return fmt.Sprintf("You're already assigned to the shift on %s.", summary), nil
		}
		return fmt.Sprintf("Sorry, the shift on %s is no longer available. Reply SHIFTS to see open shifts.", summary), nil
	}

	already := fmt.Sprintf("You've already expressed interest in the shift on %s. We'll text you if you're selected.", summary)
	existing, err := s.shiftRepo.ListEmployeeInterests(ctx, e.ID)
	if err != nil {
		return "", fmt.Errorf("failed to list interests: %w", err)
	}
	for _, in := range existing {
		if in.ShiftID == sh.ID {
			return already, nil
		}
	}

	if err := s.shiftRepo.CreateInterest(ctx, &shift.Interest{EmployeeID: e.ID, ShiftID: sh.ID}); err != nil {
		if errors.Is(err, idb.ErrDuplicateInterest) {
			return already, nil
		}
		return "", fmt.Errorf("failed to record interest: %w", err)
	}
	s.logEvent(ctx, e, audit.ActionShiftInterestViaSMS, sh, nil)

	return s.reply(ctx, template.CategoryShiftInterest, RenderContext{Shift: sh, Employee: e},
		fmt.Sprintf("Thanks %s! We've recorded your interest in the shift on %s. A supervisor will confirm if you're selected.", e.FirstName, summary)), nil
}

func (s *CommandService) handleDecline(ctx context.Context, e *employee.Employee) (string, error) {
	sh, err := s.lastOfferedShift(ctx, e)
	if err != nil && !errors.Is(err, idb.ErrShiftNotFound) {
		return "", err
	}
	if sh != nil {
		s.logEvent(ctx, e, audit.ActionShiftDeclineViaSMS, sh, nil)
	}
	return replyDeclined, nil
}

// latestAssignment returns the upcoming assigned shift updated most recently.
func (s *CommandService) latestAssignment(ctx context.Context, e *employee.Employee) (*shift.Shift, error) {
	assigned, err := s.shiftRepo.ListAssignedTo(ctx, e.ID, s.today())
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned shifts: %w", err)
	}
	var latest *shift.Shift
	for _, sh := range assigned {
		if latest == nil || sh.UpdatedAt.After(latest.UpdatedAt) {
			latest = sh
		}
	}
	return latest, nil
}

func (s *CommandService) handleConfirm(ctx context.Context, e *employee.Employee) (string, error) {
	sh, err := s.latestAssignment(ctx, e)
	if err != nil {
		return "", err
	}
	if sh == nil {
		return "You don't have any upcoming shifts to confirm. Reply SHIFTS to see open shifts.", nil
	}
	s.logEvent(ctx, e, audit.ActionShiftConfirmViaSMS, sh, nil)
	return fmt.Sprintf("Thanks! You're confirmed for %s.", shiftSummary(sh, s.now())), nil
}

// pendingInterests returns interests in shifts that are still open and not in the past, newest first.
func (s *CommandService) pendingInterests(ctx context.Context, e *employee.Employee) ([]*shift.Interest, []*shift.Shift, error) {
	interests, err := s.shiftRepo.ListEmployeeInterests(ctx, e.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list interests: %w", err)
	}
	today := s.today()
	var ins []*shift.Interest
	var shifts []*shift.Shift
	for _, in := range interests {
		sh, err := s.shiftRepo.GetByID(ctx, in.ShiftID)
		if errors.Is(err, idb.ErrShiftNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if sh.Status != shift.StatusAvailable || sh.Date.Before(today) {
			continue
		}
		ins = append(ins, in)
		shifts = append(shifts, sh)
	}
	return ins, shifts, nil
}

// handleCancel withdraws the newest pending interest, or else releases the
// most recently claimed upcoming shift.
func (s *CommandService) handleCancel(ctx context.Context, e *employee.Employee) (string, error) {
	interests, shifts, err := s.pendingInterests(ctx, e)
	if err != nil {
		return "", err
	}
	if len(interests) > 0 {
		in, sh := interests[0], shifts[0]
		if err := s.shiftRepo.DeleteInterest(ctx, in.ID); err != nil && !errors.Is(err, idb.ErrInterestNotFound) {
			return "", fmt.Errorf("failed to withdraw interest: %w", err)
		}
		s.logEvent(ctx, e, audit.ActionInterestWithdrawn, sh, nil)
		return fmt.Sprintf("Your interest in the shift on %s has been withdrawn.", shiftSummary(sh, s.now())), nil
	}

	sh, err := s.latestAssignment(ctx, e)
	if err != nil {
		return "", err
	}
	if sh == nil {
		return "You don't have any pending requests or upcoming shifts to cancel.", nil
	}
	sh.Status = shift.StatusAvailable
	sh.AssignedEmployeeID = sql.NullInt64{}
	if err := s.shiftRepo.Update(ctx, sh); err != nil {
		return "", fmt.Errorf("failed to release shift: %w", err)
	}
	s.logEvent(ctx, e, audit.ActionShiftUnassignedViaSMS, sh, nil)
	s.alertSupervisor(ctx, fmt.Sprintf("%s (%s) dropped the shift on %s via SMS. It is open again.", e.FullName(), e.Phone, shiftSummary(sh, s.now())))
	return fmt.Sprintf("You've been removed from the shift on %s. Your supervisor has been notified.", shiftSummary(sh, s.now())), nil
}

func (s *CommandService) handleStatus(ctx context.Context, e *employee.Employee) (string, error) {
	assigned, err := s.shiftRepo.ListAssignedTo(ctx, e.ID, s.today())
	if err != nil {
		return "", fmt.Errorf("failed to list assigned shifts: %w", err)
	}
	_, pending, err := s.pendingInterests(ctx, e)
	if err != nil {
		return "", err
	}
	if len(assigned) == 0 && len(pending) == 0 {
		return "You have no upcoming shifts or pending requests. Reply SHIFTS to see open shifts.", nil
	}

	now := s.now()
	var b strings.Builder
	if len(assigned) > 0 {
		b.WriteString("Your upcoming shifts:")
		for i, sh := range assigned {
			if i == maxListedShifts {
				break
			}
			b.WriteString("\n- " + shiftSummary(sh, now))
		}
	}
	if len(pending) > 0 {
		sort.Slice(pending, func(i, j int) bool { return pending[i].Date.Before(pending[j].Date) })
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Waiting to hear back:")
		for i, sh := range pending {
			if i == maxListedShifts {
				break
			}
			b.WriteString("\n- " + shiftSummary(sh, now))
		}
	}
	return b.String(), nil
}

func (s *CommandService) handleShifts(ctx context.Context, e *employee.Employee) (string, error) {
	available, err := s.shiftRepo.ListAvailable(ctx, s.today())
	if err != nil {
		return "", fmt.Errorf("failed to list open shifts: %w", err)
	}
	now := s.now()
	var lines []string
	for _, sh := range available {
		if !e.InArea(sh.AreaID) || !positionMatches(sh, e) {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s)", shiftSummary(sh, now), sh.SmsCode))
		if len(lines) == maxListedShifts {
			break
		}
	}
	if len(lines) == 0 {
		return replyNothingOpen, nil
	}
	return "Open shifts:\n" + strings.Join(lines, "\n") + "\nReply YES <code> to claim one.", nil
}

// handleOptIn is idempotent; repeating STOP or START only re-sends the confirmation.
func (s *CommandService) handleOptIn(ctx context.Context, e *employee.Employee, optIn bool) (string, error) {
	if e.SmsOptIn != optIn {
		e.SmsOptIn = optIn
		if err := s.employeeRepo.Update(ctx, e); err != nil {
			return "", fmt.Errorf("failed to update sms opt-in: %w", err)
		}
	}
	if optIn {
		s.logEvent(ctx, e, audit.ActionSmsOptIn, nil, nil)
		return s.reply(ctx, template.CategoryWelcome, RenderContext{Employee: e}, replyStarted), nil
	}
	s.logEvent(ctx, e, audit.ActionSmsOptOut, nil, nil)
	return replyStopped, nil
}

// handleUnknown stores the text for human review and alerts the supervisor.
func (s *CommandService) handleUnknown(ctx context.Context, e *employee.Employee, raw string) (string, error) {
	msg := &message.Message{
		EmployeeID:  e.ID,
		Direction:   message.DirectionInbound,
		Content:     raw,
		Status:      message.StatusPending,
		MessageType: message.TypeGeneral,
		ThreadID:    uuid.NewString(),
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("employee_id", e.ID).Error("Failed to store unrecognized SMS")
	}
	s.logEvent(ctx, e, audit.ActionSmsUnknownCommand, nil, map[string]any{"message": raw, "message_id": msg.ID})
	s.alertSupervisor(ctx, fmt.Sprintf("SMS from %s (%s) needs a reply:\n%s", e.FullName(), e.Phone, raw))
	return replyUnknown, nil
}

func (s *CommandService) alertSupervisor(ctx context.Context, text string) {
	if s.supervisor == nil {
		return
	}
	if err := s.supervisor.NotifySupervisor(ctx, text); err != nil {
		s.logger.WithError(err).Warn("Failed to notify supervisor")
	}
}
