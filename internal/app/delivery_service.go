package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shift_sms_gateway/internal/domain/audit"
	"shift_sms_gateway/internal/domain/employee"
	"shift_sms_gateway/internal/domain/message"
	"shift_sms_gateway/internal/domain/sms"
	idb "shift_sms_gateway/internal/infra/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DeliveryService handles carrier webhooks: delivery receipts and inbound replies.
type DeliveryService struct {
	gateway      SMSGateway
	employeeRepo employee.Repository
	messageRepo  message.Repository
	commands     *CommandService
	dedup        InboundDeduplicator
	sender       *messageSender
	now          func() time.Time
	logger       *logrus.Entry
}

// NewDeliveryService wires the webhook flow. dedup may be nil.
func NewDeliveryService(
	gateway SMSGateway,
	er employee.Repository,
	mr message.Repository,
	commands *CommandService,
	dedup InboundDeduplicator,
	auditSink audit.Sink,
	statusCallbackURL string,
	logger *logrus.Entry,
) *DeliveryService {
	log := logger.WithField("component", "delivery_service")
	return &DeliveryService{
		gateway:      gateway,
		employeeRepo: er,
		messageRepo:  mr,
		commands:     commands,
		dedup:        dedup,
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

func messageStatusFor(ds sms.DeliveryStatus) (message.Status, bool) {
	switch ds {
	case sms.StatusDelivered:
		return message.StatusDelivered, true
	case sms.StatusUndelivered, sms.StatusFailed, sms.StatusCanceled:
		return message.StatusFailed, true
	case sms.StatusSent:
		return message.StatusSent, true
	}
	return "", false
}

// applyDeliveryUpdate mutates msg and reports whether anything changed. Once a
// message is terminal only an update with a later timestamp may replace it.
func applyDeliveryUpdate(msg *message.Message, u *sms.DeliveryStatusUpdate, now time.Time) bool {
	if msg.Status.IsTerminal() {
		if u.Timestamp.IsZero() {
			return false
		}
		if msg.DeliveryTimestamp.Valid && !u.Timestamp.After(msg.DeliveryTimestamp.Time) {
			return false
		}
	}

	next, known := messageStatusFor(u.Status)
	if msg.Status.IsTerminal() && !(known && next.IsTerminal()) {
		return false
	}

	msg.DeliveryStatus = sql.NullString{String: string(u.Status), Valid: u.Status != ""}
	if known {
		msg.Status = next
	}
	if u.ErrorCode != "" {
		msg.ErrorCode = sql.NullString{String: u.ErrorCode, Valid: true}
	}
	if u.ErrorMessage != "" {
		msg.ErrorMessage = sql.NullString{String: u.ErrorMessage, Valid: true}
	}
	if msg.Status.IsTerminal() {
		ts := u.Timestamp
		if ts.IsZero() {
			ts = now
		}
		msg.DeliveryTimestamp = sql.NullTime{Time: ts.UTC(), Valid: true}
	}
	return true
}

// HandleStatus applies a delivery receipt. Receipts for unknown messages are ignored.
func (s *DeliveryService) HandleStatus(ctx context.Context, payload []byte) error {
	update, err := s.gateway.ParseDeliveryStatus(payload)
	if err != nil {
		return fmt.Errorf("failed to parse delivery status: %w", err)
	}
	return s.applyStatus(ctx, update)
}

func (s *DeliveryService) applyStatus(ctx context.Context, update *sms.DeliveryStatusUpdate) error {
	log := s.logger.WithFields(logrus.Fields{"provider_message_id": update.MessageID, "status": update.Status})

	msg, err := s.messageRepo.GetByProviderMessageID(ctx, update.MessageID)
	if err != nil {
		if errors.Is(err, idb.ErrMessageNotFound) {
			log.Debug("Delivery status for unknown message")
			return nil
		}
		return fmt.Errorf("failed to find message %s: %w", update.MessageID, err)
	}

	if !applyDeliveryUpdate(msg, update, s.now()) {
		log.WithField("message_status", msg.Status).Debug("Stale delivery status ignored")
		return nil
	}
	if err := s.messageRepo.Update(ctx, msg); err != nil {
		return fmt.Errorf("failed to update message %d: %w", msg.ID, err)
	}
	log.WithField("message_id", msg.ID).Info("Delivery status updated")
	return nil
}

// HandleInbound processes a reply and sends the command's answer by SMS. The
// returned bool is false when the request was dropped as a duplicate or came
// from an unknown number.
func (s *DeliveryService) HandleInbound(ctx context.Context, payload []byte) (bool, error) {
	in, err := s.gateway.ParseInboundMessage(payload)
	if err != nil {
		return false, fmt.Errorf("failed to parse inbound message: %w", err)
	}
	log := s.logger.WithField("provider_message_id", in.MessageID)

	if s.dedup != nil && in.MessageID != "" {
		first, err := s.dedup.FirstSeen(ctx, in.MessageID)
		if err != nil {
			log.WithError(err).Warn("Inbound dedup unavailable, processing anyway")
		} else if !first {
			log.Info("Duplicate inbound SMS ignored")
			return false, nil
		}
	}

	phone := sms.NormalizePhone(in.From)
	if !phone.Valid {
		log.WithField("from", in.From).Warn("Inbound SMS from invalid number")
		return false, nil
	}
	e, err := s.employeeRepo.GetByPhone(ctx, phone.Formatted)
	if err != nil {
		if errors.Is(err, idb.ErrEmployeeNotFound) {
			log.WithField("from", phone.Formatted).Warn("Inbound SMS from unknown number")
			return false, nil
		}
		return false, fmt.Errorf("failed to look up sender: %w", err)
	}

	cmd, reply := s.commands.Process(ctx, e, in.Body)
	if reply == "" {
		return true, nil
	}
	// The carrier answers STOP itself and blocks further texts to the number.
	if cmd.Type == CommandStop && s.gateway.ProviderType() == sms.ProviderTwilio {
		log.Info("Opt-out confirmation left to carrier")
		return true, nil
	}

	if _, ok := s.sender.send(ctx, e, reply, sendOptions{Type: message.TypeGeneral, ThreadID: uuid.NewString()}); !ok {
		log.WithField("employee_id", e.ID).Warn("Failed to send command reply")
	}
	return true, nil
}

// PollPendingStatuses asks the carrier for messages still waiting on a receipt.
func (s *DeliveryService) PollPendingStatuses(ctx context.Context, limit int) (int, error) {
	pending, err := s.messageRepo.ListPendingDelivery(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending messages: %w", err)
	}

	updated := 0
	for _, msg := range pending {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		status, ok := s.gateway.GetMessageStatus(ctx, msg.ProviderMessageID.String)
		if !ok {
			continue
		}
		if msg.DeliveryStatus.Valid && msg.DeliveryStatus.String == string(status) {
			continue
		}
		update := &sms.DeliveryStatusUpdate{MessageID: msg.ProviderMessageID.String, Status: status}
		if !applyDeliveryUpdate(msg, update, s.now()) {
			continue
		}
		if err := s.messageRepo.Update(ctx, msg); err != nil {
			s.logger.WithError(err).WithField("message_id", msg.ID).Warn("Failed to store polled status")
			continue
		}
		updated++
	}
	return updated, nil
}
