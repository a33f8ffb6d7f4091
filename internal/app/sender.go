package app

import (
	"context"
	"database/sql"
	"strconv"

	"shift_sms_gateway/internal/domain/audit"
	"shift_sms_gateway/internal/domain/employee"
	"shift_sms_gateway/internal/domain/message"
	"shift_sms_gateway/internal/domain/sms"
	"shift_sms_gateway/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const systemActor = "system"

type sendOptions struct {
	Type      message.Type
	ShiftID   int64 // 0 when unrelated to a shift
	ThreadID  string
	WithRetry bool
}

// messageSender records every outbound SMS as a Message row around the carrier call.
type messageSender struct {
	gateway           SMSGateway
	messageRepo       message.Repository
	audit             audit.Sink
	statusCallbackURL string
	retry             sms.RetryOptions
	logger            *logrus.Entry
}

// send creates a pending row, sends through the gateway and stores the outcome.
// A row that cannot be created is never sent.
func (m *messageSender) send(ctx context.Context, e *employee.Employee, body string, opts sendOptions) (*message.Message, bool) {
	log := m.logger.WithFields(logrus.Fields{"employee_id": e.ID, "message_type": opts.Type})

	threadID := opts.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	msg := &message.Message{
		EmployeeID:  e.ID,
		Direction:   message.DirectionOutbound,
		Content:     body,
		Status:      message.StatusPending,
		MessageType: opts.Type,
		ThreadID:    threadID,
	}
	if opts.ShiftID != 0 {
		msg.RelatedShiftID = sql.NullInt64{Int64: opts.ShiftID, Valid: true}
	}
	provider := string(m.gateway.ProviderType())
	if provider != "" {
		msg.SmsProvider = sql.NullString{String: provider, Valid: true}
	}
	if err := m.messageRepo.Create(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to record outbound SMS, not sending")
		metrics.RecordSend(provider, string(opts.Type), false, "STORAGE_ERROR")
		return nil, false
	}

	var result sms.SendResult
	if opts.WithRetry {
		result = m.gateway.SendSMSWithRetry(ctx, e.Phone, body, m.statusCallbackURL, m.retry)
	} else {
		result = m.gateway.SendSMS(ctx, e.Phone, body, m.statusCallbackURL)
	}

	applySendResult(msg, result)
	if err := m.messageRepo.Update(ctx, msg); err != nil {
		log.WithError(err).WithField("message_id", msg.ID).Error("Failed to store SMS send result")
	}

	event := audit.Event{
		Actor:      systemActor,
		TargetType: "employee",
		TargetID:   strconv.FormatInt(e.ID, 10),
		TargetName: e.FullName(),
		Details: map[string]any{
			"message_id":   msg.ID,
			"message_type": string(opts.Type),
			"provider":     provider,
		},
	}
	if result.Success {
		event.Action = audit.ActionSmsSent
		event.Details["provider_message_id"] = result.ProviderMessageID
		log.WithField("provider_message_id", result.ProviderMessageID).Info("SMS sent")
	} else {
		event.Action = audit.ActionSmsFailed
		event.Details["error_code"] = result.ErrorCode
		event.Details["error_message"] = result.ErrorMessage
		log.WithFields(logrus.Fields{"error_code": result.ErrorCode, "error": result.ErrorMessage}).Warn("SMS send failed")
	}
	m.audit.LogAuditEvent(ctx, event)
	metrics.RecordSend(provider, string(opts.Type), result.Success, result.ErrorCode)

	return msg, result.Success
}

func applySendResult(msg *message.Message, result sms.SendResult) {
	if result.Success {
		msg.Status = message.StatusSent
		msg.ProviderMessageID = sql.NullString{String: result.ProviderMessageID, Valid: result.ProviderMessageID != ""}
		if result.Status != "" {
			msg.DeliveryStatus = sql.NullString{String: string(result.Status), Valid: true}
		}
		msg.Segments = result.Segments
		return
	}
	msg.Status = message.StatusFailed
	msg.ErrorCode = sql.NullString{String: result.ErrorCode, Valid: result.ErrorCode != ""}
	msg.ErrorMessage = sql.NullString{String: result.ErrorMessage, Valid: result.ErrorMessage != ""}
}
