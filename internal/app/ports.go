package app

import (
	"context"

	"shift_sms_gateway/internal/domain/sms"
)

// SMSGateway is the part of the provider gateway the services depend on.
type SMSGateway interface {
	ProviderType() sms.ProviderType
	SendSMS(ctx context.Context, to, body, statusCallbackURL string) sms.SendResult
	SendSMSWithRetry(ctx context.Context, to, body, statusCallbackURL string, opts sms.RetryOptions) sms.SendResult
	ParseInboundMessage(payload []byte) (*sms.InboundMessage, error)
	ParseDeliveryStatus(payload []byte) (*sms.DeliveryStatusUpdate, error)
	GetMessageStatus(ctx context.Context, providerMessageID string) (sms.DeliveryStatus, bool)
}

// Limiter paces outbound sends.
type Limiter interface {
	Wait(ctx context.Context) error
}

// InboundDeduplicator remembers carrier message ids. FirstSeen returns false
// for an id that was already claimed.
type InboundDeduplicator interface {
	FirstSeen(ctx context.Context, messageID string) (bool, error)
}

// SupervisorNotifier forwards messages that need a human.
type SupervisorNotifier interface {
	NotifySupervisor(ctx context.Context, text string) error
}
