package sms

import (
	"context"
	"time"
)

// ProviderType identifies which carrier driver is active.
type ProviderType string

const (
	ProviderTwilio      ProviderType = "twilio"
	ProviderRingCentral ProviderType = "ringcentral"
)

// ProviderConfig carries the credentials for exactly one carrier.
type ProviderConfig struct {
	Provider   ProviderType `yaml:"provider"`
	FromNumber string       `yaml:"from_number"`

	// Twilio
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`

	// RingCentral
	ClientID          string `yaml:"client_id"`
	ClientSecret      string `yaml:"client_secret"`
	ServerURL         string `yaml:"server_url"`
	JWT               string `yaml:"jwt"`
	VerificationToken string `yaml:"verification_token"`
	WebhookURL        string `yaml:"webhook_url"`

	// APIBaseURL overrides the carrier REST endpoint. Used by tests and sandboxes.
	APIBaseURL string `yaml:"api_base_url"`
}

// SendResult is the normalized outcome of one send attempt.
type SendResult struct {
	Success           bool
	MessageID         string
	ProviderMessageID string
	Status            DeliveryStatus
	Segments          int
	ErrorCode         string
	ErrorMessage      string
}

// Failed builds a negative SendResult.
func Failed(code, message string) SendResult {
	return SendResult{Success: false, ErrorCode: code, ErrorMessage: message}
}

// InboundMessage is a new message received from a handset.
type InboundMessage struct {
	MessageID string
	From      string
	To        string
	Body      string
	NumMedia  int
	MediaURLs []string
}

// DeliveryStatusUpdate is a carrier delivery callback mapped onto DeliveryStatus.
type DeliveryStatusUpdate struct {
	MessageID    string
	Status       DeliveryStatus
	ErrorCode    string
	ErrorMessage string
	Timestamp    time.Time
}

// PhoneValidation is the result of normalizing a phone number to E.164.
type PhoneValidation struct {
	Valid     bool
	Formatted string
	Error     string
}

// RetryOptions controls SendSMSWithRetry.
type RetryOptions struct {
	MaxRetries   int
	InitialDelay time.Duration
	Jitter       bool
}

// DefaultRetryOptions returns 3 retries starting at one second.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxRetries: 3, InitialDelay: time.Second}
}

// Driver is the contract each carrier implementation satisfies.
type Driver interface {
	Type() ProviderType
	Initialize(cfg ProviderConfig) error
	IsInitialized() bool
	ValidatePhoneNumber(raw string) PhoneValidation
	SendSMS(ctx context.Context, to, body, statusCallbackURL string) SendResult
	SendSMSWithRetry(ctx context.Context, to, body, statusCallbackURL string, opts RetryOptions) SendResult
	ValidateWebhookSignature(signature, url string, params map[string]string) bool
	ParseInboundMessage(payload []byte) (*InboundMessage, error)
	ParseDeliveryStatus(payload []byte) (*DeliveryStatusUpdate, error)
	GenerateResponse(text string) string
	IsRecoverableError(code string) bool
	ClassifyError(code string) ErrorType
	GetMessageStatus(ctx context.Context, providerMessageID string) (DeliveryStatus, bool)
	Dispose(ctx context.Context) error
}

// SubscriptionManager is implemented by drivers that receive webhooks through a
// push subscription that must be kept alive.
type SubscriptionManager interface {
	RenewSubscription(ctx context.Context) error
}
