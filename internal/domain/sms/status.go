package sms

import "strings"

// DeliveryStatus is the carrier-neutral delivery vocabulary.
type DeliveryStatus string

const (
	StatusQueued      DeliveryStatus = "queued"
	StatusSending     DeliveryStatus = "sending"
	StatusSent        DeliveryStatus = "sent"
	StatusDelivered   DeliveryStatus = "delivered"
	StatusUndelivered DeliveryStatus = "undelivered"
	StatusFailed      DeliveryStatus = "failed"
	StatusCanceled    DeliveryStatus = "canceled"
)

// IsTerminal reports whether no further carrier transitions are expected.
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusUndelivered, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// ErrorType classifies a carrier error code.
type ErrorType string

const (
	ErrorRecoverable ErrorType = "recoverable"
	ErrorRateLimit   ErrorType = "rate_limit"
	ErrorPermanent   ErrorType = "permanent"
)

// Retryable reports whether a send failing with this type may be attempted again.
func (t ErrorType) Retryable() bool {
	return t == ErrorRecoverable || t == ErrorRateLimit
}

// Error codes produced locally, before any carrier call.
const (
	CodeNoProvider        = "NO_PROVIDER"
	CodeNotInitialized    = "NOT_INITIALIZED"
	CodeInvalidTo         = "INVALID_TO_NUMBER"
	CodeInvalidFrom       = "INVALID_FROM_NUMBER"
	CodeEmptyBody         = "EMPTY_BODY"
	CodeNetwork           = "NETWORK_ERROR"
	CodeUnexpectedPayload = "UNEXPECTED_RESPONSE"
)

// ClassifyLocal handles the codes shared by every driver. ok is false when the
// code is carrier-specific.
func ClassifyLocal(code string) (t ErrorType, ok bool) {
	switch strings.ToUpper(code) {
	case CodeNetwork:
		return ErrorRecoverable, true
	case CodeNoProvider, CodeNotInitialized, CodeInvalidTo, CodeInvalidFrom, CodeEmptyBody, CodeUnexpectedPayload:
		return ErrorPermanent, true
	}
	return "", false
}
