package audit

import "context"

// Actions logged by the SMS gateway.
const (
	ActionShiftInterestViaSMS   = "shift_interest_via_sms"
	ActionShiftDeclineViaSMS    = "shift_decline_via_sms"
	ActionShiftConfirmViaSMS    = "shift_confirmed_via_sms"
	ActionInterestWithdrawn     = "shift_interest_withdrawn_via_sms"
	ActionShiftUnassignedViaSMS = "shift_unassigned_via_sms"
	ActionSmsOptOut             = "sms_opt_out"
	ActionSmsOptIn              = "sms_opt_in"
	ActionSmsSent               = "sms_sent"
	ActionSmsFailed             = "sms_failed"
	ActionSmsUnknownCommand     = "sms_unknown_command"
	ActionProviderChanged       = "sms_provider_changed"
)

// Event is one audit log entry.
type Event struct {
	Action     string
	Actor      string
	TargetType string
	TargetID   string
	TargetName string
	Details    map[string]any
	IPAddress  string
}

// Sink records audit events. Implementations must not return errors to callers;
// failures are logged locally.
type Sink interface {
	LogAuditEvent(ctx context.Context, e Event)
}
