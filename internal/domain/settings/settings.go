package settings

import "context"

// Keys read by the SMS gateway.
const (
	KeySmsEnabled            = "sms_enabled"
	KeyNewShiftNotifications = "sms_new_shift_notifications"
	KeyConfirmations         = "sms_assignment_confirmations"
	KeyReminders             = "sms_shift_reminders"
	KeyShiftFilledNotices    = "sms_shift_filled_notices"
	KeyQuietHoursEnabled     = "sms_quiet_hours_enabled"
	KeyQuietHoursStart       = "sms_quiet_hours_start"
	KeyQuietHoursEnd         = "sms_quiet_hours_end"
)

// Repository reads key/value application settings.
type Repository interface {
	// Get returns ok=false when the key is unset.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}
