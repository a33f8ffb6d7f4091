package template

import "time"

// Category selects which template renders a message.
type Category string

const (
	CategoryShiftNotification Category = "shift_notification"
	CategoryShiftRepost       Category = "shift_repost"
	CategoryShiftConfirmation Category = "shift_confirmation"
	CategoryShiftReminder     Category = "shift_reminder"
	CategoryShiftInterest     Category = "shift_interest"
	CategoryShiftCancellation Category = "shift_cancellation"
	CategoryTrainingReminder  Category = "training_reminder"
	CategoryWelcome           Category = "welcome"
	CategoryGeneral           Category = "general"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryShiftNotification,
	CategoryShiftRepost,
	CategoryShiftConfirmation,
	CategoryShiftReminder,
	CategoryShiftInterest,
	CategoryShiftCancellation,
	CategoryTrainingReminder,
	CategoryWelcome,
	CategoryGeneral,
}

// Template is an editable SMS body with {{variable}} placeholders.
type Template struct {
	ID        int64
	Name      string
	Category  Category
	Content   string
	IsSystem  bool // System templates cannot be deleted.
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
