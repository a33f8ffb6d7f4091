package message

import (
	"database/sql"
	"time"
)

// Direction of a message relative to the organization.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Status is the application-level lifecycle of a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusRead      Status = "read"
)

// IsTerminal reports whether the status may only be replaced by a newer delivery callback.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Type is the business purpose of a message.
type Type string

const (
	TypeGeneral           Type = "general"
	TypeShiftNotification Type = "shift_notification"
	TypeShiftReminder     Type = "shift_reminder"
	TypeShiftConfirmation Type = "shift_confirmation"
	TypeBulk              Type = "bulk"
)

// Message is one outbound or inbound SMS. Rows are never deleted.
type Message struct {
	ID                int64
	EmployeeID        int64
	Direction         Direction
	Content           string
	Status            Status
	DeliveryStatus    sql.NullString // As reported by the carrier
	ProviderMessageID sql.NullString
	SmsProvider       sql.NullString
	ErrorCode         sql.NullString
	ErrorMessage      sql.NullString
	Segments          int
	MessageType       Type
	RelatedShiftID    sql.NullInt64
	ThreadID          string
	DeliveryTimestamp sql.NullTime
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
