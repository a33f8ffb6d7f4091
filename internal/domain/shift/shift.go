package shift

import (
	"database/sql"
	"strings"
	"time"
)

// Status of a posted shift.
type Status string

const (
	StatusAvailable Status = "available"
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Shift is a posted unit of work that employees can claim by SMS.
type Shift struct {
	ID                 int64
	Date               time.Time
	StartTime          string // HH:MM
	EndTime            string // HH:MM
	AreaID             int64
	AreaName           string
	Location           string
	Position           string
	BonusAmount        sql.NullFloat64
	SmsCode            string
	Status             Status
	AssignedEmployeeID sql.NullInt64
	Notes              sql.NullString
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// StartsAt places the HH:MM start time on the shift's calendar date in loc.
// ok is false when StartTime does not parse.
func (s *Shift) StartsAt(loc *time.Location) (time.Time, bool) {
	clock, err := time.Parse("15:04", strings.TrimSpace(s.StartTime))
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), true
}

// Interest records that an employee replied YES to a shift.
// At most one row exists per (EmployeeID, ShiftID).
type Interest struct {
	ID         int64
	EmployeeID int64
	ShiftID    int64
	CreatedAt  time.Time
}
