package employee

import (
	"database/sql"
	"strings"
	"time"
)

// Employee is a staff member that can receive shift SMS.
type Employee struct {
	ID        int64
	FirstName string
	LastName  sql.NullString
	Phone     string // E.164
	Position  string
	AreaIDs   []int64
	IsActive  bool
	SmsOptIn  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName joins first and last names.
func (e *Employee) FullName() string {
	if e.LastName.Valid && strings.TrimSpace(e.LastName.String) != "" {
		return e.FirstName + " " + e.LastName.String
	}
	return e.FirstName
}

// CanReceiveSMS reports whether the employee is active and opted in.
func (e *Employee) CanReceiveSMS() bool {
	return e.IsActive && e.SmsOptIn && e.Phone != ""
}

// InArea reports whether the employee works in areaID. Employees without
// assigned areas work everywhere.
func (e *Employee) InArea(areaID int64) bool {
	if len(e.AreaIDs) == 0 {
		return true
	}
	for _, id := range e.AreaIDs {
		if id == areaID {
			return true
		}
	}
	return false
}
