package shift

import (
	"context"
	"time"
)

// Repository defines shift and shift-interest operations.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Shift, error)
	// GetBySmsCode looks the code up case-insensitively.
	GetBySmsCode(ctx context.Context, code string) (*Shift, error)
	Update(ctx context.Context, s *Shift) error
	// ListAvailable returns available shifts on or after from, soonest first.
	ListAvailable(ctx context.Context, from time.Time) ([]*Shift, error)
	// ListAssignedTo returns shifts claimed by the employee on or after from, soonest first.
	ListAssignedTo(ctx context.Context, employeeID int64, from time.Time) ([]*Shift, error)
	// ListUpcomingAssigned returns claimed shifts dated within [from, to].
	ListUpcomingAssigned(ctx context.Context, from, to time.Time) ([]*Shift, error)

	// CreateInterest returns ErrDuplicateInterest from the database package when
	// the (employee, shift) pair already exists.
	CreateInterest(ctx context.Context, in *Interest) error
	DeleteInterest(ctx context.Context, id int64) error
	ListInterests(ctx context.Context, shiftID int64) ([]*Interest, error)
	// ListEmployeeInterests returns the employee's interests, newest first.
	ListEmployeeInterests(ctx context.Context, employeeID int64) ([]*Interest, error)
}
