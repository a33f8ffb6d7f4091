package employee

import (
	"context"
)

// Repository defines the employee operations the SMS gateway needs.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Employee, error)
	GetByPhone(ctx context.Context, phone string) (*Employee, error)
	Update(ctx context.Context, e *Employee) error
	ListActive(ctx context.Context) ([]*Employee, error)
}
