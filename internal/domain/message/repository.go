package message

import (
	"context"
)

// Repository persists Message rows.
type Repository interface {
	Create(ctx context.Context, msg *Message) error
	Update(ctx context.Context, msg *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*Message, error)
	// ListByEmployee returns the employee's messages, newest first.
	ListByEmployee(ctx context.Context, employeeID int64) ([]*Message, error)
	// ListPendingDelivery returns outbound messages that were accepted by a carrier
	// but have no terminal delivery status yet.
	ListPendingDelivery(ctx context.Context, limit int) ([]*Message, error)
}
