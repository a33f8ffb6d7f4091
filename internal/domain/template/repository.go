package template

import "context"

type Repository interface {
	// GetActiveByCategory returns the first active template of the category.
	GetActiveByCategory(ctx context.Context, category Category) (*Template, error)
	Create(ctx context.Context, t *Template) error
	ListByCategory(ctx context.Context, category Category) ([]*Template, error)
}
