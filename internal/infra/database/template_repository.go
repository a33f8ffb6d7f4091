package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shift_sms_gateway/internal/domain/template"

	"github.com/jmoiron/sqlx"
)

type templateRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Category  string    `db:"category"`
	Content   string    `db:"content"`
	IsSystem  bool      `db:"is_system"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r templateRow) toDomain() *template.Template {
	return &template.Template{
		ID:        r.ID,
		Name:      r.Name,
		Category:  template.Category(r.Category),
		Content:   r.Content,
		IsSystem:  r.IsSystem,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const templateColumns = `id, name, category, content, is_system, is_active, created_at, updated_at`

type TemplateRepository struct {
	db *sqlx.DB
}

func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetActiveByCategory prefers operator templates over system defaults, newest first.
func (r *TemplateRepository) GetActiveByCategory(ctx context.Context, category template.Category) (*template.Template, error) {
	var row templateRow
	query := r.db.Rebind(`SELECT ` + templateColumns + ` FROM sms_templates
		WHERE category = ? AND is_active = TRUE
		ORDER BY is_system, updated_at DESC, id DESC LIMIT 1`)
	if err := r.db.GetContext(ctx, &row, query, string(category)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get sms template: %w", err)
	}
	return row.toDomain(), nil
}

func (r *TemplateRepository) Create(ctx context.Context, t *template.Template) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`INSERT INTO sms_templates (name, category, content, is_system, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	if err := r.db.QueryRowxContext(ctx, query, t.Name, string(t.Category), t.Content, t.IsSystem, t.IsActive, now, now).Scan(&t.ID); err != nil {
		return fmt.Errorf("failed to create sms template: %w", err)
	}
	t.CreatedAt, t.UpdatedAt = now, now
	return nil
}

func (r *TemplateRepository) ListByCategory(ctx context.Context, category template.Category) ([]*template.Template, error) {
	var rows []templateRow
	query := r.db.Rebind(`SELECT ` + templateColumns + ` FROM sms_templates WHERE category = ? ORDER BY id`)
	if err := r.db.SelectContext(ctx, &rows, query, string(category)); err != nil {
		return nil, fmt.Errorf("failed to list sms templates: %w", err)
	}
	out := make([]*template.Template, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// defaultTemplates covers the categories the gateway sends. Repost,
// cancellation and training templates are left for operators to create.
var defaultTemplates = []template.Template{
	{Name: "New shift", Category: template.CategoryShiftNotification,
		Content: "New shift: {{date}} {{time}} at {{location}} {{area}} {{bonus}}. Reply YES {{smsCode}} to claim."},
	{Name: "Assignment confirmation", Category: template.CategoryShiftConfirmation,
		Content: "Hi {{firstName}}, you're confirmed for {{date}} {{time}} at {{location}}. Reply CONFIRM to acknowledge or CANCEL to release it."},
	{Name: "Shift reminder", Category: template.CategoryShiftReminder,
		Content: "Reminder: your shift is {{date}} {{time}} at {{location}} {{area}}."},
	{Name: "Interest received", Category: template.CategoryShiftInterest,
		Content: "Thanks {{firstName}}! We've recorded your interest in the shift on {{date}} {{time}} at {{location}}. A supervisor will confirm if you're selected."},
	{Name: "Welcome", Category: template.CategoryWelcome,
		Content: "Welcome {{firstName}}! You'll get shift alerts here. Reply HELP for commands or STOP to opt out."},
	{Name: "General", Category: template.CategoryGeneral,
		Content: "{{message}}"},
}

// SeedDefaultTemplates creates a system template for every category that has none.
// It returns the number of templates created.
func SeedDefaultTemplates(ctx context.Context, repo template.Repository) (int, error) {
	created := 0
	for _, def := range defaultTemplates {
		existing, err := repo.ListByCategory(ctx, def.Category)
		if err != nil {
			return created, err
		}
		if len(existing) > 0 {
			continue
		}
		t := def
		t.IsSystem, t.IsActive = true, true
		if err := repo.Create(ctx, &t); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
