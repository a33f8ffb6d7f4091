package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shift_sms_gateway/internal/domain/audit"

	"github.com/jmoiron/sqlx"
)

type AuditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert stores an event with its details encoded as JSON.
func (r *AuditRepository) Insert(ctx context.Context, e audit.Event) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
	}
	query := r.db.Rebind(`INSERT INTO audit_log (action, actor, target_type, target_id, target_name, details, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query, e.Action, e.Actor, e.TargetType, e.TargetID, e.TargetName, string(details), e.IPAddress, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// CountByAction is used by operators and tests to inspect the log.
func (r *AuditRepository) CountByAction(ctx context.Context, action string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM audit_log WHERE action = ?`), action); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return n, nil
}
