package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS employees (
		id {{ID}},
		first_name TEXT NOT NULL,
		last_name TEXT NULL,
		phone TEXT NOT NULL,
		position TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		sms_opt_in BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CONSTRAINT employees_phone_unique UNIQUE (phone)
	)`,
	`CREATE TABLE IF NOT EXISTS employee_areas (
		employee_id BIGINT NOT NULL,
		area_id BIGINT NOT NULL,
		PRIMARY KEY (employee_id, area_id)
	)`,
	`CREATE TABLE IF NOT EXISTS shifts (
		id {{ID}},
		shift_date DATE NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		area_id BIGINT NOT NULL DEFAULT 0,
		area_name TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		position TEXT NOT NULL DEFAULT '',
		bonus_amount DOUBLE PRECISION NULL,
		sms_code TEXT NOT NULL,
		status TEXT NOT NULL,
		assigned_employee_id BIGINT NULL,
		notes TEXT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CONSTRAINT shifts_sms_code_unique UNIQUE (sms_code)
	)`,
	`CREATE TABLE IF NOT EXISTS shift_interests (
		id {{ID}},
		employee_id BIGINT NOT NULL,
		shift_id BIGINT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		CONSTRAINT shift_interests_employee_shift_unique UNIQUE (employee_id, shift_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sms_messages (
		id {{ID}},
		employee_id BIGINT NOT NULL,
		direction TEXT NOT NULL,
		content TEXT NOT NULL,
		status TEXT NOT NULL,
		delivery_status TEXT NULL,
		provider_message_id TEXT NULL,
		sms_provider TEXT NULL,
		error_code TEXT NULL,
		error_message TEXT NULL,
		segments INTEGER NOT NULL DEFAULT 0,
		message_type TEXT NOT NULL,
		related_shift_id BIGINT NULL,
		thread_id TEXT NOT NULL,
		delivery_timestamp TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sms_messages_provider_message_id_idx ON sms_messages (provider_message_id)`,
	`CREATE INDEX IF NOT EXISTS sms_messages_employee_idx ON sms_messages (employee_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS sms_templates (
		id {{ID}},
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		content TEXT NOT NULL,
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		setting_key TEXT PRIMARY KEY,
		setting_value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id {{ID}},
		action TEXT NOT NULL,
		actor TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		target_name TEXT NOT NULL,
		details TEXT NOT NULL,
		ip_address TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
}

// Migrate creates the tables used by the SMS gateway if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	idColumn := "BIGSERIAL PRIMARY KEY"
	if db.DriverName() == DriverSQLite {
		idColumn = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, strings.ReplaceAll(stmt, "{{ID}}", idColumn)); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
