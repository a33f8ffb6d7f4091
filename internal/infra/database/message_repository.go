package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shift_sms_gateway/internal/domain/message"

	"github.com/jmoiron/sqlx"
)

type messageRow struct {
	ID                int64          `db:"id"`
	EmployeeID        int64          `db:"employee_id"`
	Direction         string         `db:"direction"`
	Content           string         `db:"content"`
	Status            string         `db:"status"`
	DeliveryStatus    sql.NullString `db:"delivery_status"`
	ProviderMessageID sql.NullString `db:"provider_message_id"`
	SmsProvider       sql.NullString `db:"sms_provider"`
	ErrorCode         sql.NullString `db:"error_code"`
	ErrorMessage      sql.NullString `db:"error_message"`
	Segments          int            `db:"segments"`
	MessageType       string         `db:"message_type"`
	RelatedShiftID    sql.NullInt64  `db:"related_shift_id"`
	ThreadID          string         `db:"thread_id"`
	DeliveryTimestamp sql.NullTime   `db:"delivery_timestamp"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r messageRow) toDomain() *message.Message {
	return &message.Message{
		ID:                r.ID,
		EmployeeID:        r.EmployeeID,
		Direction:         message.Direction(r.Direction),
		Content:           r.Content,
		Status:            message.Status(r.Status),
		DeliveryStatus:    r.DeliveryStatus,
		ProviderMessageID: r.ProviderMessageID,
		SmsProvider:       r.SmsProvider,
		ErrorCode:         r.ErrorCode,
		ErrorMessage:      r.ErrorMessage,
		Segments:          r.Segments,
		MessageType:       message.Type(r.MessageType),
		RelatedShiftID:    r.RelatedShiftID,
		ThreadID:          r.ThreadID,
		DeliveryTimestamp: r.DeliveryTimestamp,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

const messageColumns = `id, employee_id, direction, content, status, delivery_status, provider_message_id, sms_provider,
	error_code, error_message, segments, message_type, related_shift_id, thread_id, delivery_timestamp, created_at, updated_at`

type MessageRepository struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m *message.Message) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`INSERT INTO sms_messages (employee_id, direction, content, status, delivery_status, provider_message_id,
		sms_provider, error_code, error_message, segments, message_type, related_shift_id, thread_id, delivery_timestamp,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	err := r.db.QueryRowxContext(ctx, query, m.EmployeeID, string(m.Direction), m.Content, string(m.Status), m.DeliveryStatus,
		m.ProviderMessageID, m.SmsProvider, m.ErrorCode, m.ErrorMessage, m.Segments, string(m.MessageType), m.RelatedShiftID,
		m.ThreadID, m.DeliveryTimestamp, now, now).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to create sms message: %w", err)
	}
	m.CreatedAt, m.UpdatedAt = now, now
	return nil
}

// Update rewrites the mutable delivery fields of a message.
func (r *MessageRepository) Update(ctx context.Context, m *message.Message) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`UPDATE sms_messages
		SET status = ?, delivery_status = ?, provider_message_id = ?, sms_provider = ?, error_code = ?, error_message = ?,
			segments = ?, delivery_timestamp = ?, updated_at = ?
		WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, query, string(m.Status), m.DeliveryStatus, m.ProviderMessageID, m.SmsProvider,
		m.ErrorCode, m.ErrorMessage, m.Segments, m.DeliveryTimestamp, now, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update sms message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrMessageNotFound
	}
	m.UpdatedAt = now
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*message.Message, error) {
	return r.getOne(ctx, `SELECT `+messageColumns+` FROM sms_messages WHERE id = ?`, id)
}

func (r *MessageRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*message.Message, error) {
	return r.getOne(ctx, `SELECT `+messageColumns+` FROM sms_messages WHERE provider_message_id = ? ORDER BY id DESC LIMIT 1`, providerMessageID)
}

func (r *MessageRepository) getOne(ctx context.Context, query string, arg any) (*message.Message, error) {
	var row messageRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get sms message: %w", err)
	}
	return row.toDomain(), nil
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]*message.Message, error) {
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list sms messages: %w", err)
	}
	out := make([]*message.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *MessageRepository) ListByEmployee(ctx context.Context, employeeID int64) ([]*message.Message, error) {
	return r.list(ctx, `SELECT `+messageColumns+` FROM sms_messages WHERE employee_id = ? ORDER BY created_at DESC, id DESC`, employeeID)
}

func (r *MessageRepository) ListPendingDelivery(ctx context.Context, limit int) ([]*message.Message, error) {
	return r.list(ctx, `SELECT `+messageColumns+` FROM sms_messages
		WHERE direction = ? AND status = ? AND provider_message_id IS NOT NULL
		ORDER BY created_at, id LIMIT ?`,
		string(message.DirectionOutbound), string(message.StatusSent), limit)
}
