package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shift_sms_gateway/internal/domain/shift"

	"github.com/jmoiron/sqlx"
)

type shiftRow struct {
	ID                 int64           `db:"id"`
	Date               time.Time       `db:"shift_date"`
	StartTime          string          `db:"start_time"`
	EndTime            string          `db:"end_time"`
	AreaID             int64           `db:"area_id"`
	AreaName           string          `db:"area_name"`
	Location           string          `db:"location"`
	Position           string          `db:"position"`
	BonusAmount        sql.NullFloat64 `db:"bonus_amount"`
	SmsCode            string          `db:"sms_code"`
	Status             string          `db:"status"`
	AssignedEmployeeID sql.NullInt64   `db:"assigned_employee_id"`
	Notes              sql.NullString  `db:"notes"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

func (r shiftRow) toDomain() *shift.Shift {
	return &shift.Shift{
		ID:                 r.ID,
		Date:               r.Date,
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		AreaID:             r.AreaID,
		AreaName:           r.AreaName,
		Location:           r.Location,
		Position:           r.Position,
		BonusAmount:        r.BonusAmount,
		SmsCode:            r.SmsCode,
		Status:             shift.Status(r.Status),
		AssignedEmployeeID: r.AssignedEmployeeID,
		Notes:              r.Notes,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type interestRow struct {
	ID         int64     `db:"id"`
	EmployeeID int64     `db:"employee_id"`
	ShiftID    int64     `db:"shift_id"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r interestRow) toDomain() *shift.Interest {
	return &shift.Interest{ID: r.ID, EmployeeID: r.EmployeeID, ShiftID: r.ShiftID, CreatedAt: r.CreatedAt}
}

const shiftColumns = `id, shift_date, start_time, end_time, area_id, area_name, location, position,
	bonus_amount, sms_code, status, assigned_employee_id, notes, created_at, updated_at`

type ShiftRepository struct {
	db *sqlx.DB
}

func NewShiftRepository(db *sqlx.DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

// dateOnly keeps shift dates comparable across drivers.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (r *ShiftRepository) Create(ctx context.Context, s *shift.Shift) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`INSERT INTO shifts (shift_date, start_time, end_time, area_id, area_name, location, position,
		bonus_amount, sms_code, status, assigned_employee_id, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	err := r.db.QueryRowxContext(ctx, query, dateOnly(s.Date), s.StartTime, s.EndTime, s.AreaID, s.AreaName, s.Location,
		s.Position, s.BonusAmount, s.SmsCode, string(s.Status), s.AssignedEmployeeID, s.Notes, now, now).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create shift: %w", err)
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

func (r *ShiftRepository) GetByID(ctx context.Context, id int64) (*shift.Shift, error) {
	return r.getOne(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id)
}

func (r *ShiftRepository) GetBySmsCode(ctx context.Context, code string) (*shift.Shift, error) {
	return r.getOne(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE UPPER(sms_code) = UPPER(?)`, code)
}

func (r *ShiftRepository) getOne(ctx context.Context, query string, arg any) (*shift.Shift, error) {
	var row shiftRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShiftNotFound
		}
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	return row.toDomain(), nil
}

func (r *ShiftRepository) Update(ctx context.Context, s *shift.Shift) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`UPDATE shifts
		SET shift_date = ?, start_time = ?, end_time = ?, area_id = ?, area_name = ?, location = ?, position = ?,
			bonus_amount = ?, sms_code = ?, status = ?, assigned_employee_id = ?, notes = ?, updated_at = ?
		WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, query, dateOnly(s.Date), s.StartTime, s.EndTime, s.AreaID, s.AreaName, s.Location,
		s.Position, s.BonusAmount, s.SmsCode, string(s.Status), s.AssignedEmployeeID, s.Notes, now, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update shift: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrShiftNotFound
	}
	s.UpdatedAt = now
	return nil
}

func (r *ShiftRepository) list(ctx context.Context, query string, args ...any) ([]*shift.Shift, error) {
	var rows []shiftRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}
	out := make([]*shift.Shift, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *ShiftRepository) ListAvailable(ctx context.Context, from time.Time) ([]*shift.Shift, error) {
	return r.list(ctx, `SELECT `+shiftColumns+` FROM shifts
		WHERE status = ? AND shift_date >= ? ORDER BY shift_date, start_time, id`,
		string(shift.StatusAvailable), dateOnly(from))
}

func (r *ShiftRepository) ListAssignedTo(ctx context.Context, employeeID int64, from time.Time) ([]*shift.Shift, error) {
	return r.list(ctx, `SELECT `+shiftColumns+` FROM shifts
		WHERE status = ? AND assigned_employee_id = ? AND shift_date >= ? ORDER BY shift_date, start_time, id`,
		string(shift.StatusClaimed), employeeID, dateOnly(from))
}

func (r *ShiftRepository) ListUpcomingAssigned(ctx context.Context, from, to time.Time) ([]*shift.Shift, error) {
	return r.list(ctx, `SELECT `+shiftColumns+` FROM shifts
		WHERE status = ? AND assigned_employee_id IS NOT NULL AND shift_date >= ? AND shift_date <= ?
		ORDER BY shift_date, start_time, id`,
		string(shift.StatusClaimed), dateOnly(from), dateOnly(to))
}

func (r *ShiftRepository) CreateInterest(ctx context.Context, in *shift.Interest) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`INSERT INTO shift_interests (employee_id, shift_id, created_at) VALUES (?, ?, ?) RETURNING id`)
	if err := r.db.QueryRowxContext(ctx, query, in.EmployeeID, in.ShiftID, now).Scan(&in.ID); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateInterest
		}
		return fmt.Errorf("failed to create shift interest: %w", err)
	}
	in.CreatedAt = now
	return nil
}

func (r *ShiftRepository) DeleteInterest(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM shift_interests WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete shift interest: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInterestNotFound
	}
	return nil
}

func (r *ShiftRepository) listInterests(ctx context.Context, query string, arg any) ([]*shift.Interest, error) {
	var rows []interestRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), arg); err != nil {
		return nil, fmt.Errorf("failed to list shift interests: %w", err)
	}
	out := make([]*shift.Interest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *ShiftRepository) ListInterests(ctx context.Context, shiftID int64) ([]*shift.Interest, error) {
	return r.listInterests(ctx, `SELECT id, employee_id, shift_id, created_at FROM shift_interests
		WHERE shift_id = ? ORDER BY created_at, id`, shiftID)
}

func (r *ShiftRepository) ListEmployeeInterests(ctx context.Context, employeeID int64) ([]*shift.Interest, error) {
	return r.listInterests(ctx, `SELECT id, employee_id, shift_id, created_at FROM shift_interests
		WHERE employee_id = ? ORDER BY created_at DESC, id DESC`, employeeID)
}
