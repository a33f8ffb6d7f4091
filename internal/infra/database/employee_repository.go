package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shift_sms_gateway/internal/domain/employee"

	"github.com/jmoiron/sqlx"
)

type employeeRow struct {
	ID        int64          `db:"id"`
	FirstName string         `db:"first_name"`
	LastName  sql.NullString `db:"last_name"`
	Phone     string         `db:"phone"`
	Position  string         `db:"position"`
	IsActive  bool           `db:"is_active"`
	SmsOptIn  bool           `db:"sms_opt_in"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r employeeRow) toDomain() *employee.Employee {
	return &employee.Employee{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
		Position:  r.Position,
		IsActive:  r.IsActive,
		SmsOptIn:  r.SmsOptIn,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const employeeColumns = `id, first_name, last_name, phone, position, is_active, sms_opt_in, created_at, updated_at`

type EmployeeRepository struct {
	db *sqlx.DB
}

func NewEmployeeRepository(db *sqlx.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// Create inserts the employee and its area memberships.
func (r *EmployeeRepository) Create(ctx context.Context, e *employee.Employee) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`INSERT INTO employees (first_name, last_name, phone, position, is_active, sms_opt_in, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, query, e.FirstName, e.LastName, e.Phone, e.Position, e.IsActive, e.SmsOptIn, now, now).Scan(&e.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("failed to create employee: %w", err)
	}
	if err := replaceAreas(ctx, tx, e.ID, e.AreaIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit employee: %w", err)
	}

	e.CreatedAt, e.UpdatedAt = now, now
	return nil
}

func (r *EmployeeRepository) GetByID(ctx context.Context, id int64) (*employee.Employee, error) {
	return r.getOne(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
}

// GetByPhone matches the stored E.164 number exactly.
func (r *EmployeeRepository) GetByPhone(ctx context.Context, phone string) (*employee.Employee, error) {
	return r.getOne(ctx, `SELECT `+employeeColumns+` FROM employees WHERE phone = ?`, phone)
}

func (r *EmployeeRepository) getOne(ctx context.Context, query string, arg any) (*employee.Employee, error) {
	var row employeeRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}

	e := row.toDomain()
	if err := r.db.SelectContext(ctx, &e.AreaIDs, r.db.Rebind(`SELECT area_id FROM employee_areas WHERE employee_id = ? ORDER BY area_id`), e.ID); err != nil {
		return nil, fmt.Errorf("failed to get employee areas: %w", err)
	}
	return e, nil
}

func (r *EmployeeRepository) Update(ctx context.Context, e *employee.Employee) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`UPDATE employees
		SET first_name = ?, last_name = ?, phone = ?, position = ?, is_active = ?, sms_opt_in = ?, updated_at = ?
		WHERE id = ?`)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, e.FirstName, e.LastName, e.Phone, e.Position, e.IsActive, e.SmsOptIn, now, e.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("failed to update employee: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEmployeeNotFound
	}
	if err := replaceAreas(ctx, tx, e.ID, e.AreaIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit employee: %w", err)
	}

	e.UpdatedAt = now
	return nil
}

// ListActive returns active employees ordered by id, with their areas.
func (r *EmployeeRepository) ListActive(ctx context.Context) ([]*employee.Employee, error) {
	var rows []employeeRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+employeeColumns+` FROM employees WHERE is_active = TRUE ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list active employees: %w", err)
	}

	var areas []struct {
		EmployeeID int64 `db:"employee_id"`
		AreaID     int64 `db:"area_id"`
	}
	err := r.db.SelectContext(ctx, &areas, `SELECT ea.employee_id, ea.area_id
		FROM employee_areas ea JOIN employees e ON e.id = ea.employee_id
		WHERE e.is_active = TRUE ORDER BY ea.employee_id, ea.area_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list employee areas: %w", err)
	}
	byEmployee := make(map[int64][]int64, len(rows))
	for _, a := range areas {
		byEmployee[a.EmployeeID] = append(byEmployee[a.EmployeeID], a.AreaID)
	}

	out := make([]*employee.Employee, 0, len(rows))
	for _, row := range rows {
		e := row.toDomain()
		e.AreaIDs = byEmployee[e.ID]
		out = append(out, e)
	}
	return out, nil
}

func replaceAreas(ctx context.Context, tx *sqlx.Tx, employeeID int64, areaIDs []int64) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM employee_areas WHERE employee_id = ?`), employeeID); err != nil {
		return fmt.Errorf("failed to clear employee areas: %w", err)
	}
	insert := tx.Rebind(`INSERT INTO employee_areas (employee_id, area_id) VALUES (?, ?)`)
	seen := map[int64]bool{}
	for _, areaID := range areaIDs {
		if seen[areaID] {
			continue
		}
		seen[areaID] = true
		if _, err := tx.ExecContext(ctx, insert, employeeID, areaID); err != nil {
			return fmt.Errorf("failed to add employee area: %w", err)
		}
	}
	return nil
}
