package database

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrEmployeeNotFound  = errors.New("employee not found")
	ErrShiftNotFound     = errors.New("shift not found")
	ErrInterestNotFound  = errors.New("shift interest not found")
	ErrDuplicateInterest = errors.New("duplicate shift interest (employee_id, shift_id)")
	ErrMessageNotFound   = errors.New("sms message not found")
	ErrTemplateNotFound  = errors.New("sms template not found")
	ErrDuplicatePhone    = errors.New("employee with this phone already exists")
)

const pqUniqueViolation = "23505"

// isUniqueViolation recognizes unique-constraint errors from both drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
