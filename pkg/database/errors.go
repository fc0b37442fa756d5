package database

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/harvestline/harvestline-backend/pkg/errors"
)

// Classify converts a storage error into an AppError the service layer can
// act on. Transient failures become Retryable, timeouts OutcomeUnknown, and
// known integrity violations their AppError counterpart. Anything else,
// including errors that already are AppErrors, is returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.OutcomeUnknown(err)
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, driver.ErrBadConn) {
		return errors.Retryable(err)
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		if isTransientPQ(pqErr) {
			return errors.Retryable(err)
		}
		if mapped := MapPQError(pqErr); mapped != nil {
			mapped.Err = fmt.Errorf("%w: %v", mapped.Err, err)
			return mapped
		}
		return err
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return errors.OutcomeUnknown(err)
		}
		return errors.Retryable(err)
	}

	return err
}

func isTransientPQ(pqErr *pq.Error) bool {
	code := string(pqErr.Code)
	switch {
	case strings.HasPrefix(code, "08"): // connection exception
		return true
	case code == "40001", code == "40P01": // serialization failure, deadlock
		return true
	case code == "53300": // too many connections
		return true
	case code == "57P01", code == "57P02", code == "57P03": // admin/crash shutdown, cannot connect now
		return true
	}
	return false
}

// MapPQError converts a PostgreSQL integrity error to an AppError.
// Returns nil if the error is not one it knows.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	case "23514":
		return mapCheckConstraint(pqErr)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))
	case "23503":
		return errors.BadRequest("referenced record does not exist")
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})
	default:
		return nil
	}
}

// IsUniqueViolation reports whether err is a unique constraint violation on
// the named constraint. An empty constraint matches any.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	switch {
	case strings.Contains(pqErr.Constraint, "quantity_non_negative"):
		return errors.Validation(map[string]string{
			"quantity": "must not be negative",
		})
	case strings.Contains(pqErr.Constraint, "reorder_level_non_negative"):
		return errors.Validation(map[string]string{
			"reorder_level": "must not be negative",
		})
	default:
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	switch {
	case strings.Contains(pqErr.Constraint, "code"):
		return "a record with this code already exists"
	case strings.Contains(pqErr.Constraint, "name"):
		return "a material with this name already exists"
	default:
		return "a record with these values already exists"
	}
}
