package services

import (
	"errors"
	"strings"

	"github.com/dentalflow/dentalflow-api/workflow"
	"gorm.io/gorm"
)

// classify maps a store error onto the workflow error taxonomy. Errors that
// are already typed pass through unchanged.
func classify(op string, err error, resource, id string) error {
	if err == nil {
		return nil
	}

	var (
		vErr   *workflow.ValidationError
		cfgErr *workflow.ConfigurationError
		cErr   *workflow.ConcurrencyError
		ioErr  *workflow.TransientIOError
		nfErr  *workflow.NotFoundError
		fbErr  *workflow.ForbiddenError
	)
	if errors.As(err, &vErr) || errors.As(err, &cfgErr) || errors.As(err, &cErr) ||
		errors.As(err, &ioErr) || errors.As(err, &nfErr) || errors.As(err, &fbErr) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &workflow.NotFoundError{Resource: resource, ID: id}
	}
	if isUniqueViolation(err) {
		return &workflow.ConcurrencyError{
			Code:    workflow.CodeConflict,
			Message: "could not update, please retry",
			Err:     err,
		}
	}
	return &workflow.TransientIOError{Op: op, Err: err}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
