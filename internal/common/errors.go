package common

import (
	"errors"
	"net/http"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// Error codes shared across store operations.
const (
	CodeNotFound           = "NOT_FOUND"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
	CodeValidation         = "VALIDATION"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
)

// NotFoundError reports an absent product, basket, deal, or receipt.
func NotFoundError(message string, err error) *AppError {
	return NewAppError(CodeNotFound, message, http.StatusNotFound, err)
}

// PersistenceError reports a failed save or delete against a collaborator.
func PersistenceError(message string, err error) *AppError {
	return NewAppError(CodePersistenceFailure, message, http.StatusInternalServerError, err)
}

// InvariantError reports an observed violation of a domain invariant, such as
// two active deals for one product. It indicates a bug, not a caller mistake.
func InvariantError(message string, err error) *AppError {
	return NewAppError(CodeInvariantViolation, message, http.StatusConflict, err)
}

// ValidationError reports invalid caller input.
func ValidationError(message string, details any) *AppError {
	return &AppError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest, Details: details}
}
