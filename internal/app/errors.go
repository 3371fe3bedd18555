package app

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStore      = errors.New("store failure")
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is.
func (e *DomainError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if kind := e.kind(); kind != nil {
		out = append(out, kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func (e *DomainError) kind() error {
	switch e.Code {
	case "VALIDATION_ERROR":
		return ErrValidation
	case "NOT_FOUND":
		return ErrNotFound
	case "CONFLICT":
		return ErrConflict
	case "STORE_ERROR":
		return ErrStore
	}
	return nil
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func conflictError(message string, details any) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", message, details)
}

// storeError hides the cause from clients but keeps it for errors.Is and logs.
func storeError(op string, err error) *DomainError {
	e := domainError(http.StatusInternalServerError, "STORE_ERROR", op+" failed", nil)
	e.Err = err
	return e
}
