// Package dataerr defines the typed failures surfaced by the data-access
// layer. Every failure carries a Kind so callers can branch on it without
// string matching.
package dataerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure
type Kind string

const (
	KindUnknownResource     Kind = "unknown_resource"
	KindConstraintViolation Kind = "constraint_violation"
	KindInsertFailed        Kind = "insert_failed"
	KindUpdateFailed        Kind = "update_failed"
	KindDeleteFailed        Kind = "delete_failed"
	KindQueryFailed         Kind = "query_failed"
	KindStorageUnavailable  Kind = "storage_unavailable"
)

// Error is a classified data-access failure
type Error struct {
	Kind    Kind
	Message string
	err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, err: err}
}

// NewUnknownResource reports an identifier that matches no route
func NewUnknownResource(msg string, err error) *Error {
	return newError(KindUnknownResource, msg, err)
}

// NewConstraintViolation reports a missing required column, an unknown
// column or a dangling foreign key
func NewConstraintViolation(msg string, err error) *Error {
	return newError(KindConstraintViolation, msg, err)
}

func NewInsertFailed(msg string, err error) *Error {
	return newError(KindInsertFailed, msg, err)
}

func NewUpdateFailed(msg string, err error) *Error {
	return newError(KindUpdateFailed, msg, err)
}

func NewDeleteFailed(msg string, err error) *Error {
	return newError(KindDeleteFailed, msg, err)
}

func NewQueryFailed(msg string, err error) *Error {
	return newError(KindQueryFailed, msg, err)
}

// NewStorageUnavailable reports a store that cannot be opened or is closed
func NewStorageUnavailable(msg string, err error) *Error {
	return newError(KindStorageUnavailable, msg, err)
}

// Is reports whether any error in err's chain is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.err
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsUnknownResource(err error) bool     { return Is(err, KindUnknownResource) }
func IsConstraintViolation(err error) bool { return Is(err, KindConstraintViolation) }
func IsInsertFailed(err error) bool        { return Is(err, KindInsertFailed) }
func IsStorageUnavailable(err error) bool  { return Is(err, KindStorageUnavailable) }
