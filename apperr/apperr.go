// Package apperr classifies failures so that the HTTP layer and the job
// queue can decide on status codes and retries without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindExternal
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindExternal:
		return "external_service"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports an absent entity
func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Validation reports malformed input or output
func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// External wraps a failed call to a search, page or LLM endpoint
func External(op, msg string, err error) error {
	return &Error{Kind: KindExternal, Op: op, Msg: msg, Err: err}
}

// Persistence wraps a failed store operation
func Persistence(op, msg string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Msg: msg, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool    { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool  { return KindOf(err) == KindValidation }
func IsExternal(err error) bool    { return KindOf(err) == KindExternal }
func IsPersistence(err error) bool { return KindOf(err) == KindPersistence }
