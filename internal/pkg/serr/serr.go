package serr

import (
	"fmt"
	"net/http"
	"runtime/debug"
)

// Kind classifies a ServiceError for callers that need more than the status code.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindUnauthorized  Kind = "unauthorized"
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindUpstream      Kind = "upstream"
	KindPersistence   Kind = "persistence"
	KindUnavailable   Kind = "unavailable"
	KindInternal      Kind = "internal"
)

var kindStatus = map[Kind]int{
	KindConfiguration: http.StatusInternalServerError,
	KindUnauthorized:  http.StatusUnauthorized,
	KindValidation:    http.StatusBadRequest,
	KindNotFound:      http.StatusNotFound,
	KindUpstream:      http.StatusInternalServerError,
	KindPersistence:   http.StatusInternalServerError,
	KindUnavailable:   http.StatusServiceUnavailable,
	KindInternal:      http.StatusInternalServerError,
}

// ServiceError is an error that is safe to report to the caller. Msg is the
// client-facing message, Err keeps the underlying cause for the logs.
type ServiceError struct {
	Err        error
	Kind       Kind
	Msg        string
	StackTrace string
	StatusCode int
	Env        map[string]string
}

func NewServiceError(err error, statusCode int, msg string, args ...any) *ServiceError {
	return &ServiceError{
		Err:        err,
		Kind:       KindInternal,
		Msg:        fmt.Sprintf(msg, args...),
		StatusCode: statusCode,
		StackTrace: string(debug.Stack()),
		Env:        make(map[string]string),
	}
}

// New creates a ServiceError whose status code is derived from kind.
func New(kind Kind, err error, msg string, args ...any) *ServiceError {
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	e := NewServiceError(err, status, msg, args...)
	e.Kind = kind
	return e
}

func Configuration(err error, msg string, args ...any) *ServiceError {
	return New(KindConfiguration, err, msg, args...)
}

func Unauthorized(err error, msg string, args ...any) *ServiceError {
	return New(KindUnauthorized, err, msg, args...)
}

func Validation(err error, msg string, args ...any) *ServiceError {
	return New(KindValidation, err, msg, args...)
}

func NotFound(err error, msg string, args ...any) *ServiceError {
	return New(KindNotFound, err, msg, args...)
}

func Upstream(err error, msg string, args ...any) *ServiceError {
	return New(KindUpstream, err, msg, args...)
}

func Persistence(err error, msg string, args ...any) *ServiceError {
	return New(KindPersistence, err, msg, args...)
}

func Unavailable(err error, msg string, args ...any) *ServiceError {
	return New(KindUnavailable, err, msg, args...)
}

// With attaches a key/value pair that is logged alongside the error.
func (e *ServiceError) With(key, val string) *ServiceError {
	e.Env[key] = val
	return e
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
