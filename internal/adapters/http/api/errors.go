package api

import (
	"errors"
	"net/http"

	"github.com/okian/dropwatch/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// kindError records the handler operation alongside the error kind and cause.
type kindError struct {
	op   string
	kind error
	err  error
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &kindError{op: op, kind: kind}
}

// Wrap attaches op to err.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{op: op, err: err}
}

// WrapKind attaches op and kind to err.
func WrapKind(op string, kind, err error) error {
	return &kindError{op: op, kind: kind, err: err}
}

func (e *kindError) Error() string { return e.op + ": " + e.message() }

func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }

// message is the text shown to clients, without the operation.
func (e *kindError) message() string {
	switch {
	case e.err != nil:
		return e.err.Error()
	case e.kind != nil:
		return e.kind.Error()
	default:
		return "unknown error"
	}
}

// classify maps an error to its HTTP status and response code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrDuplicatePeriodClear):
		return http.StatusConflict, "duplicate_period_clear"
	case errors.Is(err, model.ErrImmutableField):
		return http.StatusBadRequest, "immutable_field"
	case errors.Is(err, model.ErrValidation), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, model.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// clientMessage hides internals of server errors and drops operation prefixes.
func clientMessage(status int, err error) string {
	switch {
	case status >= http.StatusInternalServerError:
		return http.StatusText(status)
	case errors.Is(err, model.ErrDuplicatePeriodClear):
		return model.ErrDuplicatePeriodClear.Error()
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.message()
	}
	return err.Error()
}
