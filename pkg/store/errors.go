package store

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies store errors.
type Kind string

const (
	KindNotInitialized         Kind = "NOT_INITIALIZED"
	KindInvalidPayload         Kind = "INVALID_PAYLOAD"
	KindInvalidKey             Kind = "INVALID_KEY"
	KindConnectionFailed       Kind = "CONNECTION_FAILED"
	KindBackendOperationFailed Kind = "BACKEND_OPERATION_FAILED"
	KindInvalidConfiguration   Kind = "INVALID_CONFIGURATION"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrNotInitialized         = &Error{Kind: KindNotInitialized}
	ErrInvalidPayload         = &Error{Kind: KindInvalidPayload}
	ErrInvalidKey             = &Error{Kind: KindInvalidKey}
	ErrConnectionFailed       = &Error{Kind: KindConnectionFailed}
	ErrBackendOperationFailed = &Error{Kind: KindBackendOperationFailed}
	ErrInvalidConfiguration   = &Error{Kind: KindInvalidConfiguration}
)

// Error is the error type returned by every Client operation.
type Error struct {
	Kind    Kind
	Op      string
	Backend string
	// Attempts is set on KindConnectionFailed.
	Attempts int
	// Partial is set on KindBackendOperationFailed when some writes of a
	// batch may have been applied.
	Partial bool
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("docstore")
	if e.Backend != "" {
		b.WriteString(" ")
		b.WriteString(e.Backend)
	}
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.describe())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) describe() string {
	switch e.Kind {
	case KindNotInitialized:
		return "store is not connected"
	case KindInvalidPayload:
		return "invalid payload"
	case KindInvalidKey:
		return "invalid key"
	case KindConnectionFailed:
		return fmt.Sprintf("connection failed after %d attempt(s)", e.Attempts)
	case KindBackendOperationFailed:
		if e.Partial {
			return "backend operation partially failed"
		}
		return "backend operation failed"
	case KindInvalidConfiguration:
		return "invalid configuration"
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Backend != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Kind
	}
	return ""
}

// IsPartial reports whether err is a batch failure that may have applied some writes.
func IsPartial(err error) bool {
	var storeErr *Error
	return errors.As(err, &storeErr) && storeErr.Kind == KindBackendOperationFailed && storeErr.Partial
}

// OperationFailed wraps a driver failure in which no write was applied.
func OperationFailed(op string, err error) *Error {
	return &Error{Kind: KindBackendOperationFailed, Op: op, Err: err}
}

// PartialFailure wraps a batch failure in which some writes may have been applied.
func PartialFailure(op string, err error) *Error {
	return &Error{Kind: KindBackendOperationFailed, Op: op, Partial: true, Err: err}
}

// InvalidConfiguration reports a configuration problem detected before any I/O.
func InvalidConfiguration(backend, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidConfiguration, Backend: backend, Err: fmt.Errorf(format, args...)}
}

func notInitialized(backend, op string) *Error {
	return &Error{Kind: KindNotInitialized, Op: op, Backend: backend}
}

func invalidKey(backend, op string, err error) *Error {
	return &Error{Kind: KindInvalidKey, Op: op, Backend: backend, Err: err}
}

func invalidPayload(backend, op string, err error) *Error {
	return &Error{Kind: KindInvalidPayload, Op: op, Backend: backend, Err: err}
}

// backendFailure normalises a driver error into a KindBackendOperationFailed
// *Error carrying op and backend, keeping the Partial flag a driver set.
func backendFailure(backend, op string, err error) *Error {
	var storeErr *Error
	if errors.As(err, &storeErr) && storeErr.Kind == KindBackendOperationFailed {
		return &Error{Kind: KindBackendOperationFailed, Op: op, Backend: backend, Partial: storeErr.Partial, Err: storeErr.Err}
	}
	return &Error{Kind: KindBackendOperationFailed, Op: op, Backend: backend, Err: err}
}
