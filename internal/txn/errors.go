package txn

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an Error for retry and recovery decisions, per
// §7's taxonomy: preparation errors are always Permanent; evaluation,
// change-application, trigger, and rollback errors carry whatever class
// the failing call-out produced.
type ErrorClass string

const (
	// ClassTransient indicates a temporary failure that may succeed on
	// retry — a dial timeout, a momentarily unreachable host.
	ClassTransient ErrorClass = "transient"
	// ClassThrottled indicates rate limiting or quota exhaustion; should
	// be retried with backoff rather than immediately.
	ClassThrottled ErrorClass = "throttled"
	// ClassConflict indicates a resource state conflict, such as a
	// concurrent modification outside this transaction.
	ClassConflict ErrorClass = "conflict"
	// ClassPermanent indicates a non-recoverable error: invalid
	// configuration, permission denied, or a cyclic relationship graph.
	ClassPermanent ErrorClass = "permanent"
)

// Error is a classified transaction error carrying the resource and
// operation context needed for the log sink and for callers inspecting
// what failed after the fact.
type Error struct {
	Class     ErrorClass
	Message   string
	Code      string
	Resource  string
	Operation string
	Err       error
	Details   map[string]any
}

func (e *Error) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s): %s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s", e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is reports whether target is an *Error with the same class and code,
// so callers can use errors.Is(err, &txn.Error{Class: ..., Code: ...}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithResource attaches the ref of the resource that produced the error.
func (e *Error) WithResource(ref string) *Error {
	e.Resource = ref
	return e
}

// WithOperation attaches the name of the operation in flight when the
// error occurred, e.g. "evaluate", "forward", "trigger", "rollback".
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithCode attaches a programmatic error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail attaches a key/value pair of additional context.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NewTransientError builds a ClassTransient Error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ClassTransient, Message: message, Err: err}
}

// NewThrottledError builds a ClassThrottled Error.
func NewThrottledError(message string, err error) *Error {
	return &Error{Class: ClassThrottled, Message: message, Err: err}
}

// NewConflictError builds a ClassConflict Error.
func NewConflictError(message string, err error) *Error {
	return &Error{Class: ClassConflict, Message: message, Err: err}
}

// NewPermanentError builds a ClassPermanent Error.
func NewPermanentError(message string, err error) *Error {
	return &Error{Class: ClassPermanent, Message: message, Err: err}
}

// IsTransient reports whether err is classified as transient.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassTransient
	}
	return false
}

// IsThrottled reports whether err is classified as throttled.
func IsThrottled(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassThrottled
	}
	return false
}

// IsConflict reports whether err is classified as a conflict.
func IsConflict(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassConflict
	}
	return false
}

// IsPermanent reports whether err is classified as permanent.
func IsPermanent(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassPermanent
	}
	return false
}

// IsRetryable reports whether err may succeed if retried: transient,
// throttled, and conflict errors are retryable, permanent ones are not.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err) || IsConflict(err)
}
