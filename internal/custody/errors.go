package custody

import (
	"errors"
	"fmt"
)

// Kind classifies custody errors so callers can render them without knowing
// anything about the storage backend.
type Kind string

// Error kinds.
const (
	KindValidation    Kind = "validation"
	KindDataIntegrity Kind = "data_integrity"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Error is the typed error returned by every custody operation.
type Error struct {
	Kind    Kind
	Message string
	AssetID string
	OrderID string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ValidationError reports a malformed request.
func ValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// DataIntegrityError reports stored state that cannot be explained.
func DataIntegrityError(format string, args ...any) *Error {
	return &Error{Kind: KindDataIntegrity, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing order or holder.
func NotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// ConflictError wraps a backend transaction conflict. Stores return it so the
// service knows the attempt may be retried.
func ConflictError(err error) *Error {
	return &Error{Kind: KindConflict, Message: "transaction conflict", Err: err}
}

// withAsset sets the offending asset id.
func (e *Error) withAsset(id string) *Error {
	e.AssetID = id
	return e
}

// withOrder sets the offending order id.
func (e *Error) withOrder(id string) *Error {
	e.OrderID = id
	return e
}

// KindOf returns the kind of err, KindInternal for foreign errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// IsConflict reports whether err is a retryable transaction conflict.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}
