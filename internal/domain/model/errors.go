package model

import (
	"errors"
)

// Sentinel error kinds shared by every layer. Use errors.Is to classify.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrNoMatch        = errors.New("no match")
	ErrInvalidRequest = errors.New("invalid request")
	ErrStore          = errors.New("store unavailable")
	ErrConflict       = errors.New("concurrent modification")
)

// User-facing messages.
const (
	MsgInvalidSchema  = "Invalid buyer schema"
	MsgBuyerNotFound  = "No buyer found"
	MsgNoMatch        = "No buyer match found"
	MsgInvalidRequest = "Invalid route request"
	MsgStore          = "Store unavailable"
)

// Error carries an operation name, a sentinel kind and a caller-safe message.
type Error struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Op + ": " + e.Kind.Error()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an *Error.
func NewError(op string, kind error, msg string, cause error) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg, Err: cause}
}

// Message returns the caller-facing message of err, or fallback.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return fallback
}
