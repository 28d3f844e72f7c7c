package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindConfiguration   Kind = "configuration"
	KindRenderTransient Kind = "render_transient"
	KindIntegrity       Kind = "integrity_violation"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrConfiguration   = errors.New("configuration error")
	ErrRenderTransient = errors.New("transient render failure")
	ErrIntegrity       = errors.New("integrity invariant violation")
)

var sentinels = map[Kind]error{
	KindInvalidInput:    ErrInvalidInput,
	KindConfiguration:   ErrConfiguration,
	KindRenderTransient: ErrRenderTransient,
	KindIntegrity:       ErrIntegrity,
}

// Error attaches a taxonomy kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against the sentinel of the error's kind, so
// errors.Is(err, ErrInvalidInput) works without unwrapping manually.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && target == sentinel
}

// New wraps err with kind. A nil err yields nil. An err that already
// carries a kind keeps it.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Invalid(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}

func Configuration(op, format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: fmt.Errorf(format, args...)}
}

func Transient(op string, err error) error {
	return &Error{Kind: KindRenderTransient, Op: op, Err: err}
}

func Integrity(op, format string, args ...any) error {
	return &Error{Kind: KindIntegrity, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in the chain,
// or an empty kind for unclassified errors.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}

func Retryable(err error) bool {
	return KindOf(err) == KindRenderTransient
}
