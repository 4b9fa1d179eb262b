package application

import (
	"errors"
	"fmt"
)

// Kind classifies a Fault for callers that translate it into a transport
// status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Fault is the only error type returned by Service. Message is safe to show
// to callers; Err keeps the underlying cause for logs.
type Fault struct {
	Kind    Kind
	Op      string
	ID      int64 // 0 when the operation has no identifier
	Field   string
	Message string
	Err     error
}

func (f *Fault) Error() string {
	switch {
	case f.Field != "":
		return fmt.Sprintf("%s: %s %s", f.Op, f.Field, f.Message)
	case f.ID != 0:
		return fmt.Sprintf("%s: user %d: %s", f.Op, f.ID, f.Message)
	default:
		return fmt.Sprintf("%s: %s", f.Op, f.Message)
	}
}

func (f *Fault) Unwrap() error { return f.Err }

// AsFault extracts a *Fault from err.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsNotFound reports whether err is a not-found Fault.
func IsNotFound(err error) bool {
	f, ok := AsFault(err)
	return ok && f.Kind == KindNotFound
}

// IsValidation reports whether err is a validation Fault.
func IsValidation(err error) bool {
	f, ok := AsFault(err)
	return ok && f.Kind == KindValidation
}
