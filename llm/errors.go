package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Kind classifies gateway failures.
type Kind uint8

const (
	Unknown Kind = iota
	// ConnectionFailed means the model server could not be reached.
	ConnectionFailed
	// Timeout means the request exceeded its deadline.
	Timeout
	// InvalidResponse means the server answered with something unusable.
	InvalidResponse
	// Status means the server answered with a non-success HTTP status.
	Status
	// InvalidRequest means the request was rejected before it was sent.
	InvalidRequest
	// Canceled means the caller gave up before the model answered.
	Canceled
)

func (k Kind) String() string {
	switch k {
	case ConnectionFailed:
		return "connection failed"
	case Timeout:
		return "timeout"
	case InvalidResponse:
		return "invalid response"
	case Status:
		return "bad status"
	case InvalidRequest:
		return "invalid request"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	// Code is the HTTP status for Status errors.
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("llm %s: %s (%d): %v", e.Op, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("llm %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return Unknown
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Unreachable reports whether err means no model could be asked at all,
// the condition under which demos print their setup hint.
func Unreachable(err error) bool {
	k := KindOf(err)
	return k == ConnectionFailed || k == Timeout
}

// Classify wraps a transport error from op into an *Error.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}

	kind := ConnectionFailed
	var ne net.Error
	switch {
	case errors.Is(err, context.Canceled):
		kind = Canceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = Timeout
	case errors.As(err, &ne) && ne.Timeout():
		kind = Timeout
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = ConnectionFailed
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
