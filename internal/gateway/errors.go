package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure at the client boundary. The orchestrator
// maps each kind to a distinct internal diagnostic while presenting the same
// generic retry suggestion to the end customer.
type Kind int

const (
	// KindConnectivity covers transport-level failures: the request never
	// produced an HTTP response.
	KindConnectivity Kind = iota
	// KindRejected covers responses whose status differs from the one the
	// operation requires.
	KindRejected
	// KindMalformed covers responses that arrived but could not be decoded.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindRejected:
		return "rejected"
	case KindMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every Client operation.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindRejected:
		return fmt.Sprintf("gateway %s: request rejected with status %d: %s", e.Op, e.StatusCode, e.Body)
	case KindMalformed:
		return fmt.Sprintf("gateway %s: malformed response: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a gateway *Error from err when present.
func AsError(err error) (*Error, bool) {
	var target *Error
	ok := errors.As(err, &target)
	return target, ok
}
