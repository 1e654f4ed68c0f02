package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/GBSLIT/FairForm/internal/graph"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	AuthFailure         Kind = "AuthFailure"
	RemoteCreateFailure Kind = "RemoteCreateFailure"
	RemoteUploadFailure Kind = "RemoteUploadFailure"
	SchemaUnavailable   Kind = "SchemaUnavailable"
	AppendFailure       Kind = "AppendFailure"
	FormulaPatchFailure Kind = "FormulaPatchFailure"
	RemoteTimeout       Kind = "RemoteTimeout"
)

// Fatal reports whether a failure of this kind aborts the submission.
func (k Kind) Fatal() bool { return k != FormulaPatchFailure }

// Error is returned by Submit. Remote holds the Graph error payload when the
// failure came from a rejected call.
type Error struct {
	Kind   Kind
	Op     string
	File   string
	Remote *graph.APIError
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.File != "" {
		msg += " " + e.File
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// newError classifies err, promoting timeouts to RemoteTimeout whatever step
// they hit.
func newError(kind Kind, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: err}
	if isTimeout(err) {
		e.Kind = RemoteTimeout
	}
	var apiErr *graph.APIError
	if errors.As(err, &apiErr) {
		e.Remote = apiErr
	}
	return e
}

// isTimeout matches our own deadlines as well as transport timeouts such as
// an http.Client Timeout, which surface as a net.Error.
func isTimeout(err error) bool {
	if errors.Is(err, graph.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
