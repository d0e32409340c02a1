package errors

import (
	"errors"
	"fmt"
)

// Kind classifies harness failures so callers can branch without matching messages.
type Kind int

const (
	KindUnknown Kind = iota
	// KindFraming - a record could not be serialized or a frame could not be decoded.
	KindFraming
	// KindControl - a start/stop request to the agent failed. Never retried.
	KindControl
	// KindTransport - an HTTP call to the search service failed after the retry policy ran out.
	KindTransport
	// KindSearchFailed - the remote search job reported a failure state.
	KindSearchFailed
)

func (k Kind) String() string {
	switch k {
	case KindFraming:
		return "framing"
	case KindControl:
		return "control"
	case KindTransport:
		return "transport"
	case KindSearchFailed:
		return "search-failed"
	default:
		return "unknown"
	}
}

type kinded interface {
	Kind() Kind
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

var (
	// ErrSessionNotActive is returned when stopping a session that was never started.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrSessionActive is returned when starting a session that is not idle.
	ErrSessionActive = errors.New("session is already started")
)

type FramingError struct {
	Op  string
	Err error
}

func NewFramingError(op string, err error) *FramingError {
	return &FramingError{Op: op, Err: err}
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing: %s: %v", e.Op, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }
func (e *FramingError) Kind() Kind    { return KindFraming }

type ControlError struct {
	Op         string
	File       string
	StatusCode int
	Message    string
	Err        error
}

// NewControlError wraps a failure to reach the agent's control socket.
func NewControlError(op, file string, err error) *ControlError {
	return &ControlError{Op: op, File: file, Err: err}
}

// NewControlAckError reports a non-success acknowledgement from the agent.
func NewControlAckError(op, file string, statusCode int, message string) *ControlError {
	return &ControlError{Op: op, File: file, StatusCode: statusCode, Message: message}
}

func (e *ControlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("control: %s %q: %v", e.Op, e.File, e.Err)
	}
	return fmt.Sprintf("control: %s %q: status %d: %s", e.Op, e.File, e.StatusCode, e.Message)
}

func (e *ControlError) Unwrap() error { return e.Err }
func (e *ControlError) Kind() Kind    { return KindControl }

type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

// NewTransportError wraps a request that failed after the retry policy was exhausted.
func NewTransportError(op, url string, err error) *TransportError {
	return &TransportError{Op: op, URL: url, Err: err}
}

// NewStatusError reports a non-2xx response. The body is kept for diagnostics.
func NewStatusError(op, url string, statusCode int, body []byte) *TransportError {
	return &TransportError{Op: op, URL: url, StatusCode: statusCode, Body: string(body)}
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: status code: %d details: %s", e.Op, e.URL, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Kind() Kind    { return KindTransport }

type SearchFailedError struct {
	JobID string
	State string
}

func NewSearchFailedError(jobID, state string) *SearchFailedError {
	return &SearchFailedError{JobID: jobID, State: state}
}

func (e *SearchFailedError) Error() string {
	return fmt.Sprintf("search job %s failed (dispatch state %s)", e.JobID, e.State)
}

func (e *SearchFailedError) Kind() Kind { return KindSearchFailed }

func IsFramingError(err error) bool      { return KindOf(err) == KindFraming }
func IsControlError(err error) bool      { return KindOf(err) == KindControl }
func IsTransportError(err error) bool    { return KindOf(err) == KindTransport }
func IsSearchFailedError(err error) bool { return KindOf(err) == KindSearchFailed }

// StatusCode returns the HTTP status carried by a transport or control error, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		if te.StatusCode != 0 {
			return te.StatusCode
		}
		var inner *TransportError
		if errors.As(te.Err, &inner) {
			return inner.StatusCode
		}
	}
	var ce *ControlError
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	return 0
}
