package models

import "fmt"

// Session correlates one test case's transport, driver options and test data.
type Session struct {
	FilePath string
	// Options are forwarded verbatim to the log driver.
	Options       map[string]string
	CorrelationID string
}

type SessionState string

const (
	SessionStateIdle     SessionState = "idle"
	SessionStateStarting SessionState = "starting"
	SessionStateActive   SessionState = "active"
	SessionStateStopping SessionState = "stopping"
)

func (s SessionState) String() string {
	return string(s)
}

func ParseSessionState(s string) (SessionState, error) {
	switch SessionState(s) {
	case SessionStateIdle, SessionStateStarting, SessionStateActive, SessionStateStopping:
		return SessionState(s), nil
	default:
		return "", fmt.Errorf("invalid session state: %s", s)
	}
}
