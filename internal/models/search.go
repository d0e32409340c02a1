package models

import "strings"

type JobState string

const (
	JobStateRunning JobState = "running"
	JobStateDone    JobState = "done"
	JobStateFailed  JobState = "failed"
)

// ParseDispatchState maps a Splunk dispatchState onto the states the harness
// distinguishes. Anything that is not DONE or FAILED counts as running.
func ParseDispatchState(s string) JobState {
	switch strings.ToUpper(s) {
	case "DONE":
		return JobStateDone
	case "FAILED":
		return JobStateFailed
	default:
		return JobStateRunning
	}
}

// SearchJob is the remote service's handle for one submitted search.
type SearchJob struct {
	ID            string
	State         JobState
	DispatchState string
	Results       []ResultRecord
}

// ResultRecord is one opaque result object, returned as the service sent it.
type ResultRecord map[string]any

// Raw returns the _raw field when present.
func (r ResultRecord) Raw() string {
	if v, ok := r["_raw"].(string); ok {
		return v
	}
	return ""
}

// TimeRange holds Splunk relative or absolute time modifiers, e.g. "-1m@m" and "now".
type TimeRange struct {
	Earliest string
	Latest   string
}

type Credentials struct {
	Username string
	Password string
}
