// Package search queries the Splunk REST API for events the log driver delivered.
//
// A search is a job: it is submitted, polled until the service reports a
// terminal dispatch state, then its events are fetched.
//
//	POST /services/search/jobs               → {"sid": "..."}
//	GET  /services/search/jobs/{sid}         → entry[0].content.dispatchState
//	GET  /services/search/jobs/{sid}/events  → {"results": [...]}
//
// # Poll states
//
//	submitted ──► running ──DONE──► done
//	                 │ ▲   ──FAILED─► failed      (*errors.SearchFailedError)
//	                 └─┘   ──budget─► exhausted   (empty results, warning)
//
// Every dispatch state other than DONE and FAILED (QUEUED, PARSING, RUNNING,
// FINALIZING ...) counts as running. Polls are PollInterval apart and capped
// at MaxPolls; with the defaults (1s, 500) a search gives up after about
// eight minutes.
//
// # Retries
//
// Each HTTP request is retried on connection errors and on the statuses in
// Policy.RetryStatusCodes, with exponential backoff between BackoffBase and
// BackoffMax. MaxRetries is the number of attempts. When they run out the
// last error is returned inside a *errors.TransportError. Other non-2xx
// statuses fail at once.
package search
