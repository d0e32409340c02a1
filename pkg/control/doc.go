// Package control drives the log driver plugin through its control socket.
//
// The plugin serves a small HTTP API on a unix socket. The host part of the
// URL is ignored, every request is a JSON POST and every response carries an
// "Err" field that is empty on success:
//
//	┌──────────────┐  POST /LogDriver.StartLogging  ┌──────────────┐
//	│   Client     │ ─────────────────────────────► │  log driver  │
//	│              │  {"File", "Info":{...}}        │   (plugin)   │
//	│              │ ◄───────────────────────────── │              │
//	│              │  {"Err": ""}                   │              │
//	│              │  POST /LogDriver.StopLogging   │              │
//	│              │ ─────────────────────────────► │              │
//	└──────────────┘  {"File"}                      └──────────────┘
//
// A request is successful only when the status is 200 and Err is empty.
// Everything else is returned as a *errors.ControlError carrying the status
// and the driver's message. Control requests are never retried.
//
// Session wraps a Client for one test case and enforces that stop follows a
// successful start.
package control
