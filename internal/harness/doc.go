// Package harness runs end-to-end log driver scenarios.
//
// A scenario feeds records into the driver's named pipe, starts and stops a
// logging session around them and then searches for what arrived:
//
//	┌──────────┐  frames   ┌──────┐   ┌────────────┐  HEC   ┌──────────┐
//	│ producer │ ────────► │ FIFO │ ─►│ log driver │ ─────► │  Splunk  │
//	└──────────┘           └──────┘   └────────────┘        └──────────┘
//	  scheduler job                     ▲ start/stop             │ search <id>
//	                                    │                        ▼
//	                                 Harness.Run ─────────────► Report
//
// Every run gets a fresh correlation id. Non-blank payloads are prefixed with
// "<id> " so the search only matches this run; blank ones go out untouched.
// Replayed files carry the id in their first chunk only.
//
// Opening a FIFO for writing needs a reader, and the driver only opens the
// pipe once StartLogging is processed, so the producer runs on the scheduler
// while Run drives the control socket.
package harness
