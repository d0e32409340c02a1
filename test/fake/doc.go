// Package fake provides in-process stand-ins for the search service and the
// log driver plugin so the harness can be exercised without either.
//
//	producer ──frames──► FIFO ──► Agent ──index──► Splunk ◄──REST── search.Client
//	                                ▲
//	control.Client ─unix socket─────┘
//
// Agent implements only the control endpoints and the stream decoding. It does
// none of the real driver's batching, gzip or formatting. Splunk matches
// "index=" and plain terms against _raw and can script job states and inject
// failures.
package fake
