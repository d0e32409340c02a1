// Package framing implements the wire format the log driver reads from its FIFO.
//
// Each record is a Docker logdriver.LogEntry protobuf message preceded by a
// 4-byte big-endian length:
//
//	┌──────────────┬──────────────────────────────────────────┐
//	│ uint32 (BE)  │ LogEntry (proto3)                        │
//	│ len(payload) │ 1: source  2: time_nano  3: line          │
//	│              │ 4: partial 5: partial_log_metadata        │
//	└──────────────┴──────────────────────────────────────────┘
//
// The codec is written against protowire so no generated code is needed. Zero
// values are omitted exactly as proto3 does, which means an empty record is a
// frame of four zero bytes.
//
// Writer emits one frame per call and flushes the sink. Reader is the inverse
// and is what the fake agent uses in tests. Assembler joins partial fragments
// back into logical lines using only the partial flags and frame boundaries.
package framing
