package models

// LogRecord is one unit of input to the log driver. Line is kept byte-for-byte
// and may hold invalid UTF-8.
type LogRecord struct {
	Source   string
	TimeNano int64
	Line     []byte
	// Partial means more bytes of the same logical line follow in a later record.
	Partial bool
	// PartialMetadata is only set by producers emulating dockerd >= 18.06.
	PartialMetadata *PartialMetadata
}

type PartialMetadata struct {
	Last    bool
	ID      string
	Ordinal int32
}

// Input is one test line before correlation tagging.
type Input struct {
	Text    string
	Partial bool
}
