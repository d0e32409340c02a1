package framing

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	srvErrors "github.com/kubev2v/logdriver-e2e/pkg/errors"
)

const (
	prefixSize = 4
	// DefaultMaxFrameSize matches the limit of the log driver's delimited reader.
	DefaultMaxFrameSize = 1_000_000
)

type flusher interface {
	Flush() error
}

type syncer interface {
	Sync() error
}

type Option func(*options)

type options struct {
	maxFrameSize int
}

// WithMaxFrameSize bounds the payload size. Zero or negative disables the check.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		o.maxFrameSize = n
	}
}

func newOptions(opts []Option) options {
	o := options{maxFrameSize: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Writer writes length-prefixed LogEntry frames to a sink.
type Writer struct {
	w    io.Writer
	opts options
	buf  []byte
}

func NewWriter(w io.Writer, opts ...Option) *Writer {
	return &Writer{w: w, opts: newOptions(opts)}
}

// Write emits one frame and flushes the sink so a concurrent reader sees it
// without extra buffering delay. Nothing is written when the record can't be framed.
func (w *Writer) Write(rec models.LogRecord) error {
	payload, err := Marshal(rec)
	if err != nil {
		return srvErrors.NewFramingError("marshal", err)
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return srvErrors.NewFramingError("marshal", fmt.Errorf("payload of %d bytes does not fit a uint32 prefix", len(payload)))
	}
	if w.opts.maxFrameSize > 0 && len(payload) > w.opts.maxFrameSize {
		return srvErrors.NewFramingError("marshal", fmt.Errorf("payload of %d bytes exceeds max frame size %d", len(payload), w.opts.maxFrameSize))
	}

	w.buf = AppendFrame(w.buf[:0], payload)
	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return w.flush()
}

func (w *Writer) flush() error {
	switch s := w.w.(type) {
	case flusher:
		if err := s.Flush(); err != nil {
			return fmt.Errorf("flushing sink: %w", err)
		}
	case syncer:
		// fifos and character devices reject fsync; the write already reached the kernel
		_ = s.Sync()
	}
	return nil
}

// AppendFrame appends the big-endian length prefix and the payload to b.
func AppendFrame(b []byte, payload []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(payload)))
	return append(b, payload...)
}

// Encode returns the complete frame for a record.
func Encode(rec models.LogRecord) ([]byte, error) {
	payload, err := Marshal(rec)
	if err != nil {
		return nil, srvErrors.NewFramingError("marshal", err)
	}
	return AppendFrame(make([]byte, 0, prefixSize+len(payload)), payload), nil
}
