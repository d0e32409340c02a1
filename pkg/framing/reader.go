package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	srvErrors "github.com/kubev2v/logdriver-e2e/pkg/errors"
)

// Reader decodes frames written by Writer.
type Reader struct {
	r      io.Reader
	opts   options
	prefix [prefixSize]byte
	buf    []byte
}

func NewReader(r io.Reader, opts ...Option) *Reader {
	return &Reader{r: r, opts: newOptions(opts)}
}

// Read returns the next record. io.EOF is returned only on a frame boundary;
// a stream cut inside a frame yields io.ErrUnexpectedEOF.
func (r *Reader) Read() (models.LogRecord, error) {
	if _, err := io.ReadFull(r.r, r.prefix[:]); err != nil {
		return models.LogRecord{}, err
	}

	size := binary.BigEndian.Uint32(r.prefix[:])
	if r.opts.maxFrameSize > 0 && uint64(size) > uint64(r.opts.maxFrameSize) {
		return models.LogRecord{}, srvErrors.NewFramingError("read", fmt.Errorf("frame of %d bytes exceeds max frame size %d", size, r.opts.maxFrameSize))
	}

	if cap(r.buf) < int(size) {
		r.buf = make([]byte, size)
	}
	r.buf = r.buf[:size]
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		if errors.Is(err, io.EOF) {
			return models.LogRecord{}, io.ErrUnexpectedEOF
		}
		return models.LogRecord{}, err
	}

	return Unmarshal(r.buf)
}

// ReadAll reads records until a clean end of stream.
func (r *Reader) ReadAll() ([]models.LogRecord, error) {
	var recs []models.LogRecord
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}

// Decode parses exactly one frame from b and returns the unread remainder.
func Decode(b []byte) (models.LogRecord, []byte, error) {
	if len(b) < prefixSize {
		return models.LogRecord{}, b, io.ErrUnexpectedEOF
	}
	size := binary.BigEndian.Uint32(b)
	if uint64(len(b)-prefixSize) < uint64(size) {
		return models.LogRecord{}, b, io.ErrUnexpectedEOF
	}
	end := prefixSize + int(size)
	rec, err := Unmarshal(b[prefixSize:end])
	if err != nil {
		return models.LogRecord{}, b, err
	}
	return rec, b[end:], nil
}
