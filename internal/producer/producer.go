// Package producer writes framed log records into the transport a log driver reads:
// a named pipe in the real setup, any io.Writer in tests.
package producer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	"github.com/kubev2v/logdriver-e2e/pkg/framing"
)

const (
	DefaultSource    = "test"
	DefaultChunkSize = 64 * 1024
)

type Option func(*Producer)

// WithSource sets the source used for records that don't carry one.
func WithSource(source string) Option {
	return func(p *Producer) {
		p.source = source
	}
}

// WithClock replaces time.Now for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Producer) {
		p.now = now
	}
}

func WithMaxFrameSize(n int) Option {
	return func(p *Producer) {
		p.frameOpts = append(p.frameOpts, framing.WithMaxFrameSize(n))
	}
}

// Producer writes framed records to a sink it owns until Close.
type Producer struct {
	w         *framing.Writer
	closer    io.Closer
	source    string
	now       func() time.Time
	frameOpts []framing.Option
	written   int
	closeOnce sync.Once
	closeErr  error
}

// New wraps an already open sink. If sink is an io.Closer, Close closes it.
func New(sink io.Writer, opts ...Option) *Producer {
	p := &Producer{
		source: DefaultSource,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.w = framing.NewWriter(sink, p.frameOpts...)
	if c, ok := sink.(io.Closer); ok {
		p.closer = c
	}
	return p
}

// Open opens the transport at path (see OpenSink) and returns a producer owning it.
func Open(ctx context.Context, path string, sinkOpts SinkOptions, opts ...Option) (*Producer, error) {
	f, err := OpenSink(ctx, path, sinkOpts)
	if err != nil {
		return nil, err
	}
	return New(f, opts...), nil
}

// Written returns the number of frames written so far.
func (p *Producer) Written() int {
	return p.written
}

// Emit frames one record and flushes it. Zero TimeNano and empty Source are
// defaulted, so a record cannot carry an epoch-0 timestamp; the line itself is
// never inspected.
func (p *Producer) Emit(rec models.LogRecord) error {
	if rec.Source == "" {
		rec.Source = p.source
	}
	if rec.TimeNano == 0 {
		rec.TimeNano = p.now().UnixNano()
	}
	if err := p.w.Write(rec); err != nil {
		return err
	}
	p.written++
	return nil
}

// EmitAll writes records in order on the same open sink.
func (p *Producer) EmitAll(recs []models.LogRecord) (int, error) {
	for i, rec := range recs {
		if err := p.Emit(rec); err != nil {
			return i, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return len(recs), nil
}

// IntervalSpec drives a timed sequence: write one record, sleep Interval,
// repeat until Duration is covered.
type IntervalSpec struct {
	Interval time.Duration
	Duration time.Duration
	// Line builds the i-th payload.
	Line func(i int) []byte
}

// Count is the number of records the spec produces, never less than one.
func (s IntervalSpec) Count() int {
	if s.Interval <= 0 || s.Duration <= 0 {
		return 1
	}
	n := int(s.Duration / s.Interval)
	if s.Duration%s.Interval != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (p *Producer) Interval(ctx context.Context, spec IntervalSpec) (int, error) {
	if spec.Line == nil {
		return 0, errors.New("interval spec has no line generator")
	}
	n := spec.Count()
	log := zap.S().Named("producer")
	for i := range n {
		if err := p.Emit(models.LogRecord{Line: spec.Line(i)}); err != nil {
			return i, err
		}
		log.Debugw("interval record written", "index", i, "of", n)
		if err := sleep(ctx, spec.Interval); err != nil {
			return i + 1, err
		}
	}
	return n, nil
}

// ReplaySpec splits an input blob into fixed-size chunks.
type ReplaySpec struct {
	ChunkSize int
	// Partial flags every chunk but the last as a partial fragment.
	Partial bool
	// Prefix is prepended to the first chunk only.
	Prefix []byte
}

// Replay emits r as successive records of exactly ChunkSize bytes; only the
// final chunk may be shorter. An empty input still yields one empty record.
func (p *Producer) Replay(ctx context.Context, r io.Reader, spec ReplaySpec) (int, error) {
	size := spec.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	if len(spec.Prefix) > 0 {
		r = io.MultiReader(bytes.NewReader(spec.Prefix), r)
	}
	src := bufio.NewReaderSize(r, size)

	cur := make([]byte, size)
	n, err := io.ReadFull(src, cur)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("reading replay input: %w", err)
	}
	cur = cur[:n]

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		next := make([]byte, size)
		m, rerr := io.ReadFull(src, next)
		if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return count, fmt.Errorf("reading replay input: %w", rerr)
		}
		last := m == 0

		if err := p.Emit(models.LogRecord{Line: cur, Partial: spec.Partial && !last}); err != nil {
			return count, err
		}
		count++
		if last {
			return count, nil
		}
		cur = next[:m]
	}
}

// ReplayFile replays a file; names ending in .gz are decompressed on the fly.
func (p *Producer) ReplayFile(ctx context.Context, path string, spec ReplaySpec) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening replay file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("opening gzip replay file: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	zap.S().Named("producer").Infow("replaying file", "path", path, "chunkSize", spec.ChunkSize, "partial", spec.Partial)
	return p.Replay(ctx, r, spec)
}

// Close closes the owned sink once. The log driver sees end of stream after it.
func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		if p.closer != nil {
			p.closeErr = p.closer.Close()
		}
		zap.S().Named("producer").Debugw("sink closed", "frames", p.written)
	})
	return p.closeErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
