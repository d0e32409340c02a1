package harness

import (
	"bytes"
	"context"
	"time"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	"github.com/kubev2v/logdriver-e2e/internal/producer"
)

// Feed writes one scenario's input through a producer.
type Feed interface {
	// Produce returns the number of records written. Non-blank payloads carry id.
	Produce(ctx context.Context, p *producer.Producer, id string) (int, error)
}

// Tag prefixes text with the correlation id. Blank text is returned as is so
// the driver's blank-line handling stays observable. An empty id tags nothing.
func Tag(id string, text []byte) []byte {
	if id == "" || len(bytes.Fields(text)) == 0 {
		return text
	}
	out := make([]byte, 0, len(id)+1+len(text))
	out = append(out, id...)
	out = append(out, ' ')
	return append(out, text...)
}

type LinesFeed struct {
	Inputs []models.Input
	// Gap is the pause between consecutive records.
	Gap time.Duration
}

func Lines(inputs ...models.Input) LinesFeed {
	return LinesFeed{Inputs: inputs}
}

func (f LinesFeed) WithGap(d time.Duration) LinesFeed {
	f.Gap = d
	return f
}

func (f LinesFeed) Expected() time.Duration {
	if len(f.Inputs) < 2 {
		return 0
	}
	return f.Gap * time.Duration(len(f.Inputs)-1)
}

func (f LinesFeed) Produce(ctx context.Context, p *producer.Producer, id string) (int, error) {
	for i, in := range f.Inputs {
		if i > 0 && f.Gap > 0 {
			if err := pause(ctx, f.Gap); err != nil {
				return i, err
			}
		}
		if err := p.Emit(models.LogRecord{Line: Tag(id, []byte(in.Text)), Partial: in.Partial}); err != nil {
			return i, err
		}
	}
	return len(f.Inputs), nil
}

// IntervalFeed writes Text every Interval for Duration.
type IntervalFeed struct {
	Interval time.Duration
	Duration time.Duration
	Text     string
}

func (f IntervalFeed) Expected() time.Duration {
	return f.Duration + f.Interval
}

func (f IntervalFeed) Produce(ctx context.Context, p *producer.Producer, id string) (int, error) {
	line := Tag(id, []byte(f.Text))
	return p.Interval(ctx, producer.IntervalSpec{
		Interval: f.Interval,
		Duration: f.Duration,
		Line:     func(int) []byte { return line },
	})
}

// FileFeed replays a file in chunks. Only the first chunk carries the id.
type FileFeed struct {
	Path string
	Spec producer.ReplaySpec
}

func (f FileFeed) Produce(ctx context.Context, p *producer.Producer, id string) (int, error) {
	spec := f.Spec
	if id != "" {
		spec.Prefix = []byte(id + " ")
	}
	return p.ReplayFile(ctx, f.Path, spec)
}

type expecter interface {
	Expected() time.Duration
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
