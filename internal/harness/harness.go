package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/internal/config"
	"github.com/kubev2v/logdriver-e2e/internal/models"
	"github.com/kubev2v/logdriver-e2e/internal/producer"
	"github.com/kubev2v/logdriver-e2e/pkg/control"
	"github.com/kubev2v/logdriver-e2e/pkg/scheduler"
	"github.com/kubev2v/logdriver-e2e/pkg/search"
)

// Searcher runs verification searches.
type Searcher interface {
	Run(ctx context.Context, q search.Query) (*search.Outcome, error)
}

type Scenario struct {
	Name string
	Feed Feed
	// Options overlay the configured driver options.
	Options map[string]string
	// Index defaults to the splunk-index option, then to the configured index.
	Index string
	// Filter adds search terms after the correlation id.
	Filter    string
	Settle    time.Duration
	TimeRange models.TimeRange
}

type Report struct {
	CorrelationID string
	Records       int
	Results       []models.ResultRecord
	Polls         int
	Exhausted     bool
}

type Option func(*Harness)

// WithIDGenerator replaces uuid generation of correlation ids.
func WithIDGenerator(fn func() string) Option {
	return func(h *Harness) {
		h.newID = fn
	}
}

type Harness struct {
	cfg      *config.Configuration
	control  control.Logger
	searcher Searcher
	sched    *scheduler.Scheduler
	newID    func() string
}

func New(cfg *config.Configuration, ctl control.Logger, searcher Searcher, sched *scheduler.Scheduler, opts ...Option) *Harness {
	h := &Harness{
		cfg:      cfg,
		control:  ctl,
		searcher: searcher,
		sched:    sched,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run drives one scenario:
//
//	produce (background) ─► start ─► producer done ─► settle ─► stop ─► search <id>
//
// When start fails the producer is cancelled and no stop is sent.
func (h *Harness) Run(ctx context.Context, sc Scenario) (*Report, error) {
	if sc.Feed == nil {
		return nil, fmt.Errorf("scenario %q has no feed", sc.Name)
	}

	id := h.newID()
	path := h.cfg.Producer.FIFOPath
	log := zap.S().Named("harness").With("scenario", sc.Name, "correlationId", id)

	if err := producer.Prepare(path, h.cfg.Producer.CreateFIFO); err != nil {
		return nil, err
	}

	feed := h.withDefaults(sc.Feed)
	timeout := h.cfg.Harness.ProducerTimeout
	if e, ok := feed.(expecter); ok {
		timeout += e.Expected()
	}

	future := h.sched.AddWork("producer:"+sc.Name, func(ctx context.Context) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		p, err := producer.Open(ctx, path, producer.SinkOptions{
			CreateFIFO:  h.cfg.Producer.CreateFIFO,
			OpenTimeout: h.cfg.Producer.OpenTimeout,
		}, producer.WithSource(h.cfg.Producer.Source))
		if err != nil {
			return 0, err
		}
		defer p.Close()
		n, err := feed.Produce(ctx, p, id)
		return n, err
	})

	options := h.cfg.Control.DriverOptions()
	maps.Copy(options, sc.Options)
	session := control.NewSession(h.control, models.Session{FilePath: path, Options: options, CorrelationID: id})

	log.Infow("starting scenario", "path", path)
	if err := session.Start(ctx); err != nil {
		future.Stop()
		_, _ = future.Wait(context.Background())
		log.Errorw("failed to start logging", "error", err)
		return nil, err
	}

	records, prodErr := h.waitProducer(ctx, future, timeout)
	if prodErr != nil {
		log.Errorw("producer failed", "records", records, "error", prodErr)
	}

	settle := sc.Settle
	if settle == 0 {
		settle = h.cfg.Harness.SettleTime
	}
	if err := pause(ctx, settle); err != nil {
		prodErr = errors.Join(prodErr, err)
	}

	if err := session.Stop(context.WithoutCancel(ctx)); err != nil {
		return nil, errors.Join(prodErr, err)
	}
	if prodErr != nil {
		return nil, prodErr
	}

	out, err := h.searcher.Run(ctx, search.Query{
		Index:     h.index(sc, options),
		Filter:    joinTerms(id, sc.Filter),
		TimeRange: h.timeRange(sc),
	})
	if err != nil {
		return nil, err
	}

	log.Infow("scenario finished", "records", records, "results", len(out.Results), "polls", out.Polls, "exhausted", out.Exhausted)
	return &Report{
		CorrelationID: id,
		Records:       records,
		Results:       out.Results,
		Polls:         out.Polls,
		Exhausted:     out.Exhausted,
	}, nil
}

func (h *Harness) waitProducer(ctx context.Context, future *scheduler.Future[scheduler.Result[any]], timeout time.Duration) (int, error) {
	// the job bounds itself by timeout; the extra second covers its unwinding
	waitCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	res, err := future.Wait(waitCtx)
	if err != nil {
		future.Stop()
		return 0, fmt.Errorf("waiting for producer: %w", err)
	}
	n, _ := res.Data.(int)
	return n, res.Err
}

func (h *Harness) withDefaults(f Feed) Feed {
	if ff, ok := f.(FileFeed); ok && ff.Spec.ChunkSize == 0 {
		ff.Spec.ChunkSize = h.cfg.Producer.ChunkSize
		return ff
	}
	return f
}

func (h *Harness) index(sc Scenario, options map[string]string) string {
	if sc.Index != "" {
		return sc.Index
	}
	if idx := options["splunk-index"]; idx != "" {
		return idx
	}
	return h.cfg.Search.Index
}

func (h *Harness) timeRange(sc Scenario) models.TimeRange {
	tr := sc.TimeRange
	if tr.Earliest == "" {
		tr.Earliest = h.cfg.Harness.Earliest
	}
	if tr.Latest == "" {
		tr.Latest = h.cfg.Harness.Latest
	}
	return tr
}

func joinTerms(id, filter string) string {
	if filter == "" {
		return id
	}
	return id + " " + filter
}
