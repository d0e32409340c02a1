package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	srvErrors "github.com/kubev2v/logdriver-e2e/pkg/errors"
)

type pollState int

const (
	stateSubmitted pollState = iota
	stateRunning
	stateDone
	stateFailed
	stateExhausted
)

func (s pollState) String() string {
	switch s {
	case stateSubmitted:
		return "submitted"
	case stateRunning:
		return "running"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	case stateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

func (s pollState) terminal() bool {
	return s == stateDone || s == stateFailed || s == stateExhausted
}

// poller owns the job while Run drives it:
//
//	submitted ──► running ──DONE──► done (events fetched)
//	                │  ▲  ──FAILED─► failed (SearchFailedError)
//	                └──┘  ──maxPolls─► exhausted (no results)
type poller struct {
	client *Client
	query  Query
	job    models.SearchJob
	polls  int
}

func (p *poller) step(ctx context.Context, s pollState) (pollState, error) {
	switch s {
	case stateSubmitted:
		return p.submit(ctx)
	case stateRunning:
		return p.poll(ctx)
	default:
		return s, nil
	}
}

func (p *poller) submit(ctx context.Context) (pollState, error) {
	sid, err := p.client.submit(ctx, p.query)
	if err != nil {
		return stateSubmitted, err
	}
	p.job = models.SearchJob{ID: sid, State: models.JobStateRunning}
	zap.S().Named("search").Debugw("search job submitted", "sid", sid)
	return stateRunning, nil
}

func (p *poller) poll(ctx context.Context) (pollState, error) {
	log := zap.S().Named("search")

	if p.polls >= p.client.maxPolls {
		log.Warnw("search job did not finish, giving up", "sid", p.job.ID, "polls", p.polls, "maxPolls", p.client.maxPolls)
		return stateExhausted, nil
	}

	dispatch, err := p.client.status(ctx, p.job.ID)
	if err != nil {
		return stateRunning, err
	}
	p.polls++
	p.job.DispatchState = dispatch
	p.job.State = models.ParseDispatchState(dispatch)

	switch p.job.State {
	case models.JobStateDone:
		results, err := p.client.events(ctx, p.job.ID)
		if err != nil {
			return stateRunning, err
		}
		p.job.Results = results
		log.Infow("search job done", "sid", p.job.ID, "polls", p.polls, "results", len(results))
		return stateDone, nil
	case models.JobStateFailed:
		return stateFailed, srvErrors.NewSearchFailedError(p.job.ID, dispatch)
	default:
		log.Debugw("search job running", "sid", p.job.ID, "dispatchState", dispatch, "poll", p.polls)
		if err := wait(ctx, p.client.pollInterval); err != nil {
			return stateRunning, err
		}
		return stateRunning, nil
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
