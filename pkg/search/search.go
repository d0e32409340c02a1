package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/internal/models"
)

const (
	DefaultPollInterval = time.Second
	// DefaultMaxPolls caps a single search at roughly eight minutes of polling.
	DefaultMaxPolls       = 500
	DefaultRequestTimeout = 30 * time.Second
)

type Config struct {
	URL                string
	Credentials        models.Credentials
	InsecureSkipVerify bool
	RequestTimeout     time.Duration
	Policy             Policy
	PollInterval       time.Duration
	MaxPolls           int
	// ResultCount limits the number of events fetched. Zero uses the service default.
	ResultCount int
	// HTTPClient replaces the client built from the TLS and timeout settings.
	HTTPClient *http.Client
}

// Query describes one search. Filter is appended after the index term with
// surrounding whitespace trimmed.
type Query struct {
	Index     string
	Filter    string
	TimeRange models.TimeRange
}

// Outcome is everything a run learned about its job.
type Outcome struct {
	Job       models.SearchJob
	Results   []models.ResultRecord
	Polls     int
	Exhausted bool
}

type Client struct {
	baseURL      string
	transport    *transport
	pollInterval time.Duration
	maxPolls     int
	resultCount  int
}

func NewClient(cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		transport:    newTransport(cfg.HTTPClient, cfg.Credentials, cfg.Policy, cfg.InsecureSkipVerify, cfg.RequestTimeout),
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		resultCount:  cfg.ResultCount,
	}
}

// ComposeQuery builds the search string submitted to the service.
func ComposeQuery(index, filter string) string {
	q := "search index=" + index
	if f := strings.TrimSpace(filter); f != "" {
		q += " " + f
	}
	return q
}

// Search runs q and returns its results. A job that never finished within the
// poll budget yields no results and no error.
func (c *Client) Search(ctx context.Context, q Query) ([]models.ResultRecord, error) {
	out, err := c.Run(ctx, q)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Run submits q, polls the job to a terminal state and fetches its events.
func (c *Client) Run(ctx context.Context, q Query) (*Outcome, error) {
	p := &poller{client: c, query: q}
	state := stateSubmitted
	for !state.terminal() {
		next, err := p.step(ctx, state)
		if err != nil {
			return nil, err
		}
		state = next
	}

	out := &Outcome{Job: p.job, Results: p.job.Results, Polls: p.polls, Exhausted: state == stateExhausted}
	if out.Results == nil {
		out.Results = []models.ResultRecord{}
	}
	return out, nil
}

func (c *Client) submit(ctx context.Context, q Query) (string, error) {
	endpoint := c.baseURL + "/services/search/jobs?output_mode=json"
	form := url.Values{}
	form.Set("search", ComposeQuery(q.Index, q.Filter))
	if q.TimeRange.Earliest != "" {
		form.Set("earliest_time", q.TimeRange.Earliest)
	}
	if q.TimeRange.Latest != "" {
		form.Set("latest_time", q.TimeRange.Latest)
	}
	form.Set("exec_mode", "normal")
	encoded := form.Encode()

	zap.S().Named("search").Infow("submitting search", "url", endpoint, "search", form.Get("search"), "earliest", q.TimeRange.Earliest, "latest", q.TimeRange.Latest)

	raw, err := c.transport.do(ctx, "submit", endpoint, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var resp submitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decoding search job: %w", err)
	}
	if resp.SID == "" {
		return "", fmt.Errorf("search job response carries no sid: %s", string(raw))
	}
	return resp.SID, nil
}

func (c *Client) status(ctx context.Context, sid string) (string, error) {
	endpoint := fmt.Sprintf("%s/services/search/jobs/%s?output_mode=json", c.baseURL, url.PathEscape(sid))
	raw, err := c.transport.do(ctx, "status", endpoint, getRequest(endpoint))
	if err != nil {
		return "", err
	}

	var resp statusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decoding job status: %w", err)
	}
	if len(resp.Entry) == 0 {
		return "", fmt.Errorf("job status for %s has no entry", sid)
	}
	return resp.Entry[0].Content.DispatchState, nil
}

func (c *Client) events(ctx context.Context, sid string) ([]models.ResultRecord, error) {
	endpoint := fmt.Sprintf("%s/services/search/jobs/%s/events?output_mode=json", c.baseURL, url.PathEscape(sid))
	if c.resultCount > 0 {
		endpoint += "&count=" + strconv.Itoa(c.resultCount)
	}
	raw, err := c.transport.do(ctx, "events", endpoint, getRequest(endpoint))
	if err != nil {
		return nil, err
	}

	var resp eventsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding job events: %w", err)
	}
	results := make([]models.ResultRecord, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, models.ResultRecord(r))
	}
	return results, nil
}

func getRequest(endpoint string) requestBuilder {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}
}
