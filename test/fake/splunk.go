package fake

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/internal/models"
)

// Submitted is a search job as the fake received it.
type Submitted struct {
	SID      string
	Search   string
	Earliest string
	Latest   string
	ExecMode string
}

type job struct {
	Submitted
	states  []string
	results []models.ResultRecord
	polls   int
	fetches int
}

type SplunkOption func(*Splunk)

func WithCredentials(username, password string) SplunkOption {
	return func(s *Splunk) {
		s.username = username
		s.password = password
	}
}

// Splunk is an in-memory stand-in for the search REST API.
type Splunk struct {
	username string
	password string

	engine *gin.Engine
	server *http.Server
	url    string

	mu       sync.Mutex
	events   []models.ResultRecord
	jobs     map[string]*job
	order    []string
	script   []string
	fixed    []models.ResultRecord
	failures []int
	requests int
	nextID   int
}

func NewSplunk(opts ...SplunkOption) *Splunk {
	s := &Splunk{
		username: "admin",
		password: "changeme",
		jobs:     map[string]*job{},
		script:   []string{"DONE"},
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	logger := zap.L().Named("fake-splunk")
	engine := gin.New()
	engine.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(s.count, s.faults, s.auth)

	jobs := engine.Group("/services/search/jobs")
	jobs.POST("", s.handleSubmit)
	jobs.GET("/:sid", s.handleStatus)
	jobs.GET("/:sid/events", s.handleEvents)

	s.engine = engine
	return s
}

// Handler exposes the routes for httptest servers.
func (s *Splunk) Handler() http.Handler {
	return s.engine
}

// Start serves on addr. Use ":0" or "127.0.0.1:0" for a random port; URL reports it.
func (s *Splunk) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.url = "http://" + listener.Addr().String()
	s.server = &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		zap.S().Named("fake-splunk").Infow("fake search service started", "url", s.url)
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			zap.S().Named("fake-splunk").Errorw("fake search service error", "error", err)
		}
	}()
	return nil
}

func (s *Splunk) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Splunk) URL() string {
	return s.url
}

// Index stores events. Records without an index field land in "main" and
// every record gets an _indextime if it has none.
func (s *Splunk) Index(records ...models.ResultRecord) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		rec := models.ResultRecord{}
		for k, v := range r {
			rec[k] = v
		}
		if _, ok := rec["index"]; !ok {
			rec["index"] = "main"
		}
		if _, ok := rec["_indextime"]; !ok {
			rec["_indextime"] = now
		}
		s.events = append(s.events, rec)
	}
}

func (s *Splunk) Events() []models.ResultRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ResultRecord(nil), s.events...)
}

// ScriptStates sets the dispatch states reported for jobs submitted from now
// on, one per status poll. The last state repeats.
func (s *Splunk) ScriptStates(states ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append([]string(nil), states...)
}

// Respond makes later jobs return results verbatim instead of matching the index.
func (s *Splunk) Respond(results ...models.ResultRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed = append([]models.ResultRecord{}, results...)
}

// FailNext answers the next n requests with status, whatever the route.
func (s *Splunk) FailNext(n int, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range n {
		s.failures = append(s.failures, status)
	}
}

func (s *Splunk) Submits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Requests counts every request received, failed ones included.
func (s *Splunk) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Splunk) Polls(sid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[sid]; ok {
		return j.polls
	}
	return 0
}

func (s *Splunk) Fetches(sid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[sid]; ok {
		return j.fetches
	}
	return 0
}

// Last returns the most recently submitted job.
func (s *Splunk) Last() (Submitted, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return Submitted{}, false
	}
	return s.jobs[s.order[len(s.order)-1]].Submitted, true
}

func (s *Splunk) count(c *gin.Context) {
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()
	c.Next()
}

func (s *Splunk) faults(c *gin.Context) {
	s.mu.Lock()
	if len(s.failures) == 0 {
		s.mu.Unlock()
		c.Next()
		return
	}
	status := s.failures[0]
	s.failures = s.failures[1:]
	s.mu.Unlock()

	c.AbortWithStatusJSON(status, messages("ERROR", http.StatusText(status)))
}

func (s *Splunk) auth(c *gin.Context) {
	user, pass, ok := c.Request.BasicAuth()
	if !ok || user != s.username || pass != s.password {
		c.AbortWithStatusJSON(http.StatusUnauthorized, messages("WARN", "call not properly authenticated"))
		return
	}
	c.Next()
}

func (s *Splunk) handleSubmit(c *gin.Context) {
	search := c.PostForm("search")
	if search == "" {
		c.JSON(http.StatusBadRequest, messages("FATAL", "empty search"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sid := fmt.Sprintf("%d.%d", time.Now().Unix(), s.nextID)
	j := &job{
		Submitted: Submitted{
			SID:      sid,
			Search:   search,
			Earliest: c.PostForm("earliest_time"),
			Latest:   c.PostForm("latest_time"),
			ExecMode: c.PostForm("exec_mode"),
		},
		states: append([]string(nil), s.script...),
	}
	if s.fixed != nil {
		j.results = append([]models.ResultRecord{}, s.fixed...)
	} else {
		j.results = match(s.events, search)
	}
	s.jobs[sid] = j
	s.order = append(s.order, sid)

	c.JSON(http.StatusCreated, gin.H{"sid": sid})
}

func (s *Splunk) handleStatus(c *gin.Context) {
	sid := c.Param("sid")

	s.mu.Lock()
	j, ok := s.jobs[sid]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, messages("FATAL", "Unknown sid."))
		return
	}
	state := "DONE"
	if len(j.states) > 0 {
		idx := j.polls
		if idx >= len(j.states) {
			idx = len(j.states) - 1
		}
		state = j.states[idx]
	}
	j.polls++
	count := len(j.results)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"entry": []gin.H{{
			"name": j.Search,
			"content": gin.H{
				"sid":           sid,
				"dispatchState": state,
				"isDone":        state == "DONE",
				"isFailed":      state == "FAILED",
				"eventCount":    count,
				"resultCount":   count,
			},
		}},
	})
}

func (s *Splunk) handleEvents(c *gin.Context) {
	sid := c.Param("sid")

	s.mu.Lock()
	j, ok := s.jobs[sid]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, messages("FATAL", "Unknown sid."))
		return
	}
	j.fetches++
	results := append([]models.ResultRecord{}, j.results...)
	s.mu.Unlock()

	if n, err := strconv.Atoi(c.Query("count")); err == nil && n > 0 && n < len(results) {
		results = results[:n]
	}

	c.JSON(http.StatusOK, gin.H{
		"preview":     false,
		"init_offset": 0,
		"messages":    []any{},
		"results":     results,
	})
}

// match applies "search index=<name> term..." to the stored events. Terms
// must all appear in _raw; key=value terms compare against fields.
func match(events []models.ResultRecord, search string) []models.ResultRecord {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(search), "search"))
	index := "main"
	var terms []string
	for _, f := range fields {
		if v, ok := strings.CutPrefix(f, "index="); ok {
			index = v
			continue
		}
		terms = append(terms, strings.Trim(f, `"`))
	}

	out := []models.ResultRecord{}
	for _, e := range events {
		if fmt.Sprint(e["index"]) != index {
			continue
		}
		if matchesAll(e, terms) {
			out = append(out, e)
		}
	}
	return out
}

func matchesAll(e models.ResultRecord, terms []string) bool {
	for _, t := range terms {
		if k, v, ok := strings.Cut(t, "="); ok && k != "" {
			if fmt.Sprint(e[k]) != v {
				return false
			}
			continue
		}
		if !strings.Contains(e.Raw(), t) {
			return false
		}
	}
	return true
}

func messages(kind, text string) gin.H {
	return gin.H{"messages": []gin.H{{"type": kind, "text": text}}}
}
