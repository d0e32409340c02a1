package fake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	"github.com/kubev2v/logdriver-e2e/pkg/control"
	"github.com/kubev2v/logdriver-e2e/pkg/framing"
)

const drainTimeout = 5 * time.Second

type stream struct {
	req  control.StartLoggingRequest
	mu   sync.Mutex
	file *os.File
	done chan struct{}
}

// Agent answers the log driver control API on a unix socket and indexes what
// it reads from each started file into a Splunk fake.
type Agent struct {
	splunk *Splunk

	engine   *gin.Engine
	server   *http.Server
	listener net.Listener

	mu      sync.Mutex
	streams map[string]*stream
	started []control.StartLoggingRequest
	stopped []string
	failErr string
}

func NewAgent(splunk *Splunk) *Agent {
	a := &Agent{
		splunk:  splunk,
		streams: map[string]*stream{},
	}

	gin.SetMode(gin.ReleaseMode)
	logger := zap.L().Named("fake-agent")
	engine := gin.New()
	engine.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(logger, true))

	engine.POST("/LogDriver.StartLogging", a.handleStart)
	engine.POST("/LogDriver.StopLogging", a.handleStop)
	engine.POST("/LogDriver.Capabilities", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"Err": "", "Cap": gin.H{"ReadLogs": false}})
	})

	a.engine = engine
	return a
}

// Start listens on socketPath, replacing a stale socket file.
func (a *Agent) Start(socketPath string) error {
	_ = os.Remove(socketPath)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	a.listener = listener
	a.server = &http.Server{Handler: a.engine, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			zap.S().Named("fake-agent").Errorw("fake agent error", "error", err)
		}
	}()
	return nil
}

func (a *Agent) Stop() error {
	a.mu.Lock()
	streams := make([]*stream, 0, len(a.streams))
	for _, s := range a.streams {
		streams = append(streams, s)
	}
	a.mu.Unlock()
	for _, s := range streams {
		s.release()
	}

	if a.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return a.server.Shutdown(ctx)
}

// RejectWith makes later start requests fail with msg. Empty restores normal behavior.
func (a *Agent) RejectWith(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failErr = msg
}

func (a *Agent) Started() []control.StartLoggingRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]control.StartLoggingRequest(nil), a.started...)
}

func (a *Agent) Stopped() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.stopped...)
}

func (a *Agent) handleStart(c *gin.Context) {
	var req control.StartLoggingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"Err": err.Error()})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = append(a.started, req)

	if a.failErr != "" {
		c.JSON(http.StatusOK, gin.H{"Err": a.failErr})
		return
	}
	if _, ok := a.streams[req.File]; ok {
		c.JSON(http.StatusOK, gin.H{"Err": fmt.Sprintf("logger for %q already exists", req.File)})
		return
	}

	s := &stream{req: req, done: make(chan struct{})}
	a.streams[req.File] = s
	go a.consume(s)

	c.JSON(http.StatusOK, gin.H{"Err": ""})
}

func (a *Agent) handleStop(c *gin.Context) {
	var req control.StopLoggingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"Err": err.Error()})
		return
	}

	a.mu.Lock()
	s, ok := a.streams[req.File]
	delete(a.streams, req.File)
	a.stopped = append(a.stopped, req.File)
	a.mu.Unlock()

	if !ok {
		c.JSON(http.StatusOK, gin.H{"Err": fmt.Sprintf("logger for %q not found", req.File)})
		return
	}

	// wait for the writer to finish, then force the stream closed
	select {
	case <-s.done:
	case <-time.After(drainTimeout):
		s.release()
		<-s.done
	}
	c.JSON(http.StatusOK, gin.H{"Err": ""})
}

func (a *Agent) consume(s *stream) {
	defer close(s.done)
	log := zap.S().Named("fake-agent")

	f, err := os.Open(s.req.File)
	if err != nil {
		log.Errorw("failed to open log stream", "file", s.req.File, "error", err)
		return
	}
	s.mu.Lock()
	s.file = f
	s.mu.Unlock()
	defer f.Close()

	r := framing.NewReader(f)
	var asm framing.Assembler
	for {
		rec, err := r.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Warnw("stream ended", "file", s.req.File, "error", err)
			}
			break
		}
		if line, ok := asm.Add(rec); ok {
			a.index(s.req, line)
		}
	}
	if line, ok := asm.Flush(); ok {
		a.index(s.req, line)
	}
}

func (a *Agent) index(req control.StartLoggingRequest, line framing.Line) {
	raw := string(line.Data)
	if strings.TrimSpace(raw) == "" {
		return
	}
	cfg := req.Info.Config

	source := cfg["splunk-source"]
	if source == "" {
		source = line.Source
	}
	sourcetype := cfg["splunk-sourcetype"]
	if sourcetype == "" {
		sourcetype = "httpevent"
	}
	index := cfg["splunk-index"]
	if index == "" {
		index = "main"
	}

	rec := models.ResultRecord{
		"_raw":       raw,
		"source":     source,
		"sourcetype": sourcetype,
		"index":      index,
		"_time":      time.Unix(0, line.TimeNano).UTC().Format(time.RFC3339Nano),
	}
	if tag := cfg["tag"]; tag != "" {
		rec["tag"] = tag
	}
	a.splunk.Index(rec)
}

// release unblocks a stream whose reader is still waiting for a writer or data.
func (s *stream) release() {
	s.mu.Lock()
	f := s.file
	s.mu.Unlock()
	if f != nil {
		_ = f.Close()
		return
	}
	// the reader is blocked in open(2); attaching and dropping a writer lets it see EOF
	if fd, err := unix.Open(s.req.File, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0); err == nil {
		_ = unix.Close(fd)
	}
}
