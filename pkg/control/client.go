package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	srvErrors "github.com/kubev2v/logdriver-e2e/pkg/errors"
)

const (
	DefaultSocketPath  = "/run/docker/plugins/splunklog.sock"
	DefaultContainerID = "test"
	DefaultLogPath     = "/tmp/test.txt"
	DefaultTimeout     = 10 * time.Second

	startLoggingPath = "/LogDriver.StartLogging"
	stopLoggingPath  = "/LogDriver.StopLogging"
	capabilitiesPath = "/LogDriver.Capabilities"
)

// Info is the subset of the container description the log driver reads.
type Info struct {
	ContainerID string            `json:"ContainerID"`
	Config      map[string]string `json:"Config"`
	LogPath     string            `json:"LogPath"`
}

type StartLoggingRequest struct {
	File string `json:"File"`
	Info Info   `json:"Info"`
}

type StopLoggingRequest struct {
	File string `json:"File"`
}

// Response is the acknowledgement every control endpoint returns.
type Response struct {
	Err string `json:"Err"`
}

type CapabilitiesResponse struct {
	Response
	Cap struct {
		ReadLogs bool `json:"ReadLogs"`
	} `json:"Cap"`
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

func WithContainerID(id string) Option {
	return func(c *Client) {
		c.containerID = id
	}
}

func WithLogPath(path string) Option {
	return func(c *Client) {
		c.logPath = path
	}
}

// Client talks to the log driver plugin over its unix control socket.
type Client struct {
	socketPath  string
	containerID string
	logPath     string
	httpClient  *http.Client
}

func NewClient(socketPath string, opts ...Option) *Client {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		DisableKeepAlives: true,
	}
	c := &Client{
		socketPath:  socketPath,
		containerID: DefaultContainerID,
		logPath:     DefaultLogPath,
		httpClient:  &http.Client{Transport: transport, Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SocketPath() string {
	return c.socketPath
}

// StartLogging asks the driver to begin consuming file. options are forwarded unchanged.
// POST /LogDriver.StartLogging
func (c *Client) StartLogging(ctx context.Context, file string, options map[string]string) error {
	if options == nil {
		options = map[string]string{}
	}
	body := StartLoggingRequest{
		File: file,
		Info: Info{
			ContainerID: c.containerID,
			Config:      options,
			LogPath:     c.logPath,
		},
	}

	zap.S().Named("control").Debugw("start logging", "file", file, "options", redact(options))

	var resp Response
	return c.post(ctx, "start", startLoggingPath, file, body, &resp)
}

// StopLogging asks the driver to drain and release file.
// POST /LogDriver.StopLogging
func (c *Client) StopLogging(ctx context.Context, file string) error {
	zap.S().Named("control").Debugw("stop logging", "file", file)

	var resp Response
	return c.post(ctx, "stop", stopLoggingPath, file, StopLoggingRequest{File: file}, &resp)
}

// Capabilities reports whether the driver supports reading logs back.
// POST /LogDriver.Capabilities
func (c *Client) Capabilities(ctx context.Context) (bool, error) {
	var resp CapabilitiesResponse
	if err := c.post(ctx, "capabilities", capabilitiesPath, "", struct{}{}, &resp); err != nil {
		return false, err
	}
	return resp.Cap.ReadLogs, nil
}

type acknowledger interface {
	ack() string
}

func (r *Response) ack() string { return r.Err }

func (c *Client) post(ctx context.Context, op, path, file string, body any, out acknowledger) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return srvErrors.NewControlError(op, file, fmt.Errorf("encoding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://localhost"+path, bytes.NewReader(payload))
	if err != nil {
		return srvErrors.NewControlError(op, file, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return srvErrors.NewControlError(op, file, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return srvErrors.NewControlError(op, file, fmt.Errorf("reading response: %w", err))
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.Unmarshal(raw, out); err != nil {
			return srvErrors.NewControlAckError(op, file, resp.StatusCode, fmt.Sprintf("undecodable response %q", string(raw)))
		}
		if msg := out.ack(); msg != "" {
			return srvErrors.NewControlAckError(op, file, resp.StatusCode, msg)
		}
		return nil
	default:
		msg := string(raw)
		var ack Response
		if json.Unmarshal(raw, &ack) == nil && ack.Err != "" {
			msg = ack.Err
		}
		return srvErrors.NewControlAckError(op, file, resp.StatusCode, msg)
	}
}

// redact hides credentials before options are logged.
func redact(options map[string]string) map[string]string {
	out := make(map[string]string, len(options))
	for k, v := range options {
		if k == "splunk-token" && v != "" {
			v = "***"
		}
		out[k] = v
	}
	return out
}
