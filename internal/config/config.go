package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"go.uber.org/zap/zapcore"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	"github.com/kubev2v/logdriver-e2e/pkg/framing"
	"github.com/kubev2v/logdriver-e2e/pkg/search"
)

type Configuration struct {
	Agent     Agent
	Control   Control
	Search    Search
	Producer  Producer
	Harness   Harness
	LogFormat string `default:"console" debugmap:"visible"`
	LogLevel  string `default:"info" debugmap:"visible"`
	LogFile   string `debugmap:"visible"`
}

type Agent struct {
	BinaryPath     string        `default:"/usr/local/bin/splunk-log-plugin" debugmap:"visible"`
	StartupTimeout time.Duration `default:"10s" debugmap:"visible"`
}

type Control struct {
	SocketPath  string        `default:"/run/docker/plugins/splunklog.sock" debugmap:"visible"`
	ContainerID string        `default:"test" debugmap:"visible"`
	LogPath     string        `default:"/tmp/test.txt" debugmap:"visible"`
	Timeout     time.Duration `default:"10s" debugmap:"visible"`
	// HEC settings are forwarded to the driver as splunk-url and splunk-token.
	HECURL             string `debugmap:"visible"`
	HECToken           string `debugmap:"hidden"`
	InsecureSkipVerify bool   `default:"true" debugmap:"visible"`
	Format             string `default:"json" debugmap:"visible"`
	Tag                string `debugmap:"visible"`
}

type Search struct {
	URL                string        `default:"https://localhost:8089" debugmap:"visible"`
	Username           string        `default:"admin" debugmap:"visible"`
	Password           string        `default:"changeme" debugmap:"hidden"`
	Index              string        `default:"main" debugmap:"visible"`
	InsecureSkipVerify bool          `default:"true" debugmap:"visible"`
	PollInterval       time.Duration `default:"1s" debugmap:"visible"`
	MaxPolls           int           `default:"500" debugmap:"visible"`
	MaxRetries         int           `default:"10" debugmap:"visible"`
	BackoffBase        time.Duration `default:"100ms" debugmap:"visible"`
	BackoffMax         time.Duration `default:"5s" debugmap:"visible"`
	RetryStatusCodes   []int         `default:"[500,502,504]" debugmap:"visible"`
	RequestTimeout     time.Duration `default:"30s" debugmap:"visible"`
	ResultCount        int           `debugmap:"visible"`
}

type Producer struct {
	FIFOPath    string        `default:"/tmp/pipe" debugmap:"visible"`
	Source      string        `default:"test" debugmap:"visible"`
	CreateFIFO  bool          `default:"true" debugmap:"visible"`
	OpenTimeout time.Duration `default:"30s" debugmap:"visible"`
	ChunkSize   int           `default:"65536" debugmap:"visible"`
}

type Harness struct {
	Workers         int           `default:"2" debugmap:"visible"`
	SettleTime      time.Duration `default:"10s" debugmap:"visible"`
	ProducerTimeout time.Duration `default:"60s" debugmap:"visible"`
	Earliest        string        `default:"-15m@m" debugmap:"visible"`
	Latest          string        `default:"now" debugmap:"visible"`
}

func NewConfigurationWithDefaults() *Configuration {
	c := &Configuration{}
	if err := defaults.Set(c); err != nil {
		panic(fmt.Sprintf("invalid configuration defaults: %v", err))
	}
	return c
}

// Validate returns the first problem found.
func (c *Configuration) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log-format: must be console or json, got %q", c.LogFormat)
	}
	if c.Control.SocketPath == "" {
		return errors.New("control-socket-path: required")
	}
	if u, err := url.Parse(c.Search.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("search-url: invalid url %q", c.Search.URL)
	}
	if c.Search.Index == "" {
		return errors.New("search-index: required")
	}
	if c.Search.PollInterval <= 0 {
		return errors.New("search-poll-interval: must be positive")
	}
	if c.Search.MaxPolls <= 0 {
		return errors.New("search-max-polls: must be positive")
	}
	if c.Search.MaxRetries <= 0 {
		return errors.New("search-max-retries: must be positive")
	}
	if c.Search.BackoffBase > c.Search.BackoffMax {
		return errors.New("search-backoff-base: must not exceed search-backoff-max")
	}
	for _, code := range c.Search.RetryStatusCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("search-retry-status-codes: invalid status %d", code)
		}
	}
	if c.Producer.FIFOPath == "" {
		return errors.New("producer-fifo-path: required")
	}
	if c.Producer.ChunkSize <= 0 || c.Producer.ChunkSize >= framing.DefaultMaxFrameSize {
		return fmt.Errorf("producer-chunk-size: must be between 1 and %d", framing.DefaultMaxFrameSize-1)
	}
	if c.Harness.Workers <= 0 {
		return errors.New("harness-workers: must be positive")
	}
	return nil
}

// ValidateRun adds the checks only a full scenario needs.
func (c *Configuration) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Control.HECURL == "" {
		return errors.New("control-hec-url: required")
	}
	if c.Control.HECToken == "" {
		return errors.New("control-hec-token: required")
	}
	return nil
}

// DriverOptions are the options every session starts with.
func (c Control) DriverOptions() map[string]string {
	return map[string]string{
		"splunk-url":                c.HECURL,
		"splunk-token":              c.HECToken,
		"splunk-insecureskipverify": fmt.Sprintf("%t", c.InsecureSkipVerify),
		"splunk-format":             c.Format,
		"tag":                       c.Tag,
	}
}

func (s Search) ClientConfig() search.Config {
	return search.Config{
		URL:                s.URL,
		Credentials:        models.Credentials{Username: s.Username, Password: s.Password},
		InsecureSkipVerify: s.InsecureSkipVerify,
		RequestTimeout:     s.RequestTimeout,
		Policy: search.Policy{
			MaxRetries:       s.MaxRetries,
			BackoffBase:      s.BackoffBase,
			BackoffMax:       s.BackoffMax,
			RetryStatusCodes: s.RetryStatusCodes,
		},
		PollInterval: s.PollInterval,
		MaxPolls:     s.MaxPolls,
		ResultCount:  s.ResultCount,
	}
}

// DebugMap flattens the configuration for logging. Fields tagged
// debugmap:"hidden" show only whether they are set.
func (c *Configuration) DebugMap() map[string]any {
	out := map[string]any{}
	flatten(out, "", reflect.ValueOf(*c))
	return out
}

func flatten(out map[string]any, prefix string, v reflect.Value) {
	t := v.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		key := kebab(f.Name)
		if prefix != "" {
			key = prefix + "." + key
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct {
			flatten(out, key, fv)
			continue
		}
		if f.Tag.Get("debugmap") == "hidden" {
			if fv.IsZero() {
				out[key] = "(empty)"
			} else {
				out[key] = "(sensitive)"
			}
			continue
		}
		if d, ok := fv.Interface().(time.Duration); ok {
			out[key] = d.String()
			continue
		}
		out[key] = fv.Interface()
	}
}

var acronyms = []string{"FIFO", "HEC", "URL", "ID"}

// kebab turns a Go field name into its flag segment: BinaryPath → binary-path, HECURL → hec-url.
func kebab(name string) string {
	var parts []string
	for name != "" {
		matched := false
		for _, a := range acronyms {
			if strings.HasPrefix(name, a) && (len(name) == len(a) || !isLower(name[len(a)])) {
				parts = append(parts, strings.ToLower(a))
				name = name[len(a):]
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		j := 1
		for j < len(name) && isLower(name[j]) {
			j++
		}
		parts = append(parts, strings.ToLower(name[:j]))
		name = name[j:]
	}
	return strings.Join(parts, "-")
}

func isLower(b byte) bool {
	return b >= 'a' && b <= 'z'
}
