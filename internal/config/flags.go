package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RegisterFlags binds every field of c to a flag named <section>-<field>.
// Current values of c are the flag defaults.
func RegisterFlags(fs *pflag.FlagSet, c *Configuration) {
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (console or json)")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "also write logs as JSON to this file, rotated by size")

	fs.StringVar(&c.Agent.BinaryPath, "agent-binary-path", c.Agent.BinaryPath, "path of the log driver plugin binary")
	fs.DurationVar(&c.Agent.StartupTimeout, "agent-startup-timeout", c.Agent.StartupTimeout, "time allowed for the plugin to create its control socket")

	fs.StringVar(&c.Control.SocketPath, "control-socket-path", c.Control.SocketPath, "plugin control socket")
	fs.StringVar(&c.Control.ContainerID, "control-container-id", c.Control.ContainerID, "container id sent with StartLogging")
	fs.StringVar(&c.Control.LogPath, "control-log-path", c.Control.LogPath, "log path sent with StartLogging")
	fs.DurationVar(&c.Control.Timeout, "control-timeout", c.Control.Timeout, "timeout of one control request")
	fs.StringVar(&c.Control.HECURL, "control-hec-url", c.Control.HECURL, "HEC endpoint the plugin sends to (splunk-url)")
	fs.StringVar(&c.Control.HECToken, "control-hec-token", c.Control.HECToken, "HEC token the plugin sends with (splunk-token)")
	fs.BoolVar(&c.Control.InsecureSkipVerify, "control-insecure-skip-verify", c.Control.InsecureSkipVerify, "let the plugin skip HEC certificate verification")
	fs.StringVar(&c.Control.Format, "control-format", c.Control.Format, "splunk-format option sent to the plugin")
	fs.StringVar(&c.Control.Tag, "control-tag", c.Control.Tag, "tag option sent to the plugin")

	fs.StringVar(&c.Search.URL, "search-url", c.Search.URL, "search REST API base url")
	fs.StringVar(&c.Search.Username, "search-username", c.Search.Username, "search API user")
	fs.StringVar(&c.Search.Password, "search-password", c.Search.Password, "search API password")
	fs.StringVar(&c.Search.Index, "search-index", c.Search.Index, "index searched by default")
	fs.BoolVar(&c.Search.InsecureSkipVerify, "search-insecure-skip-verify", c.Search.InsecureSkipVerify, "skip certificate verification of the search API")
	fs.DurationVar(&c.Search.PollInterval, "search-poll-interval", c.Search.PollInterval, "delay between job status polls")
	fs.IntVar(&c.Search.MaxPolls, "search-max-polls", c.Search.MaxPolls, "status polls before a search gives up with no results")
	fs.IntVar(&c.Search.MaxRetries, "search-max-retries", c.Search.MaxRetries, "attempts per search request")
	fs.DurationVar(&c.Search.BackoffBase, "search-backoff-base", c.Search.BackoffBase, "first retry delay")
	fs.DurationVar(&c.Search.BackoffMax, "search-backoff-max", c.Search.BackoffMax, "largest retry delay")
	fs.IntSliceVar(&c.Search.RetryStatusCodes, "search-retry-status-codes", c.Search.RetryStatusCodes, "statuses that are retried")
	fs.DurationVar(&c.Search.RequestTimeout, "search-request-timeout", c.Search.RequestTimeout, "timeout of one search request")
	fs.IntVar(&c.Search.ResultCount, "search-result-count", c.Search.ResultCount, "events fetched per job, 0 for the service default")

	fs.StringVar(&c.Producer.FIFOPath, "producer-fifo-path", c.Producer.FIFOPath, "named pipe shared with the plugin")
	fs.StringVar(&c.Producer.Source, "producer-source", c.Producer.Source, "source of produced records")
	fs.BoolVar(&c.Producer.CreateFIFO, "producer-create-fifo", c.Producer.CreateFIFO, "create the named pipe when missing")
	fs.DurationVar(&c.Producer.OpenTimeout, "producer-open-timeout", c.Producer.OpenTimeout, "time to wait for the plugin to open the pipe")
	fs.IntVar(&c.Producer.ChunkSize, "producer-chunk-size", c.Producer.ChunkSize, "bytes per record when replaying files")

	fs.IntVar(&c.Harness.Workers, "harness-workers", c.Harness.Workers, "background workers for producers")
	fs.DurationVar(&c.Harness.SettleTime, "harness-settle-time", c.Harness.SettleTime, "wait between start and stop of a session")
	fs.DurationVar(&c.Harness.ProducerTimeout, "harness-producer-timeout", c.Harness.ProducerTimeout, "time allowed for a producer to finish")
	fs.StringVar(&c.Harness.Earliest, "harness-earliest", c.Harness.Earliest, "earliest time of verification searches")
	fs.StringVar(&c.Harness.Latest, "harness-latest", c.Harness.Latest, "latest time of verification searches")
}

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load applies a YAML, TOML or JSON file to every flag that was not set
// explicitly. Nested keys map to flags by joining with "-", so
// search.max-polls feeds --search-max-polls.
func Load(path string, fs *pflag.FlagSet) error {
	if path == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	keys := v.AllKeys()
	sort.Strings(keys)
	for _, key := range keys {
		name := strings.ReplaceAll(key, ".", "-")
		flag := fs.Lookup(name)
		if flag == nil {
			return fmt.Errorf("config file %s: unknown key %q", path, key)
		}
		if flag.Changed {
			continue
		}
		if err := fs.Set(name, flagValue(v.Get(key))); err != nil {
			return fmt.Errorf("config file %s: %s: %w", path, key, err)
		}
	}

	zap.S().Named("config").Debugw("config file loaded", "path", path, "keys", len(keys))
	return nil
}

func flagValue(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	case []int:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}
