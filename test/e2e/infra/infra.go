package infra

import "time"

// AgentManager abstracts the log driver plugin lifecycle for e2e tests.
// Process-based: starts/kills a local plugin binary.
// External: no-op, the plugin is managed outside the suite.
// Fake: serves the in-process fake agent and search service.
type AgentManager interface {
	StartAgent(cfg AgentConfig) error
	StopAgent() error
	// RestartAgent stops the plugin and starts it again with cfg, e.g. new env.
	RestartAgent(cfg AgentConfig) error
	// RealPlugin reports whether a real plugin is behind this manager, so
	// buffering features (partial flush timeout, size limit, batching) exist.
	RealPlugin() bool
}

// AgentConfig holds configuration for starting a plugin instance.
type AgentConfig struct {
	BinaryPath     string
	SocketPath     string
	Env            map[string]string
	StartupTimeout time.Duration
}

const (
	// PostFrequencyEnv sets how often the plugin posts batches to HEC.
	PostFrequencyEnv = "SPLUNK_LOGGING_DRIVER_POST_MESSAGES_FREQUENCY"
)
