package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/internal/config"
	"github.com/kubev2v/logdriver-e2e/test/e2e/infra"
)

type configuration struct {
	InfraMode      string // "process", "external" or "fake"
	BinaryPath     string
	SocketPath     string
	FIFOPath       string
	HECURL         string
	HECToken       string
	SearchURL      string
	SearchUser     string
	SearchPass     string
	SettleTime     time.Duration
	StartupTimeout time.Duration
}

var (
	cfg          configuration
	agentManager infra.AgentManager
)

func (c configuration) Validate() error {
	switch c.InfraMode {
	case "process", "external", "fake":
	default:
		return fmt.Errorf("invalid infra-mode %q: must be 'process', 'external' or 'fake'", c.InfraMode)
	}
	if c.InfraMode == "fake" {
		return nil
	}
	if c.InfraMode == "process" && c.BinaryPath == "" {
		return fmt.Errorf("plugin binary path is empty")
	}
	if c.HECToken == "" {
		return fmt.Errorf("hec token is empty")
	}
	if _, err := url.Parse(c.HECURL); err != nil {
		return fmt.Errorf("failed to parse hec url: %v", err)
	}
	if _, err := url.Parse(c.SearchURL); err != nil {
		return fmt.Errorf("failed to parse search url: %v", err)
	}
	return nil
}

// harnessConfig maps the suite flags onto the harness configuration.
func (c configuration) harnessConfig() *config.Configuration {
	conf := config.NewConfigurationWithDefaults()
	conf.Agent.BinaryPath = c.BinaryPath
	conf.Agent.StartupTimeout = c.StartupTimeout
	conf.Control.SocketPath = c.SocketPath
	conf.Control.HECURL = c.HECURL
	conf.Control.HECToken = c.HECToken
	conf.Producer.FIFOPath = c.FIFOPath
	conf.Search.URL = c.SearchURL
	conf.Search.Username = c.SearchUser
	conf.Search.Password = c.SearchPass
	conf.Harness.SettleTime = c.SettleTime
	return conf
}

func (c configuration) agentConfig(env map[string]string) infra.AgentConfig {
	return infra.AgentConfig{
		BinaryPath:     c.BinaryPath,
		SocketPath:     c.SocketPath,
		Env:            env,
		StartupTimeout: c.StartupTimeout,
	}
}

func main() {
	flag.StringVar(&cfg.InfraMode, "infra-mode", "fake", "Infrastructure mode: 'process' (local plugin binary), 'external' (managed outside) or 'fake' (in-process)")
	flag.StringVar(&cfg.BinaryPath, "plugin-binary", "/usr/local/bin/splunk-log-plugin", "Plugin binary started in process mode")
	flag.StringVar(&cfg.SocketPath, "socket-path", "/run/docker/plugins/splunklog.sock", "Plugin control socket")
	flag.StringVar(&cfg.FIFOPath, "fifo-path", "/tmp/pipe", "Named pipe the plugin reads from")
	flag.StringVar(&cfg.HECURL, "hec-url", "https://localhost:8088", "HEC url forwarded to the plugin")
	flag.StringVar(&cfg.HECToken, "hec-token", "", "HEC token forwarded to the plugin")
	flag.StringVar(&cfg.SearchURL, "search-url", "https://localhost:8089", "Search REST API url")
	flag.StringVar(&cfg.SearchUser, "search-username", "admin", "Search REST API username")
	flag.StringVar(&cfg.SearchPass, "search-password", "changeme", "Search REST API password")
	flag.DurationVar(&cfg.SettleTime, "settle-time", 10*time.Second, "Time to wait for ingestion before stopping the plugin")
	flag.DurationVar(&cfg.StartupTimeout, "startup-timeout", 10*time.Second, "Time to wait for the plugin socket")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("failed to validate configuration: %v", err)
	}

	switch cfg.InfraMode {
	case "process":
		agentManager = infra.NewProcessAgentManager()
	case "external":
		agentManager = infra.NewExternalAgentManager()
	case "fake":
		fm, err := infra.NewFakeAgentManager("127.0.0.1:0", cfg.SearchUser, cfg.SearchPass)
		if err != nil {
			log.Fatalf("failed to create fake agent manager: %v", err)
		}
		defer fm.Close()
		dir, err := os.MkdirTemp("", "logdriver-e2e")
		if err != nil {
			log.Fatalf("failed to create work dir: %v", err)
		}
		defer os.RemoveAll(dir)
		cfg.SearchURL = fm.SearchURL()
		cfg.SocketPath = dir + "/driver.sock"
		cfg.FIFOPath = dir + "/pipe"
		cfg.HECURL = "http://127.0.0.1:8088"
		cfg.HECToken = "fake"
		cfg.SettleTime = 200 * time.Millisecond
		agentManager = fm
	}

	RegisterFailHandler(Fail)
	if !RunSpecs(&testing.T{}, "E2E Suite") {
		os.Exit(1)
	}
}
