package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/pflag"

	"github.com/kubev2v/logdriver-e2e/internal/config"
)

var _ = Describe("Configuration", func() {
	It("should apply defaults", func() {
		cfg := config.NewConfigurationWithDefaults()

		Expect(cfg.Agent.BinaryPath).To(Equal("/usr/local/bin/splunk-log-plugin"))
		Expect(cfg.Control.SocketPath).To(Equal("/run/docker/plugins/splunklog.sock"))
		Expect(cfg.Control.ContainerID).To(Equal("test"))
		Expect(cfg.Control.InsecureSkipVerify).To(BeTrue())
		Expect(cfg.Search.URL).To(Equal("https://localhost:8089"))
		Expect(cfg.Search.PollInterval).To(Equal(time.Second))
		Expect(cfg.Search.MaxPolls).To(Equal(500))
		Expect(cfg.Search.MaxRetries).To(Equal(10))
		Expect(cfg.Search.BackoffBase).To(Equal(100 * time.Millisecond))
		Expect(cfg.Search.RetryStatusCodes).To(Equal([]int{500, 502, 504}))
		Expect(cfg.Producer.FIFOPath).To(Equal("/tmp/pipe"))
		Expect(cfg.Producer.ChunkSize).To(Equal(65536))
		Expect(cfg.Harness.Workers).To(Equal(2))
		Expect(cfg.Harness.SettleTime).To(Equal(10 * time.Second))
		Expect(cfg.LogLevel).To(Equal("info"))
		Expect(cfg.Validate()).To(Succeed())
	})

	DescribeTable("should reject invalid values",
		func(mutate func(*config.Configuration), field string) {
			cfg := config.NewConfigurationWithDefaults()
			mutate(cfg)

			err := cfg.Validate()

			Expect(err).To(MatchError(ContainSubstring(field)))
		},
		Entry("log level", func(c *config.Configuration) { c.LogLevel = "loud" }, "log-level"),
		Entry("log format", func(c *config.Configuration) { c.LogFormat = "xml" }, "log-format"),
		Entry("search url", func(c *config.Configuration) { c.Search.URL = "localhost" }, "search-url"),
		Entry("poll budget", func(c *config.Configuration) { c.Search.MaxPolls = 0 }, "search-max-polls"),
		Entry("retries", func(c *config.Configuration) { c.Search.MaxRetries = 0 }, "search-max-retries"),
		Entry("backoff order", func(c *config.Configuration) { c.Search.BackoffBase = time.Minute }, "search-backoff-base"),
		Entry("status code", func(c *config.Configuration) { c.Search.RetryStatusCodes = []int{42} }, "search-retry-status-codes"),
		Entry("chunk size", func(c *config.Configuration) { c.Producer.ChunkSize = 2_000_000 }, "producer-chunk-size"),
		Entry("workers", func(c *config.Configuration) { c.Harness.Workers = 0 }, "harness-workers"),
	)

	It("should require HEC settings for a run", func() {
		cfg := config.NewConfigurationWithDefaults()
		Expect(cfg.ValidateRun()).To(MatchError(ContainSubstring("control-hec-url")))

		cfg.Control.HECURL = "https://localhost:8088"
		cfg.Control.HECToken = "00000000-0000-0000-0000-000000000000"
		Expect(cfg.ValidateRun()).To(Succeed())
	})

	It("should build the base driver options", func() {
		cfg := config.NewConfigurationWithDefaults()
		cfg.Control.HECURL = "https://localhost:8088"
		cfg.Control.HECToken = "tok"

		Expect(cfg.Control.DriverOptions()).To(Equal(map[string]string{
			"splunk-url":                "https://localhost:8088",
			"splunk-token":              "tok",
			"splunk-insecureskipverify": "true",
			"splunk-format":             "json",
			"tag":                       "",
		}))
	})

	It("should map search settings onto the client config", func() {
		cfg := config.NewConfigurationWithDefaults()

		sc := cfg.Search.ClientConfig()

		Expect(sc.URL).To(Equal(cfg.Search.URL))
		Expect(sc.Credentials.Username).To(Equal("admin"))
		Expect(sc.Policy.MaxRetries).To(Equal(10))
		Expect(sc.Policy.RetryStatusCodes).To(Equal([]int{500, 502, 504}))
		Expect(sc.MaxPolls).To(Equal(500))
	})

	It("should hide secrets in the debug map", func() {
		cfg := config.NewConfigurationWithDefaults()
		cfg.Control.HECToken = "secret"

		m := cfg.DebugMap()

		Expect(m).To(HaveKeyWithValue("search.password", "(sensitive)"))
		Expect(m).To(HaveKeyWithValue("control.hec-token", "(sensitive)"))
		Expect(m).To(HaveKeyWithValue("control.hec-url", ""))
		Expect(m).To(HaveKeyWithValue("search.max-polls", 500))
		Expect(m).To(HaveKeyWithValue("search.poll-interval", "1s"))
		Expect(m).To(HaveKeyWithValue("producer.fifo-path", "/tmp/pipe"))
		Expect(m).To(HaveKeyWithValue("log-level", "info"))
	})
})

var _ = Describe("Load", func() {
	var (
		cfg *config.Configuration
		fs  *pflag.FlagSet
		dir string
	)

	BeforeEach(func() {
		cfg = config.NewConfigurationWithDefaults()
		fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
		config.RegisterFlags(fs, cfg)
		dir = GinkgoT().TempDir()
	})

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
		return path
	}

	// Given a config file and one flag set on the command line
	// When the file is loaded
	// Then the file fills the other fields and the flag keeps its value
	It("should let explicit flags win over the file", func() {
		// Arrange
		path := write("e2e.yaml", `
search:
  url: https://splunk:8089
  max-polls: 20
  retry-status-codes: [503]
harness:
  settle-time: 3s
`)
		Expect(fs.Parse([]string{"--search-max-polls=7"})).To(Succeed())

		// Act
		err := config.Load(path, fs)

		// Assert
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Search.URL).To(Equal("https://splunk:8089"))
		Expect(cfg.Search.MaxPolls).To(Equal(7))
		Expect(cfg.Search.RetryStatusCodes).To(Equal([]int{503}))
		Expect(cfg.Harness.SettleTime).To(Equal(3 * time.Second))
	})

	It("should reject unknown keys", func() {
		path := write("e2e.yaml", "search:\n  colour: blue\n")

		Expect(config.Load(path, fs)).To(MatchError(ContainSubstring("search.colour")))
	})

	It("should do nothing without a file", func() {
		Expect(config.Load("", fs)).To(Succeed())
		Expect(cfg.Search.MaxPolls).To(Equal(500))
	})

	It("should ignore a missing .env file", func() {
		Expect(config.LoadDotEnv(filepath.Join(dir, ".env"))).To(Succeed())
	})

	It("should load a .env file without overriding the environment", func() {
		path := write(".env", "LOGDRIVER_E2E_TEST_A=from-file\nLOGDRIVER_E2E_TEST_B=from-file\n")
		GinkgoT().Setenv("LOGDRIVER_E2E_TEST_B", "from-env")
		DeferCleanup(os.Unsetenv, "LOGDRIVER_E2E_TEST_A")

		Expect(config.LoadDotEnv(path)).To(Succeed())

		Expect(os.Getenv("LOGDRIVER_E2E_TEST_A")).To(Equal("from-file"))
		Expect(os.Getenv("LOGDRIVER_E2E_TEST_B")).To(Equal("from-env"))
	})
})
