package harness_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/logdriver-e2e/internal/config"
	"github.com/kubev2v/logdriver-e2e/internal/harness"
	"github.com/kubev2v/logdriver-e2e/internal/models"
	"github.com/kubev2v/logdriver-e2e/internal/producer"
	"github.com/kubev2v/logdriver-e2e/pkg/control"
	srvErrors "github.com/kubev2v/logdriver-e2e/pkg/errors"
	"github.com/kubev2v/logdriver-e2e/pkg/scheduler"
	"github.com/kubev2v/logdriver-e2e/pkg/search"
	"github.com/kubev2v/logdriver-e2e/test/fake"
)

const runID = "2f1c3e0a-run"

var _ = Describe("Tag", func() {
	DescribeTable("should prefix only non-blank text",
		func(text, expected string) {
			Expect(string(harness.Tag("abc-123", []byte(text)))).To(Equal(expected))
		},
		Entry("plain", "hello", "abc-123 hello"),
		Entry("empty", "", ""),
		Entry("space", " ", " "),
		Entry("whitespace", "\t \n", "\t \n"),
		Entry("invalid utf-8", "\xff\xfe", "abc-123 \xff\xfe"),
	)

	It("should leave text untouched without an id", func() {
		Expect(string(harness.Tag("", []byte("hello")))).To(Equal("hello"))
	})
})

var _ = Describe("Harness", func() {
	var (
		cfg    *config.Configuration
		splunk *fake.Splunk
		agent  *fake.Agent
		sched  *scheduler.Scheduler
		h      *harness.Harness
		ctx    context.Context
	)

	BeforeEach(func() {
		dir, err := os.MkdirTemp("", "hns")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		cfg = config.NewConfigurationWithDefaults()
		cfg.Producer.FIFOPath = filepath.Join(dir, "pipe")
		cfg.Producer.OpenTimeout = 5 * time.Second
		cfg.Control.SocketPath = filepath.Join(dir, "driver.sock")
		cfg.Control.HECURL = "https://hec:8088"
		cfg.Control.HECToken = "token"
		cfg.Harness.SettleTime = 50 * time.Millisecond
		cfg.Harness.ProducerTimeout = 5 * time.Second

		splunk = fake.NewSplunk()
		srv := httptest.NewServer(splunk.Handler())
		DeferCleanup(srv.Close)
		cfg.Search.URL = srv.URL
		cfg.Search.PollInterval = time.Millisecond
		cfg.Search.BackoffBase = time.Millisecond
		cfg.Search.BackoffMax = 5 * time.Millisecond

		agent = fake.NewAgent(splunk)
		Expect(agent.Start(cfg.Control.SocketPath)).To(Succeed())
		DeferCleanup(agent.Stop)

		sched = scheduler.NewScheduler(cfg.Harness.Workers)
		DeferCleanup(sched.Close)

		h = harness.New(cfg,
			control.NewClient(cfg.Control.SocketPath, control.WithTimeout(10*time.Second)),
			search.NewClient(cfg.Search.ClientConfig()),
			sched,
			harness.WithIDGenerator(func() string { return runID }),
		)

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		DeferCleanup(cancel)
	})

	// Given two partial fragments and a final one
	// When the scenario runs
	// Then the driver sees one logical line and search returns it once
	It("should join partial records into one event", func() {
		// Arrange
		sc := harness.Scenario{
			Name: "partial",
			Feed: harness.Lines(
				models.Input{Text: "start", Partial: true},
				models.Input{Text: "in the middle", Partial: true},
				models.Input{Text: "end"},
			),
		}

		// Act
		report, err := h.Run(ctx, sc)

		// Assert
		Expect(err).NotTo(HaveOccurred())
		Expect(report.CorrelationID).To(Equal(runID))
		Expect(report.Records).To(Equal(3))
		Expect(report.Results).To(HaveLen(1))
		raw := report.Results[0].Raw()
		Expect(raw).To(HavePrefix(runID + " start"))
		Expect(raw).To(HaveSuffix(runID + " end"))
		Expect(report.Exhausted).To(BeFalse())
	})

	It("should keep lines separated by final records apart", func() {
		report, err := h.Run(ctx, harness.Scenario{
			Name: "partial-2",
			Feed: harness.Lines(
				models.Input{Text: "start2"},
				models.Input{Text: "new start", Partial: true},
				models.Input{Text: "end2"},
			),
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Results).To(HaveLen(2))
	})

	DescribeTable("should deliver malformed input",
		func(inputs []models.Input, expected int) {
			report, err := h.Run(ctx, harness.Scenario{Name: "malformed", Feed: harness.Lines(inputs...)})

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Records).To(Equal(len(inputs)))
			Expect(report.Results).To(HaveLen(expected))
		},
		Entry("empty line", []models.Input{{Text: ""}}, 0),
		Entry("single space", []models.Input{{Text: " "}}, 0),
		Entry("invalid utf-8", []models.Input{{Text: "\xfe\xff"}}, 1),
		Entry("plain text", []models.Input{{Text: "hello world"}}, 1),
		Entry("malformed json", []models.Input{{Text: `{"key":"value",`}}, 1),
		Entry("blank then text", []models.Input{{Text: " "}, {Text: "after"}}, 1),
	)

	It("should never index blank lines", func() {
		_, err := h.Run(ctx, harness.Scenario{Name: "blank", Feed: harness.Lines(models.Input{Text: ""}, models.Input{Text: "  "})})

		Expect(err).NotTo(HaveOccurred())
		Expect(splunk.Events()).To(BeEmpty())
	})

	It("should overlay scenario options and search their index", func() {
		report, err := h.Run(ctx, harness.Scenario{
			Name:    "config-params",
			Feed:    harness.Lines(models.Input{Text: "hello"}),
			Options: map[string]string{"splunk-index": "history", "splunk-source": "e2e", "splunk-sourcetype": "st"},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Results).To(HaveLen(1))
		Expect(report.Results[0]).To(HaveKeyWithValue("index", "history"))
		Expect(report.Results[0]).To(HaveKeyWithValue("source", "e2e"))
		Expect(report.Results[0]).To(HaveKeyWithValue("sourcetype", "st"))

		started := agent.Started()
		Expect(started).To(HaveLen(1))
		Expect(started[0].File).To(Equal(cfg.Producer.FIFOPath))
		Expect(started[0].Info.Config).To(HaveKeyWithValue("splunk-url", "https://hec:8088"))
		Expect(started[0].Info.Config).To(HaveKeyWithValue("splunk-token", "token"))
		Expect(started[0].Info.Config).To(HaveKeyWithValue("splunk-format", "json"))
		Expect(started[0].Info.Config).To(HaveKeyWithValue("splunk-index", "history"))
		Expect(agent.Stopped()).To(Equal([]string{cfg.Producer.FIFOPath}))

		last, _ := splunk.Last()
		Expect(last.Search).To(Equal("search index=history " + runID))
		Expect(last.Earliest).To(Equal("-15m@m"))
		Expect(last.Latest).To(Equal("now"))
	})

	It("should cancel the producer and skip stop when start fails", func() {
		agent.RejectWith("unsupported option")

		report, err := h.Run(ctx, harness.Scenario{Name: "rejected", Feed: harness.Lines(models.Input{Text: "hello"})})

		Expect(report).To(BeNil())
		Expect(srvErrors.IsControlError(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("unsupported option"))
		Expect(agent.Stopped()).To(BeEmpty())
		Expect(splunk.Submits()).To(BeZero())
	})

	It("should write one record per interval", func() {
		report, err := h.Run(ctx, harness.Scenario{
			Name: "post-frequency",
			Feed: harness.IntervalFeed{Interval: 5 * time.Millisecond, Duration: 20 * time.Millisecond, Text: "tick"},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Records).To(Equal(4))
		Expect(report.Results).To(HaveLen(4))
		for _, r := range report.Results {
			Expect(r).To(HaveKey("_indextime"))
		}
	})

	It("should replay a file as partial chunks of one line", func() {
		path := filepath.Join(GinkgoT().TempDir(), "input.txt")
		Expect(os.WriteFile(path, []byte(strings.Repeat("x", 100)), 0o600)).To(Succeed())

		report, err := h.Run(ctx, harness.Scenario{
			Name: "size-limit",
			Feed: harness.FileFeed{Path: path, Spec: producer.ReplaySpec{ChunkSize: 16, Partial: true}},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Records).To(Equal(8))
		Expect(report.Results).To(HaveLen(1))
		Expect(report.Results[0].Raw()).To(Equal(runID + " " + strings.Repeat("x", 100)))
	})

	It("should report an exhausted search without failing", func() {
		splunk.ScriptStates("RUNNING")
		cfg.Search.MaxPolls = 3
		h = harness.New(cfg,
			control.NewClient(cfg.Control.SocketPath),
			search.NewClient(cfg.Search.ClientConfig()),
			sched,
			harness.WithIDGenerator(func() string { return runID }),
		)

		report, err := h.Run(ctx, harness.Scenario{Name: "slow-search", Feed: harness.Lines(models.Input{Text: "hello"})})

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Exhausted).To(BeTrue())
		Expect(report.Polls).To(Equal(3))
		Expect(report.Results).To(BeEmpty())
	})

	It("should reject a scenario without feed", func() {
		_, err := h.Run(ctx, harness.Scenario{Name: "empty"})
		Expect(err).To(HaveOccurred())
	})
})
