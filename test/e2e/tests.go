package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/internal/config"
	"github.com/kubev2v/logdriver-e2e/internal/harness"
	"github.com/kubev2v/logdriver-e2e/internal/models"
	"github.com/kubev2v/logdriver-e2e/pkg/control"
	"github.com/kubev2v/logdriver-e2e/pkg/scheduler"
	"github.com/kubev2v/logdriver-e2e/pkg/search"
	"github.com/kubev2v/logdriver-e2e/test/e2e/infra"
)

func in(text string, partial bool) models.Input {
	return models.Input{Text: text, Partial: partial}
}

var _ = Describe("Log driver", Ordered, func() {
	var (
		conf  *config.Configuration
		sched *scheduler.Scheduler
		h     *harness.Harness
	)

	BeforeAll(func() {
		conf = cfg.harnessConfig()
		Expect(agentManager.StartAgent(cfg.agentConfig(nil))).To(Succeed())
		DeferCleanup(agentManager.StopAgent)

		sched = scheduler.NewScheduler(conf.Harness.Workers)
		DeferCleanup(sched.Close)

		h = harness.New(conf,
			control.NewClient(conf.Control.SocketPath, control.WithTimeout(conf.Control.Timeout)),
			search.NewClient(conf.Search.ClientConfig()),
			sched,
		)
	})

	run := func(sc harness.Scenario) *harness.Report {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		report, err := h.Run(ctx, sc)
		Expect(err).NotTo(HaveOccurred())
		zap.S().Infow("scenario report", "scenario", sc.Name, "id", report.CorrelationID, "records", report.Records, "events", len(report.Results), "polls", report.Polls)
		Expect(report.Exhausted).To(BeFalse(), "search did not finish")
		return report
	}

	Context("Partial logs", func() {
		DescribeTable("should join partial records into one event",
			func(inputs []models.Input, expected int) {
				report := run(harness.Scenario{Name: "partial-log", Feed: harness.Lines(inputs...)})
				Expect(report.Results).To(HaveLen(expected))
			},
			Entry("three fragments", []models.Input{in("start", true), in("in the middle", true), in("end", false)}, 1),
			Entry("final record in between", []models.Input{in("start2", false), in("new start", true), in("end2", false)}, 2),
		)

		DescribeTable("should flush a stale partial buffer",
			func(inputs []models.Input, expected int) {
				if !agentManager.RealPlugin() {
					Skip("flush timeout is a plugin buffering feature")
				}
				report := run(harness.Scenario{
					Name:   "partial-flush-timeout",
					Feed:   harness.Lines(inputs...).WithGap(10 * time.Second),
					Settle: 70 * time.Second,
				})
				Expect(report.Results).To(HaveLen(expected))
			},
			Entry("fragments past the timeout", []models.Input{in("start", true), in("mid", true), in("end", false)}, 3),
			Entry("mixed fragments past the timeout", []models.Input{
				in("start2", true), in("new start", false), in("end2", true),
				in("start3", false), in("new start", true), in("end3", false),
			}, 6),
		)

		It("should flush a partial buffer at the size limit", func() {
			if !agentManager.RealPlugin() {
				Skip("size limit is a plugin buffering feature")
			}
			// two fragments pass the 1 MB buffer, the third closes a second line
			chunk := strings.Repeat("a", 600*1024)

			report := run(harness.Scenario{
				Name:   "partial-size-limit",
				Feed:   harness.Lines(in(chunk, true), in(chunk, true), in(chunk, false)),
				Settle: 15 * time.Second,
			})
			Expect(report.Results).To(HaveLen(2))
		})
	})

	Context("Malformed data", func() {
		DescribeTable("should deliver what the driver can index",
			func(text string, expected int) {
				report := run(harness.Scenario{Name: "malformed-data", Feed: harness.Lines(in(text, false))})
				Expect(report.Results).To(HaveLen(expected))
			},
			Entry("empty line", "", 0),
			Entry("single space", " ", 0),
			Entry("non utf-8", "\xfe\xff", 1),
			Entry("plain text", "hello world", 1),
			Entry("malformed json", `{"key":"value","key2":`, 1),
		)
	})

	Context("Config parameters", func() {
		DescribeTable("should deliver with driver options",
			func(options map[string]string, expected int) {
				report := run(harness.Scenario{
					Name:    "config-params",
					Feed:    harness.Lines(in("hello config", false)),
					Options: options,
				})
				Expect(report.Results).To(HaveLen(expected))
				for k, field := range map[string]string{"splunk-source": "source", "splunk-sourcetype": "sourcetype"} {
					if v, ok := options[k]; ok {
						Expect(report.Results[0]).To(HaveKeyWithValue(field, v))
					}
				}
			},
			Entry("default index", map[string]string{"splunk-index": ""}, 1),
			Entry("history index", map[string]string{"splunk-index": "history"}, 1),
			Entry("source", map[string]string{"splunk-source": "e2e-source"}, 1),
			Entry("sourcetype", map[string]string{"splunk-sourcetype": "e2e:sourcetype"}, 1),
			Entry("gzip", map[string]string{"splunk-gzip": "true", "splunk-gzip-level": "6"}, 1),
			Entry("tag", map[string]string{"tag": "e2e-tag"}, 1),
			Entry("raw format", map[string]string{"splunk-format": "raw"}, 1),
		)
	})

	Context("Environment variables", func() {
		AfterEach(func() {
			Expect(agentManager.RestartAgent(cfg.agentConfig(nil))).To(Succeed())
		})

		DescribeTable("should post at the configured frequency",
			func(freq time.Duration) {
				Expect(agentManager.RestartAgent(cfg.agentConfig(map[string]string{
					infra.PostFrequencyEnv: freq.String(),
				}))).To(Succeed())

				report := run(harness.Scenario{
					Name: "post-frequency",
					Feed: harness.IntervalFeed{Interval: freq, Duration: 2 * freq, Text: "tick"},
					TimeRange: models.TimeRange{
						Earliest: "-1m@m",
						Latest:   "now",
					},
				})
				Expect(len(report.Results)).To(BeNumerically(">", 1))

				t1 := indexTime(report.Results[0])
				t2 := indexTime(report.Results[1])
				diff := t1 - t2
				if diff < 0 {
					diff = -diff
				}
				Expect(diff).To(BeNumerically("~", int64(freq/time.Second), 1))
			},
			Entry("every 8s", 8*time.Second),
			Entry("every 3s", 3*time.Second),
		)
	})
})

func indexTime(r models.ResultRecord) int64 {
	var s string
	switch v := r["_indextime"].(type) {
	case string:
		s = v
	case float64:
		return int64(v)
	default:
		Fail(fmt.Sprintf("event has no _indextime: %v", r))
	}
	n, err := strconv.ParseInt(s, 10, 64)
	Expect(err).NotTo(HaveOccurred())
	return n
}
