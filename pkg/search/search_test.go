package search_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	srvErrors "github.com/kubev2v/logdriver-e2e/pkg/errors"
	"github.com/kubev2v/logdriver-e2e/pkg/search"
	"github.com/kubev2v/logdriver-e2e/test/fake"
)

var _ = Describe("ComposeQuery", func() {
	DescribeTable("should build the search string",
		func(index, filter, expected string) {
			Expect(search.ComposeQuery(index, filter)).To(Equal(expected))
		},
		Entry("with filter", "main", "abc-123", "search index=main abc-123"),
		Entry("without filter", "main", "", "search index=main"),
		Entry("trims the filter", "history", "  sourcetype=x ", "search index=history sourcetype=x"),
	)
})

var _ = Describe("Client", func() {
	var (
		splunk *fake.Splunk
		srv    *httptest.Server
		policy search.Policy
	)

	newClient := func(maxPolls int) *search.Client {
		return search.NewClient(search.Config{
			URL:          srv.URL,
			Credentials:  models.Credentials{Username: "admin", Password: "changeme"},
			Policy:       policy,
			PollInterval: time.Millisecond,
			MaxPolls:     maxPolls,
		})
	}

	BeforeEach(func() {
		splunk = fake.NewSplunk()
		srv = httptest.NewServer(splunk.Handler())
		policy = search.Policy{MaxRetries: 3, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}
	})

	AfterEach(func() {
		srv.Close()
	})

	// Given a filter, a relative time range and a job that runs twice before finishing
	// When the search runs
	// Then exactly the job's results come back after three status polls
	It("should return the job results after polling to done", func() {
		// Arrange
		splunk.ScriptStates("RUNNING", "RUNNING", "DONE")
		splunk.Respond(models.ResultRecord{"_raw": "hello"})
		client := newClient(10)

		// Act
		out, err := client.Run(context.Background(), search.Query{
			Index:     "main",
			Filter:    "abc-123",
			TimeRange: models.TimeRange{Earliest: "-1m@m", Latest: "now"},
		})

		// Assert
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Results).To(Equal([]models.ResultRecord{{"_raw": "hello"}}))
		Expect(out.Polls).To(Equal(3))
		Expect(out.Exhausted).To(BeFalse())
		Expect(out.Job.State).To(Equal(models.JobStateDone))
		Expect(splunk.Polls(out.Job.ID)).To(Equal(3))
		Expect(splunk.Fetches(out.Job.ID)).To(Equal(1))

		submitted, ok := splunk.Last()
		Expect(ok).To(BeTrue())
		Expect(submitted.Search).To(Equal("search index=main abc-123"))
		Expect(submitted.Earliest).To(Equal("-1m@m"))
		Expect(submitted.Latest).To(Equal("now"))
	})

	DescribeTable("should poll k+1 times for k running states",
		func(k int) {
			states := make([]string, 0, k+1)
			for range k {
				states = append(states, "RUNNING")
			}
			splunk.ScriptStates(append(states, "DONE")...)

			out, err := newClient(50).Run(context.Background(), search.Query{Index: "main"})

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Polls).To(Equal(k + 1))
		},
		Entry("done at once", 0),
		Entry("one running", 1),
		Entry("queued states count as running", 5),
	)

	It("should fail without fetching results when the job fails", func() {
		splunk.ScriptStates("RUNNING", "FAILED")

		_, err := newClient(10).Run(context.Background(), search.Query{Index: "main", Filter: "x"})

		Expect(srvErrors.IsSearchFailedError(err)).To(BeTrue())
		last, _ := splunk.Last()
		Expect(splunk.Fetches(last.SID)).To(BeZero())
		Expect(splunk.Polls(last.SID)).To(Equal(2))
	})

	It("should return empty results when the poll budget runs out", func() {
		splunk.ScriptStates("RUNNING")

		out, err := newClient(4).Run(context.Background(), search.Query{Index: "main"})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Exhausted).To(BeTrue())
		Expect(out.Results).To(BeEmpty())
		Expect(out.Polls).To(Equal(4))
		Expect(splunk.Fetches(out.Job.ID)).To(BeZero())
	})

	It("should match indexed events by index and term", func() {
		splunk.Index(
			models.ResultRecord{"_raw": "abc-123 start", "index": "main"},
			models.ResultRecord{"_raw": "abc-123 other", "index": "history"},
			models.ResultRecord{"_raw": "unrelated", "index": "main"},
		)

		results, err := newClient(10).Search(context.Background(), search.Query{Index: "main", Filter: "abc-123"})

		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Raw()).To(Equal("abc-123 start"))
	})

	Context("retries", func() {
		DescribeTable("should succeed when failures stay below the attempt budget",
			func(failures int) {
				splunk.FailNext(failures, http.StatusBadGateway)

				_, err := newClient(10).Search(context.Background(), search.Query{Index: "main"})

				Expect(err).NotTo(HaveOccurred())
			},
			Entry("no failure", 0),
			Entry("one failure", 1),
			Entry("max minus one", 2),
		)

		DescribeTable("should fail with the underlying error once the budget is spent",
			func(failures int) {
				splunk.FailNext(failures, http.StatusInternalServerError)

				_, err := newClient(10).Search(context.Background(), search.Query{Index: "main"})

				Expect(srvErrors.IsTransportError(err)).To(BeTrue())
				Expect(srvErrors.StatusCode(err)).To(Equal(http.StatusInternalServerError))
				Expect(splunk.Submits()).To(BeZero())
			},
			Entry("exactly max", 3),
			Entry("more than max", 5),
		)

		It("should not retry a non-retryable status", func() {
			splunk.FailNext(1, http.StatusBadRequest)

			_, err := newClient(10).Search(context.Background(), search.Query{Index: "main"})

			Expect(srvErrors.StatusCode(err)).To(Equal(http.StatusBadRequest))
			Expect(splunk.Requests()).To(Equal(1))
		})

		It("should reject bad credentials without retrying", func() {
			client := search.NewClient(search.Config{
				URL:         srv.URL,
				Credentials: models.Credentials{Username: "admin", Password: "wrong"},
				Policy:      policy,
			})

			_, err := client.Search(context.Background(), search.Query{Index: "main"})

			Expect(srvErrors.StatusCode(err)).To(Equal(http.StatusUnauthorized))
			Expect(splunk.Requests()).To(Equal(1))
		})

		It("should retry connection errors and report them", func() {
			srv.Close()
			client := newClient(10)

			_, err := client.Search(context.Background(), search.Query{Index: "main"})

			Expect(srvErrors.IsTransportError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("giving up after 3 attempts"))
		})
	})

	It("should stop polling when the context ends", func() {
		splunk.ScriptStates("RUNNING")
		client := search.NewClient(search.Config{
			URL:          srv.URL,
			Credentials:  models.Credentials{Username: "admin", Password: "changeme"},
			Policy:       policy,
			PollInterval: time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := client.Run(ctx, search.Query{Index: "main"})

		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})
})
