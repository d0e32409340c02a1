package control_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	"github.com/kubev2v/logdriver-e2e/pkg/control"
	srvErrors "github.com/kubev2v/logdriver-e2e/pkg/errors"
)

// scriptedDriver answers control requests with a fixed status and Err.
type scriptedDriver struct {
	mu       sync.Mutex
	status   int
	errMsg   string
	requests map[string][]map[string]any
}

func (d *scriptedDriver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	d.mu.Lock()
	d.requests[r.URL.Path] = append(d.requests[r.URL.Path], body)
	status, msg := d.status, d.errMsg
	d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.URL.Path == "/LogDriver.Capabilities" {
		_, _ = w.Write([]byte(`{"Cap":{"ReadLogs":false}}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"Err": msg})
}

func (d *scriptedDriver) calls(path string) []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[path]
}

func serveUnix(h http.Handler) (string, func()) {
	dir, err := os.MkdirTemp("", "ctl")
	Expect(err).NotTo(HaveOccurred())
	sock := filepath.Join(dir, "driver.sock")
	l, err := net.Listen("unix", sock)
	Expect(err).NotTo(HaveOccurred())

	srv := httptest.NewUnstartedServer(h)
	_ = srv.Listener.Close()
	srv.Listener = l
	srv.Start()

	return sock, func() {
		srv.Close()
		_ = os.RemoveAll(dir)
	}
}

var _ = Describe("Client", func() {
	var (
		driver *scriptedDriver
		sock   string
		stop   func()
		client *control.Client
	)

	BeforeEach(func() {
		driver = &scriptedDriver{status: http.StatusOK, requests: map[string][]map[string]any{}}
		sock, stop = serveUnix(driver)
		client = control.NewClient(sock, control.WithContainerID("abc"), control.WithLogPath("/tmp/abc.txt"))
	})

	AfterEach(func() {
		stop()
	})

	It("should send the start request body", func() {
		err := client.StartLogging(context.Background(), "/tmp/pipe", map[string]string{"splunk-index": "main"})

		Expect(err).NotTo(HaveOccurred())
		calls := driver.calls("/LogDriver.StartLogging")
		Expect(calls).To(HaveLen(1))
		Expect(calls[0]["File"]).To(Equal("/tmp/pipe"))
		info := calls[0]["Info"].(map[string]any)
		Expect(info["ContainerID"]).To(Equal("abc"))
		Expect(info["LogPath"]).To(Equal("/tmp/abc.txt"))
		Expect(info["Config"]).To(HaveKeyWithValue("splunk-index", "main"))
	})

	It("should send an empty config object when no options are given", func() {
		Expect(client.StartLogging(context.Background(), "/tmp/pipe", nil)).To(Succeed())

		info := driver.calls("/LogDriver.StartLogging")[0]["Info"].(map[string]any)
		Expect(info["Config"]).To(BeEmpty())
		Expect(info["Config"]).NotTo(BeNil())
	})

	It("should send the stop request body", func() {
		Expect(client.StopLogging(context.Background(), "/tmp/pipe")).To(Succeed())

		calls := driver.calls("/LogDriver.StopLogging")
		Expect(calls).To(HaveLen(1))
		Expect(calls[0]).To(Equal(map[string]any{"File": "/tmp/pipe"}))
	})

	It("should fail when the driver reports an error", func() {
		driver.errMsg = "bad option"

		err := client.StartLogging(context.Background(), "/tmp/pipe", nil)

		Expect(srvErrors.IsControlError(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("bad option"))
		Expect(srvErrors.StatusCode(err)).To(Equal(http.StatusOK))
	})

	It("should fail on a non-200 status even with an empty Err", func() {
		driver.status = http.StatusInternalServerError

		err := client.StopLogging(context.Background(), "/tmp/pipe")

		Expect(srvErrors.IsControlError(err)).To(BeTrue())
		Expect(srvErrors.StatusCode(err)).To(Equal(http.StatusInternalServerError))
	})

	It("should not retry a failed request", func() {
		driver.status = http.StatusBadGateway

		_ = client.StartLogging(context.Background(), "/tmp/pipe", nil)

		Expect(driver.calls("/LogDriver.StartLogging")).To(HaveLen(1))
	})

	It("should fail when nothing listens on the socket", func() {
		c := control.NewClient(filepath.Join(os.TempDir(), "missing-driver.sock"))

		err := c.StartLogging(context.Background(), "/tmp/pipe", nil)

		Expect(srvErrors.IsControlError(err)).To(BeTrue())
		Expect(srvErrors.StatusCode(err)).To(BeZero())
	})

	It("should read capabilities", func() {
		readLogs, err := client.Capabilities(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(readLogs).To(BeFalse())
	})
})

type fakeLogger struct {
	startErr error
	stopErr  error
	starts   int
	stops    int
}

func (f *fakeLogger) StartLogging(_ context.Context, _ string, _ map[string]string) error {
	f.starts++
	return f.startErr
}

func (f *fakeLogger) StopLogging(_ context.Context, _ string) error {
	f.stops++
	return f.stopErr
}

var _ = Describe("Session", func() {
	var (
		logger  *fakeLogger
		session *control.Session
	)

	BeforeEach(func() {
		logger = &fakeLogger{}
		session = control.NewSession(logger, models.Session{FilePath: "/tmp/pipe", CorrelationID: "abc-123"})
	})

	It("should go from idle to active and back", func() {
		Expect(session.State()).To(Equal(models.SessionStateIdle))

		Expect(session.Start(context.Background())).To(Succeed())
		Expect(session.State()).To(Equal(models.SessionStateActive))

		Expect(session.Stop(context.Background())).To(Succeed())
		Expect(session.State()).To(Equal(models.SessionStateIdle))
		Expect(logger.starts).To(Equal(1))
		Expect(logger.stops).To(Equal(1))
	})

	// Given a session that was never started
	// When it is stopped
	// Then an error is returned and no request reaches the driver
	It("should refuse to stop an idle session", func() {
		err := session.Stop(context.Background())

		Expect(errors.Is(err, srvErrors.ErrSessionNotActive)).To(BeTrue())
		Expect(srvErrors.IsControlError(err)).To(BeTrue())
		Expect(logger.stops).To(BeZero())
	})

	It("should refuse a second start", func() {
		Expect(session.Start(context.Background())).To(Succeed())

		err := session.Start(context.Background())

		Expect(errors.Is(err, srvErrors.ErrSessionActive)).To(BeTrue())
		Expect(logger.starts).To(Equal(1))
	})

	It("should stay idle when start fails", func() {
		logger.startErr = srvErrors.NewControlAckError("start", "/tmp/pipe", 200, "boom")

		Expect(session.Start(context.Background())).NotTo(Succeed())

		Expect(session.State()).To(Equal(models.SessionStateIdle))
		Expect(errors.Is(session.Stop(context.Background()), srvErrors.ErrSessionNotActive)).To(BeTrue())
		Expect(logger.stops).To(BeZero())
	})

	It("should stay active when stop fails so it can be retried", func() {
		Expect(session.Start(context.Background())).To(Succeed())
		logger.stopErr = srvErrors.NewControlAckError("stop", "/tmp/pipe", 500, "")

		Expect(session.Stop(context.Background())).NotTo(Succeed())
		Expect(session.State()).To(Equal(models.SessionStateActive))

		logger.stopErr = nil
		Expect(session.Stop(context.Background())).To(Succeed())
		Expect(logger.stops).To(Equal(2))
	})
})
