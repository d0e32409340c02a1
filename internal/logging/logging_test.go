package logging_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/internal/logging"
)

var _ = Describe("New", func() {
	It("should tee entries to the log file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "e2e.log")
		logger, err := logging.New(logging.Options{Level: "debug", Format: logging.FormatJSON, File: path})
		Expect(err).NotTo(HaveOccurred())

		logger.Named("harness").Info("scenario finished", zap.Int("records", 3))
		_ = logger.Sync()

		b, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(ContainSubstring(`"logger":"harness"`))
		Expect(string(b)).To(ContainSubstring(`"records":3`))
	})

	It("should drop entries below the level", func() {
		path := filepath.Join(GinkgoT().TempDir(), "e2e.log")
		logger, err := logging.New(logging.Options{Level: "warn", File: path})
		Expect(err).NotTo(HaveOccurred())

		logger.Info("not written")
		_ = logger.Sync()

		b, err := os.ReadFile(path)
		if err == nil {
			Expect(string(b)).NotTo(ContainSubstring("not written"))
		}
	})

	DescribeTable("should reject bad options",
		func(opts logging.Options) {
			_, err := logging.New(opts)
			Expect(err).To(HaveOccurred())
		},
		Entry("unknown level", logging.Options{Level: "loud"}),
		Entry("unknown format", logging.Options{Format: "xml"}),
	)
})
