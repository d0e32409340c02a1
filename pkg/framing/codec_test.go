package framing_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	srvErrors "github.com/kubev2v/logdriver-e2e/pkg/errors"
	"github.com/kubev2v/logdriver-e2e/pkg/framing"
)

var _ = Describe("Codec", func() {
	Context("round trip", func() {
		// Given a record with an arbitrary line payload
		// When it is encoded into a frame and decoded back
		// Then the prefix equals the payload length and every field survives
		DescribeTable("should preserve the record",
			func(line []byte, partial bool) {
				// Arrange
				rec := models.LogRecord{
					Source:   "stdout",
					TimeNano: 1_530_000_000_123_456_789,
					Line:     line,
					Partial:  partial,
				}

				// Act
				frame, err := framing.Encode(rec)
				Expect(err).NotTo(HaveOccurred())
				decoded, rest, err := framing.Decode(frame)

				// Assert
				Expect(err).NotTo(HaveOccurred())
				Expect(rest).To(BeEmpty())
				Expect(binary.BigEndian.Uint32(frame[:4])).To(BeNumerically("==", len(frame)-4))
				Expect(decoded.Source).To(Equal(rec.Source))
				Expect(decoded.TimeNano).To(Equal(rec.TimeNano))
				Expect(decoded.Partial).To(Equal(rec.Partial))
				Expect(bytes.Equal(decoded.Line, line)).To(BeTrue())
			},
			Entry("plain text", []byte("hello"), false),
			Entry("empty line", []byte(""), false),
			Entry("whitespace only", []byte("   "), false),
			Entry("invalid utf-8", []byte("\xF0\xA4\xAD"), false),
			Entry("malformed json", []byte("{'test': 'incomplete}"), false),
			Entry("binary with NULs", []byte{0x00, 0xff, 0x00, 0x0a}, true),
			Entry("partial fragment", []byte("start"), true),
		)

		It("should round trip partial log metadata", func() {
			rec := models.LogRecord{
				Source:   "stderr",
				TimeNano: 42,
				Line:     []byte("chunk"),
				Partial:  true,
				PartialMetadata: &models.PartialMetadata{
					Last:    true,
					ID:      "a1b2",
					Ordinal: 3,
				},
			}

			b, err := framing.Marshal(rec)
			Expect(err).NotTo(HaveOccurred())
			decoded, err := framing.Unmarshal(b)

			Expect(err).NotTo(HaveOccurred())
			Expect(decoded).To(Equal(rec))
		})

		It("should preserve negative timestamps", func() {
			b, err := framing.Marshal(models.LogRecord{TimeNano: -1})
			Expect(err).NotTo(HaveOccurred())

			decoded, err := framing.Unmarshal(b)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.TimeNano).To(Equal(int64(-1)))
		})
	})

	Context("zero values", func() {
		// Given a record with every field at its zero value
		// When it is encoded
		// Then the frame is four zero bytes, as proto3 omits defaults
		It("should encode an empty record as an empty payload", func() {
			frame, err := framing.Encode(models.LogRecord{})
			Expect(err).NotTo(HaveOccurred())
			Expect(frame).To(Equal([]byte{0, 0, 0, 0}))

			decoded, _, err := framing.Decode(frame)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.Line).NotTo(BeNil())
			Expect(decoded.Line).To(BeEmpty())
			Expect(decoded.Partial).To(BeFalse())
		})
	})

	Context("decoding errors", func() {
		It("should skip unknown fields", func() {
			b, err := framing.Marshal(models.LogRecord{Source: "s", Line: []byte("x")})
			Expect(err).NotTo(HaveOccurred())
			// field 9 varint 1
			b = append(b, 0x48, 0x01)

			decoded, err := framing.Unmarshal(b)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(decoded.Line)).To(Equal("x"))
		})

		It("should return a framing error on a truncated payload", func() {
			b, err := framing.Marshal(models.LogRecord{Line: []byte("truncated")})
			Expect(err).NotTo(HaveOccurred())

			_, err = framing.Unmarshal(b[:len(b)-2])
			Expect(err).To(HaveOccurred())
			Expect(srvErrors.IsFramingError(err)).To(BeTrue())
		})

		It("should report a short frame as unexpected EOF", func() {
			frame, err := framing.Encode(models.LogRecord{Line: []byte("hello")})
			Expect(err).NotTo(HaveOccurred())

			_, _, err = framing.Decode(frame[:6])
			Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())
		})
	})
})
