package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"autodev.dev/orchestrator/internal/logging"
)

func TestLogging(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "logging Suite")
}

var _ = Describe("WithFields and GetFields", func() {
	It("returns no fields on a bare context", func() {
		_, ok := logging.GetFields(context.Background())
		Expect(ok).To(BeFalse())
	})

	It("round-trips fields through a context", func() {
		ctx := logging.WithFields(context.Background(), logging.Fields{
			JobID:     logging.Ptr("job-1"),
			Component: "jobrunner",
		})

		fields, ok := logging.GetFields(ctx)
		Expect(ok).To(BeTrue())
		Expect(*fields.JobID).To(Equal("job-1"))
		Expect(fields.Component).To(Equal("jobrunner"))
	})

	It("merges a second call onto the first, keeping fields the second omits", func() {
		ctx := logging.WithFields(context.Background(), logging.Fields{JobID: logging.Ptr("job-1")})
		ctx = logging.WithFields(ctx, logging.Fields{Role: logging.Ptr("cto")})

		fields, ok := logging.GetFields(ctx)
		Expect(ok).To(BeTrue())
		Expect(*fields.JobID).To(Equal("job-1"))
		Expect(*fields.Role).To(Equal("cto"))
	})

	It("lets a later call override an earlier field of the same name", func() {
		ctx := logging.WithFields(context.Background(), logging.Fields{JobID: logging.Ptr("job-1")})
		ctx = logging.WithFields(ctx, logging.Fields{JobID: logging.Ptr("job-2")})

		fields, _ := logging.GetFields(ctx)
		Expect(*fields.JobID).To(Equal("job-2"))
	})
})

var _ = Describe("Truncate", func() {
	It("returns short strings unchanged", func() {
		Expect(logging.Truncate("short", 100)).To(Equal("short"))
	})

	It("truncates and appends a marker past maxLen", func() {
		Expect(logging.Truncate("0123456789", 4)).To(Equal("0123...(truncated)"))
	})
})

var _ = Describe("TraceHandler", func() {
	It("injects context-carried fields into every record", func() {
		var buf bytes.Buffer
		handler := &logging.TraceHandler{Handler: slog.NewTextHandler(&buf, nil)}
		logger := slog.New(handler)

		ctx := logging.WithFields(context.Background(), logging.Fields{JobID: logging.Ptr("job-42")})
		logger.InfoContext(ctx, "step started")

		Expect(buf.String()).To(ContainSubstring("job_id=job-42"))
	})

	It("does not add job fields when none are attached to the context", func() {
		var buf bytes.Buffer
		handler := &logging.TraceHandler{Handler: slog.NewTextHandler(&buf, nil)}
		logger := slog.New(handler)

		logger.InfoContext(context.Background(), "no fields here")

		Expect(buf.String()).NotTo(ContainSubstring("job_id="))
	})
})
