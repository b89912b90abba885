// Package logging sets up structured slog logging, mirroring trace and job
// context into every record.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	otellog "go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/trace"

	"autodev.dev/orchestrator/internal/config"
)

// Setup installs the process-wide slog default logger according to cfg.
func Setup(cfg config.Config) {
	level := parseLevel(cfg.LogLevel)

	var handler slog.Handler
	switch {
	case cfg.IsProduction() && cfg.OTel.Enabled():
		handler = otellog.NewHandler(cfg.OTel.ServiceName)
	case cfg.IsProduction():
		handler = &TraceHandler{Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})}
	default:
		writer := createDevWriter()
		handler = &TraceHandler{Handler: slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})}
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createDevWriter() io.Writer {
	dir := "logs"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return os.Stdout
	}
	name := filepath.Join(dir, fmt.Sprintf("orchestrator-%s.log", time.Now().UTC().Format("20060102-150405")))
	file, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, file)
}

// TraceHandler wraps a slog.Handler, injecting OTel trace/span IDs and any
// context-carried Fields into every record.
type TraceHandler struct {
	slog.Handler
}

func (h *TraceHandler) Handle(ctx context.Context, record slog.Record) error {
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", span.TraceID().String()),
			slog.String("span_id", span.SpanID().String()),
		)
	}

	if fields, ok := GetFields(ctx); ok {
		if fields.JobID != nil {
			record.AddAttrs(slog.String("job_id", *fields.JobID))
		}
		if fields.JobStepID != nil {
			record.AddAttrs(slog.String("job_step_id", *fields.JobStepID))
		}
		if fields.Role != nil {
			record.AddAttrs(slog.String("role", *fields.Role))
		}
		if fields.Component != "" {
			record.AddAttrs(slog.String("component", fields.Component))
		}
	}

	return h.Handler.Handle(ctx, record)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}
