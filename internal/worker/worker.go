package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"autodev.dev/orchestrator/internal/logging"
	"autodev.dev/orchestrator/internal/queue"
)

type Config struct {
	MaxAttempts int
}

// Worker reads job-execute messages off the queue and hands each one to a
// JobProcessor to completion. Unlike a chatty-issue pipeline there is no
// claim/continuation dance here: a job message maps to exactly one
// Process call, and the processor itself owns every status transition on
// the job row.
type Worker struct {
	consumer  Consumer
	processor JobProcessor
	cfg       Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, processor JobProcessor, cfg Config) *Worker {
	return &Worker{
		consumer:  consumer,
		processor: processor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "orchestrator worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "orchestrator worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		msgCtx := logging.WithFields(ctx, logging.Fields{
			JobID:     logging.Ptr(fmt.Sprint(msg.JobID)),
			Component: "worker",
		})
		if err := w.processMessageSafe(msgCtx, msg); err != nil {
			slog.ErrorContext(msgCtx, "message processing failed",
				"error", err,
				"message_id", msg.ID,
				"job_id", msg.JobID,
				"attempt", msg.Attempt)
			w.handleFailedMessage(msgCtx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"stack", string(debug.Stack()),
				"message_id", msg.ID,
				"job_id", msg.JobID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage is exported so the reclaimer can reuse it for a claimed
// stale message without going through the consumer's Read loop.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	slog.InfoContext(ctx, "processing job message",
		"message_id", msg.ID,
		"job_id", msg.JobID,
		"attempt", msg.Attempt)

	start := time.Now()
	if err := w.processor.Process(ctx, msg.JobID); err != nil {
		return fmt.Errorf("executing job: %w", err)
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		slog.WarnContext(ctx, "failed to ACK message", "error", err, "message_id", msg.ID)
	}

	slog.InfoContext(ctx, "job message processed",
		"job_id", msg.JobID,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"job_id", msg.JobID,
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"message_id", msg.ID,
		"job_id", msg.JobID,
		"attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
