package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"autodev.dev/orchestrator/internal/logging"
)

// JobMessage is enqueued once per job; the worker executes the job to
// completion (or to its next fatal limit) in one consume.
type JobMessage struct {
	JobID   int64
	TraceID *string
	Attempt int
}

type Producer interface {
	Enqueue(ctx context.Context, msg JobMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
}

func NewRedisProducer(client *redis.Client, stream string) Producer {
	return &redisProducer{client: client, stream: stream}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg JobMessage) error {
	ctx = logging.WithFields(ctx, logging.Fields{JobID: logging.Ptr(fmt.Sprint(msg.JobID)), Component: "queue.producer"})

	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"task_type": string(TaskTypeJobExecute),
		"job_id":    msg.JobID,
		"attempt":   attempt,
	}
	traceIDStr := ""
	if msg.TraceID != nil && *msg.TraceID != "" {
		fields["trace_id"] = *msg.TraceID
		traceIDStr = *msg.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue job (stream=%s): %w", p.stream, err)
	}

	slog.InfoContext(ctx, "enqueued job", "attempt", attempt, "trace_id", traceIDStr, "stream", p.stream)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
