package worker

import (
	"context"

	"autodev.dev/orchestrator/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// JobProcessor runs a job to completion (or to its next fatal limit).
// It owns every state transition on the job itself; the error it returns
// here only decides requeue vs DLQ for the queue message.
type JobProcessor interface {
	Process(ctx context.Context, jobID int64) error
}
