// Package events publishes job state changes on a single logical Redis
// channel so HTTP clients can subscribe to live progress instead of
// polling. Delivery is at-most-once: a missed frame is recovered by the
// client re-fetching /jobs/{id}, never by replaying the channel.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"autodev.dev/orchestrator/internal/model"
)

const defaultChannel = "job-events"

type EventType string

const (
	EventJobUpdated   EventType = "job.updated"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventJobCancelled EventType = "job.cancelled"
)

// JobEvent is the frame published to subscribers.
type JobEvent struct {
	Type    EventType `json:"type"`
	Payload JobPayload `json:"payload"`
}

// JobPayload is the serialized Job state carried by every event.
type JobPayload struct {
	ID            int64    `json:"id"`
	Task          string   `json:"task"`
	Status        string   `json:"status"`
	RepoOwner     string   `json:"repo_owner"`
	RepoName      string   `json:"repo_name"`
	CostUSD       float64  `json:"cost_usd"`
	TokensIn      int64    `json:"tokens_in"`
	TokensOut     int64    `json:"tokens_out"`
	RequestsMade  int      `json:"requests_made"`
	Progress      float64  `json:"progress"`
	LastAction    string   `json:"last_action"`
	PRLinks       []string `json:"pr_links"`
	FeatureBranch string   `json:"feature_branch"`
	ModelCTO      string   `json:"model_cto"`
	ModelCoder    string   `json:"model_coder"`
}

// SerializeJob builds the payload published alongside every event.
func SerializeJob(job model.Job, completedSteps, totalSteps int) JobPayload {
	return JobPayload{
		ID:            job.ID,
		Task:          job.Task,
		Status:        string(job.Status),
		RepoOwner:     job.RepoOwner,
		RepoName:      job.RepoName,
		CostUSD:       job.CostUSD,
		TokensIn:      job.TokensIn,
		TokensOut:     job.TokensOut,
		RequestsMade:  job.RequestsMade,
		Progress:      model.Progress(job.Status, completedSteps, totalSteps),
		LastAction:    job.LastAction,
		PRLinks:       job.PRLinks,
		FeatureBranch: job.FeatureBranch,
		ModelCTO:      job.ModelCTO,
		ModelCoder:    job.ModelCoder,
	}
}

// Bus publishes job events over a Redis Pub/Sub channel.
type Bus struct {
	redis   *redis.Client
	channel string
}

func NewBus(client *redis.Client) *Bus {
	return &Bus{redis: client, channel: defaultChannel}
}

// Publish sends an event. Publish failures are logged, not returned: the
// caller has already committed the state change and must not fail the job
// over a transport hiccup on the event bus.
func (b *Bus) Publish(ctx context.Context, evt JobEvent) {
	if b.redis == nil {
		return
	}

	raw, err := json.Marshal(evt)
	if err != nil {
		slog.ErrorContext(ctx, "marshaling job event", "error", err, "job_id", evt.Payload.ID)
		return
	}

	if err := b.redis.Publish(ctx, b.channel, raw).Err(); err != nil {
		slog.ErrorContext(ctx, "publishing job event", "error", err, "job_id", evt.Payload.ID)
	}
}

// Subscribe returns a channel of raw JSON frames for relaying to WebSocket
// clients. Callers must call the returned close func when done.
func (b *Bus) Subscribe(ctx context.Context) (<-chan string, func() error) {
	sub := b.redis.Subscribe(ctx, b.channel)
	ch := sub.Channel()

	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range ch {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, sub.Close
}

func (b *Bus) String() string {
	return fmt.Sprintf("events.Bus{channel=%s}", b.channel)
}
