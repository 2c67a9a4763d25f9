package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueWorkspaceEvents is the Redis list key for workspace facts.
	QueueWorkspaceEvents = "events:workspaces"
	// QueueDLQ is the dead-letter queue for facts whose processing failed
	// after retries.
	QueueDLQ = "events:dlq"
	// MaxAttempts is the number of delivery attempts before an envelope moves
	// to the DLQ.
	MaxAttempts = 3
	// RetryBackoff is the delay between consumer retries.
	RetryBackoff = 10 * time.Second

	dequeueTimeout = 5 * time.Second
)

// Envelope wraps an event with delivery bookkeeping.
type Envelope struct {
	Event   Event `json:"event"`
	Attempt int   `json:"attempt"`
}

// Queue publishes and consumes workspace facts via a Redis list.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a Redis-backed event queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// Publish pushes an event onto the workspace event queue.
func (q *Queue) Publish(ctx context.Context, event Event) error {
	raw, err := json.Marshal(Envelope{Event: event})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.client.RPush(ctx, QueueWorkspaceEvents, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("published event",
		zap.String("event_id", event.ID.String()),
		zap.String("type", string(event.Type)),
	)
	return nil
}

// Dequeue blocks for up to a few seconds waiting for the next envelope.
// Returns nil with no error on timeout.
func (q *Queue) Dequeue(ctx context.Context) (*Envelope, error) {
	res, err := q.client.BLPop(ctx, dequeueTimeout, QueueWorkspaceEvents).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("blpop: %w", err)
	}
	if len(res) != 2 {
		return nil, nil
	}
	var env Envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &env, nil
}

// Retry re-enqueues a failed envelope, moving it to the DLQ once MaxAttempts
// is reached.
func (q *Queue) Retry(ctx context.Context, env *Envelope) error {
	env.Attempt++
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	key := QueueWorkspaceEvents
	if env.Attempt >= MaxAttempts {
		key = QueueDLQ
		q.logger.Warn("event moved to DLQ",
			zap.String("event_id", env.Event.ID.String()),
			zap.Int("attempts", env.Attempt),
		)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}
