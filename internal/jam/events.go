package jam

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// Lifecycle events published on the shared "broadcast" channel for other
// services to consume.
const (
	eventJamCreated  = "jam.created"
	eventJamEnded    = "jam.ended"
	eventJamTimedOut = "jam.timed_out"
)

// EventPublisher publishes jam lifecycle events to Redis. A nil client is
// fine: the service then runs standalone and publishing is a no-op.
type EventPublisher struct {
	rdb *redis.Client
}

func NewEventPublisher(rdb *redis.Client) *EventPublisher {
	return &EventPublisher{rdb: rdb}
}

func (e *EventPublisher) Publish(ctx context.Context, eventType string, payload any) {
	if e == nil || e.rdb == nil {
		return
	}
	body := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("jam-service: marshal event: %v", err)
		return
	}
	if err := e.rdb.Publish(ctx, "broadcast", string(data)).Err(); err != nil {
		log.Printf("jam-service: publish event: %v", err)
	}
}
