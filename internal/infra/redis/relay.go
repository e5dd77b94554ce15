package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"karoot/internal/app"
	"karoot/internal/domain"
)

// Channel carries every game event between instances.
const Channel = "karoot:events"

// Relay publishes game events over Redis pub/sub and fans out what it receives
// to local subscribers through an app.Hub.
type Relay struct {
	client *redis.Client
	hub    *app.Hub
	ready  chan struct{}
}

func NewRelay(client *redis.Client) *Relay {
	return &Relay{
		client: client,
		hub:    app.NewHub(),
		ready:  make(chan struct{}),
	}
}

func (r *Relay) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.client.Publish(ctx, Channel, data).Err()
}

func (r *Relay) Subscribe(ctx context.Context, gameID string) (<-chan domain.Event, func(), error) {
	return r.hub.Subscribe(ctx, gameID)
}

// Ready is closed once Run is subscribed to the channel.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run receives events until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}
	close(r.ready)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("relay dropped malformed event: %v", err)
				continue
			}
			r.hub.Broadcast(event)
		}
	}
}
