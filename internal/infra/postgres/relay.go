package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"
	"karoot/internal/app"
	"karoot/internal/domain"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying game events.
const NotifyChannel = "karoot_events"

// Relay publishes game events with pg_notify and fans out notifications
// received on a dedicated pooled connection to local subscribers.
type Relay struct {
	pool  *pgxpool.Pool
	hub   *app.Hub
	ready chan struct{}
}

func NewRelay(pool *pgxpool.Pool) *Relay {
	return &Relay{pool: pool, hub: app.NewHub(), ready: make(chan struct{})}
}

func (r *Relay) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := r.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(data)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func (r *Relay) Subscribe(ctx context.Context, gameID string) (<-chan domain.Event, func(), error) {
	return r.hub.Subscribe(ctx, gameID)
}

// Ready is closed once Run is listening.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run holds one connection in LISTEN mode until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	close(r.ready)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		var event domain.Event
		if err := json.Unmarshal([]byte(n.Payload), &event); err != nil {
			log.Printf("relay dropped malformed notification: %v", err)
			continue
		}
		r.hub.Broadcast(event)
	}
}
