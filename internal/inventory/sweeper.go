package inventory

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/veloura/marketplace/internal/kafka"
	"github.com/veloura/marketplace/internal/orders"
)

// Sweeper releases stale reservations on a fixed interval. Reserve already
// self-heals lazily when a competing buyer shows up; the sweeper frees
// inventory proactively so browse surfaces see the item as available again.
type Sweeper struct {
	store    Store
	events   orders.EventSink
	interval time.Duration
	service  string
}

func NewSweeper(store Store, events orders.EventSink, interval time.Duration, service string) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{store: store, events: events, interval: interval, service: service}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("reservation sweeper started: interval=%s", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				log.Printf("sweep failed: %v", err)
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	swept, err := s.store.SweepExpired(ctx)
	if err != nil {
		return err
	}
	if len(swept) == 0 {
		return nil
	}
	log.Printf("released %d expired reservations", len(swept))

	if s.events == nil {
		return nil
	}
	for _, id := range swept {
		s.events.Emit(ctx, orders.TopicItemReleased, orders.PartitionKey(id), orders.Envelope{
			EventID:       uuid.NewString(),
			EventType:     orders.EventItemReleased,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      s.service,
			CorrelationID: id,
			Payload:       kafka.MustMarshal(orders.ItemReleasedPayload{ItemID: id, Reason: "EXPIRED"}),
		})
	}
	return nil
}
