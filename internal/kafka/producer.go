package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/veloura/marketplace/internal/orders"
)

// Bus is an async publisher shared by every topic: messages carry their topic,
// a single writer loop drains the inbox. Publishing never blocks the request
// path beyond the inbox buffer.
type Bus struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
}

func NewBus(brokers []string, buf int) *Bus {
	return &Bus{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (b *Bus) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				// Drain without closing the inbox: late publishers during
				// shutdown lose their message instead of panicking.
				for {
					select {
					case m := <-b.inbox:
						b.write(m)
					default:
						_ = b.w.Close()
						close(b.closeCh)
						return
					}
				}
			case m, ok := <-b.inbox:
				if !ok {
					_ = b.w.Close()
					close(b.closeCh)
					return
				}
				b.write(m)
			}
		}
	}()
}

func (b *Bus) write(m kafka.Message) {
	if err := b.w.WriteMessages(context.Background(), m); err != nil {
		log.Printf("kafka write %s: %v", m.Topic, err)
	}
}

func (b *Bus) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	b.inbox <- kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

// Emit satisfies orders.EventSink.
func (b *Bus) Emit(ctx context.Context, topic string, key []byte, env orders.Envelope) {
	b.Publish(topic, key, MustMarshal(env),
		kafka.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// Close stops accepting messages; the loop flushes what's left and exits.
func (b *Bus) Close() { close(b.inbox) }

// WaitClosed blocks until the flush finished.
func (b *Bus) WaitClosed() { <-b.closeCh }
