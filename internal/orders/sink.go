package orders

import "context"

// EventSink receives domain events for publication. The kafka bus is the real
// implementation; a nil-safe no-op is used when no broker is configured.
type EventSink interface {
	Emit(ctx context.Context, topic string, key []byte, env Envelope)
}
