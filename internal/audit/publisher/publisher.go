// Package publisher fans persisted audit events out to a downstream sink.
// Fan-out is always best-effort: persistence has already happened by the
// time an event reaches the publisher, and a slow or failing sink must not
// slow the original request.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"audittrail/internal/audit"
)

// Sink receives serialized audit events.
type Sink interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Publisher queues events on a buffered channel and delivers them to the
// sink from a background goroutine. A full buffer drops the event with a
// warning rather than blocking the request path.
type Publisher struct {
	sink   Sink
	events chan audit.Event
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New creates a publisher with the given buffer size and starts its worker.
func New(sink Sink, bufferSize int, logger *slog.Logger) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	p := &Publisher{
		sink:   sink,
		events: make(chan audit.Event, bufferSize),
		logger: logger,
	}
	p.wg.Add(1)
	go p.processEvents()
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		value, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("failed to serialize audit event for fan-out",
				"error", err,
				"event_id", event.ID,
			)
			continue
		}
		if err := p.sink.Publish(context.Background(), []byte(event.CorrelationID), value); err != nil {
			p.logger.Error("failed to fan out audit event",
				"error", err,
				"event_id", event.ID,
				"action", event.Action,
			)
		}
	}
}

// Emit queues an event for delivery. Never blocks: a full buffer drops the
// event and logs a warning.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	select {
	case p.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.logger.Warn("audit fan-out buffer full, event dropped",
			"event_id", event.ID,
			"action", event.Action,
		)
		return nil
	}
}

// Close stops accepting events and waits for the buffer to drain.
func (p *Publisher) Close() {
	close(p.events)
	p.wg.Wait()
}
