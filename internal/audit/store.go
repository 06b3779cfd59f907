package audit

import "context"

// Store is the append-only event log. Append must honor a caller transaction
// carried in ctx (pkg/platform/tx) and must never open one of its own. List
// returns the page of matching events ordered by creation time descending,
// plus the total match count.
type Store interface {
	Append(ctx context.Context, event *Event) error
	List(ctx context.Context, q Query) ([]*Event, int, error)
}

// Emitter fans a persisted event out to an optional downstream sink
// (e.g. the Kafka publisher). Emission is always best-effort.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
