package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	dErrors "audittrail/pkg/domain-errors"
	"audittrail/internal/platform/metrics"
)

// Writer is the strict, explicit write path. Failures propagate to the
// caller unmodified, so a handler that appends the audit row inside its own
// transaction (pkg/platform/tx) aborts the whole mutation when auditing
// fails.
type Writer struct {
	store   Store
	emitter Emitter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewWriter creates the strict write path. emitter may be nil.
func NewWriter(store Store, emitter Emitter, logger *slog.Logger, m *metrics.Metrics) *Writer {
	return &Writer{
		store:   store,
		emitter: emitter,
		logger:  logger,
		metrics: m,
	}
}

// Write validates the entry, fills defaults from the active RequestContext,
// persists the event and increments the request's write counter. The store
// joins a caller transaction when ctx carries one.
func (w *Writer) Write(ctx context.Context, entry Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	event := eventFromEntry(entry)
	applyContextDefaults(ctx, &event)

	if err := w.store.Append(ctx, &event); err != nil {
		w.metrics.WriteFailed("explicit")
		return dErrors.Wrap(err, dErrors.CodeInternal, "append audit event")
	}

	if rc, ok := RequestContextFrom(ctx); ok {
		rc.MarkWritten()
	}
	w.metrics.EventWritten("explicit")

	if w.emitter != nil {
		if err := w.emitter.Emit(ctx, event); err != nil {
			w.logger.WarnContext(ctx, "audit event fan-out failed",
				"error", err,
				"event_id", event.ID,
			)
		}
	}

	return nil
}

func validateEntry(entry Entry) error {
	switch {
	case entry.EntityKind == "":
		return dErrors.New(dErrors.CodeInvalidInput, "entityKind is required")
	case entry.Action == "":
		return dErrors.New(dErrors.CodeInvalidInput, "action is required")
	case entry.Summary == "":
		return dErrors.New(dErrors.CodeInvalidInput, "summary is required")
	case entry.ActorID == "":
		return dErrors.New(dErrors.CodeInvalidInput, "actorId is required")
	}
	return nil
}

func eventFromEntry(entry Entry) Event {
	return Event{
		ID:            uuid.New(),
		EntityKind:    entry.EntityKind,
		EntityID:      entry.EntityID,
		Action:        entry.Action,
		Summary:       entry.Summary,
		Details:       entry.Details,
		Changes:       entry.Changes,
		EventType:     entry.EventType,
		Outcome:       entry.Outcome,
		TargetKind:    entry.TargetKind,
		TargetID:      entry.TargetID,
		TargetName:    entry.TargetName,
		SessionID:     entry.SessionID,
		AuthMethod:    entry.AuthMethod,
		MFAMethod:     entry.MFAMethod,
		ErrorCode:     entry.ErrorCode,
		ErrorMessage:  entry.ErrorMessage,
		ActorID:       entry.ActorID,
		ActorName:     entry.ActorName,
		ActorType:     entry.ActorType,
		CorrelationID: entry.CorrelationID,
		PackName:      entry.PackName,
		Method:        entry.Method,
		Path:          entry.Path,
		IPAddress:     entry.IPAddress,
		UserAgent:     entry.UserAgent,
		CreatedAt:     time.Now().UTC(),
	}
}

// applyContextDefaults fills request correlation metadata from the active
// audit scope for every field the caller left empty. Outside any scope the
// event is persisted as supplied.
func applyContextDefaults(ctx context.Context, event *Event) {
	if event.ActorType == "" {
		event.ActorType = ActorUser
	}
	if event.EventType == "" {
		event.EventType = event.Action
	}

	rc, ok := RequestContextFrom(ctx)
	if !ok {
		return
	}
	if event.CorrelationID == "" {
		event.CorrelationID = rc.CorrelationID
	}
	if event.PackName == "" {
		event.PackName = rc.PackName
	}
	if event.Method == "" {
		event.Method = rc.Method
	}
	if event.Path == "" {
		event.Path = rc.Path
	}
	if event.IPAddress == "" {
		event.IPAddress = rc.IPAddress
	}
	if event.UserAgent == "" {
		event.UserAgent = rc.UserAgent
	}
	if event.SessionID == "" {
		event.SessionID = rc.SessionID
	}
	if event.ActorName == "" {
		event.ActorName = rc.ActorName
	}
}
