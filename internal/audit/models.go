// Package audit implements the append-only audit trail: a request-scoped
// write counter, a strict explicit write path, a best-effort automatic
// derivation path, and a scoped read API over the event log.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorType classifies who caused an event.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
	ActorAPI    ActorType = "api"
)

// Outcome is a finer-grained classification of how the audited operation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
)

// Change records a single field delta on an entity. Only explicit,
// handler-authored events carry changes; derived events never do.
type Change struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// SlowOp names a sub-operation and how long it took. Derived events keep the
// slowest few for observability.
type SlowOp struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"durationMs"`
}

// ClientInfo is the parsed User-Agent stored inside derived event details.
type ClientInfo struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
	OS             string `json:"os,omitempty"`
	Mobile         bool   `json:"mobile,omitempty"`
}

// Details is the observability payload of an event. Bodies are stored as raw
// JSON; oversized ones are replaced by a truncation marker (see truncateBody).
type Details struct {
	Status       int             `json:"status"`
	Success      bool            `json:"success"`
	DurationMs   int64           `json:"durationMs,omitempty"`
	IsSlow       bool            `json:"isSlow,omitempty"`
	DBTimeMs     int64           `json:"dbTimeMs,omitempty"`
	ModuleTimeMs int64           `json:"moduleTimeMs,omitempty"`
	SlowOps      []SlowOp        `json:"slowOps,omitempty"`
	RequestBody  json.RawMessage `json:"requestBody,omitempty"`
	ResponseBody json.RawMessage `json:"responseBody,omitempty"`
	Client       *ClientInfo     `json:"client,omitempty"`
}

// Event is one immutable row of the audit log. EntityKind, Action and Summary
// are always non-empty; everything else is optional. Rows are never updated
// or deleted by this service.
type Event struct {
	ID         uuid.UUID `json:"id"`
	EntityKind string    `json:"entityKind"`
	EntityID   string    `json:"entityId,omitempty"`
	Action     string    `json:"action"`
	Summary    string    `json:"summary"`
	Details    *Details  `json:"details,omitempty"`
	Changes    []Change  `json:"changes,omitempty"`

	EventType string  `json:"eventType,omitempty"`
	Outcome   Outcome `json:"outcome,omitempty"`

	// A secondary subject distinct from the primary entity, e.g. the user a
	// permission was granted to.
	TargetKind string `json:"targetKind,omitempty"`
	TargetID   string `json:"targetId,omitempty"`
	TargetName string `json:"targetName,omitempty"`

	SessionID    string `json:"sessionId,omitempty"`
	AuthMethod   string `json:"authMethod,omitempty"`
	MFAMethod    string `json:"mfaMethod,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	ActorID   string    `json:"actorId"`
	ActorName string    `json:"actorName,omitempty"`
	ActorType ActorType `json:"actorType"`

	CorrelationID string `json:"correlationId,omitempty"`
	PackName      string `json:"packName,omitempty"`
	Method        string `json:"method,omitempty"`
	Path          string `json:"path,omitempty"`

	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Entry is the input to the strict write path. EntityKind, Action, Summary
// and ActorID are required; all other fields default from the active
// RequestContext when left empty.
type Entry struct {
	EntityKind string
	EntityID   string
	Action     string
	Summary    string
	ActorID    string

	ActorName string
	ActorType ActorType

	Details *Details
	Changes []Change

	EventType string
	Outcome   Outcome

	TargetKind string
	TargetID   string
	TargetName string

	SessionID    string
	AuthMethod   string
	MFAMethod    string
	ErrorCode    string
	ErrorMessage string

	CorrelationID string
	PackName      string
	Method        string
	Path          string
	IPAddress     string
	UserAgent     string
}
