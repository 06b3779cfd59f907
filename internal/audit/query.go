package audit

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Pagination bounds for the read API.
const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// Column names of the audit_events table usable in predicates. Predicates
// are built from these constants only, never from user input, so the store
// can embed them in SQL while keeping all values parameterized.
const (
	ColEntityKind    = "entity_kind"
	ColEntityID      = "entity_id"
	ColAction        = "action"
	ColSummary       = "summary"
	ColEventType     = "event_type"
	ColOutcome       = "outcome"
	ColTargetKind    = "target_kind"
	ColTargetID      = "target_id"
	ColSessionID     = "session_id"
	ColActorID       = "actor_id"
	ColActorType     = "actor_type"
	ColCorrelationID = "correlation_id"
	ColPackName      = "pack_name"
	ColMethod        = "method"
	ColCreatedAt     = "created_at"
)

// Details fields addressable by numeric range predicates.
const (
	DetailStatus   = "status"
	DetailDuration = "durationMs"
)

// Predicate is one typed, parameterized filter term. The store renders the
// set; terms are always combined with AND.
type Predicate interface {
	isPredicate()
}

// Eq matches rows whose column equals the value exactly.
type Eq struct {
	Column string
	Value  string
}

// Substring matches rows whose column contains the value, case-insensitively.
type Substring struct {
	Column string
	Value  string
}

// TimeRange matches rows whose column falls inside the inclusive range.
// Either bound may be nil.
type TimeRange struct {
	Column string
	From   *time.Time
	To     *time.Time
}

// DetailsRange matches rows whose numeric details field falls inside the
// inclusive range. Rows without the field never match. Either bound may be
// nil.
type DetailsRange struct {
	Field string
	Min   *int64
	Max   *int64
}

// OwnOrPeer is the LDD visibility term: the row's actor is the caller, or
// the row's actor shares at least one organizational assignment (division,
// department or location) with the caller. The caller's own assignment sets
// are resolved before compilation; the event actor's side is a correlated
// exists lookup keyed by actor id.
type OwnOrPeer struct {
	ActorID     string
	Divisions   []string
	Departments []string
	Locations   []string
}

// MatchNone matches no rows. Used to fail closed without erroring.
type MatchNone struct{}

func (Eq) isPredicate()           {}
func (Substring) isPredicate()    {}
func (TimeRange) isPredicate()    {}
func (DetailsRange) isPredicate() {}
func (OwnOrPeer) isPredicate()    {}
func (MatchNone) isPredicate()    {}

// Query is a compiled, store-agnostic audit log query.
type Query struct {
	Predicates []Predicate
	Page       int
	PageSize   int
}

// Offset returns the row offset for the query's page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// Filters holds the user-supplied query parameters of the read API. Zero
// values mean "not filtered". Invalid input never reaches this struct; the
// parser drops it silently.
type Filters struct {
	EntityKind    string
	EntityID      string
	Action        string
	ActorID       string
	ActorType     string
	CorrelationID string
	PackName      string
	Method        string
	EventType     string
	Outcome       string
	TargetKind    string
	TargetID      string
	SessionID     string

	// Q is a case-insensitive substring match on the summary.
	Q string

	From *time.Time
	To   *time.Time

	// Status filters on the response status recorded in details: "4xx",
	// "5xx", "error" (>= 400) or an exact numeric status.
	Status string

	MinDuration *int64
	MaxDuration *int64

	Page     int
	PageSize int
}

// ParseFilters reads the read-API query parameters. Malformed dates and
// non-numeric status/duration values are ignored rather than rejected.
func ParseFilters(values url.Values) Filters {
	f := Filters{
		EntityKind:    values.Get("entityKind"),
		EntityID:      values.Get("entityId"),
		Action:        values.Get("action"),
		ActorID:       values.Get("actorId"),
		ActorType:     values.Get("actorType"),
		CorrelationID: values.Get("correlationId"),
		PackName:      values.Get("packName"),
		Method:        strings.ToUpper(values.Get("method")),
		EventType:     values.Get("eventType"),
		Outcome:       values.Get("outcome"),
		TargetKind:    values.Get("targetKind"),
		TargetID:      values.Get("targetId"),
		SessionID:     values.Get("sessionId"),
		Q:             values.Get("q"),
	}

	f.From = parseTime(values.Get("from"))
	f.To = parseTime(values.Get("to"))

	if status := values.Get("status"); status != "" {
		switch status {
		case "4xx", "5xx", "error":
			f.Status = status
		default:
			if _, err := strconv.Atoi(status); err == nil {
				f.Status = status
			}
		}
	}

	f.MinDuration = parseInt64(values.Get("minDuration"))
	f.MaxDuration = parseInt64(values.Get("maxDuration"))

	if page, err := strconv.Atoi(values.Get("page")); err == nil {
		f.Page = page
	}
	if size, err := strconv.Atoi(values.Get("pageSize")); err == nil {
		f.PageSize = size
	}

	return f
}

// BuildQuery compiles a scope mode plus user filters into a single query.
// The scope predicate comes first, then every present user filter, all ANDed.
func BuildQuery(mode Mode, callerID string, orgs OrgAssignments, f Filters) Query {
	q := Query{
		Page:     f.Page,
		PageSize: f.PageSize,
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}

	if p := scopePredicate(mode, callerID, orgs); p != nil {
		q.Predicates = append(q.Predicates, p)
	}

	exact := []struct {
		col string
		val string
	}{
		{ColEntityKind, f.EntityKind},
		{ColEntityID, f.EntityID},
		{ColAction, f.Action},
		{ColActorID, f.ActorID},
		{ColActorType, f.ActorType},
		{ColCorrelationID, f.CorrelationID},
		{ColPackName, f.PackName},
		{ColMethod, f.Method},
		{ColEventType, f.EventType},
		{ColOutcome, f.Outcome},
		{ColTargetKind, f.TargetKind},
		{ColTargetID, f.TargetID},
		{ColSessionID, f.SessionID},
	}
	for _, e := range exact {
		if e.val != "" {
			q.Predicates = append(q.Predicates, Eq{Column: e.col, Value: e.val})
		}
	}

	if f.Q != "" {
		q.Predicates = append(q.Predicates, Substring{Column: ColSummary, Value: f.Q})
	}
	if f.From != nil || f.To != nil {
		q.Predicates = append(q.Predicates, TimeRange{Column: ColCreatedAt, From: f.From, To: f.To})
	}
	if p, ok := statusPredicate(f.Status); ok {
		q.Predicates = append(q.Predicates, p)
	}
	if f.MinDuration != nil || f.MaxDuration != nil {
		q.Predicates = append(q.Predicates, DetailsRange{Field: DetailDuration, Min: f.MinDuration, Max: f.MaxDuration})
	}

	return q
}

// scopePredicate compiles the caller's visibility mode. Fails closed: an
// unresolvable caller under own/ldd matches nothing rather than everything.
func scopePredicate(mode Mode, callerID string, orgs OrgAssignments) Predicate {
	switch mode {
	case ModeAny:
		return nil
	case ModeOwn:
		if callerID == "" {
			return MatchNone{}
		}
		return Eq{Column: ColActorID, Value: callerID}
	case ModeLDD:
		if callerID == "" {
			return MatchNone{}
		}
		if orgs.Empty() {
			// No assignments in any hierarchy dimension degrades to own.
			return Eq{Column: ColActorID, Value: callerID}
		}
		return OwnOrPeer{
			ActorID:     callerID,
			Divisions:   orgs.Divisions,
			Departments: orgs.Departments,
			Locations:   orgs.Locations,
		}
	default:
		return MatchNone{}
	}
}

func statusPredicate(status string) (Predicate, bool) {
	switch status {
	case "":
		return nil, false
	case "4xx":
		return DetailsRange{Field: DetailStatus, Min: ptr(int64(400)), Max: ptr(int64(499))}, true
	case "5xx":
		return DetailsRange{Field: DetailStatus, Min: ptr(int64(500))}, true
	case "error":
		return DetailsRange{Field: DetailStatus, Min: ptr(int64(400))}, true
	default:
		n, err := strconv.ParseInt(status, 10, 64)
		if err != nil {
			return nil, false
		}
		return DetailsRange{Field: DetailStatus, Min: &n, Max: &n}, true
	}
}

func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func parseInt64(value string) *int64 {
	if value == "" {
		return nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func ptr[T any](v T) *T {
	return &v
}
