package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"audittrail/internal/platform/metrics"
)

// Derivation limits. The body cap bounds the serialized size kept inside
// details; the hint cap bounds error text appended to summaries.
const (
	defaultBodyCap       = 4000
	defaultSlowThreshold = 500 * time.Millisecond
	bodyPreviewLen       = 256
	errorHintLen         = 160
	maxSlowOps           = 5
)

// CapturedBody is a possibly-truncated copy of a request or response body.
// Size is the number of bytes that passed through the wire, which may exceed
// len(Data) when the capture buffer capped out.
type CapturedBody struct {
	Data []byte
	Size int
}

// RequestOutcome carries everything the deriver knows about a completed
// request: response status, timing breakdown and the captured bodies.
type RequestOutcome struct {
	Status     int
	Duration   time.Duration
	DBTime     time.Duration
	ModuleTime time.Duration

	RequestBody  CapturedBody
	ResponseBody CapturedBody

	SlowOps []SlowOp
}

// Deriver is the best-effort fallback write path. It runs once per completed
// request, after handler execution, and synthesizes an audit event from
// request/response metadata when the handler wrote none itself. It never
// fails the original request: every error is logged and swallowed.
type Deriver struct {
	store   Store
	emitter Emitter
	logger  *slog.Logger
	metrics *metrics.Metrics

	bodyCap       int
	slowThreshold time.Duration
}

// DeriverOption configures the Deriver.
type DeriverOption func(*Deriver)

// WithBodyCap overrides the serialized body size cap.
func WithBodyCap(limit int) DeriverOption {
	return func(d *Deriver) {
		if limit > 0 {
			d.bodyCap = limit
		}
	}
}

// WithSlowThreshold overrides the duration above which events are flagged slow.
func WithSlowThreshold(threshold time.Duration) DeriverOption {
	return func(d *Deriver) {
		if threshold > 0 {
			d.slowThreshold = threshold
		}
	}
}

// WithEmitter adds an optional downstream sink for derived events.
func WithEmitter(emitter Emitter) DeriverOption {
	return func(d *Deriver) {
		d.emitter = emitter
	}
}

// NewDeriver creates the best-effort write path.
func NewDeriver(store Store, logger *slog.Logger, m *metrics.Metrics, opts ...DeriverOption) *Deriver {
	d := &Deriver{
		store:         store,
		logger:        logger,
		metrics:       m,
		bodyCap:       defaultBodyCap,
		slowThreshold: defaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DeriveAndWrite synthesizes and persists an audit event for the completed
// request, unless the handler already wrote one or the request does not
// qualify. Returns whether an event was written. Never returns an error and
// never panics past its own recover.
func (d *Deriver) DeriveAndWrite(ctx context.Context, out RequestOutcome) (written bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "panic during audit derivation", "panic", r)
			written = false
		}
	}()

	rc, ok := RequestContextFrom(ctx)
	if !ok {
		d.logger.WarnContext(ctx, "audit derivation without request context")
		d.metrics.DeriveSkippedFor("no_context")
		return false
	}

	// An explicit write wins; never double-log a request.
	if rc.Writes() > 0 {
		d.metrics.DeriveSkippedFor("already_written")
		return false
	}

	if !isMutating(rc.Method) && out.Status < http.StatusBadRequest {
		d.metrics.DeriveSkippedFor("ineligible")
		return false
	}

	event := d.derive(rc, out)

	if err := d.store.Append(ctx, event); err != nil {
		d.logger.ErrorContext(ctx, "best-effort audit write failed",
			"error", err,
			"method", rc.Method,
			"path", rc.Path,
			"correlation_id", rc.CorrelationID,
		)
		d.metrics.WriteFailed("derived")
		return false
	}

	rc.MarkWritten()
	d.metrics.EventWritten("derived")

	if d.emitter != nil {
		if err := d.emitter.Emit(ctx, *event); err != nil {
			d.logger.WarnContext(ctx, "audit event fan-out failed",
				"error", err,
				"event_id", event.ID,
			)
		}
	}

	return true
}

// derive builds the event from the request context and outcome. Pure except
// for the generated id and timestamp.
func (d *Deriver) derive(rc *RequestContext, out RequestOutcome) *Event {
	action := classifyAction(rc.Method, out.Status)
	entity := InferEntity(rc.Path, rc.PackName)

	// A successful create usually returns the new entity; recover its id
	// from the response body when the path carried none.
	if entity.ID == "" && rc.Method == http.MethodPost && is2xx(out.Status) {
		entity.ID = idFromBody(out.ResponseBody.Data)
	}

	actorID := rc.ActorID
	actorType := rc.ActorType
	if actorID == "" {
		actorID = "system"
		actorType = ActorSystem
	}
	if actorType == "" {
		actorType = ActorUser
	}

	return &Event{
		ID:            uuid.New(),
		EntityKind:    entity.Kind,
		EntityID:      entity.ID,
		Action:        action,
		Summary:       buildSummary(action, entity, out),
		Details:       d.buildDetails(rc, out),
		EventType:     action,
		Outcome:       outcomeForStatus(out.Status),
		SessionID:     rc.SessionID,
		ActorID:       actorID,
		ActorName:     rc.ActorName,
		ActorType:     actorType,
		CorrelationID: rc.CorrelationID,
		PackName:      rc.PackName,
		Method:        rc.Method,
		Path:          rc.Path,
		IPAddress:     rc.IPAddress,
		UserAgent:     rc.UserAgent,
		CreatedAt:     time.Now().UTC(),
	}
}

// classifyAction maps the HTTP method to an audit verb and suffixes it with
// the failure class when the response was not successful.
func classifyAction(method string, status int) string {
	var action string
	switch method {
	case http.MethodPost:
		action = "created"
	case http.MethodPut, http.MethodPatch:
		action = "updated"
	case http.MethodDelete:
		action = "deleted"
	default:
		action = strings.ToLower(method)
	}

	switch {
	case is2xx(status):
		return action
	case status >= 500:
		return action + "_failed"
	case status >= 400:
		return action + "_rejected"
	default:
		return action
	}
}

func buildSummary(action string, entity EntityRef, out RequestOutcome) string {
	var b strings.Builder
	b.WriteString(capitalize(action))
	b.WriteString(" ")
	b.WriteString(entity.Kind)
	if entity.ID != "" {
		b.WriteString(" (")
		b.WriteString(entity.ID)
		b.WriteString(")")
	}
	if !is2xx(out.Status) {
		if hint := errorHint(out.ResponseBody.Data); hint != "" {
			b.WriteString(": ")
			b.WriteString(hint)
		}
	}
	return b.String()
}

func (d *Deriver) buildDetails(rc *RequestContext, out RequestOutcome) *Details {
	details := &Details{
		Status:  out.Status,
		Success: is2xx(out.Status),
	}
	if out.Duration > 0 {
		details.DurationMs = out.Duration.Milliseconds()
		details.IsSlow = out.Duration > d.slowThreshold
	}
	if out.DBTime > 0 {
		details.DBTimeMs = out.DBTime.Milliseconds()
	}
	if out.ModuleTime > 0 {
		details.ModuleTimeMs = out.ModuleTime.Milliseconds()
	}
	if len(out.SlowOps) > 0 {
		details.SlowOps = slowestOps(out.SlowOps)
	}
	details.RequestBody = truncateBody(out.RequestBody, d.bodyCap)
	details.ResponseBody = truncateBody(out.ResponseBody, d.bodyCap)
	details.Client = parseClientInfo(rc.UserAgent)
	return details
}

// slowestOps keeps the slowest few sub-operations, sorted descending.
func slowestOps(ops []SlowOp) []SlowOp {
	sorted := make([]SlowOp, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DurationMs > sorted[j].DurationMs
	})
	if len(sorted) > maxSlowOps {
		sorted = sorted[:maxSlowOps]
	}
	return sorted
}

// truncateBody turns a captured body into the JSON stored inside details.
// Valid JSON is kept verbatim, other payloads are wrapped as a JSON string.
// Payloads whose serialized size exceeds the cap are replaced by a marker
// carrying the original length and a prefix preview; payloads that cannot be
// represented at all are replaced by an error marker.
func truncateBody(body CapturedBody, limit int) json.RawMessage {
	if len(body.Data) == 0 {
		return nil
	}

	size := body.Size
	if size < len(body.Data) {
		size = len(body.Data)
	}

	serialized := body.Data
	if !json.Valid(serialized) {
		wrapped, err := json.Marshal(string(body.Data))
		if err != nil {
			return mustMarshal(map[string]any{"_error": "unserializable payload"})
		}
		serialized = wrapped
		if size < len(serialized) {
			size = len(serialized)
		}
	}

	if size <= limit && len(serialized) <= limit {
		return json.RawMessage(serialized)
	}

	preview := string(body.Data)
	if len(preview) > bodyPreviewLen {
		preview = preview[:bodyPreviewLen]
	}
	return mustMarshal(map[string]any{
		"_truncated":      true,
		"_originalLength": size,
		"preview":         preview,
	})
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// Maps of strings always marshal; this is unreachable.
		return json.RawMessage(`{"_error":"unserializable payload"}`)
	}
	return raw
}

// errorHint extracts a short human-readable error description from a
// response body. String bodies are used verbatim; object bodies are probed
// for the usual error fields, first non-empty match wins.
func errorHint(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(body, &asString); err == nil {
		return clipHint(asString)
	}

	var asObject map[string]any
	if err := json.Unmarshal(body, &asObject); err != nil {
		// Not JSON at all; use the raw text.
		return clipHint(string(body))
	}

	for _, key := range []string{"error", "message", "detail", "error_description"} {
		if hint := stringField(asObject, key); hint != "" {
			return clipHint(hint)
		}
	}
	// Nested exception envelopes, e.g. {"exception": {"message": "..."}}.
	if nested, ok := asObject["exception"].(map[string]any); ok {
		for _, key := range []string{"message", "detail"} {
			if hint := stringField(nested, key); hint != "" {
				return clipHint(hint)
			}
		}
	}
	return ""
}

func stringField(obj map[string]any, key string) string {
	if s, ok := obj[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func clipHint(hint string) string {
	hint = strings.TrimSpace(hint)
	if len(hint) > errorHintLen {
		hint = hint[:errorHintLen]
	}
	return hint
}

// idFromBody probes a response body for the created entity's id.
func idFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	switch id := obj["id"].(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

func parseClientInfo(rawUA string) *ClientInfo {
	if rawUA == "" {
		return nil
	}
	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	return &ClientInfo{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Mobile:         ua.Mobile(),
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

func outcomeForStatus(status int) Outcome {
	switch {
	case is2xx(status):
		return OutcomeSuccess
	case status >= 500:
		return OutcomeError
	case status >= 400:
		return OutcomeDenied
	default:
		return OutcomeSuccess
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
