// Package postgres implements the audit event store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"audittrail/internal/audit"
	"audittrail/pkg/platform/tx"
)

// Store implements audit.Store using PostgreSQL. Predicates arrive as typed
// values and are rendered to parameterized SQL here; no user input is ever
// concatenated into the query text.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer joins a caller transaction when ctx carries one. The store never
// begins a transaction of its own.
func (s *Store) execer(ctx context.Context) dbExecutor {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

// Append inserts one audit event.
func (s *Store) Append(ctx context.Context, event *audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, entity_kind, entity_id, action, summary, details, changes,
			event_type, outcome, target_kind, target_id, target_name,
			session_id, auth_method, mfa_method, error_code, error_message,
			actor_id, actor_name, actor_type,
			correlation_id, pack_name, method, path,
			ip_address, user_agent, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
	`

	details, err := marshalNullable(event.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	changes, err := marshalNullable(event.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}

	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		event.EntityKind,
		nullable(event.EntityID),
		event.Action,
		event.Summary,
		details,
		changes,
		nullable(event.EventType),
		nullable(string(event.Outcome)),
		nullable(event.TargetKind),
		nullable(event.TargetID),
		nullable(event.TargetName),
		nullable(event.SessionID),
		nullable(event.AuthMethod),
		nullable(event.MFAMethod),
		nullable(event.ErrorCode),
		nullable(event.ErrorMessage),
		event.ActorID,
		nullable(event.ActorName),
		string(event.ActorType),
		event.CorrelationID,
		event.PackName,
		event.Method,
		event.Path,
		nullable(event.IPAddress),
		nullable(event.UserAgent),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const selectColumns = `
	id, entity_kind, entity_id, action, summary, details, changes,
	event_type, outcome, target_kind, target_id, target_name,
	session_id, auth_method, mfa_method, error_code, error_message,
	actor_id, actor_name, actor_type,
	correlation_id, pack_name, method, path,
	ip_address, user_agent, created_at
`

// List runs the compiled query. The page of rows and the total count run as
// two concurrent queries against the pool.
func (s *Store) List(ctx context.Context, q audit.Query) ([]*audit.Event, int, error) {
	where, args, matchable := renderPredicates(q.Predicates)
	if !matchable {
		return []*audit.Event{}, 0, nil
	}

	countQuery := "SELECT COUNT(*) FROM audit_events" + where
	pageQuery := fmt.Sprintf(
		"SELECT %s FROM audit_events%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		selectColumns, where, len(args)+1, len(args)+2,
	)
	pageArgs := append(append([]any{}, args...), q.PageSize, q.Offset())

	var (
		events []*audit.Event
		total  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.db.QueryContext(gctx, pageQuery, pageArgs...)
		if err != nil {
			return fmt.Errorf("query audit events: %w", err)
		}
		defer rows.Close()
		events, err = scanEvents(rows)
		return err
	})
	g.Go(func() error {
		if err := s.db.QueryRowContext(gctx, countQuery, args...).Scan(&total); err != nil {
			return fmt.Errorf("count audit events: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	if events == nil {
		events = []*audit.Event{}
	}
	return events, total, nil
}

// renderPredicates builds the WHERE clause. The third return value is false
// when a MatchNone predicate makes querying pointless.
func renderPredicates(predicates []audit.Predicate) (string, []any, bool) {
	var (
		clauses []string
		args    []any
	)
	next := func(value any) string {
		args = append(args, value)
		return "$" + strconv.Itoa(len(args))
	}

	for _, p := range predicates {
		switch p := p.(type) {
		case audit.MatchNone:
			return "", nil, false
		case audit.Eq:
			clauses = append(clauses, p.Column+" = "+next(p.Value))
		case audit.Substring:
			clauses = append(clauses, p.Column+" ILIKE '%' || "+next(p.Value)+" || '%'")
		case audit.TimeRange:
			if p.From != nil {
				clauses = append(clauses, p.Column+" >= "+next(*p.From))
			}
			if p.To != nil {
				clauses = append(clauses, p.Column+" <= "+next(*p.To))
			}
		case audit.DetailsRange:
			expr := detailsExpr(p.Field)
			if p.Min != nil {
				clauses = append(clauses, expr+" >= "+next(*p.Min))
			}
			if p.Max != nil {
				clauses = append(clauses, expr+" <= "+next(*p.Max))
			}
		case audit.OwnOrPeer:
			clauses = append(clauses, renderOwnOrPeer(p, next))
		}
	}

	if len(clauses) == 0 {
		return "", args, true
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, true
}

// detailsExpr maps a details field to its JSONB accessor. Fields come from
// the fixed constants in the audit package, never from user input.
func detailsExpr(field string) string {
	return "(details->>'" + field + "')::numeric"
}

// renderOwnOrPeer renders the LDD visibility term: own events, or events by
// actors sharing an organizational assignment with the caller, via a
// correlated exists against org_assignments.
func renderOwnOrPeer(p audit.OwnOrPeer, next func(any) string) string {
	var dims []string
	if len(p.Divisions) > 0 {
		dims = append(dims, "(oa.dimension = 'division' AND oa.org_id = ANY("+next(p.Divisions)+"))")
	}
	if len(p.Departments) > 0 {
		dims = append(dims, "(oa.dimension = 'department' AND oa.org_id = ANY("+next(p.Departments)+"))")
	}
	if len(p.Locations) > 0 {
		dims = append(dims, "(oa.dimension = 'location' AND oa.org_id = ANY("+next(p.Locations)+"))")
	}

	own := "actor_id = " + next(p.ActorID)
	if len(dims) == 0 {
		return "(" + own + ")"
	}
	exists := "EXISTS (SELECT 1 FROM org_assignments oa WHERE oa.subject_id = audit_events.actor_id AND (" +
		strings.Join(dims, " OR ") + "))"
	return "(" + own + " OR " + exists + ")"
}

func scanEvents(rows *sql.Rows) ([]*audit.Event, error) {
	var events []*audit.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (*audit.Event, error) {
	var (
		event     audit.Event
		entityID  sql.NullString
		details   []byte
		changes   []byte
		eventType sql.NullString
		outcome   sql.NullString
		targetK   sql.NullString
		targetID  sql.NullString
		targetN   sql.NullString
		sessionID sql.NullString
		authM     sql.NullString
		mfaM      sql.NullString
		errCode   sql.NullString
		errMsg    sql.NullString
		actorName sql.NullString
		actorType string
		ip        sql.NullString
		ua        sql.NullString
	)

	err := rows.Scan(
		&event.ID,
		&event.EntityKind,
		&entityID,
		&event.Action,
		&event.Summary,
		&details,
		&changes,
		&eventType,
		&outcome,
		&targetK,
		&targetID,
		&targetN,
		&sessionID,
		&authM,
		&mfaM,
		&errCode,
		&errMsg,
		&event.ActorID,
		&actorName,
		&actorType,
		&event.CorrelationID,
		&event.PackName,
		&event.Method,
		&event.Path,
		&ip,
		&ua,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.EntityID = entityID.String
	event.EventType = eventType.String
	event.Outcome = audit.Outcome(outcome.String)
	event.TargetKind = targetK.String
	event.TargetID = targetID.String
	event.TargetName = targetN.String
	event.SessionID = sessionID.String
	event.AuthMethod = authM.String
	event.MFAMethod = mfaM.String
	event.ErrorCode = errCode.String
	event.ErrorMessage = errMsg.String
	event.ActorName = actorName.String
	event.ActorType = audit.ActorType(actorType)
	event.IPAddress = ip.String
	event.UserAgent = ua.String

	if len(details) > 0 {
		var d audit.Details
		if err := json.Unmarshal(details, &d); err != nil {
			return nil, fmt.Errorf("unmarshal audit details: %w", err)
		}
		event.Details = &d
	}
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &event.Changes); err != nil {
			return nil, fmt.Errorf("unmarshal audit changes: %w", err)
		}
	}

	return &event, nil
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func marshalNullable(v any) ([]byte, error) {
	switch v := v.(type) {
	case *audit.Details:
		if v == nil {
			return nil, nil
		}
	case []audit.Change:
		if len(v) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
