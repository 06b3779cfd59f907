package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/internal/audit"
)

func TestRenderPredicatesEmpty(t *testing.T) {
	where, args, matchable := renderPredicates(nil)
	assert.True(t, matchable)
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestRenderPredicatesEq(t *testing.T) {
	where, args, matchable := renderPredicates([]audit.Predicate{
		audit.Eq{Column: audit.ColActorID, Value: "u1"},
		audit.Eq{Column: audit.ColEntityKind, Value: "contact"},
	})
	require.True(t, matchable)
	assert.Equal(t, " WHERE actor_id = $1 AND entity_kind = $2", where)
	assert.Equal(t, []any{"u1", "contact"}, args)
}

func TestRenderPredicatesSubstring(t *testing.T) {
	where, args, _ := renderPredicates([]audit.Predicate{
		audit.Substring{Column: audit.ColSummary, Value: "acme"},
	})
	assert.Equal(t, " WHERE summary ILIKE '%' || $1 || '%'", where)
	assert.Equal(t, []any{"acme"}, args)
}

func TestRenderPredicatesTimeRange(t *testing.T) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	where, args, _ := renderPredicates([]audit.Predicate{
		audit.TimeRange{Column: audit.ColCreatedAt, From: &from, To: &to},
	})
	assert.Equal(t, " WHERE created_at >= $1 AND created_at <= $2", where)
	assert.Equal(t, []any{from, to}, args)
}

func TestRenderPredicatesDetailsRange(t *testing.T) {
	min := int64(400)
	where, args, _ := renderPredicates([]audit.Predicate{
		audit.DetailsRange{Field: audit.DetailStatus, Min: &min},
	})
	assert.Equal(t, " WHERE (details->>'status')::numeric >= $1", where)
	assert.Equal(t, []any{int64(400)}, args)
}

func TestRenderPredicatesMatchNone(t *testing.T) {
	_, _, matchable := renderPredicates([]audit.Predicate{
		audit.Eq{Column: audit.ColActorID, Value: "u1"},
		audit.MatchNone{},
	})
	assert.False(t, matchable)
}

func TestRenderOwnOrPeer(t *testing.T) {
	where, args, matchable := renderPredicates([]audit.Predicate{
		audit.OwnOrPeer{
			ActorID:     "u1",
			Divisions:   []string{"d1", "d2"},
			Departments: []string{"dep-1"},
		},
	})
	require.True(t, matchable)
	assert.Equal(t,
		" WHERE (actor_id = $3 OR EXISTS (SELECT 1 FROM org_assignments oa"+
			" WHERE oa.subject_id = audit_events.actor_id AND"+
			" ((oa.dimension = 'division' AND oa.org_id = ANY($1))"+
			" OR (oa.dimension = 'department' AND oa.org_id = ANY($2)))))",
		where)
	require.Len(t, args, 3)
	assert.Equal(t, []string{"d1", "d2"}, args[0])
	assert.Equal(t, []string{"dep-1"}, args[1])
	assert.Equal(t, "u1", args[2])
}

func TestRenderOwnOrPeerWithoutAssignments(t *testing.T) {
	where, args, _ := renderPredicates([]audit.Predicate{
		audit.OwnOrPeer{ActorID: "u1"},
	})
	assert.Equal(t, " WHERE (actor_id = $1)", where)
	assert.Equal(t, []any{"u1"}, args)
}
