//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"audittrail/internal/audit"
	"audittrail/pkg/platform/tx"
	"audittrail/pkg/testutil/containers"
)

type StoreIntegrationSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Store
	orgs  *OrgDirectory
	ctx   context.Context
}

func TestStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(StoreIntegrationSuite))
}

func (s *StoreIntegrationSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = New(s.pg.DB)
	s.orgs = NewOrgDirectory(s.pg.DB)
	s.ctx = context.Background()
}

func (s *StoreIntegrationSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(s.ctx))
}

func (s *StoreIntegrationSuite) event(actorID, summary string, at time.Time) *audit.Event {
	return &audit.Event{
		ID:         uuid.New(),
		EntityKind: "contact",
		EntityID:   "c-1",
		Action:     "created",
		Summary:    summary,
		ActorID:    actorID,
		ActorType:  audit.ActorUser,
		Outcome:    audit.OutcomeSuccess,
		PackName:   "crm",
		Method:     "POST",
		Path:       "/api/crm/contacts",
		CreatedAt:  at,
	}
}

func (s *StoreIntegrationSuite) TestAppendAndList() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	event := s.event("u1", "Created contact (c-1)", now)
	event.Details = &audit.Details{Status: 201, Success: true, DurationMs: 42}
	event.Changes = []audit.Change{{Field: "name", From: nil, To: "Acme"}}

	s.Require().NoError(s.store.Append(s.ctx, event))

	items, total, err := s.store.List(s.ctx, audit.Query{Page: 1, PageSize: 25})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(items, 1)

	got := items[0]
	s.Equal(event.ID, got.ID)
	s.Equal("contact", got.EntityKind)
	s.Equal("Created contact (c-1)", got.Summary)
	s.Equal("u1", got.ActorID)
	s.Require().NotNil(got.Details)
	s.Equal(201, got.Details.Status)
	s.Equal(int64(42), got.Details.DurationMs)
	s.Require().Len(got.Changes, 1)
	s.Equal("name", got.Changes[0].Field)
	s.WithinDuration(now, got.CreatedAt, time.Millisecond)
}

func (s *StoreIntegrationSuite) TestListNewestFirstWithPagination() {
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 30; i++ {
		event := s.event("u1", fmt.Sprintf("event-%d", i), base.Add(time.Duration(i)*time.Second))
		event.ID = uuid.New()
		s.Require().NoError(s.store.Append(s.ctx, event))
	}

	items, total, err := s.store.List(s.ctx, audit.Query{Page: 2, PageSize: 10})
	s.Require().NoError(err)
	s.Equal(30, total)
	s.Require().Len(items, 10)
	s.Equal("event-19", items[0].Summary)
	s.Equal("event-10", items[9].Summary)
}

func (s *StoreIntegrationSuite) TestPredicates() {
	now := time.Now().UTC()
	mine := s.event("u1", "Created contact for Acme", now)
	mine.Details = &audit.Details{Status: 201, Success: true, DurationMs: 800}
	s.Require().NoError(s.store.Append(s.ctx, mine))

	theirs := s.event("u2", "Deleted company", now)
	theirs.EntityKind = "company"
	theirs.Action = "deleted"
	theirs.Details = &audit.Details{Status: 500, Success: false, DurationMs: 90}
	s.Require().NoError(s.store.Append(s.ctx, theirs))

	s.Run("eq on actor", func() {
		items, total, err := s.store.List(s.ctx, audit.Query{
			Predicates: []audit.Predicate{audit.Eq{Column: audit.ColActorID, Value: "u1"}},
			Page:       1, PageSize: 25,
		})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal("u1", items[0].ActorID)
	})

	s.Run("substring is case-insensitive", func() {
		items, _, err := s.store.List(s.ctx, audit.Query{
			Predicates: []audit.Predicate{audit.Substring{Column: audit.ColSummary, Value: "acme"}},
			Page:       1, PageSize: 25,
		})
		s.Require().NoError(err)
		s.Require().Len(items, 1)
		s.Contains(items[0].Summary, "Acme")
	})

	s.Run("details status range", func() {
		min, max := int64(500), int64(599)
		items, _, err := s.store.List(s.ctx, audit.Query{
			Predicates: []audit.Predicate{audit.DetailsRange{Field: audit.DetailStatus, Min: &min, Max: &max}},
			Page:       1, PageSize: 25,
		})
		s.Require().NoError(err)
		s.Require().Len(items, 1)
		s.Equal("Deleted company", items[0].Summary)
	})

	s.Run("details duration range", func() {
		min := int64(500)
		items, _, err := s.store.List(s.ctx, audit.Query{
			Predicates: []audit.Predicate{audit.DetailsRange{Field: audit.DetailDuration, Min: &min}},
			Page:       1, PageSize: 25,
		})
		s.Require().NoError(err)
		s.Require().Len(items, 1)
		s.Equal("u1", items[0].ActorID)
	})

	s.Run("time range", func() {
		from := now.Add(time.Hour)
		_, total, err := s.store.List(s.ctx, audit.Query{
			Predicates: []audit.Predicate{audit.TimeRange{Column: audit.ColCreatedAt, From: &from}},
			Page:       1, PageSize: 25,
		})
		s.Require().NoError(err)
		s.Zero(total)
	})

	s.Run("match none short-circuits", func() {
		items, total, err := s.store.List(s.ctx, audit.Query{
			Predicates: []audit.Predicate{audit.MatchNone{}},
			Page:       1, PageSize: 25,
		})
		s.Require().NoError(err)
		s.Zero(total)
		s.Empty(items)
	})
}

func (s *StoreIntegrationSuite) TestOwnOrPeerPredicate() {
	s.pg.AssignOrg(s.ctx, s.T(), "peer", "division", "d1")
	s.pg.AssignOrg(s.ctx, s.T(), "stranger", "division", "d9")
	s.pg.AssignOrg(s.ctx, s.T(), "locmate", "location", "hq")

	now := time.Now().UTC()
	s.Require().NoError(s.store.Append(s.ctx, s.event("caller", "mine", now)))
	s.Require().NoError(s.store.Append(s.ctx, s.event("peer", "peer event", now)))
	s.Require().NoError(s.store.Append(s.ctx, s.event("stranger", "stranger event", now)))
	s.Require().NoError(s.store.Append(s.ctx, s.event("locmate", "locmate event", now)))

	items, total, err := s.store.List(s.ctx, audit.Query{
		Predicates: []audit.Predicate{audit.OwnOrPeer{
			ActorID:   "caller",
			Divisions: []string{"d1"},
			Locations: []string{"hq"},
		}},
		Page: 1, PageSize: 25,
	})
	s.Require().NoError(err)
	s.Equal(3, total)

	var summaries []string
	for _, item := range items {
		summaries = append(summaries, item.Summary)
	}
	s.ElementsMatch([]string{"mine", "peer event", "locmate event"}, summaries)
}

func (s *StoreIntegrationSuite) TestOrgDirectory() {
	s.pg.AssignOrg(s.ctx, s.T(), "u1", "division", "d1")
	s.pg.AssignOrg(s.ctx, s.T(), "u1", "department", "dep-1")
	s.pg.AssignOrg(s.ctx, s.T(), "u1", "location", "hq")

	orgs, err := s.orgs.Assignments(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal([]string{"d1"}, orgs.Divisions)
	s.Equal([]string{"dep-1"}, orgs.Departments)
	s.Equal([]string{"hq"}, orgs.Locations)

	empty, err := s.orgs.Assignments(s.ctx, "nobody")
	s.Require().NoError(err)
	s.True(empty.Empty())
}

func (s *StoreIntegrationSuite) TestAppendJoinsCallerTransaction() {
	dbTx, err := s.pg.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)

	ctx := tx.WithTx(s.ctx, dbTx)
	s.Require().NoError(s.store.Append(ctx, s.event("u1", "inside tx", time.Now().UTC())))

	// Rolling back the business transaction must take the audit row with it.
	s.Require().NoError(dbTx.Rollback())

	_, total, err := s.store.List(s.ctx, audit.Query{Page: 1, PageSize: 25})
	s.Require().NoError(err)
	s.Zero(total)
}
