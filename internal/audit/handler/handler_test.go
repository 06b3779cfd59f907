package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"audittrail/internal/audit"
	"audittrail/pkg/requestcontext"
)

// stubResolver always returns a fixed mode.
type stubResolver struct {
	mode audit.Mode
}

func (r stubResolver) Resolve(context.Context, string, string) audit.Mode {
	return r.mode
}

type HandlerSuite struct {
	suite.Suite
	orgs  *audit.MemoryOrgDirectory
	store *audit.MemoryStore
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.orgs = audit.NewMemoryOrgDirectory()
	s.store = audit.NewMemoryStore(s.orgs)
}

func (s *HandlerSuite) router(mode audit.Mode) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.store, stubResolver{mode: mode}, s.orgs, logger, nil)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (s *HandlerSuite) seed(actorID, summary string, at time.Time) {
	s.Require().NoError(s.store.Append(context.Background(), &audit.Event{
		EntityKind: "contact",
		Action:     "created",
		Summary:    summary,
		ActorID:    actorID,
		ActorType:  audit.ActorUser,
		CreatedAt:  at,
	}))
}

func (s *HandlerSuite) get(router http.Handler, target, callerID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if callerID != "" {
		ctx := requestcontext.WithSubject(req.Context(), callerID, callerID+"@example.com", nil)
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder) ListResponse {
	var resp ListResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (s *HandlerSuite) TestUnauthenticatedRejected() {
	rec := s.get(s.router(audit.ModeAny), "/audit", "")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestOwnScopeSeesOnlyOwnEvents() {
	now := time.Now().UTC()
	s.seed("u1", "mine", now)
	s.seed("u2", "theirs", now)

	rec := s.get(s.router(audit.ModeOwn), "/audit", "u1")
	s.Equal(http.StatusOK, rec.Code)

	resp := s.decode(rec)
	s.Require().Len(resp.Items, 1)
	s.Equal("mine", resp.Items[0].Summary)
	s.Equal(1, resp.Pagination.Total)
}

func (s *HandlerSuite) TestAnyScopeSeesEverything() {
	now := time.Now().UTC()
	s.seed("u1", "mine", now)
	s.seed("u2", "theirs", now)

	resp := s.decode(s.get(s.router(audit.ModeAny), "/audit", "u1"))
	s.Len(resp.Items, 2)
	s.Equal(2, resp.Pagination.Total)
}

func (s *HandlerSuite) TestNoneScopeSeesEmptyPage() {
	s.seed("u1", "mine", time.Now().UTC())

	rec := s.get(s.router(audit.ModeNone), "/audit", "u1")
	s.Equal(http.StatusOK, rec.Code)

	resp := s.decode(rec)
	s.Empty(resp.Items)
	s.Zero(resp.Pagination.Total)
	s.Zero(resp.Pagination.TotalPages)
}

func (s *HandlerSuite) TestLDDScopeIncludesPeers() {
	s.orgs.Assign("u1", audit.OrgAssignments{Departments: []string{"dep-1"}})
	s.orgs.Assign("peer", audit.OrgAssignments{Departments: []string{"dep-1"}})
	s.orgs.Assign("stranger", audit.OrgAssignments{Departments: []string{"dep-2"}})

	now := time.Now().UTC()
	s.seed("u1", "mine", now)
	s.seed("peer", "peer event", now)
	s.seed("stranger", "stranger event", now)

	resp := s.decode(s.get(s.router(audit.ModeLDD), "/audit", "u1"))
	s.Len(resp.Items, 2)
}

func (s *HandlerSuite) TestPaginationEnvelope() {
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		s.seed("u1", fmt.Sprintf("event-%d", i), base.Add(time.Duration(i)*time.Second))
	}

	resp := s.decode(s.get(s.router(audit.ModeOwn), "/audit?page=2&pageSize=10", "u1"))
	s.Len(resp.Items, 10)
	s.Equal(2, resp.Pagination.Page)
	s.Equal(10, resp.Pagination.PageSize)
	s.Equal(30, resp.Pagination.Total)
	s.Equal(3, resp.Pagination.TotalPages)
}

func (s *HandlerSuite) TestTotalPagesRoundsUp() {
	base := time.Now().UTC()
	for i := 0; i < 11; i++ {
		s.seed("u1", fmt.Sprintf("event-%d", i), base.Add(time.Duration(i)*time.Second))
	}

	resp := s.decode(s.get(s.router(audit.ModeOwn), "/audit?pageSize=5", "u1"))
	s.Equal(3, resp.Pagination.TotalPages)
}

func (s *HandlerSuite) TestFiltersApplied() {
	now := time.Now().UTC()
	s.seed("u1", "Created contact for Acme", now)
	s.Require().NoError(s.store.Append(context.Background(), &audit.Event{
		EntityKind: "company",
		Action:     "deleted",
		Summary:    "Deleted company",
		ActorID:    "u1",
		CreatedAt:  now,
	}))

	resp := s.decode(s.get(s.router(audit.ModeOwn), "/audit?entityKind=contact&q=acme", "u1"))
	s.Require().Len(resp.Items, 1)
	s.Equal("Created contact for Acme", resp.Items[0].Summary)
}

func (s *HandlerSuite) TestDefaultPageSize() {
	resp := s.decode(s.get(s.router(audit.ModeOwn), "/audit", "u1"))
	s.Equal(audit.DefaultPageSize, resp.Pagination.PageSize)
	s.Equal(1, resp.Pagination.Page)
}
