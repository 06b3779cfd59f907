// Package handler exposes the audit log read API.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"audittrail/internal/audit"
	"audittrail/internal/platform/metrics"
	dErrors "audittrail/pkg/domain-errors"
	"audittrail/pkg/platform/httputil"
	"audittrail/pkg/requestcontext"
)

// readVerb is the scope verb probed for list access.
const readVerb = "read"

// Handler serves GET /audit. It resolves the caller's visibility mode,
// compiles it together with the user filters into one query, and returns a
// paginated envelope.
type Handler struct {
	store   audit.Store
	scopes  audit.ScopeResolver
	orgs    audit.OrgDirectory
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates the read API handler.
func New(store audit.Store, scopes audit.ScopeResolver, orgs audit.OrgDirectory, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		store:   store,
		scopes:  scopes,
		orgs:    orgs,
		logger:  logger,
		metrics: m,
	}
}

// Register mounts the read API on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.handleList)
}

// ListResponse is the read API response envelope.
type ListResponse struct {
	Items      []*audit.Event `json:"items"`
	Pagination Pagination     `json:"pagination"`
}

// Pagination describes the returned page.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	callerID := requestcontext.SubjectID(ctx)
	if callerID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	filters := audit.ParseFilters(r.URL.Query())

	mode := h.scopes.Resolve(ctx, callerID, readVerb)
	h.metrics.ScopeResolved(mode.String())

	var orgs audit.OrgAssignments
	if mode == audit.ModeLDD {
		var err error
		orgs, err = h.orgs.Assignments(ctx, callerID)
		if err != nil {
			// Degrade to own-only rather than widening or failing the read.
			h.logger.WarnContext(ctx, "org assignment lookup failed, degrading to own scope",
				"error", err,
				"caller_id", callerID,
			)
			orgs = audit.OrgAssignments{}
		}
	}

	query := audit.BuildQuery(mode, callerID, orgs, filters)

	start := time.Now()
	items, total, err := h.store.List(ctx, query)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit list query failed",
			"error", err,
			"caller_id", callerID,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "query audit events"))
		return
	}
	h.metrics.ObserveQuery(time.Since(start).Seconds(), len(items))

	totalPages := 0
	if total > 0 {
		totalPages = (total + query.PageSize - 1) / query.PageSize
	}

	httputil.WriteJSON(w, http.StatusOK, ListResponse{
		Items: items,
		Pagination: Pagination{
			Page:       query.Page,
			PageSize:   query.PageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}
