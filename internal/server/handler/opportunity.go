package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OpportunityLister reads journaled opportunities, newest first.
type OpportunityLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.OpportunityRecord, error)
}

// OpportunityHandler serves the opportunity journal.
type OpportunityHandler struct {
	journal OpportunityLister // optional; nil answers 501
	logger  *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler. journal may be nil.
func NewOpportunityHandler(journal OpportunityLister, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{journal: journal, logger: logHandler(logger, "opportunities")}
}

type listOpportunitiesResponse struct {
	Opportunities []domain.OpportunityRecord `json:"opportunities"`
}

// ListRecent returns the most recent reported opportunities.
// GET /api/opportunities/recent?limit=20
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotImplemented, "opportunity journal not configured")
		return
	}
	limit := parseLimit(r, 20, 200)

	recs, err := h.journal.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if recs == nil {
		recs = []domain.OpportunityRecord{}
	}
	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Opportunities: recs})
}
