package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PositionSource lists open hypothetical positions.
type PositionSource interface {
	Positions() []domain.Position
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionSource
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionSource) *PositionHandler {
	return &PositionHandler{positions: positions}
}

type lotJSON struct {
	Strategy      domain.Strategy `json:"strategy"`
	Quantity      int64           `json:"quantity"`
	YesVenue      string          `json:"yes_venue"`
	YesPriceCents int64           `json:"yes_price_cents"`
	NoVenue       string          `json:"no_venue"`
	NoPriceCents  int64           `json:"no_price_cents"`
	UnitCostCents int64           `json:"unit_cost_cents"`
	Opportunity   string          `json:"opportunity_id"`
	OpenedAt      time.Time       `json:"opened_at"`
}

type positionJSON struct {
	PairID         string    `json:"market_pair_id"`
	Quantity       int64     `json:"quantity"`
	CostBasisCents int64     `json:"cost_basis_cents"`
	OpenedAt       time.Time `json:"opened_at"`
	Lots           []lotJSON `json:"lots"`
}

// ListPositions returns every open position with its lots.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	ps := h.positions.Positions()
	out := make([]positionJSON, 0, len(ps))
	for _, p := range ps {
		pj := positionJSON{
			PairID:         p.PairID,
			Quantity:       p.Quantity,
			CostBasisCents: int64(p.CostBasis),
			OpenedAt:       p.OpenedAt.UTC(),
			Lots:           make([]lotJSON, 0, len(p.Lots)),
		}
		for _, l := range p.Lots {
			pj.Lots = append(pj.Lots, lotJSON{
				Strategy:      l.Strategy,
				Quantity:      l.Quantity,
				YesVenue:      l.Yes.Venue.String(),
				YesPriceCents: int64(l.Yes.Price),
				NoVenue:       l.No.Venue.String(),
				NoPriceCents:  int64(l.No.Price),
				UnitCostCents: int64(l.UnitCost),
				Opportunity:   l.Opportunity,
				OpenedAt:      l.OpenedAt.UTC(),
			})
		}
		out = append(out, pj)
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}
