package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// StateSource exposes the latest market state per pair.
type StateSource interface {
	Snapshot(pairID string) (domain.MarketState, error)
}

// PairHandler serves the configured market pairs and their current quotes.
type PairHandler struct {
	pairs  []domain.MarketPair
	states StateSource
	logger *slog.Logger
}

// NewPairHandler creates a PairHandler over the configured pairs.
func NewPairHandler(pairs []domain.MarketPair, states StateSource, logger *slog.Logger) *PairHandler {
	return &PairHandler{pairs: pairs, states: states, logger: logHandler(logger, "pairs")}
}

type pairJSON struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	KalshiTicker string     `json:"kalshi_ticker"`
	PolyMarket   string     `json:"polymarket_market,omitempty"`
	KalshiYes    *quoteJSON `json:"kalshi_yes"`
	KalshiNo     *quoteJSON `json:"kalshi_no"`
	PolyYes      *quoteJSON `json:"polymarket_yes"`
	PolyNo       *quoteJSON `json:"polymarket_no"`
}

func (h *PairHandler) render(p domain.MarketPair) (pairJSON, error) {
	out := pairJSON{
		ID:           p.ID,
		Name:         p.DisplayName,
		KalshiTicker: p.KalshiTicker,
		PolyMarket:   p.PolyMarket,
	}
	st, err := h.states.Snapshot(p.ID)
	if err != nil {
		return out, err
	}
	out.KalshiYes = toQuoteJSON(st, domain.VenueKalshi, domain.SideYes)
	out.KalshiNo = toQuoteJSON(st, domain.VenueKalshi, domain.SideNo)
	out.PolyYes = toQuoteJSON(st, domain.VenuePolymarket, domain.SideYes)
	out.PolyNo = toQuoteJSON(st, domain.VenuePolymarket, domain.SideNo)
	return out, nil
}

// ListPairs returns every configured pair with its four latest quotes.
// GET /api/pairs
func (h *PairHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	out := make([]pairJSON, 0, len(h.pairs))
	for _, p := range h.pairs {
		pj, err := h.render(p)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: snapshot failed",
				slog.String("pair", p.ID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to read market state")
			return
		}
		out = append(out, pj)
	}
	writeJSON(w, http.StatusOK, map[string]any{"pairs": out})
}

// GetPair returns a single pair by id.
// GET /api/pairs/{id}
func (h *PairHandler) GetPair(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, p := range h.pairs {
		if p.ID != id {
			continue
		}
		pj, err := h.render(p)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownPair) {
				writeError(w, http.StatusNotFound, "pair not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to read market state")
			return
		}
		writeJSON(w, http.StatusOK, pj)
		return
	}
	writeError(w, http.StatusNotFound, "pair not found")
}
