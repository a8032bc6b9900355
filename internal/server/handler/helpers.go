package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseLimit reads ?limit= with a default and an upper bound.
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

// quoteJSON is one (venue, side) slot of a pair. Nil when unobserved.
type quoteJSON struct {
	PriceCents int64     `json:"price_cents"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

func toQuoteJSON(st domain.MarketState, v domain.Venue, s domain.Side) *quoteJSON {
	q, ok := st.Quote(v, s)
	if !ok {
		return nil
	}
	return &quoteJSON{
		PriceCents: int64(q.Price),
		Price:      q.Price.Dollars(),
		ObservedAt: q.ObservedAt.UTC(),
	}
}
