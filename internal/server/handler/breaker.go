package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// BreakerResetter re-arms the circuit breaker.
type BreakerResetter interface {
	Reset(ctx context.Context)
}

// BreakerHandler exposes the operator reset.
type BreakerHandler struct {
	risk   BreakerResetter
	logger *slog.Logger
}

// NewBreakerHandler creates a BreakerHandler.
func NewBreakerHandler(risk BreakerResetter, logger *slog.Logger) *BreakerHandler {
	return &BreakerHandler{risk: risk, logger: logHandler(logger, "breaker")}
}

// Reset re-arms a tripped breaker. Idempotent.
// POST /api/breaker/reset
func (h *BreakerHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.risk.Reset(r.Context())
	h.logger.InfoContext(r.Context(), "handler: breaker reset requested",
		slog.String("remote_addr", r.RemoteAddr),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "armed"})
}
