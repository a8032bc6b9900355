package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/service"
)

// RiskView is the read side of the risk service.
type RiskView interface {
	Summary() service.Summary
}

// StatusHandler serves the risk budget, P&L and component counters.
type StatusHandler struct {
	mode   string
	dryRun bool
	risk   RiskView
	probes []service.Probe
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, dryRun bool, risk RiskView, probes []service.Probe, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:   mode,
		dryRun: dryRun,
		risk:   risk,
		probes: probes,
		logger: logHandler(logger, "status"),
	}
}

type breakerJSON struct {
	State               string `json:"state"`
	TripReason          string `json:"trip_reason,omitempty"`
	CurrentExposure     int64  `json:"current_exposure"`
	MaxPositionSize     int64  `json:"max_position_size"`
	OpenNotionalCents   int64  `json:"open_notional_cents"`
	CumulativeLossCents int64  `json:"cumulative_realized_loss_cents"`
	MaxDailyLossCents   int64  `json:"max_daily_loss_cents"`
}

type statusResponse struct {
	Mode               string         `json:"mode"`
	DryRun             bool           `json:"dry_run"`
	Breaker            breakerJSON    `json:"breaker"`
	Trades             int64          `json:"trades"`
	OpenPositions      int            `json:"open_positions"`
	RealizedPnLCents   int64          `json:"realized_pnl_cents"`
	UnrealizedPnLCents int64          `json:"unrealized_pnl_cents"`
	Components         map[string]any `json:"components,omitempty"`
}

// GetStatus responds with the breaker state, P&L and per-component stats.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sum := h.risk.Summary()
	resp := statusResponse{
		Mode:   h.mode,
		DryRun: h.dryRun,
		Breaker: breakerJSON{
			State:               sum.BreakerState.String(),
			CurrentExposure:     sum.State.CurrentExposure,
			MaxPositionSize:     sum.Limits.MaxPositionSize,
			OpenNotionalCents:   int64(sum.State.OpenNotional),
			CumulativeLossCents: int64(sum.State.CumulativeRealizedLoss),
			MaxDailyLossCents:   int64(sum.Limits.MaxDailyLoss),
		},
		Trades:             sum.Trades,
		OpenPositions:      sum.OpenPositions,
		RealizedPnLCents:   int64(sum.RealizedPnL),
		UnrealizedPnLCents: int64(sum.UnrealizedPnL),
	}
	if sum.State.Tripped {
		resp.Breaker.TripReason = sum.State.TripReason.String()
	}
	if len(h.probes) > 0 {
		resp.Components = make(map[string]any, len(h.probes))
		for _, p := range h.probes {
			resp.Components[p.Name] = p.Stats()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
