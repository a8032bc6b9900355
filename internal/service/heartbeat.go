package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// RiskSummarizer reports the risk budget.
type RiskSummarizer interface {
	Summary() Summary
}

// StateSource exposes per-pair market state.
type StateSource interface {
	PairIDs() []string
	Snapshot(pairID string) (domain.MarketState, error)
}

// StatePublisher mirrors market state to an external cache.
type StatePublisher interface {
	PutStates(ctx context.Context, states []domain.MarketState) error
}

// Probe is a named counter snapshot logged on every beat.
type Probe struct {
	Name  string
	Stats func() any
}

// Heartbeat periodically logs the system summary and, when a publisher is
// set, mirrors every pair's quotes to it.
type Heartbeat struct {
	interval  time.Duration
	risk      RiskSummarizer
	states    StateSource
	publisher StatePublisher
	probes    []Probe
	logger    *slog.Logger
}

// NewHeartbeat creates a heartbeat. publisher may be nil.
func NewHeartbeat(
	interval time.Duration,
	risk RiskSummarizer,
	states StateSource,
	publisher StatePublisher,
	probes []Probe,
	logger *slog.Logger,
) *Heartbeat {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Heartbeat{
		interval:  interval,
		risk:      risk,
		states:    states,
		publisher: publisher,
		probes:    probes,
		logger:    logger.With(slog.String("component", "heartbeat")),
	}
}

// Run beats until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Beat(ctx)
		}
	}
}

// Beat logs one summary line and publishes state.
func (h *Heartbeat) Beat(ctx context.Context) {
	sum := h.risk.Summary()
	attrs := []any{
		slog.String("breaker", sum.BreakerState.String()),
		slog.Int64("trades", sum.Trades),
		slog.Int("open_positions", sum.OpenPositions),
		slog.Int64("exposure", sum.State.CurrentExposure),
		slog.Int64("open_notional", int64(sum.State.OpenNotional)),
		slog.Float64("realized_pnl_usd", sum.RealizedPnL.Dollars()),
		slog.Float64("unrealized_pnl_usd", sum.UnrealizedPnL.Dollars()),
	}
	for _, p := range h.probes {
		attrs = append(attrs, slog.Any(p.Name, p.Stats()))
	}
	h.logger.InfoContext(ctx, "system heartbeat", attrs...)

	if h.publisher == nil || h.states == nil {
		return
	}
	ids := h.states.PairIDs()
	states := make([]domain.MarketState, 0, len(ids))
	for _, id := range ids {
		st, err := h.states.Snapshot(id)
		if err != nil {
			continue
		}
		states = append(states, st)
	}
	if err := h.publisher.PutStates(ctx, states); err != nil {
		h.logger.WarnContext(ctx, "quote cache publish failed", slog.String("error", err.Error()))
	}
}
