package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/position"
	"github.com/alanyoungcy/crossarb/internal/risk"
)

// TripFunc is called, outside the admission lock, when an admission trips
// the breaker.
type TripFunc func(ctx context.Context, opp domain.ArbOpportunity, reason domain.RejectReason)

// RiskService is the single serialization point for the risk budget. Admit
// and Record run under one mutex so two opportunities can never both spend
// the same headroom. Settle, Reset and every read take the same mutex.
type RiskService struct {
	mu      sync.Mutex
	state   *domain.BreakerState
	breaker *risk.CircuitBreaker
	tracker *position.Tracker
	onTrip  TripFunc
	logger  *slog.Logger
}

// NewRiskService creates the admission gate. breaker and tracker must share
// state.
func NewRiskService(
	state *domain.BreakerState,
	breaker *risk.CircuitBreaker,
	tracker *position.Tracker,
	logger *slog.Logger,
) *RiskService {
	return &RiskService{
		state:   state,
		breaker: breaker,
		tracker: tracker,
		logger:  logger.With(slog.String("component", "risk_service")),
	}
}

// OnTrip registers a callback fired when an admission trips the breaker.
func (s *RiskService) OnTrip(fn TripFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTrip = fn
}

// Process runs the circuit breaker and, if admitted, records the fill, as
// one atomic step.
func (s *RiskService) Process(ctx context.Context, opp domain.ArbOpportunity, quantity int64) (domain.Admission, error) {
	if quantity <= 0 {
		return domain.Admission{}, fmt.Errorf("risk_service: quantity %d must be positive", quantity)
	}

	s.mu.Lock()
	wasTripped := s.state.Tripped
	adm := s.breaker.Admit(opp, quantity)
	if adm.Admitted {
		s.tracker.Record(opp, quantity)
	}
	onTrip := s.onTrip
	s.mu.Unlock()

	if !wasTripped && !adm.Admitted && onTrip != nil {
		onTrip(ctx, opp, adm.Reason)
	}
	return adm, nil
}

// Settle closes a pair's position with a terminal per-contract payout.
func (s *RiskService) Settle(ctx context.Context, pairID string, payout domain.Cents) (domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.tracker.Settle(pairID, payout)
	if err != nil {
		return domain.Settlement{}, err
	}
	s.breaker.CheckRealized()
	s.logger.InfoContext(ctx, "position settled",
		slog.String("pair", pairID),
		slog.Int64("quantity", st.Quantity),
		slog.Int64("payout", int64(st.Payout)),
		slog.Int64("realized_pnl", int64(st.RealizedPnL)),
	)
	return st, nil
}

// Reset re-arms the circuit breaker. Operator action only.
func (s *RiskService) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breaker.Reset()
	s.logger.WarnContext(ctx, "circuit breaker reset by operator")
}

// Summary is a consistent view of the risk budget and P&L.
type Summary struct {
	State         domain.BreakerState
	BreakerState  risk.State
	Limits        risk.Limits
	Trades        int64
	OpenPositions int
	RealizedPnL   domain.Cents
	UnrealizedPnL domain.Cents
}

// Summary returns the current budget, positions and P&L.
func (s *RiskService) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		State:         *s.state,
		BreakerState:  s.breaker.State(),
		Limits:        s.breaker.Limits(),
		Trades:        s.tracker.Trades(),
		OpenPositions: len(s.tracker.Positions()),
		RealizedPnL:   s.tracker.RealizedPnL(),
		UnrealizedPnL: s.tracker.UnrealizedPnL(),
	}
}

// OpenPairs lists pairs that currently hold a position.
func (s *RiskService) OpenPairs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.tracker.Positions()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.PairID
	}
	return out
}

// Positions returns a copy of every open position.
func (s *RiskService) Positions() []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Positions()
}
