// Package risk enforces the process-wide position and loss budget.
package risk

import (
	"log/slog"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// State is the breaker's admission state.
type State int

const (
	StateArmed   State = iota // admitting
	StateTripped              // rejecting everything until Reset
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "ARMED"
	case StateTripped:
		return "TRIPPED"
	default:
		return "UNKNOWN"
	}
}

// Limits are the configured risk budget.
type Limits struct {
	MaxPositionSize int64        // open contracts
	MaxDailyLoss    domain.Cents // realized plus worst-case open loss
}

// DefaultLimits returns 10 contracts and $50 of loss.
func DefaultLimits() Limits {
	return Limits{MaxPositionSize: 10, MaxDailyLoss: 5000}
}

// CircuitBreaker admits or rejects opportunities against a shared
// BreakerState. It performs no locking; every call must be made under the
// caller's single admission lock together with the matching position
// update.
type CircuitBreaker struct {
	limits Limits
	state  *domain.BreakerState
	logger *slog.Logger
}

// NewCircuitBreaker creates an armed breaker over state.
func NewCircuitBreaker(limits Limits, state *domain.BreakerState, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		limits: limits,
		state:  state,
		logger: logger.With(slog.String("component", "circuit_breaker")),
	}
}

// Admit decides whether quantity contracts of opp fit the remaining budget.
// Exceeding either limit trips the breaker; once tripped every call returns
// CircuitOpen until Reset.
//
// The loss projection assumes the worst case for open positions: both legs
// resolve against the hedge and the whole cost basis is lost.
func (cb *CircuitBreaker) Admit(opp domain.ArbOpportunity, quantity int64) domain.Admission {
	st := cb.state
	if st.Tripped {
		return domain.Reject(domain.RejectCircuitOpen)
	}

	if st.CurrentExposure+quantity > cb.limits.MaxPositionSize {
		cb.trip(domain.RejectExceedsPositionLimit, opp, quantity)
		return domain.Reject(domain.RejectExceedsPositionLimit)
	}

	projected := st.CumulativeRealizedLoss + st.OpenNotional + domain.Cents(quantity)*opp.TotalCost
	if projected > cb.limits.MaxDailyLoss {
		cb.trip(domain.RejectExceedsDailyLossLimit, opp, quantity)
		return domain.Reject(domain.RejectExceedsDailyLossLimit)
	}

	return domain.Admit()
}

// CheckRealized trips the breaker if realized losses alone already exceed
// the daily limit. Called after a settlement books a loss.
func (cb *CircuitBreaker) CheckRealized() {
	if cb.state.Tripped || cb.state.CumulativeRealizedLoss <= cb.limits.MaxDailyLoss {
		return
	}
	cb.state.Tripped = true
	cb.state.TripReason = domain.RejectExceedsDailyLossLimit
	cb.logger.Warn("circuit breaker tripped by realized loss",
		slog.Int64("realized_loss", int64(cb.state.CumulativeRealizedLoss)),
		slog.Int64("max_daily_loss", int64(cb.limits.MaxDailyLoss)),
	)
}

func (cb *CircuitBreaker) trip(reason domain.RejectReason, opp domain.ArbOpportunity, quantity int64) {
	cb.state.Tripped = true
	cb.state.TripReason = reason
	cb.logger.Warn("circuit breaker tripped",
		slog.String("reason", reason.String()),
		slog.String("pair", opp.PairID),
		slog.Int64("quantity", quantity),
		slog.Int64("exposure", cb.state.CurrentExposure),
		slog.Int64("open_notional", int64(cb.state.OpenNotional)),
		slog.Int64("realized_loss", int64(cb.state.CumulativeRealizedLoss)),
	)
}

// Reset re-arms the breaker and starts a fresh loss budget. Open exposure
// is kept: those positions are still held.
func (cb *CircuitBreaker) Reset() {
	prev := cb.State()
	cb.state.Tripped = false
	cb.state.TripReason = domain.RejectNone
	cb.state.CumulativeRealizedLoss = 0
	cb.logger.Info("circuit breaker reset", slog.String("previous_state", prev.String()))
}

// State returns ARMED or TRIPPED.
func (cb *CircuitBreaker) State() State {
	if cb.state.Tripped {
		return StateTripped
	}
	return StateArmed
}

// Limits returns the configured limits.
func (cb *CircuitBreaker) Limits() Limits { return cb.limits }
