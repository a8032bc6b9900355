// Package position tracks hypothetical fills of admitted opportunities.
package position

import (
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// QuoteReader supplies the latest quotes used for mark-to-market.
type QuoteReader interface {
	Snapshot(pairID string) (domain.MarketState, error)
}

// Tracker holds open positions and running P&L. Like the circuit breaker it
// shares, it performs no locking of its own: callers serialize Record and
// Settle with admission.
type Tracker struct {
	state     *domain.BreakerState
	quotes    QuoteReader
	positions map[string]*domain.Position
	realized  domain.Cents
	trades    int64
	now       func() time.Time
}

// NewTracker creates a tracker that books exposure into state.
func NewTracker(state *domain.BreakerState, quotes QuoteReader) *Tracker {
	return &Tracker{
		state:     state,
		quotes:    quotes,
		positions: make(map[string]*domain.Position),
		now:       time.Now,
	}
}

// Record books quantity contracts of an admitted opportunity.
func (t *Tracker) Record(opp domain.ArbOpportunity, quantity int64) {
	cost := domain.Cents(quantity) * opp.TotalCost

	p, ok := t.positions[opp.PairID]
	if !ok {
		p = &domain.Position{PairID: opp.PairID, OpenedAt: t.now()}
		t.positions[opp.PairID] = p
	}
	p.Quantity += quantity
	p.CostBasis += cost
	p.Lots = append(p.Lots, domain.Lot{
		Strategy:    opp.Strategy,
		Yes:         opp.Yes,
		No:          opp.No,
		Quantity:    quantity,
		UnitCost:    opp.TotalCost,
		OpenedAt:    t.now(),
		Opportunity: opp.ID,
	})

	t.state.CurrentExposure += quantity
	t.state.OpenNotional += cost
	t.trades++
}

// Settle closes the pair's position at a terminal payout of 0 or 100 cents
// per contract and books realized P&L. Losses count against the daily
// budget.
func (t *Tracker) Settle(pairID string, payout domain.Cents) (domain.Settlement, error) {
	if payout != 0 && payout != domain.PayoutCents {
		return domain.Settlement{}, fmt.Errorf("position: settle %s at %d: %w", pairID, payout, domain.ErrInvalidSettlement)
	}
	p, ok := t.positions[pairID]
	if !ok {
		return domain.Settlement{}, fmt.Errorf("position: settle %s: %w", pairID, domain.ErrNoPosition)
	}
	delete(t.positions, pairID)

	pnl := payout*domain.Cents(p.Quantity) - p.CostBasis
	t.realized += pnl
	if pnl < 0 {
		t.state.CumulativeRealizedLoss += -pnl
	}
	t.state.CurrentExposure -= p.Quantity
	t.state.OpenNotional -= p.CostBasis

	return domain.Settlement{
		PairID:      pairID,
		Quantity:    p.Quantity,
		CostBasis:   p.CostBasis,
		Payout:      payout,
		RealizedPnL: pnl,
		SettledAt:   t.now(),
	}, nil
}

// RealizedPnL is the sum of all settled P&L.
func (t *Tracker) RealizedPnL() domain.Cents { return t.realized }

// UnrealizedPnL marks every open lot against the current asks of its two
// legs. A lot with a leg that has no quote is carried at cost. The figure is
// informational only.
func (t *Tracker) UnrealizedPnL() domain.Cents {
	var total domain.Cents
	for id, p := range t.positions {
		state, err := t.quotes.Snapshot(id)
		if err != nil {
			continue
		}
		for _, lot := range p.Lots {
			yes, okY := state.Quote(lot.Yes.Venue, domain.SideYes)
			no, okN := state.Quote(lot.No.Venue, domain.SideNo)
			if !okY || !okN {
				continue
			}
			paid := lot.UnitCost
			mark := yes.Price + no.Price + lot.Yes.Fee + lot.No.Fee
			total += domain.Cents(lot.Quantity) * (mark - paid)
		}
	}
	return total
}

// Position returns a copy of the pair's open position.
func (t *Tracker) Position(pairID string) (domain.Position, bool) {
	p, ok := t.positions[pairID]
	if !ok {
		return domain.Position{}, false
	}
	return p.Clone(), true
}

// Positions returns copies of all open positions ordered by pair id.
func (t *Tracker) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PairID < out[j].PairID })
	return out
}

// Trades is the number of recorded fills.
func (t *Tracker) Trades() int64 { return t.trades }
