// Package arbitrage prices YES/NO hedges across Kalshi and Polymarket and
// picks the most profitable one for a market pair.
package arbitrage

import (
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Hedge evaluates one way of buying both outcomes of a pair.
type Hedge interface {
	Name() domain.Strategy
	// Price computes the per-contract economics of the hedge. ok is false
	// when a leg is missing or older than the staleness cutoff.
	Price(state domain.MarketState, fees FeeSchedule, cutoff time.Time) (opp domain.ArbOpportunity, ok bool)
}

// legHedge buys YES on one venue and NO on another (or the same) venue.
type legHedge struct {
	name domain.Strategy
	yes  domain.Venue
	no   domain.Venue
}

// NewHedge returns the hedge for a strategy name.
func NewHedge(s domain.Strategy) (Hedge, bool) {
	yes, no, ok := s.Venues()
	if !ok {
		return nil, false
	}
	return legHedge{name: s, yes: yes, no: no}, true
}

func (h legHedge) Name() domain.Strategy { return h.name }

func (h legHedge) Price(state domain.MarketState, fees FeeSchedule, cutoff time.Time) (domain.ArbOpportunity, bool) {
	yq, ok := fresh(state, h.yes, domain.SideYes, cutoff)
	if !ok {
		return domain.ArbOpportunity{}, false
	}
	nq, ok := fresh(state, h.no, domain.SideNo, cutoff)
	if !ok {
		return domain.ArbOpportunity{}, false
	}

	yes := domain.Leg{Venue: h.yes, Side: domain.SideYes, Price: yq.Price, Fee: fees.Fee(h.yes, yq.Price)}
	no := domain.Leg{Venue: h.no, Side: domain.SideNo, Price: nq.Price, Fee: fees.Fee(h.no, nq.Price)}
	return Cost(h.name, yes, no), true
}

// Cost fills in fee, total cost, profit and profit percentage for a pair of
// legs.
func Cost(s domain.Strategy, yes, no domain.Leg) domain.ArbOpportunity {
	fee := yes.Fee + no.Fee
	total := yes.Price + no.Price + fee
	profit := domain.PayoutCents - total
	var pct float64
	if total > 0 {
		pct = float64(profit) / float64(total) * 100
	}
	return domain.ArbOpportunity{
		Strategy:  s,
		Yes:       yes,
		No:        no,
		Fee:       fee,
		TotalCost: total,
		Profit:    profit,
		ProfitPct: pct,
	}
}

func fresh(state domain.MarketState, v domain.Venue, s domain.Side, cutoff time.Time) (domain.Quote, bool) {
	q, ok := state.Quote(v, s)
	if !ok {
		return domain.Quote{}, false
	}
	if !cutoff.IsZero() && q.ObservedAt.Before(cutoff) {
		return domain.Quote{}, false
	}
	return q, true
}
