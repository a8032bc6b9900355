package domain

import (
	"fmt"
	"time"
)

// Strategy names which venue supplies the YES leg and which the NO leg of a
// hedge.
type Strategy string

const (
	StrategyKalshiYesPolyNo Strategy = "kalshi_yes_poly_no"
	StrategyPolyYesKalshiNo Strategy = "poly_yes_kalshi_no"
	StrategyPolyOnly        Strategy = "poly_only"
	StrategyKalshiOnly      Strategy = "kalshi_only"
)

// DefaultStrategies is the evaluation order used when none is configured.
var DefaultStrategies = []Strategy{StrategyKalshiYesPolyNo, StrategyPolyYesKalshiNo}

// Venues returns the venues supplying the YES and NO legs.
func (s Strategy) Venues() (yes, no Venue, ok bool) {
	switch s {
	case StrategyKalshiYesPolyNo:
		return VenueKalshi, VenuePolymarket, true
	case StrategyPolyYesKalshiNo:
		return VenuePolymarket, VenueKalshi, true
	case StrategyPolyOnly:
		return VenuePolymarket, VenuePolymarket, true
	case StrategyKalshiOnly:
		return VenueKalshi, VenueKalshi, true
	default:
		return 0, 0, false
	}
}

// Description is the human readable form used in reports.
func (s Strategy) Description() string {
	yes, no, ok := s.Venues()
	if !ok {
		return string(s)
	}
	return fmt.Sprintf("Buy %s YES + %s NO", venueTitle(yes), venueTitle(no))
}

func venueTitle(v Venue) string {
	switch v {
	case VenueKalshi:
		return "Kalshi"
	case VenuePolymarket:
		return "Polymarket"
	default:
		return v.String()
	}
}

// Leg is one side of a hedge: the venue bought on, the outcome, the ask paid
// and the venue fee for one contract.
type Leg struct {
	Venue Venue
	Side  Side
	Price Cents
	Fee   Cents
}

// ArbOpportunity is a fee-adjusted hedge whose guaranteed payout exceeds its
// cost. All amounts are per contract.
type ArbOpportunity struct {
	ID          string
	PairID      string
	DisplayName string
	Strategy    Strategy
	Yes         Leg
	No          Leg
	Fee         Cents // Yes.Fee + No.Fee
	TotalCost   Cents
	Profit      Cents
	ProfitPct   float64 // profit as a percentage of total cost
	DetectedAt  time.Time
}

// Key identifies an opportunity by pair, strategy and price so repeated
// detections of the same book can be suppressed.
func (o ArbOpportunity) Key() string {
	return fmt.Sprintf("%s|%s|%d|%d", o.PairID, o.Strategy, o.Yes.Price, o.No.Price)
}
