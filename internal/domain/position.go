package domain

import "time"

// Lot is one admitted fill. A position is the sum of its lots.
type Lot struct {
	Strategy    Strategy
	Yes         Leg
	No          Leg
	Quantity    int64
	UnitCost    Cents
	OpenedAt    time.Time
	Opportunity string
}

// Position is the hypothetical open exposure on one market pair.
type Position struct {
	PairID    string
	Quantity  int64
	CostBasis Cents
	OpenedAt  time.Time
	Lots      []Lot
}

// Clone returns a copy whose lot slice is not shared.
func (p Position) Clone() Position {
	out := p
	out.Lots = append([]Lot(nil), p.Lots...)
	return out
}

// Settlement is the terminal outcome of a closed position.
type Settlement struct {
	PairID      string
	Quantity    int64
	CostBasis   Cents
	Payout      Cents // per contract
	RealizedPnL Cents
	SettledAt   time.Time
}
