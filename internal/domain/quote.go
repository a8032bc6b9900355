package domain

import (
	"fmt"
	"time"
)

// Venue identifies the exchange a quote came from.
type Venue int

const (
	VenueKalshi Venue = iota
	VenuePolymarket
)

func (v Venue) String() string {
	switch v {
	case VenueKalshi:
		return "kalshi"
	case VenuePolymarket:
		return "polymarket"
	default:
		return fmt.Sprintf("venue(%d)", int(v))
	}
}

// Valid reports whether v is one of the known venues.
func (v Venue) Valid() bool {
	return v == VenueKalshi || v == VenuePolymarket
}

// Side is the outcome a binary contract pays out on.
type Side int

const (
	SideYes Side = iota
	SideNo
)

func (s Side) String() string {
	switch s {
	case SideYes:
		return "YES"
	case SideNo:
		return "NO"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Valid reports whether s is YES or NO.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Cents is a price or amount in integer cents. A binary contract pays
// either 0 or PayoutCents at resolution.
type Cents int64

// PayoutCents is the settlement value of a winning contract.
const PayoutCents Cents = 100

// Valid reports whether c is a legal contract price.
func (c Cents) Valid() bool {
	return c >= 0 && c <= PayoutCents
}

// Dollars returns the amount as a float for display.
func (c Cents) Dollars() float64 {
	return float64(c) / 100
}

// Quote is the best ask observed for one side of one venue.
type Quote struct {
	Price      Cents
	ObservedAt time.Time
}

// QuoteUpdate is a single normalized price observation emitted by a feed.
type QuoteUpdate struct {
	Venue        Venue
	MarketPairID string
	Side         Side
	Price        Cents
	ObservedAt   time.Time
}

// Validate checks the update is structurally sound. It does not check that
// the pair is known.
func (u QuoteUpdate) Validate() error {
	if !u.Venue.Valid() {
		return fmt.Errorf("%w: unknown venue %d", ErrMalformedQuote, int(u.Venue))
	}
	if !u.Side.Valid() {
		return fmt.Errorf("%w: unknown side %d", ErrMalformedQuote, int(u.Side))
	}
	if !u.Price.Valid() {
		return fmt.Errorf("%w: price %d outside [0,100]", ErrMalformedQuote, u.Price)
	}
	if u.MarketPairID == "" {
		return fmt.Errorf("%w: empty market pair id", ErrMalformedQuote)
	}
	return nil
}

// Slot indexes the four (venue, side) quote positions of a market pair.
type Slot struct {
	Venue Venue
	Side  Side
}

// Index returns a dense 0..3 index for the slot.
func (s Slot) Index() int {
	return int(s.Venue)*2 + int(s.Side)
}

// MarketState holds the latest quote for each (venue, side) slot of a pair.
// A nil entry means no quote has been observed for that slot yet.
type MarketState struct {
	PairID string
	quotes [4]*Quote
}

// NewMarketState returns an empty state for the given pair.
func NewMarketState(pairID string) MarketState {
	return MarketState{PairID: pairID}
}

// Quote returns the quote stored for the slot, if any.
func (m MarketState) Quote(v Venue, s Side) (Quote, bool) {
	q := m.quotes[Slot{v, s}.Index()]
	if q == nil {
		return Quote{}, false
	}
	return *q, true
}

// Set replaces the slot with q.
func (m *MarketState) Set(v Venue, s Side, q Quote) {
	m.quotes[Slot{v, s}.Index()] = &q
}

// Clone returns a deep copy that shares nothing with m.
func (m MarketState) Clone() MarketState {
	out := MarketState{PairID: m.PairID}
	for i, q := range m.quotes {
		if q != nil {
			c := *q
			out.quotes[i] = &c
		}
	}
	return out
}

// Equal reports whether both states hold identical quotes.
func (m MarketState) Equal(o MarketState) bool {
	if m.PairID != o.PairID {
		return false
	}
	for i := range m.quotes {
		a, b := m.quotes[i], o.quotes[i]
		if (a == nil) != (b == nil) {
			return false
		}
		if a != nil && (a.Price != b.Price || !a.ObservedAt.Equal(b.ObservedAt)) {
			return false
		}
	}
	return true
}
