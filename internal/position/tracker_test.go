package position

import (
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type fakeQuotes map[string]domain.MarketState

func (f fakeQuotes) Snapshot(id string) (domain.MarketState, error) {
	s, ok := f[id]
	if !ok {
		return domain.MarketState{}, domain.ErrUnknownPair
	}
	return s, nil
}

func hedge(pair string, yes, no domain.Cents) domain.ArbOpportunity {
	return domain.ArbOpportunity{
		ID:        "opp-" + pair,
		PairID:    pair,
		Strategy:  domain.StrategyKalshiYesPolyNo,
		Yes:       domain.Leg{Venue: domain.VenueKalshi, Side: domain.SideYes, Price: yes, Fee: 2},
		No:        domain.Leg{Venue: domain.VenuePolymarket, Side: domain.SideNo, Price: no},
		Fee:       2,
		TotalCost: yes + no + 2,
		Profit:    domain.PayoutCents - (yes + no + 2),
	}
}

func TestTracker_RecordAugments(t *testing.T) {
	st := &domain.BreakerState{}
	tr := NewTracker(st, fakeQuotes{})

	tr.Record(hedge("p1", 42, 55), 2)
	tr.Record(hedge("p1", 40, 55), 1)

	p, ok := tr.Position("p1")
	if !ok {
		t.Fatal("no position recorded")
	}
	if p.Quantity != 3 {
		t.Errorf("Quantity = %d, want 3", p.Quantity)
	}
	if want := domain.Cents(2*99 + 97); p.CostBasis != want {
		t.Errorf("CostBasis = %d, want %d", p.CostBasis, want)
	}
	if len(p.Lots) != 2 {
		t.Errorf("lots = %d, want 2", len(p.Lots))
	}
	if st.CurrentExposure != 3 || st.OpenNotional != 295 {
		t.Errorf("state = %+v, want exposure 3 notional 295", *st)
	}
	if st.CumulativeRealizedLoss != 0 {
		t.Errorf("realized loss touched by Record: %d", st.CumulativeRealizedLoss)
	}
	if tr.Trades() != 2 {
		t.Errorf("Trades = %d, want 2", tr.Trades())
	}
}

func TestTracker_Settle(t *testing.T) {
	cases := []struct {
		name     string
		payout   domain.Cents
		wantPnL  domain.Cents
		wantLoss domain.Cents
	}{
		{"hedge pays out", 100, 2, 0},
		{"hedge lost", 0, -198, 198},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := &domain.BreakerState{}
			tr := NewTracker(st, fakeQuotes{})
			tr.Record(hedge("p1", 42, 55), 2)

			s, err := tr.Settle("p1", tc.payout)
			if err != nil {
				t.Fatal(err)
			}
			if s.RealizedPnL != tc.wantPnL || tr.RealizedPnL() != tc.wantPnL {
				t.Errorf("RealizedPnL = %d/%d, want %d", s.RealizedPnL, tr.RealizedPnL(), tc.wantPnL)
			}
			if st.CumulativeRealizedLoss != tc.wantLoss {
				t.Errorf("CumulativeRealizedLoss = %d, want %d", st.CumulativeRealizedLoss, tc.wantLoss)
			}
			if st.CurrentExposure != 0 || st.OpenNotional != 0 {
				t.Errorf("exposure not released: %+v", *st)
			}
			if _, ok := tr.Position("p1"); ok {
				t.Error("position still open after settle")
			}
		})
	}
}

func TestTracker_SettleErrors(t *testing.T) {
	tr := NewTracker(&domain.BreakerState{}, fakeQuotes{})
	if _, err := tr.Settle("p1", 100); !errors.Is(err, domain.ErrNoPosition) {
		t.Errorf("err = %v, want ErrNoPosition", err)
	}
	tr.Record(hedge("p1", 42, 55), 1)
	if _, err := tr.Settle("p1", 50); !errors.Is(err, domain.ErrInvalidSettlement) {
		t.Errorf("err = %v, want ErrInvalidSettlement", err)
	}
}

func TestTracker_UnrealizedPnL(t *testing.T) {
	now := time.Now()
	st := domain.NewMarketState("p1")
	st.Set(domain.VenueKalshi, domain.SideYes, domain.Quote{Price: 45, ObservedAt: now})
	st.Set(domain.VenuePolymarket, domain.SideNo, domain.Quote{Price: 55, ObservedAt: now})

	tr := NewTracker(&domain.BreakerState{}, fakeQuotes{"p1": st})
	tr.Record(hedge("p1", 42, 55), 2) // paid 99, marks at 45+55+2 = 102
	tr.Record(hedge("p2", 42, 55), 5) // no quotes: carried at cost

	if got := tr.UnrealizedPnL(); got != 6 {
		t.Errorf("UnrealizedPnL = %d, want 6", got)
	}
}
