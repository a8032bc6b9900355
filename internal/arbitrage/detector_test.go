package arbitrage

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStore map[string]domain.MarketState

func (f fakeStore) Snapshot(id string) (domain.MarketState, error) {
	s, ok := f[id]
	if !ok {
		return domain.MarketState{}, domain.ErrUnknownPair
	}
	return s.Clone(), nil
}

type quote struct {
	venue domain.Venue
	side  domain.Side
	price domain.Cents
	age   time.Duration
}

func stateOf(quotes ...quote) domain.MarketState {
	s := domain.NewMarketState("p1")
	for _, q := range quotes {
		s.Set(q.venue, q.side, domain.Quote{Price: q.price, ObservedAt: now.Add(-q.age)})
	}
	return s
}

func newTestDetector(t *testing.T, st domain.MarketState, order []domain.Strategy) *Detector {
	t.Helper()
	hedges, err := DefaultRegistry().Resolve(order)
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDetector(DetectorConfig{
		Store:     fakeStore{"p1": st},
		Pairs:     []domain.MarketPair{{ID: "p1", DisplayName: "Pair One"}},
		Hedges:    hedges,
		Fees:      DefaultFees(),
		Staleness: 30 * time.Second,
		Now:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDetector_ZeroProfitNotReported(t *testing.T) {
	st := stateOf(
		quote{domain.VenueKalshi, domain.SideYes, 42, 0},
		quote{domain.VenuePolymarket, domain.SideNo, 56, 0},
	)
	d := newTestDetector(t, st, domain.DefaultStrategies)
	if opp, ok := d.Evaluate("p1"); ok {
		t.Fatalf("unexpected opportunity: %+v", opp)
	}
}

func TestDetector_OneCentProfit(t *testing.T) {
	st := stateOf(
		quote{domain.VenueKalshi, domain.SideYes, 42, 0},
		quote{domain.VenuePolymarket, domain.SideNo, 55, 0},
	)
	d := newTestDetector(t, st, domain.DefaultStrategies)
	opp, ok := d.Evaluate("p1")
	if !ok {
		t.Fatal("expected opportunity")
	}
	if opp.TotalCost != 99 {
		t.Errorf("TotalCost = %d, want 99", opp.TotalCost)
	}
	if opp.Fee != 2 {
		t.Errorf("Fee = %d, want 2", opp.Fee)
	}
	if opp.Profit != 1 {
		t.Errorf("Profit = %d, want 1", opp.Profit)
	}
	if math.Abs(opp.ProfitPct-1.0101) > 0.001 {
		t.Errorf("ProfitPct = %f, want ~1.01", opp.ProfitPct)
	}
	if opp.Strategy != domain.StrategyKalshiYesPolyNo {
		t.Errorf("Strategy = %s, want %s", opp.Strategy, domain.StrategyKalshiYesPolyNo)
	}
	if opp.PairID != "p1" || opp.DisplayName != "Pair One" {
		t.Errorf("pair = %q/%q", opp.PairID, opp.DisplayName)
	}
	if opp.ID == "" || !opp.DetectedAt.Equal(now) {
		t.Errorf("ID/DetectedAt not stamped: %q %v", opp.ID, opp.DetectedAt)
	}
}

func TestDetector_MissingLeg(t *testing.T) {
	st := stateOf(
		quote{domain.VenueKalshi, domain.SideYes, 10, 0},
		quote{domain.VenueKalshi, domain.SideNo, 10, 0},
	)
	d := newTestDetector(t, st, domain.DefaultStrategies)
	if _, ok := d.Evaluate("p1"); ok {
		t.Error("opportunity reported with no polymarket quotes")
	}
}

func TestDetector_StaleLegExcluded(t *testing.T) {
	st := stateOf(
		quote{domain.VenueKalshi, domain.SideYes, 40, 0},
		quote{domain.VenuePolymarket, domain.SideNo, 40, time.Minute},
	)
	d := newTestDetector(t, st, domain.DefaultStrategies)
	if _, ok := d.Evaluate("p1"); ok {
		t.Error("opportunity reported on stale leg")
	}
}

func TestDetector_PicksLargerProfit(t *testing.T) {
	st := stateOf(
		quote{domain.VenueKalshi, domain.SideYes, 45, 0},
		quote{domain.VenuePolymarket, domain.SideNo, 50, 0}, // 97 -> profit 3
		quote{domain.VenuePolymarket, domain.SideYes, 40, 0},
		quote{domain.VenueKalshi, domain.SideNo, 50, 0}, // 92 -> profit 8
	)
	d := newTestDetector(t, st, domain.DefaultStrategies)
	opp, ok := d.Evaluate("p1")
	if !ok {
		t.Fatal("expected opportunity")
	}
	if opp.Strategy != domain.StrategyPolyYesKalshiNo || opp.Profit != 8 {
		t.Errorf("got %s profit %d, want %s profit 8", opp.Strategy, opp.Profit, domain.StrategyPolyYesKalshiNo)
	}
}

func TestDetector_TieBreaksOnConfigOrder(t *testing.T) {
	st := stateOf(
		quote{domain.VenueKalshi, domain.SideYes, 45, 0},
		quote{domain.VenuePolymarket, domain.SideNo, 50, 0},
		quote{domain.VenuePolymarket, domain.SideYes, 50, 0},
		quote{domain.VenueKalshi, domain.SideNo, 45, 0},
	)
	cases := []struct {
		order []domain.Strategy
		want  domain.Strategy
	}{
		{domain.DefaultStrategies, domain.StrategyKalshiYesPolyNo},
		{[]domain.Strategy{domain.StrategyPolyYesKalshiNo, domain.StrategyKalshiYesPolyNo}, domain.StrategyPolyYesKalshiNo},
	}
	for _, tc := range cases {
		d := newTestDetector(t, st, tc.order)
		for i := 0; i < 5; i++ {
			opp, ok := d.Evaluate("p1")
			if !ok {
				t.Fatal("expected opportunity")
			}
			if opp.Strategy != tc.want {
				t.Errorf("order %v: Strategy = %s, want %s", tc.order, opp.Strategy, tc.want)
			}
		}
	}
}

func TestDetector_SingleVenueStrategiesOptIn(t *testing.T) {
	st := stateOf(
		quote{domain.VenuePolymarket, domain.SideYes, 40, 0},
		quote{domain.VenuePolymarket, domain.SideNo, 50, 0},
	)
	if _, ok := newTestDetector(t, st, domain.DefaultStrategies).Evaluate("p1"); ok {
		t.Error("same-venue hedge reported without opt-in")
	}

	d := newTestDetector(t, st, append(append([]domain.Strategy(nil), domain.DefaultStrategies...), domain.StrategyPolyOnly))
	opp, ok := d.Evaluate("p1")
	if !ok || opp.Strategy != domain.StrategyPolyOnly || opp.Profit != 10 {
		t.Errorf("got %+v, want poly_only with profit 10", opp)
	}
}

func TestDetector_UnknownPair(t *testing.T) {
	d := newTestDetector(t, stateOf(), domain.DefaultStrategies)
	if _, ok := d.Evaluate("nope"); ok {
		t.Error("opportunity for unknown pair")
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	_, err := DefaultRegistry().Resolve([]domain.Strategy{"kalshi_yes_kalshi_yes"})
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
	want := "valid: kalshi_only, kalshi_yes_poly_no, poly_only, poly_yes_kalshi_no"
	if !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not list %q", err, want)
	}
}
