package arbitrage

import (
	"testing"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func TestCurveFee(t *testing.T) {
	fee := CurveFee()
	cases := []struct {
		price domain.Cents
		want  domain.Cents
	}{
		{0, 0},
		{100, 0},
		{1, 1},
		{10, 1},
		{30, 2},
		{50, 2},
		{70, 2},
		{99, 1},
	}
	for _, tc := range cases {
		if got := fee(tc.price); got != tc.want {
			t.Errorf("CurveFee(%d) = %d, want %d", tc.price, got, tc.want)
		}
	}
}

func TestFeeSchedule_KalshiOnly(t *testing.T) {
	fs := DefaultFees()
	if got := fs.Fee(domain.VenueKalshi, 42); got != 2 {
		t.Errorf("kalshi fee = %d, want 2", got)
	}
	if got := fs.Fee(domain.VenuePolymarket, 42); got != 0 {
		t.Errorf("polymarket fee = %d, want 0", got)
	}
}

func TestNewFeeSchedule(t *testing.T) {
	fs, err := NewFeeSchedule("fixed", 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := fs.Fee(domain.VenueKalshi, 80); got != 3 {
		t.Errorf("fixed kalshi fee = %d, want 3", got)
	}

	fs, err = NewFeeSchedule("curve", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := fs.Fee(domain.VenueKalshi, 50); got != 2 {
		t.Errorf("curve kalshi fee at 50 = %d, want 2", got)
	}

	fs, err = NewFeeSchedule(" Curve", 0, 0)
	if err != nil {
		t.Fatalf("mixed-case model: %v", err)
	}
	if got := fs.Fee(domain.VenueKalshi, 50); got != 2 {
		t.Errorf("Curve kalshi fee at 50 = %d, want 2", got)
	}

	if _, err := NewFeeSchedule("tiered", 0, 0); err == nil {
		t.Error("expected error for unknown fee model")
	}
}
