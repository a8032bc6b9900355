package arbitrage

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// FeeFunc returns the per-contract fee charged for buying at price.
type FeeFunc func(price domain.Cents) domain.Cents

// FixedFee charges the same amount regardless of price.
func FixedFee(c domain.Cents) FeeFunc {
	return func(domain.Cents) domain.Cents { return c }
}

// NoFee is the zero fee.
func NoFee() FeeFunc { return FixedFee(0) }

// CurveFee is Kalshi's taker schedule, ceil(0.07 × P × (1−P)) dollars per
// contract, expressed in cents. Prices strictly inside (0,100) pay at least
// one cent; 0 and 100 pay nothing.
func CurveFee() FeeFunc {
	return func(p domain.Cents) domain.Cents {
		if p <= 0 || p >= domain.PayoutCents {
			return 0
		}
		// 0.07 × (p/100) × (1 − p/100) × 100 = 7·p·(100−p) / 10000
		n := 7 * int64(p) * int64(domain.PayoutCents-p)
		fee := domain.Cents((n + 9999) / 10000)
		if fee < 1 {
			fee = 1
		}
		return fee
	}
}

// FeeSchedule holds the fee function for each venue.
type FeeSchedule struct {
	Kalshi     FeeFunc
	Polymarket FeeFunc
}

// DefaultFees charges the fixed 2 cent Kalshi fee and nothing on Polymarket.
func DefaultFees() FeeSchedule {
	return FeeSchedule{Kalshi: FixedFee(2), Polymarket: NoFee()}
}

// NewFeeSchedule builds a schedule from the configured Kalshi fee model.
// The model name is case-insensitive.
func NewFeeSchedule(kalshiModel string, kalshiFixed, polyFixed domain.Cents) (FeeSchedule, error) {
	fs := FeeSchedule{Polymarket: FixedFee(polyFixed)}
	switch strings.ToLower(strings.TrimSpace(kalshiModel)) {
	case "", "fixed":
		fs.Kalshi = FixedFee(kalshiFixed)
	case "curve":
		fs.Kalshi = CurveFee()
	default:
		return FeeSchedule{}, fmt.Errorf("arbitrage: unknown kalshi fee model %q", kalshiModel)
	}
	return fs, nil
}

// Fee returns the fee for buying one contract at price on venue v.
func (f FeeSchedule) Fee(v domain.Venue, price domain.Cents) domain.Cents {
	var fn FeeFunc
	switch v {
	case domain.VenueKalshi:
		fn = f.Kalshi
	case domain.VenuePolymarket:
		fn = f.Polymarket
	}
	if fn == nil {
		return 0
	}
	return fn(price)
}
