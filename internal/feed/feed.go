// Package feed turns venue orderbook streams into normalized quote updates.
package feed

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/shopspring/decimal"
)

// QuoteHandler receives every normalized quote a feed produces.
type QuoteHandler func(ctx context.Context, u domain.QuoteUpdate)

const (
	connectTimeout = 15 * time.Second
	retryDelay     = 2 * time.Second
	maxRetryDelay  = 60 * time.Second
)

var hundred = decimal.NewFromInt(100)

// emptyAsk is quoted for a side with no liquidity. A full-payout ask can
// never complete a profitable hedge, and it replaces whatever ask the slot
// held before the book emptied.
const emptyAsk = domain.PayoutCents

// toCents rounds a cent amount up to a whole cent and clamps it into the
// legal contract range, so a derived cost is never understated.
func toCents(c decimal.Decimal) domain.Cents {
	v := c.Ceil().IntPart()
	if v < 0 {
		v = 0
	}
	if v > int64(domain.PayoutCents) {
		v = int64(domain.PayoutCents)
	}
	return domain.Cents(v)
}

// Stats are a feed's running counters.
type Stats struct {
	Events    int64
	Quotes    int64
	Unrouted  int64
	Malformed int64
}

type counters struct {
	events    atomic.Int64
	quotes    atomic.Int64
	unrouted  atomic.Int64
	malformed atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Events:    c.events.Load(),
		Quotes:    c.quotes.Load(),
		Unrouted:  c.unrouted.Load(),
		Malformed: c.malformed.Load(),
	}
}

// connectWithRetry calls connect until it succeeds or ctx ends, backing off
// exponentially between attempts.
func connectWithRetry(ctx context.Context, connect func(context.Context) error, onErr func(error, time.Duration)) error {
	delay := retryDelay
	for {
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := connect(cctx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onErr(err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}
