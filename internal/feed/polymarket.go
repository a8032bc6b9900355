package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/platform/polymarket"
	"github.com/shopspring/decimal"
)

// PolymarketStream is the market channel a PolymarketFeed reads from.
type PolymarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, assetIDs []string) error
	OnBook(handler polymarket.BookHandler)
	Close() error
}

type tokenRoute struct {
	pairID string
	side   domain.Side
}

var one = decimal.NewFromInt(1)

// PolymarketFeed keeps an ask ladder per outcome token and emits the best
// ask, in cents rounded up, for the pair and side the token belongs to.
type PolymarketFeed struct {
	stream  PolymarketStream
	routes  map[string][]tokenRoute // token id -> (pair, side)
	assets  []string
	handler QuoteHandler
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	asks map[string]*Ladder

	ctx atomic.Pointer[context.Context]
	counters
}

// NewPolymarketFeed creates a feed for the Polymarket side of pairs.
func NewPolymarketFeed(stream PolymarketStream, pairs []domain.MarketPair, handler QuoteHandler, logger *slog.Logger) *PolymarketFeed {
	f := &PolymarketFeed{
		stream:  stream,
		routes:  make(map[string][]tokenRoute),
		handler: handler,
		logger:  logger.With(slog.String("component", "polymarket_feed")),
		now:     time.Now,
		asks:    make(map[string]*Ladder),
	}
	add := func(token, pairID string, side domain.Side) {
		if token == "" {
			return
		}
		if _, ok := f.routes[token]; !ok {
			f.assets = append(f.assets, token)
		}
		f.routes[token] = append(f.routes[token], tokenRoute{pairID: pairID, side: side})
	}
	for _, p := range pairs {
		add(p.PolyYesToken, p.ID, domain.SideYes)
		add(p.PolyNoToken, p.ID, domain.SideNo)
	}
	stream.OnBook(f.handleEvent)
	return f
}

// Run connects, subscribes to every tracked token, and blocks until ctx is
// cancelled. Reconnection after the first connect is handled by the stream.
func (f *PolymarketFeed) Run(ctx context.Context) error {
	if len(f.assets) == 0 {
		f.logger.Info("no asset IDs to subscribe, exiting")
		return nil
	}
	f.ctx.Store(&ctx)
	defer f.stream.Close()

	err := connectWithRetry(ctx, f.stream.Connect, func(err error, wait time.Duration) {
		f.logger.Warn("polymarket connect failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("wait", wait),
		)
	})
	if err != nil {
		return nil
	}

	if err := f.stream.Subscribe(ctx, f.assets); err != nil {
		f.logger.Warn("polymarket subscribe failed", slog.String("error", err.Error()))
	} else {
		f.logger.Info("polymarket ws subscribed", slog.Int("assets", len(f.assets)))
	}

	<-ctx.Done()
	return nil
}

// Stats returns the feed counters.
func (f *PolymarketFeed) Stats() Stats {
	return f.counters.snapshot()
}

func (f *PolymarketFeed) handleEvent(ev polymarket.BookEvent) {
	f.events.Add(1)
	routes, ok := f.routes[ev.AssetID]
	if !ok {
		f.unrouted.Add(1)
		return
	}

	f.mu.Lock()
	ladder, ok := f.asks[ev.AssetID]
	if !ok {
		ladder = NewLadder()
		f.asks[ev.AssetID] = ladder
	}

	switch ev.Kind {
	case polymarket.BookSnapshot:
		lv := make([]Level, 0, len(ev.Asks))
		for _, a := range ev.Asks {
			if !validDollarPrice(a.Price) {
				f.malformed.Add(1)
				continue
			}
			lv = append(lv, Level{Price: a.Price, Size: a.Size})
		}
		ladder.Reset(lv)
	case polymarket.BookChange:
		// Bid-side changes leave the asks alone; the book is still live.
		if ev.Side == "SELL" {
			if !validDollarPrice(ev.Price) {
				f.mu.Unlock()
				f.malformed.Add(1)
				return
			}
			ladder.Set(ev.Price, ev.Size)
		}
	}
	best, have := ladder.Best(false)
	f.mu.Unlock()

	price := emptyAsk
	if have {
		price = toCents(best.Shift(2))
	}
	now := f.now()
	ctx := f.runContext()
	for _, r := range routes {
		f.quotes.Add(1)
		f.handler(ctx, domain.QuoteUpdate{
			Venue:        domain.VenuePolymarket,
			MarketPairID: r.pairID,
			Side:         r.side,
			Price:        price,
			ObservedAt:   now,
		})
	}
}

func (f *PolymarketFeed) runContext() context.Context {
	if p := f.ctx.Load(); p != nil {
		return *p
	}
	return context.Background()
}

func validDollarPrice(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(one)
}
