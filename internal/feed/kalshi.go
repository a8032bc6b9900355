package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/platform/kalshi"
)

// KalshiStream is the orderbook stream a KalshiFeed reads from.
type KalshiStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, tickers []string) error
	OnBook(handler kalshi.BookHandler)
	Close() error
}

// kalshiBook holds the resting bids for both outcomes of one ticker. Kalshi
// only publishes bids: a YES ask is the complement of the best NO bid.
type kalshiBook struct {
	yes *Ladder
	no  *Ladder
}

// KalshiFeed maintains per-ticker bid ladders and emits YES and NO asks for
// every pair that references the ticker.
type KalshiFeed struct {
	stream  KalshiStream
	routes  map[string][]string // ticker -> pair ids
	tickers []string
	handler QuoteHandler
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	books map[string]*kalshiBook

	ctx atomic.Pointer[context.Context]
	counters
}

// NewKalshiFeed creates a feed for the Kalshi side of pairs.
func NewKalshiFeed(stream KalshiStream, pairs []domain.MarketPair, handler QuoteHandler, logger *slog.Logger) *KalshiFeed {
	f := &KalshiFeed{
		stream:  stream,
		routes:  make(map[string][]string),
		handler: handler,
		logger:  logger.With(slog.String("component", "kalshi_feed")),
		now:     time.Now,
		books:   make(map[string]*kalshiBook),
	}
	for _, p := range pairs {
		if p.KalshiTicker == "" {
			continue
		}
		if _, ok := f.routes[p.KalshiTicker]; !ok {
			f.tickers = append(f.tickers, p.KalshiTicker)
		}
		f.routes[p.KalshiTicker] = append(f.routes[p.KalshiTicker], p.ID)
	}
	stream.OnBook(f.handleEvent)
	return f
}

// Run connects, subscribes to every tracked ticker, and blocks until ctx is
// cancelled. Reconnection after the first connect is handled by the stream.
func (f *KalshiFeed) Run(ctx context.Context) error {
	if len(f.tickers) == 0 {
		f.logger.Info("no kalshi tickers to subscribe, exiting")
		return nil
	}
	f.ctx.Store(&ctx)
	defer f.stream.Close()

	err := connectWithRetry(ctx, f.stream.Connect, func(err error, wait time.Duration) {
		f.logger.Warn("kalshi connect failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("wait", wait),
		)
	})
	if err != nil {
		return nil
	}

	if err := f.stream.Subscribe(ctx, f.tickers); err != nil {
		// The subscription is tracked and restored on reconnect.
		f.logger.Warn("kalshi subscribe failed", slog.String("error", err.Error()))
	} else {
		f.logger.Info("kalshi ws subscribed", slog.Int("tickers", len(f.tickers)))
	}

	<-ctx.Done()
	return nil
}

// Stats returns the feed counters.
func (f *KalshiFeed) Stats() Stats {
	return f.counters.snapshot()
}

func (f *KalshiFeed) handleEvent(ev kalshi.BookEvent) {
	f.events.Add(1)
	pairIDs, ok := f.routes[ev.Ticker]
	if !ok {
		f.unrouted.Add(1)
		return
	}

	f.mu.Lock()
	book, ok := f.books[ev.Ticker]
	if !ok {
		book = &kalshiBook{yes: NewLadder(), no: NewLadder()}
		f.books[ev.Ticker] = book
	}

	switch ev.Kind {
	case kalshi.BookSnapshot:
		book.yes.Reset(levels(ev.Yes))
		book.no.Reset(levels(ev.No))
	case kalshi.BookDelta:
		if ev.Side == "yes" {
			book.yes.Add(ev.Price, ev.Delta)
		} else {
			book.no.Add(ev.Price, ev.Delta)
		}
	}

	bestNoBid, haveYesAsk := book.no.Best(true)
	bestYesBid, haveNoAsk := book.yes.Best(true)
	f.mu.Unlock()

	yesAsk, noAsk := emptyAsk, emptyAsk
	if haveYesAsk {
		yesAsk = toCents(hundred.Sub(bestNoBid))
	}
	if haveNoAsk {
		noAsk = toCents(hundred.Sub(bestYesBid))
	}

	now := f.now()
	ctx := f.runContext()
	for _, id := range pairIDs {
		f.emit(ctx, domain.QuoteUpdate{
			Venue:        domain.VenueKalshi,
			MarketPairID: id,
			Side:         domain.SideYes,
			Price:        yesAsk,
			ObservedAt:   now,
		})
		f.emit(ctx, domain.QuoteUpdate{
			Venue:        domain.VenueKalshi,
			MarketPairID: id,
			Side:         domain.SideNo,
			Price:        noAsk,
			ObservedAt:   now,
		})
	}
}

func (f *KalshiFeed) emit(ctx context.Context, u domain.QuoteUpdate) {
	f.quotes.Add(1)
	f.handler(ctx, u)
}

func (f *KalshiFeed) runContext() context.Context {
	if p := f.ctx.Load(); p != nil {
		return *p
	}
	return context.Background()
}

func levels(in []kalshi.PriceLevel) []Level {
	out := make([]Level, len(in))
	for i, l := range in {
		out[i] = Level{Price: l.Price, Size: l.Quantity}
	}
	return out
}
