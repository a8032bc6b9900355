package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// quoteEvent is the JSON shape of an externally published quote.
type quoteEvent struct {
	Venue        string `json:"venue"`
	MarketPairID string `json:"market_pair_id"`
	Side         string `json:"side"`
	PriceCents   *int64 `json:"price_cents"`
	ObservedAt   string `json:"observed_at"`
}

// BusFeed subscribes to a pub/sub channel carrying JSON quotes (from a
// replay tool or an external normalizer) and feeds them into the handler.
type BusFeed struct {
	bus     domain.SignalBus
	channel string
	handler QuoteHandler
	logger  *slog.Logger
	now     func() time.Time
	counters
}

// NewBusFeed creates a BusFeed reading from channel.
func NewBusFeed(bus domain.SignalBus, channel string, handler QuoteHandler, logger *slog.Logger) *BusFeed {
	return &BusFeed{
		bus:     bus,
		channel: channel,
		handler: handler,
		logger:  logger.With(slog.String("component", "bus_feed")),
		now:     time.Now,
	}
}

// Run subscribes and forwards every decoded quote until ctx is cancelled.
func (f *BusFeed) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, f.channel)
	if err != nil {
		return fmt.Errorf("feed: bus subscribe: %w", err)
	}
	f.logger.InfoContext(ctx, "bus feed started", slog.String("channel", f.channel))
	defer f.logger.Info("bus feed stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			f.events.Add(1)
			u, err := f.decode(data)
			if err != nil {
				f.malformed.Add(1)
				f.logger.DebugContext(ctx, "bus feed: dropped message",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
				continue
			}
			f.quotes.Add(1)
			f.handler(ctx, u)
		}
	}
}

// Stats returns the feed counters.
func (f *BusFeed) Stats() Stats {
	return f.counters.snapshot()
}

func (f *BusFeed) decode(data []byte) (domain.QuoteUpdate, error) {
	var ev quoteEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.QuoteUpdate{}, err
	}

	var u domain.QuoteUpdate
	switch strings.ToLower(strings.TrimSpace(ev.Venue)) {
	case "kalshi":
		u.Venue = domain.VenueKalshi
	case "polymarket":
		u.Venue = domain.VenuePolymarket
	default:
		return u, fmt.Errorf("%w: venue %q", domain.ErrMalformedQuote, ev.Venue)
	}
	switch strings.ToUpper(strings.TrimSpace(ev.Side)) {
	case "YES":
		u.Side = domain.SideYes
	case "NO":
		u.Side = domain.SideNo
	default:
		return u, fmt.Errorf("%w: side %q", domain.ErrMalformedQuote, ev.Side)
	}
	if ev.PriceCents == nil {
		return u, fmt.Errorf("%w: missing price", domain.ErrMalformedQuote)
	}
	u.MarketPairID = strings.TrimSpace(ev.MarketPairID)
	u.Price = domain.Cents(*ev.PriceCents)

	u.ObservedAt = f.now()
	if ev.ObservedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, ev.ObservedAt)
		if err != nil {
			return u, fmt.Errorf("%w: observed_at: %v", domain.ErrMalformedQuote, err)
		}
		u.ObservedAt = t
	}
	// Range and pair checks happen in the store, which counts them.
	return u, nil
}
