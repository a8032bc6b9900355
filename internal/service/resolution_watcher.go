package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/platform/kalshi"
	"github.com/alanyoungcy/crossarb/internal/platform/polymarket"
)

// KalshiMarkets fetches a Kalshi market by ticker.
type KalshiMarkets interface {
	GetMarket(ctx context.Context, ticker string) (kalshi.Market, error)
}

// PolymarketResolutions fetches a Polymarket market's outcome.
type PolymarketResolutions interface {
	GetMarketResolution(ctx context.Context, ref string) (polymarket.Resolution, error)
}

// Settler is the part of RiskService the watcher drives.
type Settler interface {
	OpenPairs() []string
	Settle(ctx context.Context, pairID string, payout domain.Cents) (domain.Settlement, error)
}

// SettlementJournal persists settlements.
type SettlementJournal interface {
	InsertSettlement(ctx context.Context, s domain.Settlement) error
}

// SettlementNotifier alerts on settlements.
type SettlementNotifier interface {
	Settled(ctx context.Context, st domain.Settlement) error
}

// SettlementChannel is the default bus channel settlements are published on.
const SettlementChannel = "settlements"

// ResolutionConfig wires the optional collaborators of a ResolutionWatcher.
// Only Kalshi and Risk are required.
type ResolutionConfig struct {
	Kalshi       KalshiMarkets
	Polymarket   PolymarketResolutions // nil disables the cross-check
	Risk         Settler
	Journal      SettlementJournal
	Notifier     SettlementNotifier
	Bus          domain.SignalBus
	Channel      string
	PollInterval time.Duration
}

// ResolutionWatcher polls Kalshi for pairs holding a position and settles
// them once the market resolves. Both legs of a hedge pay out together, so
// a resolved pair always settles at PayoutCents per contract. When a
// Polymarket cross-check is configured the pair is settled only once both
// venues agree on the outcome.
type ResolutionWatcher struct {
	cfg    ResolutionConfig
	pairs  map[string]domain.MarketPair
	logger *slog.Logger

	mu       sync.Mutex
	disputed map[string]bool
}

// NewResolutionWatcher creates a watcher for pairs.
func NewResolutionWatcher(cfg ResolutionConfig, pairs []domain.MarketPair, logger *slog.Logger) *ResolutionWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.Channel == "" {
		cfg.Channel = SettlementChannel
	}
	byID := make(map[string]domain.MarketPair, len(pairs))
	for _, p := range pairs {
		byID[p.ID] = p
	}
	return &ResolutionWatcher{
		cfg:      cfg,
		pairs:    byID,
		logger:   logger.With(slog.String("component", "resolution_watcher")),
		disputed: make(map[string]bool),
	}
}

// Run polls open positions until ctx is cancelled.
func (w *ResolutionWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check looks up every open pair once and returns the settlements made.
func (w *ResolutionWatcher) Check(ctx context.Context) []domain.Settlement {
	var out []domain.Settlement
	for _, pairID := range w.cfg.Risk.OpenPairs() {
		if ctx.Err() != nil {
			return out
		}
		st, ok := w.checkPair(ctx, pairID)
		if ok {
			out = append(out, st)
		}
	}
	return out
}

func (w *ResolutionWatcher) checkPair(ctx context.Context, pairID string) (domain.Settlement, bool) {
	pair, ok := w.pairs[pairID]
	if !ok {
		return domain.Settlement{}, false
	}
	m, err := w.cfg.Kalshi.GetMarket(ctx, pair.KalshiTicker)
	if err != nil {
		w.logger.DebugContext(ctx, "kalshi market fetch failed",
			slog.String("pair", pairID),
			slog.String("ticker", pair.KalshiTicker),
			slog.String("error", err.Error()),
		)
		return domain.Settlement{}, false
	}
	if !m.Settled() {
		return domain.Settlement{}, false
	}
	result := strings.ToLower(m.Result)
	if result != "yes" && result != "no" {
		w.flag(ctx, pairID, "kalshi result is neither yes nor no", slog.String("result", m.Result))
		return domain.Settlement{}, false
	}

	if w.cfg.Polymarket != nil && pair.PolyMarket != "" {
		res, err := w.cfg.Polymarket.GetMarketResolution(ctx, pair.PolyMarket)
		if err != nil {
			w.logger.DebugContext(ctx, "polymarket resolution fetch failed",
				slog.String("pair", pairID),
				slog.String("error", err.Error()),
			)
			return domain.Settlement{}, false
		}
		if !res.Closed || !res.Decided {
			return domain.Settlement{}, false
		}
		if res.YesWon != m.YesWon() {
			w.flag(ctx, pairID, "venues disagree on resolution",
				slog.Bool("kalshi_yes", m.YesWon()),
				slog.Bool("polymarket_yes", res.YesWon),
			)
			return domain.Settlement{}, false
		}
	}

	st, err := w.cfg.Risk.Settle(ctx, pairID, domain.PayoutCents)
	if err != nil {
		if !errors.Is(err, domain.ErrNoPosition) {
			w.logger.ErrorContext(ctx, "settle failed",
				slog.String("pair", pairID),
				slog.String("error", err.Error()),
			)
		}
		return domain.Settlement{}, false
	}
	w.publish(ctx, st, result)
	return st, true
}

// flag logs a pair that cannot be settled automatically, once per pair.
func (w *ResolutionWatcher) flag(ctx context.Context, pairID, msg string, attrs ...any) {
	w.mu.Lock()
	seen := w.disputed[pairID]
	w.disputed[pairID] = true
	w.mu.Unlock()
	if seen {
		return
	}
	args := append([]any{slog.String("pair", pairID)}, attrs...)
	w.logger.ErrorContext(ctx, "auto-settlement skipped: "+msg, args...)
}

func (w *ResolutionWatcher) publish(ctx context.Context, st domain.Settlement, result string) {
	if w.cfg.Journal != nil {
		if err := w.cfg.Journal.InsertSettlement(ctx, st); err != nil {
			w.logger.ErrorContext(ctx, "settlement journal failed",
				slog.String("pair", st.PairID),
				slog.String("error", err.Error()),
			)
		}
	}
	if w.cfg.Notifier != nil {
		if err := w.cfg.Notifier.Settled(ctx, st); err != nil {
			w.logger.WarnContext(ctx, "settlement notify failed", slog.String("error", err.Error()))
		}
	}
	if w.cfg.Bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"event":        "settlement",
			"pair_id":      st.PairID,
			"result":       result,
			"quantity":     st.Quantity,
			"cost_basis":   int64(st.CostBasis),
			"payout":       int64(st.Payout),
			"realized_pnl": int64(st.RealizedPnL),
			"settled_at":   st.SettledAt.UTC().Format(time.RFC3339Nano),
		})
		if err := w.cfg.Bus.Publish(ctx, w.cfg.Channel, payload); err != nil {
			w.logger.WarnContext(ctx, "settlement publish failed",
				slog.String("pair", st.PairID),
				slog.String("channel", w.cfg.Channel),
				slog.String("error", err.Error()),
			)
		}
	}
}
