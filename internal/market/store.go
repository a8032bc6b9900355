// Package market holds the latest quotes for every tracked market pair.
package market

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type pairState struct {
	mu    sync.Mutex
	state domain.MarketState
}

// Store is the single shared view of quotes. Writes to one pair never block
// writes to another: every pair carries its own lock guarding all four slots.
type Store struct {
	pairs  map[string]*pairState // immutable after NewStore
	order  []string
	logger *slog.Logger

	applied   atomic.Int64
	unchanged atomic.Int64
	stale     atomic.Int64
	malformed atomic.Int64
}

// Stats are the store's running counters.
type Stats struct {
	Applied   int64
	Unchanged int64
	Stale     int64
	Malformed int64
}

// NewStore creates a store tracking exactly the given pairs.
func NewStore(pairs []domain.MarketPair, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		pairs:  make(map[string]*pairState, len(pairs)),
		order:  make([]string, 0, len(pairs)),
		logger: logger.With(slog.String("component", "market_store")),
	}
	for _, p := range pairs {
		if _, dup := s.pairs[p.ID]; dup {
			continue
		}
		s.pairs[p.ID] = &pairState{state: domain.NewMarketState(p.ID)}
		s.order = append(s.order, p.ID)
	}
	return s
}

// Apply stores the update and reports whether the pair's prices changed.
// Malformed and out-of-order updates are dropped and counted.
func (s *Store) Apply(u domain.QuoteUpdate) (string, bool) {
	if err := s.check(u); err != nil {
		s.malformed.Add(1)
		s.logger.Warn("dropping malformed quote",
			slog.String("venue", u.Venue.String()),
			slog.String("pair", u.MarketPairID),
			slog.Int64("price", int64(u.Price)),
			slog.String("error", err.Error()),
		)
		return "", false
	}

	ps := s.pairs[u.MarketPairID]
	ps.mu.Lock()
	defer ps.mu.Unlock()

	prev, ok := ps.state.Quote(u.Venue, u.Side)
	if ok && u.ObservedAt.Before(prev.ObservedAt) {
		s.stale.Add(1)
		return "", false
	}

	ps.state.Set(u.Venue, u.Side, domain.Quote{Price: u.Price, ObservedAt: u.ObservedAt})
	if ok && prev.Price == u.Price {
		s.unchanged.Add(1)
		return "", false
	}
	s.applied.Add(1)
	return u.MarketPairID, true
}

func (s *Store) check(u domain.QuoteUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if _, ok := s.pairs[u.MarketPairID]; !ok {
		return fmt.Errorf("%w: %w %q", domain.ErrMalformedQuote, domain.ErrUnknownPair, u.MarketPairID)
	}
	return nil
}

// Snapshot returns a copy of the pair's state. The copy is taken under the
// pair lock so all four slots reflect the same instant.
func (s *Store) Snapshot(pairID string) (domain.MarketState, error) {
	ps, ok := s.pairs[pairID]
	if !ok {
		return domain.MarketState{}, fmt.Errorf("market: snapshot %q: %w", pairID, domain.ErrUnknownPair)
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.state.Clone(), nil
}

// PairIDs lists tracked pairs in configuration order.
func (s *Store) PairIDs() []string {
	return append([]string(nil), s.order...)
}

// Stats returns a point-in-time copy of the counters.
func (s *Store) Stats() Stats {
	return Stats{
		Applied:   s.applied.Load(),
		Unchanged: s.unchanged.Load(),
		Stale:     s.stale.Load(),
		Malformed: s.malformed.Load(),
	}
}
