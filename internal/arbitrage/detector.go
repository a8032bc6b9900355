package arbitrage

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// SnapshotReader yields a consistent copy of a pair's quotes.
type SnapshotReader interface {
	Snapshot(pairID string) (domain.MarketState, error)
}

// Detector evaluates the configured hedges against a pair snapshot. It only
// reads and is safe for concurrent use.
type Detector struct {
	store     SnapshotReader
	hedges    []Hedge
	fees      FeeSchedule
	staleness time.Duration
	names     map[string]string
	now       func() time.Time
	newID     func() string
}

// DetectorConfig configures the detector.
type DetectorConfig struct {
	Store SnapshotReader
	Pairs []domain.MarketPair
	// Hedges are evaluated in order; earlier entries win ties.
	Hedges []Hedge
	Fees   FeeSchedule
	// Staleness excludes quotes older than this. Zero disables the check.
	Staleness time.Duration
	Now       func() time.Time
}

// NewDetector creates a detector.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if cfg.Store == nil {
		return nil, errors.New("arbitrage: detector requires a store")
	}
	if len(cfg.Hedges) == 0 {
		return nil, errors.New("arbitrage: detector requires at least one strategy")
	}
	names := make(map[string]string, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		names[p.ID] = p.DisplayName
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Detector{
		store:     cfg.Store,
		hedges:    append([]Hedge(nil), cfg.Hedges...),
		fees:      cfg.Fees,
		staleness: cfg.Staleness,
		names:     names,
		now:       now,
		newID:     uuid.NewString,
	}, nil
}

// Evaluate returns the most profitable hedge for the pair, if any hedge has
// strictly positive profit. Missing and stale legs are skipped.
func (d *Detector) Evaluate(pairID string) (domain.ArbOpportunity, bool) {
	state, err := d.store.Snapshot(pairID)
	if err != nil {
		return domain.ArbOpportunity{}, false
	}

	now := d.now()
	var cutoff time.Time
	if d.staleness > 0 {
		cutoff = now.Add(-d.staleness)
	}

	var (
		best  domain.ArbOpportunity
		found bool
	)
	for _, h := range d.hedges {
		opp, ok := h.Price(state, d.fees, cutoff)
		if !ok || opp.Profit <= 0 {
			continue
		}
		// Strict comparison keeps the earlier hedge on ties.
		if !found || opp.Profit > best.Profit {
			best, found = opp, true
		}
	}
	if !found {
		return domain.ArbOpportunity{}, false
	}

	best.ID = d.newID()
	best.PairID = pairID
	best.DisplayName = d.names[pairID]
	best.DetectedAt = now
	return best, true
}
