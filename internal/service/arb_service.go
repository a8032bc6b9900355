package service

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/crossarb/internal/arbitrage"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// QuoteStore is the market state the service writes into.
type QuoteStore interface {
	Apply(u domain.QuoteUpdate) (string, bool)
	PairIDs() []string
}

// Detector finds the best hedge for a pair.
type Detector interface {
	Evaluate(pairID string) (domain.ArbOpportunity, bool)
}

// Admitter is the atomic admit+record step.
type Admitter interface {
	Process(ctx context.Context, opp domain.ArbOpportunity, quantity int64) (domain.Admission, error)
}

// Reporter accepts records without blocking.
type Reporter interface {
	Report(rec domain.OpportunityRecord) bool
}

// ArbConfig holds the per-opportunity sizing and mode.
type ArbConfig struct {
	ContractsPerOpportunity int64
	DryRun                  bool
}

// ArbService drives the pipeline: quote update, detection, admission and
// reporting. Handle is safe for concurrent use by every feed.
type ArbService struct {
	store    QuoteStore
	detector Detector
	risk     Admitter
	reporter Reporter
	dedup    *arbitrage.Dedup
	cfg      ArbConfig
	logger   *slog.Logger

	updates       atomic.Int64
	evaluations   atomic.Int64
	opportunities atomic.Int64
	duplicates    atomic.Int64
	admitted      atomic.Int64
	rejected      atomic.Int64
}

// NewArbService creates an ArbService with all required dependencies.
// dedup may be nil to report every detection.
func NewArbService(
	store QuoteStore,
	detector Detector,
	risk Admitter,
	reporter Reporter,
	dedup *arbitrage.Dedup,
	cfg ArbConfig,
	logger *slog.Logger,
) *ArbService {
	if cfg.ContractsPerOpportunity <= 0 {
		cfg.ContractsPerOpportunity = 1
	}
	return &ArbService{
		store:    store,
		detector: detector,
		risk:     risk,
		reporter: reporter,
		dedup:    dedup,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "arb_service")),
	}
}

// Handle applies one quote update and, if the pair's prices moved,
// evaluates it.
func (s *ArbService) Handle(ctx context.Context, u domain.QuoteUpdate) {
	s.updates.Add(1)
	pairID, changed := s.store.Apply(u)
	if !changed {
		return
	}
	s.Evaluate(ctx, pairID)
}

// Sweep evaluates every pair. It picks up pairs whose legs became fresh
// again without a price change.
func (s *ArbService) Sweep(ctx context.Context) {
	for _, id := range s.store.PairIDs() {
		if ctx.Err() != nil {
			return
		}
		s.Evaluate(ctx, id)
	}
}

// Evaluate runs detection on one pair and, on a hit, admission and
// reporting. It reports whether an opportunity was found.
func (s *ArbService) Evaluate(ctx context.Context, pairID string) bool {
	s.evaluations.Add(1)
	opp, ok := s.detector.Evaluate(pairID)
	if !ok {
		return false
	}
	if s.dedup != nil && s.dedup.IsDuplicate(opp.Key()) {
		s.duplicates.Add(1)
		return true
	}
	s.opportunities.Add(1)

	qty := s.cfg.ContractsPerOpportunity
	adm, err := s.risk.Process(ctx, opp, qty)
	if err != nil {
		s.logger.WarnContext(ctx, "arb_service: admission failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
		return true
	}
	if adm.Admitted {
		s.admitted.Add(1)
	} else {
		s.rejected.Add(1)
	}

	s.reporter.Report(domain.NewOpportunityRecord(opp, qty, adm, s.cfg.DryRun))
	return true
}

// ArbStats are the service's running counters.
type ArbStats struct {
	Updates       int64
	Evaluations   int64
	Opportunities int64
	Duplicates    int64
	Admitted      int64
	Rejected      int64
}

// Stats returns a point-in-time copy of the counters.
func (s *ArbService) Stats() ArbStats {
	return ArbStats{
		Updates:       s.updates.Load(),
		Evaluations:   s.evaluations.Load(),
		Opportunities: s.opportunities.Load(),
		Duplicates:    s.duplicates.Load(),
		Admitted:      s.admitted.Load(),
		Rejected:      s.rejected.Load(),
	}
}
