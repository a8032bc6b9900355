package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Sink forwards reported opportunities to the Notifier.
type Sink struct {
	n *Notifier
}

// NewSink wraps n as an opportunity sink.
func NewSink(n *Notifier) *Sink { return &Sink{n: n} }

// Name implements domain.OpportunitySink.
func (s *Sink) Name() string { return "notify" }

// Emit implements domain.OpportunitySink.
func (s *Sink) Emit(ctx context.Context, rec domain.OpportunityRecord) error {
	event := EventAdmitted
	if !rec.Admitted {
		event = EventRejected
	}
	return s.n.Notify(ctx, event, "Arbitrage: "+rec.MarketName, FormatOpportunity(rec))
}

// BreakerTripped alerts that admissions have stopped.
func (s *Sink) BreakerTripped(ctx context.Context, opp domain.ArbOpportunity, reason domain.RejectReason) error {
	msg := fmt.Sprintf("Circuit breaker tripped (%s) on %s. No further opportunities will be admitted until reset.",
		reason, opp.PairID)
	return s.n.Notify(ctx, EventTripped, "Circuit breaker tripped", msg)
}

// Settled alerts that a position was closed.
func (s *Sink) Settled(ctx context.Context, st domain.Settlement) error {
	msg := fmt.Sprintf("%s settled %d contracts at %d¢: P&L $%.2f",
		st.PairID, st.Quantity, st.Payout, st.RealizedPnL.Dollars())
	return s.n.Notify(ctx, EventSettlement, "Position settled", msg)
}

// FormatOpportunity renders a record as a short multi-line message.
func FormatOpportunity(rec domain.OpportunityRecord) string {
	mode := "LIVE"
	if rec.DryRun {
		mode = "DRY RUN"
	}
	return fmt.Sprintf("%s\nYES %d¢ + NO %d¢ + fee %d¢ = %d¢\nProfit %d¢ (%.2f%%) x%d\n%s [%s]",
		rec.Description,
		rec.YesPrice, rec.NoPrice, rec.Fee, rec.TotalCost,
		rec.Profit, rec.ProfitPct, rec.Quantity,
		rec.Admission, mode,
	)
}

var _ domain.OpportunitySink = (*Sink)(nil)
