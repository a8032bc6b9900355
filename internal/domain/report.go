package domain

import (
	"context"
	"time"
)

// OpportunityRecord is the structured output emitted for every qualifying
// opportunity, admitted or not.
type OpportunityRecord struct {
	ID          string    `json:"id"`
	PairID      string    `json:"market_pair_id"`
	MarketName  string    `json:"market_name"`
	Strategy    Strategy  `json:"strategy"`
	Description string    `json:"strategy_description"`
	YesPrice    Cents     `json:"yes_price_cents"`
	NoPrice     Cents     `json:"no_price_cents"`
	Fee         Cents     `json:"fee_cents"`
	TotalCost   Cents     `json:"total_cost_cents"`
	Profit      Cents     `json:"profit_cents"`
	ProfitPct   float64   `json:"profit_pct"`
	Quantity    int64     `json:"quantity"`
	Admitted    bool      `json:"admitted"`
	Admission   string    `json:"admission"`
	DryRun      bool      `json:"dry_run"`
	DetectedAt  time.Time `json:"detected_at"`
}

// NewOpportunityRecord flattens an opportunity and its admission outcome.
func NewOpportunityRecord(opp ArbOpportunity, quantity int64, adm Admission, dryRun bool) OpportunityRecord {
	return OpportunityRecord{
		ID:          opp.ID,
		PairID:      opp.PairID,
		MarketName:  opp.DisplayName,
		Strategy:    opp.Strategy,
		Description: opp.Strategy.Description(),
		YesPrice:    opp.Yes.Price,
		NoPrice:     opp.No.Price,
		Fee:         opp.Fee,
		TotalCost:   opp.TotalCost,
		Profit:      opp.Profit,
		ProfitPct:   opp.ProfitPct,
		Quantity:    quantity,
		Admitted:    adm.Admitted,
		Admission:   adm.String(),
		DryRun:      dryRun,
		DetectedAt:  opp.DetectedAt,
	}
}

// OpportunitySink receives reported opportunities. Implementations may block
// on I/O; the reporter never calls them from the detection path.
type OpportunitySink interface {
	Name() string
	Emit(ctx context.Context, rec OpportunityRecord) error
}
