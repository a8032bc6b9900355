package domain

import "context"

// OpportunityStore journals reported opportunities and settlements.
type OpportunityStore interface {
	InsertOpportunity(ctx context.Context, rec OpportunityRecord) error
	InsertSettlement(ctx context.Context, s Settlement) error
	ListRecent(ctx context.Context, limit int) ([]OpportunityRecord, error)
	Close() error
}
