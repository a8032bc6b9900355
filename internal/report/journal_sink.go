package report

import (
	"context"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// JournalSink persists records to an OpportunityStore.
type JournalSink struct {
	store domain.OpportunityStore
}

// NewJournalSink wraps store.
func NewJournalSink(store domain.OpportunityStore) *JournalSink {
	return &JournalSink{store: store}
}

// Name implements domain.OpportunitySink.
func (s *JournalSink) Name() string { return "journal" }

// Emit implements domain.OpportunitySink.
func (s *JournalSink) Emit(ctx context.Context, rec domain.OpportunityRecord) error {
	return s.store.InsertOpportunity(ctx, rec)
}

var _ domain.OpportunitySink = (*JournalSink)(nil)
