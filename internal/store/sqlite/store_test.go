package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id string, at time.Time) domain.OpportunityRecord {
	return domain.OpportunityRecord{
		ID: id, PairID: "fed", MarketName: "Fed cuts",
		Strategy: domain.StrategyPolyYesKalshiNo,
		YesPrice: 40, NoPrice: 50, Fee: 2, TotalCost: 92, Profit: 8, ProfitPct: 8.6956,
		Quantity: 1, Admitted: true, Admission: "Admitted", DryRun: true,
		DetectedAt: at,
	}
}

func TestStore_InsertAndListRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := s.InsertOpportunity(ctx, record(id, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}
	// Duplicate ids are ignored.
	if err := s.InsertOpportunity(ctx, record("a", base)); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListRecent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("ListRecent = %+v", got)
	}
	r := got[0]
	if r.TotalCost != 92 || r.Profit != 8 || !r.Admitted || !r.DryRun {
		t.Errorf("record = %+v", r)
	}
	if r.Description != "Buy Polymarket YES + Kalshi NO" {
		t.Errorf("Description = %q", r.Description)
	}
	if !r.DetectedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("DetectedAt = %v", r.DetectedAt)
	}
}

func TestStore_InsertSettlement(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	err := s.InsertSettlement(ctx, domain.Settlement{
		PairID: "fed", Quantity: 2, CostBasis: 198, Payout: 100, RealizedPnL: 2, SettledAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	n, err := s.SettlementCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("settlements = %d, want 1", n)
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InsertOpportunity(ctx, record("a", time.Now())); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("records after reopen = %d, want 1", len(got))
	}
}
