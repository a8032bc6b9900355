package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func TestDSN(t *testing.T) {
	cases := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://x", Host: "ignored"},
			want: "postgres://x",
		},
		{
			name: "defaults",
			cfg:  ClientConfig{Host: "db", Database: "crossarb", User: "u", Password: "p"},
			want: "postgres://u:p@db:5432/crossarb?sslmode=disable",
		},
		{
			name: "port and ssl",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "d", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@db:6543/d?sslmode=require",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DSN(tc.cfg); got != tc.want {
				t.Errorf("DSN = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMigrationNamesOrdered(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) < 2 || names[0] != "0001_opportunities.sql" || names[1] != "0002_settlements.sql" {
		t.Errorf("migrations = %v", names)
	}
}

// TestOpportunityStore_RoundTrip needs a database; set CROSSARB_TEST_PG_DSN
// to run it.
func TestOpportunityStore_RoundTrip(t *testing.T) {
	dsn := os.Getenv("CROSSARB_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CROSSARB_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatal(err)
	}
	s := NewOpportunityStore(c)
	defer s.Close()

	rec := domain.OpportunityRecord{
		ID: "test-" + time.Now().Format("150405.000000"), PairID: "fed", MarketName: "Fed",
		Strategy: domain.StrategyKalshiYesPolyNo, YesPrice: 42, NoPrice: 55, Fee: 2,
		TotalCost: 99, Profit: 1, ProfitPct: 1.01, Quantity: 1, Admitted: true,
		Admission: "Admitted", DryRun: true, DetectedAt: time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond),
	}
	if err := s.InsertOpportunity(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err := s.ListRecent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != rec.ID || got[0].TotalCost != 99 {
		t.Errorf("ListRecent = %+v", got)
	}
}
