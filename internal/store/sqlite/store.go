// Package sqlite journals opportunities and settlements in a local SQLite
// file using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const defaultPath = "data/crossarb.db"

// tsLayout is fixed width so text ordering matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements domain.OpportunityStore on SQLite.
type Store struct {
	path string
	db   *sql.DB
}

// Open creates the parent directory if needed, opens the database in WAL
// mode and creates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: ensure data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer; the reporter is the only caller.
	db.SetMaxOpenConns(1)

	if err := ensureWAL(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{path: path, db: db}, nil
}

func ensureWAL(ctx context.Context, db *sql.DB) error {
	const (
		maxAttempts = 5
		delay       = 200 * time.Millisecond
	)
	for i := 0; i < maxAttempts; i++ {
		_, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return errors.New("database is locked after retries")
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS opportunities (
	id TEXT PRIMARY KEY,
	market_pair_id TEXT NOT NULL,
	market_name TEXT NOT NULL,
	strategy TEXT NOT NULL,
	yes_price_cents INTEGER NOT NULL,
	no_price_cents INTEGER NOT NULL,
	fee_cents INTEGER NOT NULL,
	total_cost_cents INTEGER NOT NULL,
	profit_cents INTEGER NOT NULL,
	profit_pct REAL NOT NULL,
	quantity INTEGER NOT NULL,
	admitted INTEGER NOT NULL,
	admission TEXT NOT NULL,
	dry_run INTEGER NOT NULL,
	detected_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opportunities_detected_at ON opportunities (detected_at);
CREATE TABLE IF NOT EXISTS settlements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	market_pair_id TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	cost_basis_cents INTEGER NOT NULL,
	payout_cents INTEGER NOT NULL,
	realized_pnl_cents INTEGER NOT NULL,
	settled_at TEXT NOT NULL
);`

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertOpportunity stores one record; a duplicate id is ignored.
func (s *Store) InsertOpportunity(ctx context.Context, rec domain.OpportunityRecord) error {
	const query = `
INSERT OR IGNORE INTO opportunities (
	id, market_pair_id, market_name, strategy,
	yes_price_cents, no_price_cents, fee_cents, total_cost_cents,
	profit_cents, profit_pct, quantity, admitted, admission, dry_run,
	detected_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.PairID, rec.MarketName, string(rec.Strategy),
		int64(rec.YesPrice), int64(rec.NoPrice), int64(rec.Fee), int64(rec.TotalCost),
		int64(rec.Profit), rec.ProfitPct, rec.Quantity, rec.Admitted, rec.Admission, rec.DryRun,
		rec.DetectedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert opportunity %s: %w", rec.ID, err)
	}
	return nil
}

// InsertSettlement records a closed position.
func (s *Store) InsertSettlement(ctx context.Context, st domain.Settlement) error {
	const query = `
INSERT INTO settlements (
	market_pair_id, quantity, cost_basis_cents, payout_cents,
	realized_pnl_cents, settled_at
) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		st.PairID, st.Quantity, int64(st.CostBasis), int64(st.Payout),
		int64(st.RealizedPnL), st.SettledAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert settlement %s: %w", st.PairID, err)
	}
	return nil
}

// ListRecent returns the newest opportunities first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.OpportunityRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, market_pair_id, market_name, strategy,
	yes_price_cents, no_price_cents, fee_cents, total_cost_cents,
	profit_cents, profit_pct, quantity, admitted, admission, dry_run,
	detected_at
FROM opportunities ORDER BY detected_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.OpportunityRecord
	for rows.Next() {
		var (
			rec                         domain.OpportunityRecord
			strategy, detectedAt        string
			yes, no, fee, total, profit int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.PairID, &rec.MarketName, &strategy,
			&yes, &no, &fee, &total,
			&profit, &rec.ProfitPct, &rec.Quantity, &rec.Admitted, &rec.Admission, &rec.DryRun,
			&detectedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan opportunity: %w", err)
		}
		ts, err := time.Parse(tsLayout, detectedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse detected_at %q: %w", detectedAt, err)
		}
		rec.DetectedAt = ts
		rec.Strategy = domain.Strategy(strategy)
		rec.Description = rec.Strategy.Description()
		rec.YesPrice, rec.NoPrice = domain.Cents(yes), domain.Cents(no)
		rec.Fee, rec.TotalCost, rec.Profit = domain.Cents(fee), domain.Cents(total), domain.Cents(profit)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate opportunities: %w", err)
	}
	return out, nil
}

// SettlementCount returns how many settlements have been journaled.
func (s *Store) SettlementCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settlements`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count settlements: %w", err)
	}
	return n, nil
}

var _ domain.OpportunityStore = (*Store)(nil)
