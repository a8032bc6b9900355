package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	client *Client
	pool   *pgxpool.Pool
}

// NewOpportunityStore creates a store backed by c. Closing the store closes
// c.
func NewOpportunityStore(c *Client) *OpportunityStore {
	return &OpportunityStore{client: c, pool: c.Pool()}
}

const opportunityCols = `id, market_pair_id, market_name, strategy,
	yes_price_cents, no_price_cents, fee_cents, total_cost_cents,
	profit_cents, profit_pct, quantity, admitted, admission, dry_run,
	detected_at`

// InsertOpportunity stores one reported opportunity. Re-inserting the same
// id is a no-op.
func (s *OpportunityStore) InsertOpportunity(ctx context.Context, rec domain.OpportunityRecord) error {
	const query = `
		INSERT INTO opportunities (` + opportunityCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.PairID, rec.MarketName, string(rec.Strategy),
		int64(rec.YesPrice), int64(rec.NoPrice), int64(rec.Fee), int64(rec.TotalCost),
		int64(rec.Profit), rec.ProfitPct, rec.Quantity, rec.Admitted, rec.Admission, rec.DryRun,
		rec.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", rec.ID, err)
	}
	return nil
}

// InsertSettlement records a closed position.
func (s *OpportunityStore) InsertSettlement(ctx context.Context, st domain.Settlement) error {
	const query = `
		INSERT INTO settlements (
			market_pair_id, quantity, cost_basis_cents, payout_cents,
			realized_pnl_cents, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		st.PairID, st.Quantity, int64(st.CostBasis), int64(st.Payout),
		int64(st.RealizedPnL), st.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement %s: %w", st.PairID, err)
	}
	return nil
}

// ListRecent returns the newest opportunities first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.OpportunityRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + opportunityCols + ` FROM opportunities ORDER BY detected_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.OpportunityRecord
	for rows.Next() {
		var (
			rec                         domain.OpportunityRecord
			strategy                    string
			yes, no, fee, total, profit int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.PairID, &rec.MarketName, &strategy,
			&yes, &no, &fee, &total,
			&profit, &rec.ProfitPct, &rec.Quantity, &rec.Admitted, &rec.Admission, &rec.DryRun,
			&rec.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		rec.Strategy = domain.Strategy(strategy)
		rec.Description = rec.Strategy.Description()
		rec.YesPrice, rec.NoPrice = domain.Cents(yes), domain.Cents(no)
		rec.Fee, rec.TotalCost, rec.Profit = domain.Cents(fee), domain.Cents(total), domain.Cents(profit)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate opportunities: %w", err)
	}
	return out, nil
}

// Close closes the underlying pool.
func (s *OpportunityStore) Close() error {
	s.client.Close()
	return nil
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)
