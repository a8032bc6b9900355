package report

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// LogSink writes every record as one structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "opportunity"))}
}

// Name implements domain.OpportunitySink.
func (s *LogSink) Name() string { return "log" }

// Emit implements domain.OpportunitySink.
func (s *LogSink) Emit(ctx context.Context, rec domain.OpportunityRecord) error {
	level := slog.LevelInfo
	if !rec.Admitted {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "arbitrage opportunity",
		slog.String("opp_id", rec.ID),
		slog.String("market", rec.MarketName),
		slog.String("pair", rec.PairID),
		slog.String("strategy", rec.Description),
		slog.Int64("yes_cents", int64(rec.YesPrice)),
		slog.Int64("no_cents", int64(rec.NoPrice)),
		slog.Int64("fee_cents", int64(rec.Fee)),
		slog.Int64("total_cost_cents", int64(rec.TotalCost)),
		slog.Int64("profit_cents", int64(rec.Profit)),
		slog.Float64("profit_pct", rec.ProfitPct),
		slog.Int64("quantity", rec.Quantity),
		slog.String("admission", rec.Admission),
		slog.Bool("dry_run", rec.DryRun),
	)
	return nil
}

var _ domain.OpportunitySink = (*LogSink)(nil)
