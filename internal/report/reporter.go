// Package report fans reported opportunities out to sinks off the detection
// path.
package report

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const (
	defaultBufferSize = 1024
	sinkTimeout       = 5 * time.Second
	drainTimeout      = 3 * time.Second
)

// Reporter queues records on a bounded buffer and delivers them to every
// sink from a single background worker. Report never blocks: when the
// buffer is full the record is dropped and counted.
type Reporter struct {
	queue  chan domain.OpportunityRecord
	sinks  []domain.OpportunitySink
	logger *slog.Logger

	queued    atomic.Int64
	dropped   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// NewReporter creates a reporter with the given buffer size.
func NewReporter(bufferSize int, sinks []domain.OpportunitySink, logger *slog.Logger) *Reporter {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Reporter{
		queue:  make(chan domain.OpportunityRecord, bufferSize),
		sinks:  sinks,
		logger: logger.With(slog.String("component", "reporter")),
	}
}

// Report enqueues rec. It returns false if the record was dropped.
func (r *Reporter) Report(rec domain.OpportunityRecord) bool {
	select {
	case r.queue <- rec:
		r.queued.Add(1)
		return true
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("report buffer full, dropping record",
				slog.String("opp_id", rec.ID),
				slog.Int64("dropped_total", n),
			)
		}
		return false
	}
}

// Run delivers queued records until ctx is cancelled, then drains what is
// left with a short deadline.
func (r *Reporter) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "reporter started", slog.Int("sinks", len(r.sinks)))
	defer r.logger.Info("reporter stopped")

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case rec := <-r.queue:
			r.deliver(ctx, rec)
		}
	}
}

func (r *Reporter) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case rec := <-r.queue:
			r.deliver(ctx, rec)
		default:
			return
		}
	}
}

func (r *Reporter) deliver(ctx context.Context, rec domain.OpportunityRecord) {
	for _, s := range r.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := s.Emit(sctx, rec)
		cancel()
		if err != nil {
			r.failed.Add(1)
			r.logger.WarnContext(ctx, "sink emit failed",
				slog.String("sink", s.Name()),
				slog.String("opp_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.delivered.Add(1)
	}
}

// Stats are the reporter's running counters.
type Stats struct {
	Queued    int64
	Dropped   int64
	Delivered int64
	Failed    int64
	Pending   int
}

// Stats returns a point-in-time copy of the counters.
func (r *Reporter) Stats() Stats {
	return Stats{
		Queued:    r.queued.Load(),
		Dropped:   r.dropped.Load(),
		Delivered: r.delivered.Load(),
		Failed:    r.failed.Load(),
		Pending:   len(r.queue),
	}
}
