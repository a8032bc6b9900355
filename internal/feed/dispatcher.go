package feed

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Dispatcher fans quote updates out to a fixed set of workers, sharded by
// pair id so updates for one pair are always handled in arrival order.
// Feeds hand it updates through Submit; a full shard blocks the feed.
type Dispatcher struct {
	shards  []chan domain.QuoteUpdate
	handler QuoteHandler
	logger  *slog.Logger

	submitted atomic.Int64
	handled   atomic.Int64
}

// NewDispatcher creates a dispatcher with workers shards of queueSize
// slots each.
func NewDispatcher(workers, queueSize int, handler QuoteHandler, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &Dispatcher{
		shards:  make([]chan domain.QuoteUpdate, workers),
		handler: handler,
		logger:  logger.With(slog.String("component", "dispatcher")),
	}
	for i := range d.shards {
		d.shards[i] = make(chan domain.QuoteUpdate, queueSize)
	}
	return d
}

// Submit enqueues u on its pair's shard. It blocks while the shard is full
// and gives up when ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, u domain.QuoteUpdate) {
	shard := d.shards[xxhash.Sum64String(u.MarketPairID)%uint64(len(d.shards))]
	select {
	case shard <- u:
		d.submitted.Add(1)
	case <-ctx.Done():
	}
}

// Run starts the workers and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range d.shards {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case u := <-shard:
					d.handler(gctx, u)
					d.handled.Add(1)
				}
			}
		})
		d.logger.Debug("dispatcher worker started", slog.Int("shard", i))
	}
	return g.Wait()
}

// Pending returns updates accepted but not yet handled.
func (d *Dispatcher) Pending() int64 {
	return d.submitted.Load() - d.handled.Load()
}
