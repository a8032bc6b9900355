package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/arbitrage"
	"github.com/alanyoungcy/crossarb/internal/cache/redis"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/feed"
	"github.com/alanyoungcy/crossarb/internal/market"
	"github.com/alanyoungcy/crossarb/internal/platform/kalshi"
	"github.com/alanyoungcy/crossarb/internal/platform/polymarket"
	"github.com/alanyoungcy/crossarb/internal/position"
	"github.com/alanyoungcy/crossarb/internal/report"
	"github.com/alanyoungcy/crossarb/internal/risk"
	"github.com/alanyoungcy/crossarb/internal/server"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/service"
)

// Engine is the detection pipeline shared by every mode: the quote store,
// detector, risk gate and reporter, plus the ArbService driving them.
type Engine struct {
	Pairs    []domain.MarketPair
	Store    *market.Store
	Risk     *service.RiskService
	Arb      *service.ArbService
	Reporter *report.Reporter
	Dedup    *arbitrage.Dedup
}

// BuildEngine assembles the pipeline for pairs on top of deps.
func (a *App) BuildEngine(deps *Dependencies, pairs []domain.MarketPair) (*Engine, error) {
	if !a.cfg.DryRun {
		// Order placement does not exist; admitted opportunities are only recorded.
		a.logger.Warn("live mode not implemented, continuing as dry run",
			slog.Bool("dry_run", a.cfg.DryRun),
		)
	}
	store := market.NewStore(pairs, a.logger)

	hedges, err := arbitrage.DefaultRegistry().Resolve(a.cfg.StrategyList())
	if err != nil {
		return nil, fmt.Errorf("app: strategies: %w", err)
	}
	fees, err := arbitrage.NewFeeSchedule(
		a.cfg.Kalshi.FeeModel,
		domain.Cents(a.cfg.Kalshi.FeePerContract),
		domain.Cents(a.cfg.Polymarket.FeePerContract),
	)
	if err != nil {
		return nil, fmt.Errorf("app: fees: %w", err)
	}
	detector, err := arbitrage.NewDetector(arbitrage.DetectorConfig{
		Store:     store,
		Pairs:     pairs,
		Hedges:    hedges,
		Fees:      fees,
		Staleness: a.cfg.Detection.StalenessThreshold.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("app: detector: %w", err)
	}

	state := &domain.BreakerState{}
	breaker := risk.NewCircuitBreaker(risk.Limits{
		MaxPositionSize: a.cfg.Risk.MaxPositionSize,
		MaxDailyLoss:    domain.Cents(a.cfg.Risk.MaxDailyLossCents),
	}, state, a.logger)
	riskSvc := service.NewRiskService(state, breaker, position.NewTracker(state, store), a.logger)
	if deps.NotifySink != nil {
		riskSvc.OnTrip(func(ctx context.Context, opp domain.ArbOpportunity, reason domain.RejectReason) {
			if err := deps.NotifySink.BreakerTripped(ctx, opp, reason); err != nil {
				a.logger.WarnContext(ctx, "breaker notification failed", slog.String("error", err.Error()))
			}
		})
	}

	reporter := report.NewReporter(a.cfg.Report.BufferSize, deps.Sinks, a.logger)

	var dedup *arbitrage.Dedup
	if a.cfg.Detection.Cooldown.Duration > 0 {
		dedup = arbitrage.NewDedup(a.cfg.Detection.Cooldown.Duration)
	}

	arb := service.NewArbService(store, detector, riskSvc, reporter, dedup, service.ArbConfig{
		ContractsPerOpportunity: a.cfg.Risk.ContractsPerOpportunity,
		DryRun:                  a.cfg.DryRun,
	}, a.logger)

	return &Engine{
		Pairs:    pairs,
		Store:    store,
		Risk:     riskSvc,
		Arb:      arb,
		Reporter: reporter,
		Dedup:    dedup,
	}, nil
}

// feedRunner is any quote source with a blocking Run.
type feedRunner struct {
	name  string
	run   func(ctx context.Context) error
	stats func() feed.Stats
}

// buildFeeds returns the quote sources for mode: "live" reads both venue
// websockets, "bus" reads the Redis quote channel, "hybrid" does both.
func (a *App) buildFeeds(mode string, deps *Dependencies, pairs []domain.MarketPair, handler feed.QuoteHandler) []feedRunner {
	var feeds []feedRunner

	if mode == "live" || mode == "hybrid" {
		kws := kalshi.NewWSClient(a.cfg.Kalshi.WSURL, deps.Signer, a.logger)
		kf := feed.NewKalshiFeed(kws, pairs, handler, a.logger)
		feeds = append(feeds, feedRunner{name: "kalshi", run: kf.Run, stats: kf.Stats})

		pws := polymarket.NewWSClient(a.cfg.Polymarket.WSURL, a.logger)
		pf := feed.NewPolymarketFeed(pws, pairs, handler, a.logger)
		feeds = append(feeds, feedRunner{name: "polymarket", run: pf.Run, stats: pf.Stats})
	}

	if (mode == "bus" || mode == "hybrid") && deps.SignalBus != nil {
		bf := feed.NewBusFeed(deps.SignalBus, a.cfg.Redis.QuoteChannel, handler, a.logger)
		feeds = append(feeds, feedRunner{name: "bus", run: bf.Run, stats: bf.Stats})
	}

	return feeds
}

// RunEngine starts every goroutine of the monitor and blocks until ctx is
// cancelled or one of them fails.
func (a *App) RunEngine(ctx context.Context, mode string, deps *Dependencies, e *Engine) error {
	a.logger.InfoContext(ctx, "starting monitor",
		slog.String("mode", mode),
		slog.Int("pairs", len(e.Pairs)),
		slog.Bool("dry_run", a.cfg.DryRun),
	)

	g, ctx := errgroup.WithContext(ctx)

	// Feeds call the engine directly unless a worker pool is configured.
	handler := feed.QuoteHandler(e.Arb.Handle)
	var dispatcher *feed.Dispatcher
	if a.cfg.Detection.Workers > 0 {
		dispatcher = feed.NewDispatcher(a.cfg.Detection.Workers, a.cfg.Detection.QueueSize, e.Arb.Handle, a.logger)
		handler = dispatcher.Submit
		g.Go(func() error {
			return dispatcher.Run(ctx)
		})
	}

	feeds := a.buildFeeds(mode, deps, e.Pairs, handler)
	if len(feeds) == 0 {
		return fmt.Errorf("app: mode %q has no quote sources", mode)
	}
	for _, f := range feeds {
		g.Go(func() error {
			return f.run(ctx)
		})
	}

	// Reporter and archive.
	g.Go(func() error {
		return e.Reporter.Run(ctx)
	})
	if deps.Archive != nil {
		g.Go(func() error {
			return deps.Archive.Run(ctx)
		})
	}

	// Periodic sweep so pairs whose legs became fresh again are re-checked
	// without waiting for a price change.
	if d := a.cfg.Detection.SweepInterval.Duration; d > 0 {
		g.Go(func() error {
			return every(ctx, d, func() { e.Arb.Sweep(ctx) })
		})
	}
	if e.Dedup != nil {
		g.Go(func() error {
			return every(ctx, a.cfg.Detection.Cooldown.Duration*10, e.Dedup.Cleanup)
		})
	}

	// Operator reset: SIGHUP or a "reset" message on the control channel.
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-hup:
				e.Risk.Reset(ctx)
			}
		}
	})

	probes := []service.Probe{
		{Name: "store", Stats: func() any { return e.Store.Stats() }},
		{Name: "arb", Stats: func() any { return e.Arb.Stats() }},
		{Name: "reporter", Stats: func() any { return e.Reporter.Stats() }},
	}
	for _, f := range feeds {
		probes = append(probes, service.Probe{Name: f.name + "_feed", Stats: func() any { return f.stats() }})
	}
	if dispatcher != nil {
		probes = append(probes, service.Probe{Name: "dispatch_pending", Stats: func() any { return dispatcher.Pending() }})
	}
	if deps.Hub != nil {
		probes = append(probes, service.Probe{Name: "ws", Stats: func() any { return deps.Hub.Stats() }})
	}
	var publisher service.StatePublisher
	if deps.QuoteCache != nil {
		publisher = deps.QuoteCache
	}
	heartbeat := service.NewHeartbeat(a.cfg.Report.HeartbeatInterval.Duration, e.Risk, e.Store, publisher, probes, a.logger)
	if a.cfg.Report.HeartbeatInterval.Duration > 0 {
		g.Go(func() error {
			return heartbeat.Run(ctx)
		})
	}

	if deps.SignalBus != nil && a.cfg.Redis.ControlChannel != "" {
		g.Go(func() error {
			return redis.ListenControl(ctx, deps.SignalBus, a.cfg.Redis.ControlChannel, redis.ControlCommands{
				"reset":  e.Risk.Reset,
				"status": heartbeat.Beat,
				"sweep":  e.Arb.Sweep,
			}, a.logger)
		})
	}

	if a.cfg.Resolution.Enabled {
		rc := service.ResolutionConfig{
			Kalshi:       deps.Kalshi,
			Risk:         e.Risk,
			Notifier:     deps.NotifySink,
			Bus:          deps.SignalBus,
			PollInterval: a.cfg.Resolution.PollInterval.Duration,
		}
		if deps.Journal != nil {
			rc.Journal = deps.Journal
		}
		if a.cfg.Resolution.CrossCheck && deps.Gamma != nil {
			rc.Polymarket = deps.Gamma
		}
		watcher := service.NewResolutionWatcher(rc, e.Pairs, a.logger)
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		if deps.Hub != nil {
			g.Go(func() error {
				return deps.Hub.Run(ctx)
			})
		}
		srv := a.buildServer(mode, deps, e, probes)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	return g.Wait()
}

// buildServer assembles the monitoring API over the running engine.
func (a *App) buildServer(mode string, deps *Dependencies, e *Engine, probes []service.Probe) *server.Server {
	var journal handler.OpportunityLister
	if deps.Journal != nil {
		journal = deps.Journal
	}
	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(time.Now()),
		Status:        handler.NewStatusHandler(mode, a.cfg.DryRun, e.Risk, probes, a.logger),
		Pairs:         handler.NewPairHandler(e.Pairs, e.Store, a.logger),
		Positions:     handler.NewPositionHandler(e.Risk),
		Opportunities: handler.NewOpportunityHandler(journal, a.logger),
		Breaker:       handler.NewBreakerHandler(e.Risk, a.logger),
	}
	return server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, deps.Hub, deps.RateLimiter, a.logger)
}

// every calls fn on each tick of d until ctx is cancelled.
func every(ctx context.Context, d time.Duration, fn func()) error {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn()
		}
	}
}
