// Package app provides the top-level application lifecycle management for the
// arbitrage monitor. It wires together all dependencies (venue clients,
// journal, caches, sinks and notifications), builds the detection engine and
// starts the goroutines for the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run is the main entry point. It wires all dependencies, resolves market
// tokens if configured, starts the engine for the selected mode, and blocks
// until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	pairs := a.cfg.Pairs()
	if a.cfg.Polymarket.ResolveTokens && deps.Gamma != nil {
		pairs, err = deps.Gamma.ResolveTokens(ctx, pairs)
		if err != nil {
			return fmt.Errorf("app: resolve polymarket tokens: %w", err)
		}
		a.logger.InfoContext(ctx, "polymarket tokens resolved", slog.Int("pairs", len(pairs)))
	}

	engine, err := a.BuildEngine(deps, pairs)
	if err != nil {
		return err
	}

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "live", "bus", "hybrid":
		return a.RunEngine(ctx, mode, deps, engine)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
