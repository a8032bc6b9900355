package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ControlCommands maps operator command names to handlers.
type ControlCommands map[string]func(ctx context.Context)

// ListenControl subscribes to channel and runs the matching handler for
// each message ("reset", ...). Unknown commands are logged and ignored. It
// blocks until ctx is cancelled.
func ListenControl(ctx context.Context, bus domain.SignalBus, channel string, cmds ControlCommands, logger *slog.Logger) error {
	ch, err := bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("redis: control listener: %w", err)
	}
	logger = logger.With(slog.String("component", "control"))
	logger.InfoContext(ctx, "listening for operator commands", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			name := strings.ToLower(strings.TrimSpace(string(msg)))
			fn, ok := cmds[name]
			if !ok {
				logger.WarnContext(ctx, "unknown control command", slog.String("command", name))
				continue
			}
			logger.InfoContext(ctx, "control command received", slog.String("command", name))
			fn(ctx)
		}
	}
}
