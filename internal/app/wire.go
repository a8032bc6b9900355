package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/crossarb/internal/blob/s3"
	"github.com/alanyoungcy/crossarb/internal/cache/redis"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/notify"
	"github.com/alanyoungcy/crossarb/internal/platform/kalshi"
	"github.com/alanyoungcy/crossarb/internal/platform/polymarket"
	"github.com/alanyoungcy/crossarb/internal/report"
	"github.com/alanyoungcy/crossarb/internal/server/ws"
	"github.com/alanyoungcy/crossarb/internal/service"
	"github.com/alanyoungcy/crossarb/internal/store/postgres"
	"github.com/alanyoungcy/crossarb/internal/store/sqlite"
	"github.com/alanyoungcy/crossarb/internal/stream/kafka"
)

// Dependencies bundles the external collaborators the engine needs. It is
// constructed by Wire and torn down by the returned cleanup function. Every
// optional backend is nil when disabled.
type Dependencies struct {
	// Venues
	Signer *kalshi.Signer
	Kalshi *kalshi.Client
	Gamma  *polymarket.GammaClient

	// Redis
	SignalBus   domain.SignalBus
	QuoteCache  *redis.QuoteCache
	RateLimiter domain.RateLimiter

	// Journal
	Journal domain.OpportunityStore

	// Archive
	Archive *s3blob.ArchiveSink

	// Report sinks in delivery order.
	Sinks []domain.OpportunitySink

	// Notifications
	Notifier   *notify.Notifier
	NotifySink *notify.Sink

	// Monitoring API
	Hub *ws.Hub
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- Venue REST clients ---
	signer, err := kalshi.LoadSigner(cfg.Kalshi.ApiKey, cfg.Kalshi.RsaPrivateKeyPath)
	if err != nil {
		return fail(fmt.Errorf("wire: kalshi signer: %w", err))
	}
	if signer == nil {
		logger.WarnContext(ctx, "kalshi credentials not configured; connecting unauthenticated")
	}
	deps.Signer = signer
	deps.Kalshi = kalshi.NewClient(cfg.Kalshi.BaseURL, signer)
	if cfg.Polymarket.GammaURL != "" {
		deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaURL)
	}

	deps.Sinks = append(deps.Sinks, report.NewLogSink(logger))

	// --- Journal (postgres or sqlite) ---
	switch strings.ToLower(cfg.Store.Driver) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Store.DSN,
			Host:     cfg.Store.Host,
			Port:     cfg.Store.Port,
			Database: cfg.Store.Database,
			User:     cfg.Store.User,
			Password: cfg.Store.Password,
			SSLMode:  cfg.Store.SSLMode,
			MaxConns: cfg.Store.PoolMaxConns,
			MinConns: cfg.Store.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Store.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Journal = postgres.NewOpportunityStore(pgClient)
	case "sqlite":
		st, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = st.Close() })
		deps.Journal = st
	}
	if deps.Journal != nil {
		deps.Sinks = append(deps.Sinks, report.NewJournalSink(deps.Journal))
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteCacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Sinks = append(deps.Sinks, redis.NewOpportunitySink(deps.SignalBus, cfg.Redis.Channel, cfg.Redis.Stream))
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		if err := kafka.WaitForBroker(ctx, cfg.Kafka.Brokers); err != nil {
			return fail(fmt.Errorf("wire: kafka: %w", err))
		}
		if cfg.Kafka.CreateTopic {
			if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions); err != nil {
				return fail(fmt.Errorf("wire: kafka: %w", err))
			}
		}
		sink := kafka.NewOpportunitySink(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		closers = append(closers, func() { _ = sink.Close() })
		deps.Sinks = append(deps.Sinks, sink)
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archive = s3blob.NewArchiveSink(s3blob.NewWriter(s3Client), s3blob.ArchiveConfig{
			Prefix:        cfg.S3.Prefix,
			FlushInterval: cfg.S3.FlushInterval.Duration,
			MaxBatch:      cfg.S3.MaxBatch,
		}, logger)
		deps.Sinks = append(deps.Sinks, deps.Archive)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPIBase,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.NotifySink = notify.NewSink(deps.Notifier)
	if len(senders) > 0 {
		deps.Sinks = append(deps.Sinks, deps.NotifySink)
	}

	// --- WebSocket hub ---
	if cfg.Server.Enabled {
		var bridge []string
		if deps.SignalBus != nil && cfg.Resolution.Enabled {
			bridge = append(bridge, service.SettlementChannel)
		}
		deps.Hub = ws.NewHub(deps.SignalBus, bridge, logger)
		deps.Sinks = append(deps.Sinks, deps.Hub)
	}

	return deps, cleanup, nil
}
