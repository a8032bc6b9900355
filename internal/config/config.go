// Package config defines the top-level configuration for the arbitrage
// monitor and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CROSSARB_* environment variables.
type Config struct {
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	DryRun     bool             `toml:"dry_run"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Risk       RiskConfig       `toml:"risk"`
	Detection  DetectionConfig  `toml:"detection"`
	Report     ReportConfig     `toml:"report"`
	Redis      RedisConfig      `toml:"redis"`
	Kafka      KafkaConfig      `toml:"kafka"`
	Store      StoreConfig      `toml:"store"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Resolution ResolutionConfig `toml:"resolution"`
	Server     ServerConfig     `toml:"server"`
	Markets    []MarketConfig   `toml:"markets"`
}

// KalshiConfig holds Kalshi endpoints, credentials and the fee model.
type KalshiConfig struct {
	WSURL             string `toml:"ws_url"`
	BaseURL           string `toml:"base_url"`
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	// FeeModel is "fixed" (FeePerContract cents) or "curve".
	FeeModel       string `toml:"fee_model"`
	FeePerContract int64  `toml:"fee_per_contract"`
}

// PolymarketConfig holds Polymarket endpoints and the per-contract fee.
type PolymarketConfig struct {
	WSURL          string `toml:"ws_url"`
	GammaURL       string `toml:"gamma_url"`
	FeePerContract int64  `toml:"fee_per_contract"`
	// ResolveTokens looks up missing YES/NO token ids through Gamma at
	// startup.
	ResolveTokens bool `toml:"resolve_tokens"`
}

// RiskConfig holds the circuit breaker budget.
type RiskConfig struct {
	MaxPositionSize         int64 `toml:"max_position_size"`
	MaxDailyLossCents       int64 `toml:"max_daily_loss_cents"`
	ContractsPerOpportunity int64 `toml:"contracts_per_opportunity"`
}

// DetectionConfig holds detector and dispatch parameters.
type DetectionConfig struct {
	StalenessThreshold duration `toml:"staleness_threshold"`
	SweepInterval      duration `toml:"sweep_interval"`
	Cooldown           duration `toml:"cooldown"`
	Strategies         []string `toml:"strategies"`
	// Workers > 0 routes feed updates through a sharded worker pool;
	// zero lets each feed call the engine directly.
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

// ReportConfig holds reporter buffering and heartbeat parameters.
type ReportConfig struct {
	BufferSize        int      `toml:"buffer_size"`
	HeartbeatInterval duration `toml:"heartbeat_interval"`
}

// RedisConfig holds Redis connection parameters and channel names.
type RedisConfig struct {
	Enabled        bool     `toml:"enabled"`
	Addr           string   `toml:"addr"`
	Password       string   `toml:"password"`
	DB             int      `toml:"db"`
	PoolSize       int      `toml:"pool_size"`
	MaxRetries     int      `toml:"max_retries"`
	TLSEnabled     bool     `toml:"tls_enabled"`
	KeyPrefix      string   `toml:"key_prefix"`
	Channel        string   `toml:"channel"`
	Stream         string   `toml:"stream"`
	StreamMaxLen   int64    `toml:"stream_max_len"`
	ControlChannel string   `toml:"control_channel"`
	QuoteChannel   string   `toml:"quote_channel"`
	QuoteCacheTTL  duration `toml:"quote_cache_ttl"`
}

// KafkaConfig holds the Kafka sink parameters.
type KafkaConfig struct {
	Enabled     bool     `toml:"enabled"`
	Brokers     []string `toml:"brokers"`
	Topic       string   `toml:"topic"`
	Partitions  int      `toml:"partitions"`
	CreateTopic bool     `toml:"create_topic"`
}

// StoreConfig selects and configures the opportunity journal.
type StoreConfig struct {
	// Driver is "", "postgres" or "sqlite". Empty disables the journal.
	Driver        string `toml:"driver"`
	SQLitePath    string `toml:"sqlite_path"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Prefix         string   `toml:"prefix"`
	FlushInterval  duration `toml:"flush_interval"`
	MaxBatch       int      `toml:"max_batch"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramAPIBase   string   `toml:"telegram_api_base"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ResolutionConfig controls settlement polling.
type ResolutionConfig struct {
	Enabled      bool     `toml:"enabled"`
	PollInterval duration `toml:"poll_interval"`
	// CrossCheck compares Kalshi's result with Polymarket's via Gamma and
	// skips auto-settlement when they disagree.
	CrossCheck bool `toml:"cross_check"`
}

// ServerConfig holds the monitoring API settings.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards every route except the health check. Empty disables
	// authentication.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per client per minute; it needs Redis.
	RateLimit int `toml:"rate_limit"`
}

// MarketConfig is one [[markets]] entry.
type MarketConfig struct {
	ID                 string `toml:"id"`
	Name               string `toml:"name"`
	KalshiTicker       string `toml:"kalshi_ticker"`
	PolymarketMarket   string `toml:"polymarket_market"`
	PolymarketYesToken string `toml:"polymarket_yes_token"`
	PolymarketNoToken  string `toml:"polymarket_no_token"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Mode:     "live",
		LogLevel: "info",
		DryRun:   true,
		Kalshi: KalshiConfig{
			WSURL:          "wss://api.elections.kalshi.com/trade-api/ws/v2",
			BaseURL:        "https://api.elections.kalshi.com/trade-api/v2",
			FeeModel:       "fixed",
			FeePerContract: 2,
		},
		Polymarket: PolymarketConfig{
			WSURL:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			GammaURL: "https://gamma-api.polymarket.com",
		},
		Risk: RiskConfig{
			MaxPositionSize:         10,
			MaxDailyLossCents:       5000,
			ContractsPerOpportunity: 1,
		},
		Detection: DetectionConfig{
			StalenessThreshold: duration{5 * time.Second},
			SweepInterval:      duration{500 * time.Millisecond},
			Cooldown:           duration{2 * time.Second},
			Strategies:         []string{string(domain.StrategyKalshiYesPolyNo), string(domain.StrategyPolyYesKalshiNo)},
			QueueSize:          1024,
		},
		Report: ReportConfig{
			BufferSize:        1024,
			HeartbeatInterval: duration{time.Minute},
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       20,
			MaxRetries:     3,
			KeyPrefix:      "crossarb:",
			Channel:        "opportunities",
			Stream:         "opportunities",
			StreamMaxLen:   10000,
			ControlChannel: "control",
			QuoteCacheTTL:  duration{10 * time.Minute},
		},
		Kafka: KafkaConfig{
			Brokers:    []string{"localhost:9092"},
			Topic:      "crossarb.opportunities",
			Partitions: 3,
		},
		Store: StoreConfig{
			SQLitePath:    "data/crossarb.db",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-archive",
			ForcePathStyle: true,
			Prefix:         "opportunities",
			FlushInterval:  duration{time.Minute},
			MaxBatch:       500,
		},
		Notify: NotifyConfig{
			TelegramAPIBase: "https://api.telegram.org",
			Events:          []string{"opportunity_admitted", "breaker_tripped", "settlement"},
		},
		Resolution: ResolutionConfig{
			PollInterval: duration{time.Minute},
		},
		Server: ServerConfig{
			Port:      8080,
			RateLimit: 120,
		},
	}
}

// Pairs converts the [[markets]] entries to domain pairs, defaulting the
// display name to the id.
func (c *Config) Pairs() []domain.MarketPair {
	out := make([]domain.MarketPair, 0, len(c.Markets))
	for _, m := range c.Markets {
		name := m.Name
		if name == "" {
			name = m.ID
		}
		out = append(out, domain.MarketPair{
			ID:           m.ID,
			DisplayName:  name,
			KalshiTicker: m.KalshiTicker,
			PolyMarket:   m.PolymarketMarket,
			PolyYesToken: m.PolymarketYesToken,
			PolyNoToken:  m.PolymarketNoToken,
		})
	}
	return out
}

// StrategyList returns the configured strategies in evaluation order.
func (c *Config) StrategyList() []domain.Strategy {
	out := make([]domain.Strategy, 0, len(c.Detection.Strategies))
	for _, s := range c.Detection.Strategies {
		out = append(out, domain.Strategy(strings.ToLower(strings.TrimSpace(s))))
	}
	return out
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":   true, // venue websockets
	"bus":    true, // quotes from the Redis quote channel only
	"hybrid": true, // both
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, bus, hybrid)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Markets
	if len(c.Markets) == 0 {
		errs = append(errs, "markets: at least one [[markets]] entry is required")
	}
	seen := make(map[string]bool, len(c.Markets))
	for i, m := range c.Markets {
		if m.ID == "" {
			errs = append(errs, fmt.Sprintf("markets[%d]: id must not be empty", i))
			continue
		}
		if seen[m.ID] {
			errs = append(errs, fmt.Sprintf("markets[%d]: duplicate id %q", i, m.ID))
		}
		seen[m.ID] = true
		if m.KalshiTicker == "" {
			errs = append(errs, fmt.Sprintf("markets[%d] %s: kalshi_ticker must not be empty", i, m.ID))
		}
		hasTokens := m.PolymarketYesToken != "" && m.PolymarketNoToken != ""
		if !hasTokens {
			if !c.Polymarket.ResolveTokens {
				errs = append(errs, fmt.Sprintf("markets[%d] %s: polymarket_yes_token and polymarket_no_token are required unless polymarket.resolve_tokens is set", i, m.ID))
			} else if m.PolymarketMarket == "" {
				errs = append(errs, fmt.Sprintf("markets[%d] %s: polymarket_market is required to resolve token ids", i, m.ID))
			}
		}
		if hasTokens && m.PolymarketYesToken == m.PolymarketNoToken {
			errs = append(errs, fmt.Sprintf("markets[%d] %s: yes and no tokens must differ", i, m.ID))
		}
	}

	// Kalshi
	if mode != "bus" && c.Kalshi.WSURL == "" {
		errs = append(errs, "kalshi: ws_url must not be empty")
	}
	switch strings.ToLower(c.Kalshi.FeeModel) {
	case "fixed", "curve":
	default:
		errs = append(errs, fmt.Sprintf("kalshi: unknown fee_model %q (valid: fixed, curve)", c.Kalshi.FeeModel))
	}
	if c.Kalshi.FeePerContract < 0 || c.Kalshi.FeePerContract > 100 {
		errs = append(errs, fmt.Sprintf("kalshi: fee_per_contract must be 0-100 cents, got %d", c.Kalshi.FeePerContract))
	}
	if (c.Kalshi.ApiKey == "") != (c.Kalshi.RsaPrivateKeyPath == "") {
		errs = append(errs, "kalshi: api_key and rsa_private_key_path must be set together")
	}

	// Polymarket
	if mode != "bus" && c.Polymarket.WSURL == "" {
		errs = append(errs, "polymarket: ws_url must not be empty")
	}
	if c.Polymarket.FeePerContract < 0 || c.Polymarket.FeePerContract > 100 {
		errs = append(errs, fmt.Sprintf("polymarket: fee_per_contract must be 0-100 cents, got %d", c.Polymarket.FeePerContract))
	}
	if (c.Polymarket.ResolveTokens || c.Resolution.CrossCheck) && c.Polymarket.GammaURL == "" {
		errs = append(errs, "polymarket: gamma_url must not be empty when resolve_tokens or resolution.cross_check is set")
	}

	// Risk
	if c.Risk.MaxPositionSize <= 0 {
		errs = append(errs, "risk: max_position_size must be > 0")
	}
	if c.Risk.MaxDailyLossCents <= 0 {
		errs = append(errs, "risk: max_daily_loss_cents must be > 0")
	}
	if c.Risk.ContractsPerOpportunity <= 0 {
		errs = append(errs, "risk: contracts_per_opportunity must be > 0")
	}

	// Detection
	if c.Detection.StalenessThreshold.Duration <= 0 {
		errs = append(errs, "detection: staleness_threshold must be > 0")
	}
	if c.Detection.SweepInterval.Duration < 0 {
		errs = append(errs, "detection: sweep_interval must be >= 0")
	}
	if c.Detection.Cooldown.Duration < 0 {
		errs = append(errs, "detection: cooldown must be >= 0")
	}
	if len(c.Detection.Strategies) == 0 {
		errs = append(errs, "detection: strategies must not be empty")
	}
	for _, s := range c.StrategyList() {
		if _, _, ok := s.Venues(); !ok {
			errs = append(errs, fmt.Sprintf("detection: unknown strategy %q", s))
		}
	}
	if c.Detection.Workers < 0 {
		errs = append(errs, "detection: workers must be >= 0")
	}
	if c.Detection.Workers > 0 && c.Detection.QueueSize < 1 {
		errs = append(errs, "detection: queue_size must be >= 1 when workers are enabled")
	}

	// Report
	if c.Report.BufferSize < 1 {
		errs = append(errs, "report: buffer_size must be >= 1")
	}
	if c.Report.HeartbeatInterval.Duration < 0 {
		errs = append(errs, "report: heartbeat_interval must be >= 0")
	}

	// Redis
	if mode == "bus" || mode == "hybrid" {
		if !c.Redis.Enabled {
			errs = append(errs, "redis: must be enabled for mode "+mode)
		}
		if c.Redis.QuoteChannel == "" {
			errs = append(errs, "redis: quote_channel must be set for mode "+mode)
		}
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty")
		}
	}

	// Store
	switch strings.ToLower(c.Store.Driver) {
	case "":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store: sqlite_path must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			if c.Store.Host == "" {
				errs = append(errs, "store: host must not be empty (or set store.dsn)")
			}
			if c.Store.Port <= 0 || c.Store.Port > 65535 {
				errs = append(errs, fmt.Sprintf("store: port must be 1-65535, got %d", c.Store.Port))
			}
			if c.Store.Database == "" {
				errs = append(errs, "store: database must not be empty")
			}
		}
		if c.Store.PoolMaxConns < 1 {
			errs = append(errs, "store: pool_max_conns must be >= 1")
		}
		if c.Store.PoolMinConns < 0 || c.Store.PoolMinConns > c.Store.PoolMaxConns {
			errs = append(errs, "store: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, sqlite)", c.Store.Driver))
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.FlushInterval.Duration <= 0 {
			errs = append(errs, "s3: flush_interval must be > 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Resolution
	if c.Resolution.Enabled {
		if c.Kalshi.BaseURL == "" {
			errs = append(errs, "resolution: kalshi.base_url must not be empty")
		}
		if c.Resolution.PollInterval.Duration <= 0 {
			errs = append(errs, "resolution: poll_interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
