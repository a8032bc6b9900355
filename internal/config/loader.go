package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies environment variable overrides, and returns the
// final Config. An empty path skips the file and uses defaults plus the
// environment. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). The bare risk variables (MAX_POSITION_SIZE, MAX_DAILY_LOSS, ...)
// are applied first so the prefixed form wins when both are present.
func applyEnvOverrides(cfg *Config) {
	// ── Bare aliases ──
	setInt64(&cfg.Risk.MaxPositionSize, "MAX_POSITION_SIZE")
	setInt64(&cfg.Risk.MaxDailyLossCents, "MAX_DAILY_LOSS")
	setInt64(&cfg.Kalshi.FeePerContract, "KALSHI_FEE_PER_CONTRACT")
	setSeconds(&cfg.Detection.StalenessThreshold, "STALENESS_THRESHOLD")
	setDryRun(&cfg.DryRun, "DRY_RUN")

	// ── Top-level ──
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
	setBool(&cfg.DryRun, "CROSSARB_DRY_RUN")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.WSURL, "CROSSARB_KALSHI_WS_URL")
	setStr(&cfg.Kalshi.BaseURL, "CROSSARB_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.ApiKey, "CROSSARB_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "CROSSARB_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.FeeModel, "CROSSARB_KALSHI_FEE_MODEL")
	setInt64(&cfg.Kalshi.FeePerContract, "CROSSARB_KALSHI_FEE_PER_CONTRACT")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.WSURL, "CROSSARB_POLYMARKET_WS_URL")
	setStr(&cfg.Polymarket.GammaURL, "CROSSARB_POLYMARKET_GAMMA_URL")
	setInt64(&cfg.Polymarket.FeePerContract, "CROSSARB_POLYMARKET_FEE_PER_CONTRACT")
	setBool(&cfg.Polymarket.ResolveTokens, "CROSSARB_POLYMARKET_RESOLVE_TOKENS")

	// ── Risk ──
	setInt64(&cfg.Risk.MaxPositionSize, "CROSSARB_RISK_MAX_POSITION_SIZE")
	setInt64(&cfg.Risk.MaxDailyLossCents, "CROSSARB_RISK_MAX_DAILY_LOSS_CENTS")
	setInt64(&cfg.Risk.ContractsPerOpportunity, "CROSSARB_RISK_CONTRACTS_PER_OPPORTUNITY")

	// ── Detection ──
	setDuration(&cfg.Detection.StalenessThreshold, "CROSSARB_DETECTION_STALENESS_THRESHOLD")
	setDuration(&cfg.Detection.SweepInterval, "CROSSARB_DETECTION_SWEEP_INTERVAL")
	setDuration(&cfg.Detection.Cooldown, "CROSSARB_DETECTION_COOLDOWN")
	setStringSlice(&cfg.Detection.Strategies, "CROSSARB_DETECTION_STRATEGIES")
	setInt(&cfg.Detection.Workers, "CROSSARB_DETECTION_WORKERS")
	setInt(&cfg.Detection.QueueSize, "CROSSARB_DETECTION_QUEUE_SIZE")

	// ── Report ──
	setInt(&cfg.Report.BufferSize, "CROSSARB_REPORT_BUFFER_SIZE")
	setDuration(&cfg.Report.HeartbeatInterval, "CROSSARB_REPORT_HEARTBEAT_INTERVAL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CROSSARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "CROSSARB_REDIS_KEY_PREFIX")
	setStr(&cfg.Redis.Channel, "CROSSARB_REDIS_CHANNEL")
	setStr(&cfg.Redis.Stream, "CROSSARB_REDIS_STREAM")
	setInt64(&cfg.Redis.StreamMaxLen, "CROSSARB_REDIS_STREAM_MAX_LEN")
	setStr(&cfg.Redis.ControlChannel, "CROSSARB_REDIS_CONTROL_CHANNEL")
	setStr(&cfg.Redis.QuoteChannel, "CROSSARB_REDIS_QUOTE_CHANNEL")
	setDuration(&cfg.Redis.QuoteCacheTTL, "CROSSARB_REDIS_QUOTE_CACHE_TTL")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "CROSSARB_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "CROSSARB_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "CROSSARB_KAFKA_TOPIC")
	setInt(&cfg.Kafka.Partitions, "CROSSARB_KAFKA_PARTITIONS")
	setBool(&cfg.Kafka.CreateTopic, "CROSSARB_KAFKA_CREATE_TOPIC")

	// ── Store ──
	setStr(&cfg.Store.Driver, "CROSSARB_STORE_DRIVER")
	setStr(&cfg.Store.SQLitePath, "CROSSARB_STORE_SQLITE_PATH")
	setStr(&cfg.Store.DSN, "CROSSARB_STORE_DSN")
	setStr(&cfg.Store.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Store.Host, "CROSSARB_STORE_HOST")
	setInt(&cfg.Store.Port, "CROSSARB_STORE_PORT")
	setStr(&cfg.Store.Database, "CROSSARB_STORE_DATABASE")
	setStr(&cfg.Store.User, "CROSSARB_STORE_USER")
	setStr(&cfg.Store.Password, "CROSSARB_STORE_PASSWORD")
	setStr(&cfg.Store.SSLMode, "CROSSARB_STORE_SSL_MODE")
	setInt(&cfg.Store.PoolMaxConns, "CROSSARB_STORE_POOL_MAX_CONNS")
	setInt(&cfg.Store.PoolMinConns, "CROSSARB_STORE_POOL_MIN_CONNS")
	setBool(&cfg.Store.RunMigrations, "CROSSARB_STORE_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CROSSARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CROSSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "CROSSARB_S3_PREFIX")
	setDuration(&cfg.S3.FlushInterval, "CROSSARB_S3_FLUSH_INTERVAL")
	setInt(&cfg.S3.MaxBatch, "CROSSARB_S3_MAX_BATCH")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramAPIBase, "CROSSARB_NOTIFY_TELEGRAM_API_BASE")
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")

	// ── Resolution ──
	setBool(&cfg.Resolution.Enabled, "CROSSARB_RESOLUTION_ENABLED")
	setDuration(&cfg.Resolution.PollInterval, "CROSSARB_RESOLUTION_POLL_INTERVAL")
	setBool(&cfg.Resolution.CrossCheck, "CROSSARB_RESOLUTION_CROSS_CHECK")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CROSSARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CROSSARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CROSSARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CROSSARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CROSSARB_SERVER_RATE_LIMIT")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDryRun treats "1" and "true" (any case) as on and every other non-empty
// value as off.
func setDryRun(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		*dst = v == "1" || v == "true"
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

// setSeconds accepts either a bare number of seconds or a Go duration string.
func setSeconds(dst *duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		dst.Duration = time.Duration(n * float64(time.Second))
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		dst.Duration = d
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
