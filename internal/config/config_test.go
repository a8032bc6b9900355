package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const sampleTOML = `
mode = "live"
log_level = "debug"
dry_run = false

[kalshi]
fee_model = "curve"

[detection]
staleness_threshold = "3s"
strategies = ["poly_yes_kalshi_no", "kalshi_yes_poly_no"]

[redis]
enabled = true
password = "hunter2"

[[markets]]
id = "btc-100k"
name = "Bitcoin > $100k"
kalshi_ticker = "KXBTC-100K"
polymarket_market = "bitcoin-100k"
polymarket_yes_token = "111"
polymarket_no_token = "222"

[[markets]]
id = "fed-cut"
kalshi_ticker = "KXFED-CUT"
polymarket_yes_token = "333"
polymarket_no_token = "444"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Markets = []MarketConfig{{
		ID:                 "m1",
		KalshiTicker:       "KX-M1",
		PolymarketYesToken: "y",
		PolymarketNoToken:  "n",
	}}
	return cfg
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.DryRun {
		t.Errorf("log_level=%q dry_run=%v, want debug/false", cfg.LogLevel, cfg.DryRun)
	}
	if cfg.Kalshi.FeeModel != "curve" {
		t.Errorf("fee_model = %q, want curve", cfg.Kalshi.FeeModel)
	}
	// untouched defaults survive
	if cfg.Kalshi.FeePerContract != 2 || cfg.Risk.MaxPositionSize != 10 || cfg.Risk.MaxDailyLossCents != 5000 {
		t.Errorf("defaults lost: fee=%d pos=%d loss=%d",
			cfg.Kalshi.FeePerContract, cfg.Risk.MaxPositionSize, cfg.Risk.MaxDailyLossCents)
	}
	if cfg.Detection.StalenessThreshold.Duration != 3*time.Second {
		t.Errorf("staleness = %s, want 3s", cfg.Detection.StalenessThreshold.Duration)
	}

	got := cfg.StrategyList()
	want := []domain.Strategy{domain.StrategyPolyYesKalshiNo, domain.StrategyKalshiYesPolyNo}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("strategies = %v, want %v", got, want)
	}

	pairs := cfg.Pairs()
	if len(pairs) != 2 {
		t.Fatalf("pairs = %d, want 2", len(pairs))
	}
	if pairs[0].DisplayName != "Bitcoin > $100k" || pairs[0].PolyMarket != "bitcoin-100k" {
		t.Errorf("pair[0] = %+v", pairs[0])
	}
	if pairs[1].DisplayName != "fed-cut" {
		t.Errorf("pair[1] display name = %q, want id fallback", pairs[1].DisplayName)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MAX_POSITION_SIZE", "25")
	t.Setenv("MAX_DAILY_LOSS", "1200")
	t.Setenv("KALSHI_FEE_PER_CONTRACT", "3")
	t.Setenv("STALENESS_THRESHOLD", "7")
	t.Setenv("DRY_RUN", "yes")
	t.Setenv("CROSSARB_RISK_MAX_DAILY_LOSS_CENTS", "900")
	t.Setenv("CROSSARB_DETECTION_STRATEGIES", " poly_only , kalshi_only ,")
	t.Setenv("CROSSARB_REDIS_ADDR", "redis:6380")

	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Risk.MaxPositionSize != 25 {
		t.Errorf("max_position_size = %d, want 25", cfg.Risk.MaxPositionSize)
	}
	if cfg.Risk.MaxDailyLossCents != 900 {
		t.Errorf("max_daily_loss_cents = %d, want prefixed value 900", cfg.Risk.MaxDailyLossCents)
	}
	if cfg.Kalshi.FeePerContract != 3 {
		t.Errorf("kalshi fee = %d, want 3", cfg.Kalshi.FeePerContract)
	}
	if cfg.Detection.StalenessThreshold.Duration != 7*time.Second {
		t.Errorf("staleness = %s, want 7s", cfg.Detection.StalenessThreshold.Duration)
	}
	if cfg.DryRun {
		t.Error("DRY_RUN=yes should disable dry run")
	}
	if got := cfg.Detection.Strategies; len(got) != 2 || got[0] != "poly_only" || got[1] != "kalshi_only" {
		t.Errorf("strategies = %v", got)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestSetDryRun(t *testing.T) {
	tests := []struct {
		val  string
		want bool
	}{
		{"1", true},
		{"TRUE", true},
		{"true", true},
		{"0", false},
		{"false", false},
		{"on", false},
	}
	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			t.Setenv("DRY_RUN", tt.val)
			got := !tt.want
			setDryRun(&got, "DRY_RUN")
			if got != tt.want {
				t.Errorf("DRY_RUN=%q -> %v, want %v", tt.val, got, tt.want)
			}
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !cfg.DryRun {
		t.Error("dry run should default to on")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no markets", func(c *Config) { c.Markets = nil }, "at least one [[markets]]"},
		{"bad mode", func(c *Config) { c.Mode = "paper" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"duplicate market", func(c *Config) { c.Markets = append(c.Markets, c.Markets[0]) }, "duplicate id"},
		{"missing ticker", func(c *Config) { c.Markets[0].KalshiTicker = "" }, "kalshi_ticker"},
		{"missing tokens", func(c *Config) { c.Markets[0].PolymarketNoToken = "" }, "resolve_tokens"},
		{"resolve without market", func(c *Config) {
			c.Polymarket.ResolveTokens = true
			c.Markets[0].PolymarketNoToken = ""
		}, "polymarket_market is required"},
		{"same tokens", func(c *Config) { c.Markets[0].PolymarketNoToken = "y" }, "must differ"},
		{"bad fee model", func(c *Config) { c.Kalshi.FeeModel = "tiered" }, "fee_model"},
		{"fee out of range", func(c *Config) { c.Kalshi.FeePerContract = 101 }, "fee_per_contract"},
		{"half kalshi creds", func(c *Config) { c.Kalshi.ApiKey = "k" }, "set together"},
		{"zero position", func(c *Config) { c.Risk.MaxPositionSize = 0 }, "max_position_size"},
		{"zero loss", func(c *Config) { c.Risk.MaxDailyLossCents = 0 }, "max_daily_loss_cents"},
		{"zero staleness", func(c *Config) { c.Detection.StalenessThreshold.Duration = 0 }, "staleness_threshold"},
		{"unknown strategy", func(c *Config) { c.Detection.Strategies = []string{"both_sides"} }, "unknown strategy"},
		{"bus without redis", func(c *Config) { c.Mode = "bus" }, "redis: must be enabled"},
		{"bad store driver", func(c *Config) { c.Store.Driver = "mysql" }, "unknown driver"},
		{"s3 without bucket", func(c *Config) {
			c.S3.Enabled = true
			c.S3.Bucket = ""
		}, "bucket"},
		{"kafka without topic", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Topic = ""
		}, "kafka: topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_BusModeSkipsVenueURLs(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bus"
	cfg.Redis.Enabled = true
	cfg.Redis.QuoteChannel = "quotes"
	cfg.Kalshi.WSURL = ""
	cfg.Polymarket.WSURL = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Kalshi.ApiKey = "key-id"
	cfg.Redis.Password = "pw"
	cfg.Store.DSN = "postgres://u:p@h/db"
	cfg.S3.SecretKey = "secret"
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)
	for name, got := range map[string]string{
		"kalshi api key": out.Kalshi.ApiKey,
		"redis password": out.Redis.Password,
		"store dsn":      out.Store.DSN,
		"s3 secret":      out.S3.SecretKey,
		"telegram token": out.Notify.TelegramToken,
	} {
		if got != redacted {
			t.Errorf("%s = %q, want %q", name, got, redacted)
		}
	}
	if out.S3.AccessKey != "" {
		t.Errorf("empty secret should stay empty, got %q", out.S3.AccessKey)
	}
	if cfg.Kalshi.ApiKey != "key-id" {
		t.Error("original config was mutated")
	}

	out.Detection.Strategies[0] = "mutated"
	out.Markets[0].ID = "mutated"
	if cfg.Detection.Strategies[0] == "mutated" || cfg.Markets[0].ID == "mutated" {
		t.Error("redacted copy shares slices with the original")
	}
}
