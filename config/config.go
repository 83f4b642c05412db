// Package config loads the gainboard YAML config and the secrets kept in
// the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/gainboard/internal/cache"
	"github.com/vadiminshakov/gainboard/internal/domain"
)

const (
	EquityAlpaca = "alpaca"

	CryptoBinance     = "binance"
	CryptoBybit       = "bybit"
	CryptoHyperliquid = "hyperliquid"

	HoldingsMemory   = "memory"
	HoldingsPostgres = "postgres"
)

// Config typed application config.
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Cache       CacheConfig
	Concurrency ConcurrencyConfig
	Equity      EquityConfig
	Crypto      CryptoConfig
	Holdings    HoldingsConfig
	Snapshots   SnapshotsConfig
}

type ServerConfig struct {
	Addr       string
	TLSDomains []string
	CertCache  string
}

type LogConfig struct {
	Level       string
	Development bool
}

type CacheConfig struct {
	Backend         string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JanitorInterval time.Duration
	TTL             cache.TTLPolicy
}

type ConcurrencyConfig struct {
	MaxUpstream       int64
	FetchTimeout      time.Duration
	HistoryWindowDays int
	GainParallelism   int
}

type EquityConfig struct {
	Platform  string
	BaseURL   string
	APIKey    string
	APISecret string
	MaxBatch  int
	Unusable  []string
}

type CryptoConfig struct {
	Platform   string
	BaseURL    string
	Quote      string
	APIKey     string
	APISecret  string
	PrivateKey string
	MaxBatch   int
	IDs        map[string]string
	Unusable   []string
}

type HoldingsConfig struct {
	Backend     string
	PostgresDSN string
	Seed        []domain.Holding
}

type SnapshotsConfig struct {
	Enabled bool
	Dir     string
}

// ConfigTmp raw YAML layout. Durations and amounts stay strings until Parse.
type ConfigTmp struct {
	Server      ServerTmp      `yaml:"server"`
	Log         LogTmp         `yaml:"log"`
	Cache       CacheTmp       `yaml:"cache"`
	Concurrency ConcurrencyTmp `yaml:"concurrency"`
	Equity      EquityTmp      `yaml:"equity"`
	Crypto      CryptoTmp      `yaml:"crypto"`
	Holdings    HoldingsTmp    `yaml:"holdings"`
	Snapshots   SnapshotsTmp   `yaml:"snapshots"`
}

type ServerTmp struct {
	Addr       string   `yaml:"addr"`
	TLSDomains []string `yaml:"tls_domains,omitempty"`
	CertCache  string   `yaml:"cert_cache,omitempty"`
}

type LogTmp struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development,omitempty"`
}

type CacheTmp struct {
	Backend         string `yaml:"backend"`
	RedisAddr       string `yaml:"redis_addr,omitempty"`
	RedisDB         int    `yaml:"redis_db,omitempty"`
	JanitorInterval string `yaml:"janitor_interval,omitempty"`
	TTL             TTLTmp `yaml:"ttl,omitempty"`
}

type TTLTmp struct {
	LiveQuote       string `yaml:"live_quote,omitempty"`
	Leaderboard     string `yaml:"leaderboard,omitempty"`
	HistoricalFresh string `yaml:"historical_fresh,omitempty"`
	HistoricalWeek  string `yaml:"historical_week,omitempty"`
	HistoricalOld   string `yaml:"historical_old,omitempty"`
}

type ConcurrencyTmp struct {
	MaxUpstream       int64  `yaml:"max_upstream,omitempty"`
	FetchTimeout      string `yaml:"fetch_timeout,omitempty"`
	HistoryWindowDays int    `yaml:"history_window_days,omitempty"`
	GainParallelism   int    `yaml:"gain_parallelism,omitempty"`
}

type EquityTmp struct {
	Platform string   `yaml:"platform"`
	BaseURL  string   `yaml:"base_url,omitempty"`
	MaxBatch int      `yaml:"max_batch,omitempty"`
	Unusable []string `yaml:"unusable,omitempty"`
}

type CryptoTmp struct {
	Platform string            `yaml:"platform"`
	BaseURL  string            `yaml:"base_url,omitempty"`
	Quote    string            `yaml:"quote,omitempty"`
	MaxBatch int               `yaml:"max_batch,omitempty"`
	IDs      map[string]string `yaml:"ids,omitempty"`
	Unusable []string          `yaml:"unusable,omitempty"`
}

type HoldingsTmp struct {
	Backend string       `yaml:"backend"`
	Seed    []HoldingTmp `yaml:"seed,omitempty"`
}

type HoldingTmp struct {
	UserID        int64  `yaml:"user_id"`
	Symbol        string `yaml:"symbol"`
	Quantity      string `yaml:"quantity"`
	PurchasePrice string `yaml:"purchase_price"`
	PurchaseDate  string `yaml:"purchase_date"`
}

type SnapshotsTmp struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir,omitempty"`
}

// Load reads secrets from envFile (when it exists) and the environment, then
// parses the YAML config at path.
func Load(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, errors.Wrapf(err, "load env file %s", envFile)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return Config{}, errors.Wrapf(err, "decode config %s", path)
	}

	cfg, err := Parse(tmp)
	if err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)

	return cfg, cfg.Validate()
}

// Parse converts the raw layout into Config, filling defaults.
func Parse(c ConfigTmp) (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Addr:       orDefault(c.Server.Addr, ":8080"),
			TLSDomains: c.Server.TLSDomains,
			CertCache:  orDefault(c.Server.CertCache, "cert-cache"),
		},
		Log: LogConfig{
			Level:       orDefault(c.Log.Level, "info"),
			Development: c.Log.Development,
		},
		Cache: CacheConfig{
			Backend:   orDefault(c.Cache.Backend, cache.BackendLocal),
			RedisAddr: orDefault(c.Cache.RedisAddr, "localhost:6379"),
			RedisDB:   c.Cache.RedisDB,
		},
		Concurrency: ConcurrencyConfig{
			MaxUpstream:       c.Concurrency.MaxUpstream,
			HistoryWindowDays: c.Concurrency.HistoryWindowDays,
			GainParallelism:   c.Concurrency.GainParallelism,
		},
		Equity: EquityConfig{
			Platform: orDefault(c.Equity.Platform, EquityAlpaca),
			BaseURL:  c.Equity.BaseURL,
			MaxBatch: c.Equity.MaxBatch,
			Unusable: c.Equity.Unusable,
		},
		Crypto: CryptoConfig{
			Platform: orDefault(c.Crypto.Platform, CryptoBinance),
			BaseURL:  c.Crypto.BaseURL,
			Quote:    c.Crypto.Quote,
			MaxBatch: c.Crypto.MaxBatch,
			IDs:      c.Crypto.IDs,
			Unusable: c.Crypto.Unusable,
		},
		Holdings: HoldingsConfig{
			Backend: orDefault(c.Holdings.Backend, HoldingsMemory),
		},
		Snapshots: SnapshotsConfig{
			Enabled: c.Snapshots.Enabled,
			Dir:     orDefault(c.Snapshots.Dir, "./wal/portfolio"),
		},
	}

	if cfg.Concurrency.MaxUpstream == 0 {
		cfg.Concurrency.MaxUpstream = 8
	}
	if cfg.Concurrency.HistoryWindowDays == 0 {
		cfg.Concurrency.HistoryWindowDays = 7
	}
	if cfg.Concurrency.GainParallelism == 0 {
		cfg.Concurrency.GainParallelism = 8
	}

	var err error
	if cfg.Cache.JanitorInterval, err = parseDuration("cache.janitor_interval", c.Cache.JanitorInterval, time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Concurrency.FetchTimeout, err = parseDuration("concurrency.fetch_timeout", c.Concurrency.FetchTimeout, 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Cache.TTL, err = parseTTL(c.Cache.TTL); err != nil {
		return Config{}, err
	}

	for i, h := range c.Holdings.Seed {
		holding, err := parseHolding(h)
		if err != nil {
			return Config{}, errors.WithMessagef(err, "holdings.seed[%d]", i)
		}
		cfg.Holdings.Seed = append(cfg.Holdings.Seed, holding)
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Equity.Platform != EquityAlpaca {
		return fmt.Errorf("unsupported equity platform: %s", c.Equity.Platform)
	}
	switch c.Crypto.Platform {
	case CryptoBinance, CryptoBybit, CryptoHyperliquid:
	default:
		return fmt.Errorf("unsupported crypto platform: %s", c.Crypto.Platform)
	}
	switch c.Cache.Backend {
	case cache.BackendLocal, cache.BackendRedis:
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
	switch c.Holdings.Backend {
	case HoldingsMemory:
	case HoldingsPostgres:
		if c.Holdings.PostgresDSN == "" {
			return errors.New("holdings backend postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported holdings backend: %s", c.Holdings.Backend)
	}
	if c.Concurrency.MaxUpstream < 1 {
		return fmt.Errorf("concurrency.max_upstream must be positive, got %d", c.Concurrency.MaxUpstream)
	}
	if c.Concurrency.HistoryWindowDays < 1 {
		return fmt.Errorf("concurrency.history_window_days must be positive, got %d", c.Concurrency.HistoryWindowDays)
	}
	for _, s := range c.Equity.Unusable {
		if domain.Classify(s).Kind != domain.KindEquity {
			return fmt.Errorf("equity.unusable contains crypto symbol %q", s)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Cache.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.Holdings.PostgresDSN = os.Getenv("POSTGRES_DSN")
	cfg.Equity.APIKey = os.Getenv("ALPACA_API_KEY")
	cfg.Equity.APISecret = os.Getenv("ALPACA_API_SECRET")

	switch cfg.Crypto.Platform {
	case CryptoBinance:
		cfg.Crypto.APIKey = os.Getenv("BINANCE_API_KEY")
		cfg.Crypto.APISecret = os.Getenv("BINANCE_API_SECRET")
	case CryptoBybit:
		cfg.Crypto.APIKey = os.Getenv("BYBIT_API_KEY")
		cfg.Crypto.APISecret = os.Getenv("BYBIT_API_SECRET")
	case CryptoHyperliquid:
		cfg.Crypto.PrivateKey = os.Getenv("HYPERLIQUID_PRIVATE_KEY")
	}
}

func parseTTL(t TTLTmp) (cache.TTLPolicy, error) {
	p := cache.DefaultTTLPolicy()
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"cache.ttl.live_quote", t.LiveQuote, &p.LiveQuote},
		{"cache.ttl.leaderboard", t.Leaderboard, &p.Leaderboard},
		{"cache.ttl.historical_fresh", t.HistoricalFresh, &p.HistoricalFresh},
		{"cache.ttl.historical_week", t.HistoricalWeek, &p.HistoricalWeek},
		{"cache.ttl.historical_old", t.HistoricalOld, &p.HistoricalOld},
	}
	for _, f := range fields {
		d, err := parseDuration(f.name, f.raw, *f.dst)
		if err != nil {
			return cache.TTLPolicy{}, err
		}
		*f.dst = d
	}
	return p, nil
}

func parseDuration(name, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (must be a duration like 5m), error: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config: must be positive", name)
	}
	return d, nil
}

func parseHolding(h HoldingTmp) (domain.Holding, error) {
	if h.UserID <= 0 {
		return domain.Holding{}, fmt.Errorf("user_id must be positive")
	}
	if strings.TrimSpace(h.Symbol) == "" {
		return domain.Holding{}, fmt.Errorf("symbol is required")
	}
	quantity, err := decimal.NewFromString(h.Quantity)
	if err != nil {
		return domain.Holding{}, fmt.Errorf("incorrect 'quantity' %q (must be a decimal), error: %w", h.Quantity, err)
	}
	price, err := decimal.NewFromString(h.PurchasePrice)
	if err != nil {
		return domain.Holding{}, fmt.Errorf("incorrect 'purchase_price' %q (must be a decimal), error: %w", h.PurchasePrice, err)
	}
	if quantity.IsNegative() || price.IsNegative() {
		return domain.Holding{}, fmt.Errorf("quantity and purchase_price must not be negative")
	}
	date, err := time.Parse(time.DateOnly, h.PurchaseDate)
	if err != nil {
		return domain.Holding{}, fmt.Errorf("incorrect 'purchase_date' %q (must be YYYY-MM-DD), error: %w", h.PurchaseDate, err)
	}

	return domain.Holding{
		UserID:        h.UserID,
		Symbol:        strings.TrimSpace(h.Symbol),
		Quantity:      quantity,
		PurchasePrice: price,
		PurchaseDate:  date,
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
