// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	RPCList      []string `mapstructure:"rpc_list"`
	WebSocketURL string   `mapstructure:"websocket_url"`
	ProgramID    string   `mapstructure:"program_id"`
	Commitment   string   `mapstructure:"commitment"`
	DebugLogging bool     `mapstructure:"debug_logging"`
	Retries      int      `mapstructure:"retries"`
	MetricsAddr  string   `mapstructure:"metrics_addr"`

	Feed    FeedConfig    `mapstructure:"feed"`
	Dedup   DedupConfig   `mapstructure:"dedup"`
	Poller  PollerConfig  `mapstructure:"poller"`
	Pricing PricingConfig `mapstructure:"pricing"`
	Orders  OrdersConfig  `mapstructure:"orders"`
	Storage StorageConfig `mapstructure:"storage"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Log     LogConfig     `mapstructure:"log"`
}

type FeedConfig struct {
	InitialBackoff       time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff           time.Duration `mapstructure:"max_backoff"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
}

type DedupConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type PollerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// Price source names accepted in pricing.source.
const (
	SourceBondingCurve     = "bonding_curve"
	SourceHTTP             = "http"
	SourceBondingCurveHTTP = "bonding_curve+http"
)

type PricingConfig struct {
	Source       string        `mapstructure:"source"`
	APIURL       string        `mapstructure:"api_url"`
	VolumeWindow time.Duration `mapstructure:"volume_window"`
}

// Executor names accepted in orders.executor.
const (
	ExecutorDryRun = "dry_run"
	ExecutorHTTP   = "http"
)

type OrdersConfig struct {
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
	Executor         string        `mapstructure:"executor"`
	ExecutorURL      string        `mapstructure:"executor_url"`
	ExecutorAPIKey   string        `mapstructure:"executor_api_key"`
	EvaluateOnTrades bool          `mapstructure:"evaluate_on_trades"`
}

// Storage drivers accepted in storage.driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver        string        `mapstructure:"driver"`
	PostgresURL   string        `mapstructure:"postgres_url"`
	TokenCapacity int           `mapstructure:"token_capacity"`
	TradeCapacity int           `mapstructure:"trade_capacity"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

type KafkaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Brokers    []string `mapstructure:"brokers"`
	TradeTopic string   `mapstructure:"trade_topic"`
	TokenTopic string   `mapstructure:"token_topic"`
	Async      bool     `mapstructure:"async"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

const (
	DefaultProgramID  = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	DefaultCommitment = "confirmed"
	DefaultRetries    = 3
	EnvPrefix         = "PUMPWATCH"
)

var defaults = map[string]interface{}{
	"program_id":    DefaultProgramID,
	"commitment":    DefaultCommitment,
	"retries":       DefaultRetries,
	"metrics_addr":  ":9090",
	"debug_logging": false,

	"feed.initial_backoff":        "1s",
	"feed.max_backoff":            "30s",
	"feed.max_reconnect_attempts": 10,
	"feed.ping_interval":          "20s",
	"feed.read_timeout":           "60s",

	"dedup.size": 100_000,
	"dedup.ttl":  "10m",

	"poller.interval":      "5s",
	"poller.fetch_timeout": "10s",

	"pricing.source":        SourceBondingCurve,
	"pricing.volume_window": "5m",

	"orders.execution_timeout":  "30s",
	"orders.executor":           ExecutorDryRun,
	"orders.evaluate_on_trades": true,

	"storage.driver":         DriverMemory,
	"storage.token_capacity": 10_000,
	"storage.trade_capacity": 100_000,
	"storage.retention":      "24h",
	"storage.prune_interval": "10m",

	"kafka.trade_topic": "pumpfun.trades",
	"kafka.token_topic": "pumpfun.tokens",
	"kafka.async":       true,

	"log.file":        "logs/pumpwatch.log",
	"log.max_size":    100,
	"log.max_backups": 3,
	"log.max_age":     7,
	"log.compress":    true,
}

// LoadConfig reads the config file at path. Values from a .env file in the
// working directory and PUMPWATCH_* environment variables override the file.
// An empty path loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	loadEnvironmentVariables(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	applyListOverrides(&cfg)

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	if cfg.WebSocketURL == "" {
		return errors.New("missing websocket_url in configuration")
	}
	if err := validateURLWithCache(cfg.WebSocketURL, "ws"); err != nil {
		return errors.New("invalid WebSocket URL protocol")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	if cfg.ProgramID == "" {
		return errors.New("missing program_id")
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	return validateComponents(cfg)
}

func validateNumericParams(cfg *Config) error {
	switch {
	case cfg.Retries < 0:
		return errors.New("invalid retries count")
	case cfg.Feed.InitialBackoff <= 0 || cfg.Feed.MaxBackoff < cfg.Feed.InitialBackoff:
		return errors.New("invalid feed backoff")
	case cfg.Feed.MaxReconnectAttempts < 0:
		return errors.New("invalid feed.max_reconnect_attempts")
	case cfg.Dedup.Size <= 0:
		return errors.New("invalid dedup.size")
	case cfg.Dedup.TTL <= 0:
		return errors.New("invalid dedup.ttl")
	case cfg.Poller.Interval <= 0:
		return errors.New("invalid poller.interval")
	case cfg.Poller.FetchTimeout <= 0:
		return errors.New("invalid poller.fetch_timeout")
	case cfg.Orders.ExecutionTimeout <= 0:
		return errors.New("invalid orders.execution_timeout")
	case cfg.Pricing.VolumeWindow <= 0:
		return errors.New("invalid pricing.volume_window")
	}
	return nil
}

func validateComponents(cfg *Config) error {
	switch cfg.Pricing.Source {
	case SourceBondingCurve:
	case SourceHTTP, SourceBondingCurveHTTP:
		if err := validateURLWithCache(cfg.Pricing.APIURL, "http"); err != nil {
			return errors.New("pricing.api_url must be an http(s) URL")
		}
	default:
		return fmt.Errorf("unknown pricing.source %q", cfg.Pricing.Source)
	}

	switch cfg.Orders.Executor {
	case ExecutorDryRun:
	case ExecutorHTTP:
		if err := validateURLWithCache(cfg.Orders.ExecutorURL, "http"); err != nil {
			return errors.New("orders.executor_url must be an http(s) URL")
		}
	default:
		return fmt.Errorf("unknown orders.executor %q", cfg.Orders.Executor)
	}

	switch cfg.Storage.Driver {
	case DriverMemory:
		if cfg.Storage.TokenCapacity <= 0 || cfg.Storage.TradeCapacity <= 0 {
			return errors.New("invalid storage capacity")
		}
	case DriverPostgres:
		if cfg.Storage.PostgresURL == "" {
			return errors.New("storage.postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Retention < 0 {
		return errors.New("invalid storage.retention")
	}

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is empty")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	key := protocol + "|" + rawURL
	if _, ok := urlCache.Load(key); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(key, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"rpc_list", "websocket_url", "storage.postgres_url", "orders.executor_url", "orders.executor_api_key", "pricing.api_url", "kafka.brokers", "kafka.enabled"} {
		_ = v.BindEnv(key)
	}
}

// applyListOverrides trims comma separated lists coming from the environment.
func applyListOverrides(cfg *Config) {
	if env := os.Getenv(EnvPrefix + "_RPC_LIST"); env != "" {
		if list := splitList(env); len(list) > 0 {
			cfg.RPCList = list
		}
	}
	if env := os.Getenv(EnvPrefix + "_KAFKA_BROKERS"); env != "" {
		if list := splitList(env); len(list) > 0 {
			cfg.Kafka.Brokers = list
		}
	}
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		clean := strings.TrimSpace(item)
		if clean != "" {
			out = append(out, clean)
		}
	}
	return out
}
