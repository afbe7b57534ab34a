// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
rpc_list:
  - https://rpc.example.org
websocket_url: wss://rpc.example.org/ws
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"https://rpc.example.org"}, cfg.RPCList)
	assert.Equal(t, DefaultProgramID, cfg.ProgramID)
	assert.Equal(t, DefaultCommitment, cfg.Commitment)
	assert.Equal(t, 5*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 10*time.Second, cfg.Poller.FetchTimeout)
	assert.Equal(t, 30*time.Second, cfg.Orders.ExecutionTimeout)
	assert.Equal(t, 10, cfg.Feed.MaxReconnectAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Dedup.TTL)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, ExecutorDryRun, cfg.Orders.Executor)
	assert.True(t, cfg.Orders.EvaluateOnTrades)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	body := minimalYAML + `
poller:
  interval: 2s
orders:
  executor: http
  executor_url: https://swap.example.org/execute
storage:
  driver: postgres
  postgres_url: postgres://u:p@localhost:5432/pump
`
	cfg, err := LoadConfig(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Poller.Interval)
	assert.Equal(t, ExecutorHTTP, cfg.Orders.Executor)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("PUMPWATCH_RPC_LIST", " https://a.example.org , https://b.example.org,")
	t.Setenv("PUMPWATCH_WEBSOCKET_URL", "wss://env.example.org")
	t.Setenv("PUMPWATCH_POLLER_INTERVAL", "750ms")
	t.Setenv("PUMPWATCH_KAFKA_ENABLED", "true")
	t.Setenv("PUMPWATCH_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.RPCList)
	assert.Equal(t, "wss://env.example.org", cfg.WebSocketURL)
	assert.Equal(t, 750*time.Millisecond, cfg.Poller.Interval)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig(writeConfig(t, minimalYAML))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty rpc list", func(c *Config) { c.RPCList = nil }},
		{"rpc not http", func(c *Config) { c.RPCList = []string{"ftp://x.org"} }},
		{"missing websocket", func(c *Config) { c.WebSocketURL = "" }},
		{"websocket not ws", func(c *Config) { c.WebSocketURL = "https://x.org" }},
		{"negative retries", func(c *Config) { c.Retries = -1 }},
		{"zero poll interval", func(c *Config) { c.Poller.Interval = 0 }},
		{"backoff inverted", func(c *Config) { c.Feed.MaxBackoff = time.Millisecond }},
		{"zero dedup size", func(c *Config) { c.Dedup.Size = 0 }},
		{"unknown source", func(c *Config) { c.Pricing.Source = "oracle" }},
		{"http source without url", func(c *Config) { c.Pricing.Source = SourceHTTP }},
		{"http executor without url", func(c *Config) { c.Orders.Executor = ExecutorHTTP }},
		{"postgres without url", func(c *Config) { c.Storage.Driver = DriverPostgres }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a,, b ,"))
	assert.Nil(t, splitList(" , "))
}
