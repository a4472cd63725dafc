package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() AppConfig {
	return AppConfig{
		ServiceName: "ratingsync",
		Ledger:      LedgerConfig{Path: "ratingsync.db"},
		Ranking:     RankingConfig{BaseURL: "http://localhost:8000"},
		Syncer: SyncerConfig{
			Period:        120 * time.Second,
			Budget:        60 * time.Second,
			OverlapPolicy: OverlapAllow,
		},
		Notify: NotifyConfig{Backend: NotifyNone},
	}
}

func TestConfigValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid config passes validation", prop.ForAll(
		func(serviceName, path, topic, broker string, periodMs int64) bool {
			cfg := validConfig()
			cfg.ServiceName = serviceName
			cfg.Ledger.Path = path
			cfg.Syncer.Period = time.Duration(periodMs) * time.Millisecond
			cfg.Notify.Backend = NotifyKafka
			cfg.Kafka = KafkaConfig{Topic: topic, Brokers: []string{broker}}
			return cfg.Validate() == nil
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
		gen.Int64Range(1000, 600000),
	))

	properties.Property("period under one second fails validation", prop.ForAll(
		func(periodMs int64) bool {
			cfg := validConfig()
			cfg.Syncer.Period = time.Duration(periodMs) * time.Millisecond
			return cfg.Validate() != nil
		},
		gen.Int64Range(-600000, 999),
	))

	properties.Property("bare numbers are counted in the key's unit", prop.ForAll(
		func(n int64) bool {
			period, err := parseDuration(n, time.Second)
			if err != nil || period != time.Duration(n)*time.Second {
				return false
			}
			budget, err := parseDuration(strconv.FormatInt(n, 10), time.Millisecond)
			return err == nil && budget == time.Duration(n)*time.Millisecond
		},
		gen.Int64Range(0, 1000000),
	))

	properties.Property("unknown overlap policy fails validation", prop.ForAll(
		func(policy string) bool {
			cfg := validConfig()
			cfg.Syncer.OverlapPolicy = policy
			if policy == OverlapAllow || policy == OverlapSkip {
				return cfg.Validate() == nil
			}
			return cfg.Validate() != nil
		},
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestConfigValidationCases(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		ok     bool
	}{
		{"defaults", func(*AppConfig) {}, true},
		{"zero budget is unpaced", func(c *AppConfig) { c.Syncer.Budget = 0 }, true},
		{"nanosecond period", func(c *AppConfig) { c.Syncer.Period = 120 }, false},
		{"one second period", func(c *AppConfig) { c.Syncer.Period = time.Second }, true},
		{"negative budget", func(c *AppConfig) { c.Syncer.Budget = -time.Second }, false},
		{"missing ledger path", func(c *AppConfig) { c.Ledger.Path = "" }, false},
		{"missing base url", func(c *AppConfig) { c.Ranking.BaseURL = "" }, false},
		{"kafka without brokers", func(c *AppConfig) {
			c.Notify.Backend = NotifyKafka
			c.Kafka.Topic = "t"
		}, false},
		{"redis backend", func(c *AppConfig) {
			c.Notify.Backend = NotifyRedis
			c.Redis = RedisConfig{Addr: "localhost:6379", Key: "k"}
		}, true},
		{"redis without key", func(c *AppConfig) {
			c.Notify.Backend = NotifyRedis
			c.Redis = RedisConfig{Addr: "localhost:6379"}
		}, false},
		{"unknown backend", func(c *AppConfig) { c.Notify.Backend = "sqs" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ratingsync.db", cfg.Ledger.Path)
	assert.Equal(t, 120*time.Second, cfg.Syncer.Period)
	assert.Equal(t, 60000*time.Millisecond, cfg.Syncer.Budget)
	assert.Equal(t, OverlapAllow, cfg.Syncer.OverlapPolicy)
	assert.Equal(t, NotifyNone, cfg.Notify.Backend)
	assert.Equal(t, ":8081", cfg.Server.Addr)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVICE_NAME", "test-service")
	t.Setenv("LEDGER_PATH", "/tmp/ledger")
	t.Setenv("SYNCER_PERIOD", "30s")
	t.Setenv("SYNCER_OVERLAP_POLICY", "skip")
	t.Setenv("NOTIFY_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "localhost:9092,localhost:9093")
	t.Setenv("KAFKA_TOPIC", "test-topic")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "test-service", cfg.ServiceName)
	assert.Equal(t, "/tmp/ledger", cfg.Ledger.Path)
	assert.Equal(t, 30*time.Second, cfg.Syncer.Period)
	assert.Equal(t, OverlapSkip, cfg.Syncer.OverlapPolicy)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.Kafka.Brokers)
	assert.Equal(t, "test-topic", cfg.Kafka.Topic)

	// Test invalid config loading
	t.Setenv("SYNCER_OVERLAP_POLICY", "queue")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratingsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ledger:
  path: data/ledger
syncer:
  budget: 5s
ranking:
  circuit_breaker: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "data/ledger", cfg.Ledger.Path)
	assert.Equal(t, 5*time.Second, cfg.Syncer.Budget)
	assert.False(t, cfg.Ranking.CircuitBreaker)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigBareNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratingsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
syncer:
  period: 120
  budget: 60000
  fetch_timeout: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.Syncer.Period)
	assert.Equal(t, 60*time.Second, cfg.Syncer.Budget)
	assert.Equal(t, 10*time.Second, cfg.Syncer.FetchTimeout)
}

func TestLoadConfigBareNumbersFromEnv(t *testing.T) {
	t.Setenv("SYNCER_PERIOD", "30")
	t.Setenv("SYNCER_BUDGET", "60000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Syncer.Period)
	assert.Equal(t, 60000*time.Millisecond, cfg.Syncer.Budget)
}

func TestLoadConfigRejectsBadDurations(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"period below a second", "SYNCER_PERIOD", "0.5"},
		{"period not a duration", "SYNCER_PERIOD", "soon"},
		{"budget not a duration", "SYNCER_BUDGET", "1 minute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
