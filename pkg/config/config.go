package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Overlap policies for sync cycles
const (
	OverlapAllow = "allow"
	OverlapSkip  = "skip"
)

// Notification backends
const (
	NotifyNone  = "none"
	NotifyKafka = "kafka"
	NotifyRedis = "redis"
)

// AppConfig holds the complete configuration for the application
type AppConfig struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	ServiceName string         `mapstructure:"service_name"`
	Ledger      LedgerConfig   `mapstructure:"ledger"`
	Ranking     RankingConfig  `mapstructure:"ranking"`
	Syncer      SyncerConfig   `mapstructure:"syncer"`
	Notify      NotifyConfig   `mapstructure:"notify"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Postgres    PostgresConfig `mapstructure:"postgres"`
	Server      ServerConfig   `mapstructure:"server"`
}

type LedgerConfig struct {
	Path       string        `mapstructure:"path"`
	SyncWrites bool          `mapstructure:"sync_writes"`
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

type RankingConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CircuitBreaker bool          `mapstructure:"circuit_breaker"`
}

type SyncerConfig struct {
	Period        time.Duration `mapstructure:"period"`
	Budget        time.Duration `mapstructure:"budget"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	OverlapPolicy string        `mapstructure:"overlap_policy"`
}

type NotifyConfig struct {
	Backend string `mapstructure:"backend"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type PostgresConfig struct {
	URI      string `mapstructure:"uri"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// MinPeriod is the shortest accepted outer cycle period
const MinPeriod = time.Second

// durationUnits gives the unit of a bare number for each duration key.
// Values with a unit suffix ("90s", "1m") are parsed as Go durations.
var durationUnits = map[string]time.Duration{
	"syncer.period":        time.Second,
	"syncer.budget":        time.Millisecond,
	"syncer.fetch_timeout": time.Second,
	"ranking.timeout":      time.Second,
	"ledger.gc_interval":   time.Second,
}

// Load loads configuration from file and environment variables
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	// Default values
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("service_name", "ratingsync")
	v.SetDefault("ledger.path", "ratingsync.db")
	v.SetDefault("ledger.sync_writes", false)
	v.SetDefault("ledger.gc_interval", 10*time.Minute)
	v.SetDefault("ranking.base_url", "https://puddle.farm/api")
	v.SetDefault("ranking.timeout", 15*time.Second)
	v.SetDefault("ranking.circuit_breaker", true)
	v.SetDefault("syncer.period", 120*time.Second)
	v.SetDefault("syncer.budget", 60000*time.Millisecond)
	v.SetDefault("syncer.fetch_timeout", 10*time.Second)
	v.SetDefault("syncer.overlap_policy", OverlapAllow)
	v.SetDefault("notify.backend", NotifyNone)
	v.SetDefault("kafka.topic", "ratingsync.match-activity")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key", "ratingsync:match-activity")
	v.SetDefault("postgres.uri", "")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("postgres.min_conns", 1)
	v.SetDefault("server.addr", ":8081")

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// Bind environment variables explicitly for nested structs to ensure Unmarshal picks them up
	for _, key := range []string{
		"service_name", "environment", "log_level",
		"ledger.path", "ledger.sync_writes", "ledger.gc_interval",
		"ranking.base_url", "ranking.timeout", "ranking.circuit_breaker",
		"syncer.period", "syncer.budget", "syncer.fetch_timeout", "syncer.overlap_policy",
		"notify.backend",
		"kafka.brokers", "kafka.topic",
		"redis.addr", "redis.password", "redis.db", "redis.key",
		"postgres.uri", "postgres.max_conns", "postgres.min_conns",
		"server.addr",
	} {
		v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}

	for key, unit := range durationUnits {
		d, err := parseDuration(v.Get(key), unit)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		v.Set(key, d)
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Kafka brokers arrive as one comma separated string from env
	brokers := v.GetString("kafka.brokers")
	if brokers != "" && (len(config.Kafka.Brokers) == 0 || len(config.Kafka.Brokers) == 1 && strings.Contains(brokers, ",")) {
		config.Kafka.Brokers = strings.Split(brokers, ",")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *AppConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}
	if c.Ledger.Path == "" {
		return errors.New("ledger.path is required")
	}
	if c.Ranking.BaseURL == "" {
		return errors.New("ranking.base_url is required")
	}
	if c.Syncer.Period < MinPeriod {
		return fmt.Errorf("syncer.period must be at least %s, got %s", MinPeriod, c.Syncer.Period)
	}
	if c.Syncer.Budget < 0 {
		return errors.New("syncer.budget must not be negative")
	}
	if c.Syncer.FetchTimeout < 0 {
		return errors.New("syncer.fetch_timeout must not be negative")
	}

	switch c.Syncer.OverlapPolicy {
	case OverlapAllow, OverlapSkip:
	default:
		return fmt.Errorf("syncer.overlap_policy %q is not one of allow, skip", c.Syncer.OverlapPolicy)
	}

	switch c.Notify.Backend {
	case NotifyNone:
	case NotifyKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required for the kafka notify backend")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka.topic is required for the kafka notify backend")
		}
	case NotifyRedis:
		if c.Redis.Addr == "" || c.Redis.Key == "" {
			return errors.New("redis.addr and redis.key are required for the redis notify backend")
		}
	default:
		return fmt.Errorf("notify.backend %q is not one of none, kafka, redis", c.Notify.Backend)
	}

	return nil
}

// parseDuration reads a duration from a file, env or default value. Bare
// numbers are counted in unit.
func parseDuration(raw any, unit time.Duration) (time.Duration, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case int:
		return time.Duration(v) * unit, nil
	case int64:
		return time.Duration(v) * unit, nil
	case uint64:
		return time.Duration(v) * unit, nil
	case float64:
		return time.Duration(v * float64(unit)), nil
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(n * float64(unit)), nil
		}
		return time.ParseDuration(s)
	}
	return 0, fmt.Errorf("unsupported duration value %v (%T)", raw, raw)
}
