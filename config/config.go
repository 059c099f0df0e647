package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Processor  ProcessorConfig  `mapstructure:"processor"`
	Fraud      FraudConfig      `mapstructure:"fraud"`
	Fees       FeeConfig        `mapstructure:"fees"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig configures the platform event stream. Leaving Brokers empty
// disables publishing (events are logged only).
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// ProcessorConfig describes the upstream payment processor callback contract.
type ProcessorConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// FraudConfig holds process-wide fraud screening thresholds.
type FraudConfig struct {
	ScoreThreshold     int           `mapstructure:"score_threshold"`      // review at or above
	AutoBlockThreshold int           `mapstructure:"auto_block_threshold"` // block at or above
	RuleCacheTTL       time.Duration `mapstructure:"rule_cache_ttl"`
}

// FeeConfig holds platform-level fee rates in basis points.
type FeeConfig struct {
	PSPFeeBps int64 `mapstructure:"psp_fee_bps"`
}

// SettlementConfig controls the daily settlement run.
type SettlementConfig struct {
	RunHourUTC   int           `mapstructure:"run_hour_utc"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: PSP_.
// Nested keys use underscore: PSP_DATABASE_HOST, PSP_FRAUD_SCORE_THRESHOLD, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "psp_core")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "psp-core")
	v.SetDefault("processor.webhook_secret", "")
	v.SetDefault("fraud.score_threshold", 70)
	v.SetDefault("fraud.auto_block_threshold", 90)
	v.SetDefault("fraud.rule_cache_ttl", "30s")
	v.SetDefault("fees.psp_fee_bps", 0)
	v.SetDefault("settlement.run_hour_utc", 2)
	v.SetDefault("settlement.max_retries", 3)
	v.SetDefault("settlement.retry_backoff", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: PSP_DATABASE_HOST -> database.host
	v.SetEnvPrefix("PSP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Fraud.AutoBlockThreshold < cfg.Fraud.ScoreThreshold {
		return nil, fmt.Errorf("fraud.auto_block_threshold (%d) must be >= fraud.score_threshold (%d)",
			cfg.Fraud.AutoBlockThreshold, cfg.Fraud.ScoreThreshold)
	}

	return &cfg, nil
}
