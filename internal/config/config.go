package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"ledger-relay-gateway"`
	ServicePort int    `env:"SERVICE_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	Database    DatabaseConfig
	Redis       RedisConfig
	RabbitMQ    RabbitMQConfig
	Ledger      LedgerConfig
	Relayer     RelayerConfig
	PriceFeed   PriceFeedConfig
	Cache       CacheConfig
	Enterprise  EnterpriseConfig
	Batch       BatchConfig
	Validation  ValidationConfig
	Anomaly     AnomalyConfig
}

// DatabaseConfig holds database connection settings. An empty URL keeps the
// client registry and record store in memory.
type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	MaxConns int    `env:"DATABASE_MAX_CONNS" envDefault:"10"`
}

// RedisConfig holds the quota counter backend settings.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL              string `env:"RABBITMQ_URL"`
	IngestExchange   string `env:"RABBITMQ_INGEST_EXCHANGE" envDefault:"relay-gateway.ingest.exchange"`
	IngestQueue      string `env:"RABBITMQ_INGEST_QUEUE" envDefault:"relay-gateway.ingest.queue"`
	IngestRoutingKey string `env:"RABBITMQ_INGEST_ROUTING_KEY" envDefault:"iot.record.submitted"`
	EventsExchange   string `env:"RABBITMQ_EVENTS_EXCHANGE" envDefault:"relay-gateway.events.exchange"`
	DLQQueue         string `env:"RABBITMQ_DLQ_QUEUE" envDefault:"relay-gateway.ingest.dlq"`
	PrefetchCount    int    `env:"RABBITMQ_PREFETCH" envDefault:"10"`
}

// LedgerConfig holds ledger node settings
type LedgerConfig struct {
	RPCURL         string        `env:"LEDGER_RPC_URL"`
	NetworkName    string        `env:"LEDGER_NETWORK_NAME" envDefault:"polygon-amoy"`
	ExplorerTxURL  string        `env:"LEDGER_EXPLORER_TX_URL" envDefault:"https://amoy.polygonscan.com/tx/"`
	TokenAddress   string        `env:"LEDGER_TOKEN_ADDRESS"`
	RewardsAddress string        `env:"LEDGER_REWARDS_ADDRESS"`
	CallTimeout    time.Duration `env:"LEDGER_CALL_TIMEOUT" envDefault:"10s"`
	ConfirmTimeout time.Duration `env:"LEDGER_CONFIRM_TIMEOUT" envDefault:"60s"`
	PollInterval   time.Duration `env:"LEDGER_POLL_INTERVAL" envDefault:"2s"`
}

// RelayerConfig holds the funded fee-payer account settings
type RelayerConfig struct {
	PrivateKey           string        `env:"RELAYER_PRIVATE_KEY"`
	GasLimit             uint64        `env:"RELAYER_GAS_LIMIT" envDefault:"50000"`
	LowBalanceThreshold  float64       `env:"RELAYER_LOW_BALANCE" envDefault:"0.01"`
	BalanceCheckInterval time.Duration `env:"RELAYER_BALANCE_CHECK_INTERVAL" envDefault:"10m"`
}

// PriceFeedConfig holds external price source settings
type PriceFeedConfig struct {
	URL            string        `env:"PRICE_FEED_URL" envDefault:"https://api.coingecko.com/api/v3"`
	Timeout        time.Duration `env:"PRICE_FEED_TIMEOUT" envDefault:"5s"`
	NativeTokenID  string        `env:"PRICE_FEED_NATIVE_TOKEN_ID" envDefault:"matic-network"`
	NativeSymbol   string        `env:"PRICE_FEED_NATIVE_SYMBOL" envDefault:"MATIC"`
	TokenSymbol    string        `env:"PRICE_FEED_TOKEN_SYMBOL" envDefault:"BEZ"`
	TokenDemoPrice float64       `env:"PRICE_FEED_TOKEN_DEMO_PRICE" envDefault:"0.0015"`
}

// CacheConfig holds read cache settings
type CacheConfig struct {
	TTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`
}

// EnterpriseConfig holds client registry settings
type EnterpriseConfig struct {
	ClientsFile string `env:"ENTERPRISE_CLIENTS_FILE"`
	InternalKey string `env:"INTERNAL_API_KEY" envDefault:"INTERNAL_BATCH_SYS"`
}

// BatchConfig bounds batch requests
type BatchConfig struct {
	MaxOperations  int `env:"BATCH_MAX_OPERATIONS" envDefault:"500"`
	MaxConcurrency int `env:"BATCH_MAX_CONCURRENCY" envDefault:"32"`
}

// ValidationConfig holds validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int `env:"VALIDATION_TIMESTAMP_TOLERANCE_MINUTES" envDefault:"10080"`
}

// AnomalyConfig holds checkpoint anomaly detection settings
type AnomalyConfig struct {
	SpikeThreshold            float64 `env:"ANOMALY_SPIKE_THRESHOLD" envDefault:"1.5"`
	MinDataPointsForDetection int     `env:"ANOMALY_MIN_DATA_POINTS" envDefault:"2"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServicePort <= 0 || c.ServicePort > 65535 {
		return fmt.Errorf("SERVICE_PORT must be between 1 and 65535, got %d", c.ServicePort)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.Ledger.CallTimeout <= 0 || c.Ledger.ConfirmTimeout <= 0 || c.Ledger.PollInterval <= 0 {
		return fmt.Errorf("LEDGER_CALL_TIMEOUT, LEDGER_CONFIRM_TIMEOUT and LEDGER_POLL_INTERVAL must be positive")
	}
	if c.PriceFeed.Timeout <= 0 {
		return fmt.Errorf("PRICE_FEED_TIMEOUT must be positive")
	}
	if c.Batch.MaxOperations <= 0 || c.Batch.MaxConcurrency <= 0 {
		return fmt.Errorf("BATCH_MAX_OPERATIONS and BATCH_MAX_CONCURRENCY must be positive")
	}
	if c.Relayer.BalanceCheckInterval <= 0 {
		return fmt.Errorf("RELAYER_BALANCE_CHECK_INTERVAL must be positive")
	}
	if c.Relayer.GasLimit == 0 {
		return fmt.Errorf("RELAYER_GAS_LIMIT must be positive")
	}
	if strings.TrimSpace(c.Enterprise.InternalKey) == "" {
		return fmt.Errorf("INTERNAL_API_KEY cannot be empty")
	}
	return nil
}

// LedgerConfigured reports whether a ledger node endpoint is set.
func (c *Config) LedgerConfigured() bool {
	return strings.TrimSpace(c.Ledger.RPCURL) != ""
}
