package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Gateway        GatewayConfig
	Pipeline       PipelineConfig
	Filtering      FilteringConfig
	Enrichment     EnrichmentConfig
	Extraction     ExtractionConfig
	Deduplication  DeduplicationConfig
	Archive        ArchiveConfig
	Query          QueryConfig
	CircuitBreaker CircuitBreakerConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres       PostgresConfig
	Redis          RedisConfig
	MongoDB        MongoDBConfig
	RunMigrations  bool   `mapstructure:"run_migrations"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders the connection string lib/pq expects.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"` // "kafka" or "none"
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ListingsTopic string   `mapstructure:"listings_topic"`
	DLQTopic      string   `mapstructure:"dlq_topic"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GatewayConfig points at the chat gateway: its push WebSocket and its
// request/response control API.
type GatewayConfig struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	WebSocketURL   string        `mapstructure:"websocket_url"`
	SafeKey        string        `mapstructure:"safe_key"`
	BotID          string        `mapstructure:"bot_id"` // resolved via listAccounts when empty
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	ReconnectMin   time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax   time.Duration `mapstructure:"reconnect_max"`
}

type PipelineConfig struct {
	QueueCapacity        int           `mapstructure:"queue_capacity"`
	Workers              int           `mapstructure:"workers"`
	ShutdownGracePeriod  time.Duration `mapstructure:"shutdown_grace_period"`
	StrictAssemblyChecks bool          `mapstructure:"strict_assembly_checks"`
}

type FilteringConfig struct {
	MonitoredGroups []string     `mapstructure:"monitored_groups"`
	Rules           []RuleConfig `mapstructure:"rules"`
	Fallback        FallbackConfig
}

type RuleConfig struct {
	Name       string `mapstructure:"name"`
	Expression string `mapstructure:"expression"`
}

type FallbackConfig struct {
	OnError string `mapstructure:"on_error"` // "allow" or "deny"
}

type EnrichmentConfig struct {
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}

type ExtractionConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	Temperature       float32 `mapstructure:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	ExtractPromptPath string  `mapstructure:"extract_prompt_path"`
	SplitPromptPath   string  `mapstructure:"split_prompt_path"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	SessionCap        int     `mapstructure:"session_cap"`
}

type DeduplicationConfig struct {
	TTLSeconds   int    `mapstructure:"ttl_seconds"`
	OnRedisError string `mapstructure:"on_redis_error"` // "allow" or "deny"
}

type ArchiveConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	RetentionDays int  `mapstructure:"retention_days"`
}

type QueryConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}
