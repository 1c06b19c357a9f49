package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"certpipe/internal/constants"
)

func Load(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("gateway.api_base_url", "GATEWAY_API_BASE_URL")
	viper.BindEnv("gateway.websocket_url", "GATEWAY_WEBSOCKET_URL")
	viper.BindEnv("gateway.safe_key", "GATEWAY_SAFE_KEY")
	viper.BindEnv("gateway.bot_id", "GATEWAY_BOT_ID")

	viper.BindEnv("extraction.base_url", "EXTRACTION_BASE_URL")
	viper.BindEnv("extraction.api_key", "EXTRACTION_API_KEY")
	viper.BindEnv("extraction.model", "EXTRACTION_MODEL")

	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.listings_topic", "BROKER_KAFKA_LISTINGS_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("logging.level", "LOGGING_LEVEL")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ReadTimeoutSeconds <= 0 {
		cfg.Server.ReadTimeoutSeconds = constants.DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeoutSeconds <= 0 {
		cfg.Server.WriteTimeoutSeconds = constants.DefaultServerWriteTimeout
	}
	if cfg.Gateway.CallTimeout <= 0 {
		cfg.Gateway.CallTimeout = constants.DefaultGatewayTimeout
	}
	if cfg.Gateway.ReconnectMin <= 0 {
		cfg.Gateway.ReconnectMin = time.Second
	}
	if cfg.Gateway.ReconnectMax <= 0 {
		cfg.Gateway.ReconnectMax = 30 * time.Second
	}
	if cfg.Pipeline.QueueCapacity <= 0 {
		cfg.Pipeline.QueueCapacity = constants.DefaultQueueCapacity
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = constants.DefaultWorkerCount
	}
	if cfg.Pipeline.ShutdownGracePeriod <= 0 {
		cfg.Pipeline.ShutdownGracePeriod = constants.DefaultShutdownGrace
	}
	if cfg.Extraction.Temperature <= 0 {
		cfg.Extraction.Temperature = constants.DefaultModelTemperature
	}
	if cfg.Extraction.MaxTokens <= 0 {
		cfg.Extraction.MaxTokens = constants.DefaultModelMaxTokens
	}
	if cfg.Extraction.SessionCap <= 0 {
		cfg.Extraction.SessionCap = constants.DefaultSessionCap
	}
	if cfg.Deduplication.TTLSeconds <= 0 {
		cfg.Deduplication.TTLSeconds = constants.DefaultDedupTTLSeconds
	}
	if cfg.Deduplication.OnRedisError == "" {
		cfg.Deduplication.OnRedisError = constants.FallbackAllow
	}
	if cfg.Enrichment.CacheTTLSeconds <= 0 {
		cfg.Enrichment.CacheTTLSeconds = constants.DefaultEnrichCacheTTLSeconds
	}
	if cfg.Filtering.Fallback.OnError == "" {
		cfg.Filtering.Fallback.OnError = constants.FallbackDeny
	}
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	return nil
}
