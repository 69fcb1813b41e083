package config

import "time"

type Config struct {
	Env            string        `yaml:"env" env:"APP_ENV"`
	Port           int           `yaml:"port" env:"PORT" validate:"min=1,max=65535"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	MockMode       bool          `yaml:"mock_mode" env:"USE_MOCK_MODE"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Logger         LoggerConfig  `yaml:"logger"`
	RedisURL       string        `yaml:"redis_url" env:"REDIS_URL"`
	DatabaseURL    string        `yaml:"database_url" env:"DATABASE_URL"`

	Upstream    UpstreamConfig    `yaml:"upstream"`
	DeviceStore DeviceStoreConfig `yaml:"device_store"`
	ExchangeLog ExchangeLogConfig `yaml:"exchange_log"`
	TokenCache  TokenCacheConfig  `yaml:"token_cache"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	AWS         AWSConfig         `yaml:"aws"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type LoggerConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Encoding   string `yaml:"encoding" validate:"omitempty,oneof=json console"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// UpstreamConfig describes the remote RBA/FRM API.
type UpstreamConfig struct {
	BaseURL   string        `yaml:"base_url" env:"AXIOM_URL"`
	AccountID string        `yaml:"account_id" env:"ACCOUNT_ID"`
	Secret    string        `yaml:"secret" env:"AXIOM_SECRET"`
	JWTUserID string        `yaml:"jwt_user_id" env:"JWT_USER_ID"`
	Timeout   time.Duration `yaml:"timeout"`
}

type DeviceStoreConfig struct {
	Path string `yaml:"path" env:"DEVICE_DETAILS_PATH"`
}

type ExchangeLogConfig struct {
	Capacity int `yaml:"capacity" validate:"min=0"`
}

type TokenCacheConfig struct {
	Enabled    bool          `yaml:"enabled" env:"TOKEN_CACHE_ENABLED"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
	ExpirySkew time.Duration `yaml:"expiry_skew"`
	KeyPrefix  string        `yaml:"key_prefix"`
}

type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	RatePerInterval int           `yaml:"rate_per_interval"`
	Interval        time.Duration `yaml:"interval"`
	Burst           int           `yaml:"burst"`
	UseRedis        bool          `yaml:"use_redis"`
	IdleTTL         time.Duration `yaml:"idle_ttl"`
}

// AWSConfig names optional Secrets Manager / SSM entries that override upstream settings.
type AWSConfig struct {
	SecretName     string `yaml:"secret_name" env:"AWS_UPSTREAM_SECRET_NAME"`
	AccountIDParam string `yaml:"account_id_param" env:"AWS_ACCOUNT_ID_PARAM"`
	DecryptParams  bool   `yaml:"decrypt_params"`
}

type TelemetryConfig struct {
	Kafka KafkaConfig   `yaml:"kafka"`
	ES    ESAuditConfig `yaml:"es"`
}

type ESAuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// ConsumeKafka indexes from the Kafka topics instead of receiving
	// events directly.
	ConsumeKafka bool          `yaml:"consume_kafka"`
	Addresses    []string      `yaml:"addresses"`
	APIKey       string        `yaml:"api_key"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	IndexPref    string        `yaml:"index_prefix"`
	FlushSize    int           `yaml:"flush_size"`
	FlushEvery   time.Duration `yaml:"flush_every"`
	Timeout      time.Duration `yaml:"timeout"`
}

type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	TopicExchange string        `yaml:"topic_exchange"`
	TopicRequest  string        `yaml:"topic_request"`
	BatchSize     int           `yaml:"batch_size"`
	FlushEvery    time.Duration `yaml:"flush_every"`
	QueueCapacity int           `yaml:"queue_capacity"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	TLS           bool          `yaml:"tls"`
	GroupID       string        `yaml:"group_id"`
	MinBytes      int           `yaml:"min_bytes"`
	MaxBytes      int           `yaml:"max_bytes"`
}
