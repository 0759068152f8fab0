package config

import "github.com/spf13/viper"

// QueuePolicy mirrors services/scheduler/config.QueuePolicy: submission
// embeds its own full engine (see runServe in services/submission/cli), so
// it needs the same per-activity-type policy to build its queues.
type QueuePolicy struct {
	ActivityType       string `mapstructure:"activity_type"`
	MaxQueueLength     int    `mapstructure:"max_queue_length"`
	MaxRetries         int    `mapstructure:"max_retries"`
	RetryDelayMs       int    `mapstructure:"retry_delay_ms"`
	MaxPoisonedRetries int    `mapstructure:"max_poisoned_retries"`
	ExecutionTimeoutMs int    `mapstructure:"execution_timeout_ms"`
}

// Config holds typed configuration for the submission service.
type Config struct {
	LogLevel     string
	InstanceID   string
	HTTPAddr     string
	MetricsAddr  string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers string
	OTelEndpoint string
	RateLimit    int // submissions per second per activity type; 0 disables

	SweepIntervalMs     int
	WorkersPerQueue     int
	DefaultMaxRetries   int
	DefaultRetryDelayMs int
	Queues              []QueuePolicy

	SMTPAddr string
	SMTPFrom string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	cfg := Config{
		LogLevel:            v.GetString("log_level"),
		InstanceID:          v.GetString("instance_id"),
		HTTPAddr:            v.GetString("http_addr"),
		MetricsAddr:         v.GetString("metrics_addr"),
		PostgresDSN:         v.GetString("postgres_dsn"),
		RedisAddr:           v.GetString("redis_addr"),
		KafkaBrokers:        v.GetString("kafka_brokers"),
		OTelEndpoint:        v.GetString("otel_endpoint"),
		RateLimit:           v.GetInt("rate_limit"),
		SweepIntervalMs:     v.GetInt("sweep_interval_ms"),
		WorkersPerQueue:     v.GetInt("workers_per_queue"),
		DefaultMaxRetries:   v.GetInt("default_max_retries"),
		DefaultRetryDelayMs: v.GetInt("default_retry_delay_ms"),
		SMTPAddr:            v.GetString("smtp_addr"),
		SMTPFrom:            v.GetString("smtp_from"),
	}
	_ = v.UnmarshalKey("queues", &cfg.Queues)
	return cfg
}
