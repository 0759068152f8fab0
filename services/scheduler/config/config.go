package config

import "github.com/spf13/viper"

// QueuePolicy is one entry of the "queues" config list: the per-activity-
// type policy consumed by jobqueue.New and domain.ActivityConfiguration.
type QueuePolicy struct {
	ActivityType       string `mapstructure:"activity_type"`
	MaxQueueLength     int    `mapstructure:"max_queue_length"`
	MaxRetries         int    `mapstructure:"max_retries"`
	RetryDelayMs       int    `mapstructure:"retry_delay_ms"`
	MaxPoisonedRetries int    `mapstructure:"max_poisoned_retries"`
	ExecutionTimeoutMs int    `mapstructure:"execution_timeout_ms"`
}

// Config holds typed configuration for the scheduler service.
type Config struct {
	LogLevel            string
	InstanceID          string
	PostgresDSN         string
	RedisAddr           string
	KafkaBrokers        string
	MetricsAddr         string
	OTelEndpoint        string
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
		PostgresDSN:         v.GetString("postgres_dsn"),
		RedisAddr:           v.GetString("redis_addr"),
		KafkaBrokers:        v.GetString("kafka_brokers"),
		MetricsAddr:         v.GetString("metrics_addr"),
		OTelEndpoint:        v.GetString("otel_endpoint"),
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
