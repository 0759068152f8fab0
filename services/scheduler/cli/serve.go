package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/activity"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/continuation"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/coordinator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/engine"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/eventstream"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/jobqueue"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/leaderlock"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/mutator"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/recoverable"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/router"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store/postgres"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/transition"
	"github.com/ramiqadoumi/go-durable-orchestrator/pkg/telemetry"
	"github.com/ramiqadoumi/go-durable-orchestrator/services/scheduler"
	"github.com/ramiqadoumi/go-durable-orchestrator/services/scheduler/config"
)

const eventsTopic = "orchestrator.job-events"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler loop and the continuation liveness sweep",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("postgres-dsn", "", "Postgres DSN")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("metrics-addr", ":9094", "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing; empty disables tracing")

	bindFlag("postgres_dsn", serveCmd.Flags(), "postgres-dsn")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "scheduler")
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = "scheduler-" + uuid.New().String()[:8]
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "scheduler", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	st := postgres.New(pool)

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	defer redisClient.Close()

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	stream := eventstream.NewKafkaStream(brokers, eventsTopic, 1024, logger)

	runtime := buildActivityRegistry(cfg)

	queues, byType := buildQueues(cfg, st, stream, logger)
	fallback := byType[""]
	typed := make(map[string]*jobqueue.Queue, len(byType))
	for t, q := range byType {
		if t != "" {
			typed[t] = q
		}
	}
	r := router.New(typed, fallback)

	coord := coordinator.New()
	m := mutator.New(st, stream)
	retryCfg := recoverable.Config{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond}
	dispatcher := continuation.New(st, m, r, retryCfg, logger)
	liveness := continuation.NewLiveness(st, m, logger)

	endT := transition.NewEnd(st, m, dispatcher, coord, logger)
	poisonedT := transition.NewPoisoned(st, m, dispatcher, coord, logger)
	waitingT := transition.New(st, m, dispatcher, liveness, coord, retryCfg, logger)
	failedT := transition.NewFailed(m, r, poisonedT, logger)

	eng := engine.New(st, m, r, coord, runtime, engine.Transitions{
		Waiting:  waitingT,
		End:      endT,
		Failed:   failedT,
		Poisoned: poisonedT,
	}, queues, engine.WithWorkersPerQueue(cfg.WorkersPerQueue), engine.WithLogger(logger))

	lock := leaderlock.New(redisClient, "orchestrator:liveness-leader", instanceID, 30*time.Second, logger)
	sweepInterval := time.Duration(cfg.SweepIntervalMs) * time.Millisecond
	sched := scheduler.New(st, eng, liveness, lock, sweepInterval, logger)

	runCtx, runCancel := context.WithCancel(context.Background())
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	if err := sched.Reload(runCtx); err != nil {
		runCancel()
		return fmt.Errorf("reload: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down...")
		runCancel()
	}()

	logger.Info("scheduler starting",
		slog.String("instance_id", instanceID),
		slog.Duration("sweep_interval", sweepInterval),
		slog.Int("workers_per_queue", cfg.WorkersPerQueue),
	)
	sched.Run(runCtx)
	for _, q := range queues {
		q.Shutdown()
	}
	logger.Info("stopped")
	return nil
}

func buildActivityRegistry(cfg config.Config) *activity.Registry {
	reg := activity.NewRegistry()
	reg.Register(activity.NewEmailExecutor(activity.EmailConfig{
		Host: hostOf(cfg.SMTPAddr), Port: portOf(cfg.SMTPAddr), From: cfg.SMTPFrom,
	}))
	reg.Register(activity.NewWebhookExecutor())
	return reg
}

func buildQueues(cfg config.Config, st store.Store, stream eventstream.Stream, logger *slog.Logger) ([]*jobqueue.Queue, map[string]*jobqueue.Queue) {
	byType := make(map[string]*jobqueue.Queue)
	var excluded []string
	var all []*jobqueue.Queue

	for _, p := range cfg.Queues {
		qcfg := domain.ActivityConfiguration{
			ActivityType:       p.ActivityType,
			MaxQueueLength:     p.MaxQueueLength,
			MaxRetries:         valueOr(p.MaxRetries, cfg.DefaultMaxRetries),
			RetryDelay:         time.Duration(valueOr(p.RetryDelayMs, cfg.DefaultRetryDelayMs)) * time.Millisecond,
			MaxPoisonedRetries: p.MaxPoisonedRetries,
			ExecutionTimeout:   time.Duration(p.ExecutionTimeoutMs) * time.Millisecond,
		}
		q := jobqueue.New(qcfg, st, stream, nil, logger)
		byType[p.ActivityType] = q
		excluded = append(excluded, p.ActivityType)
		all = append(all, q)
	}

	fallback := jobqueue.New(domain.ActivityConfiguration{
		MaxRetries: cfg.DefaultMaxRetries,
		RetryDelay: time.Duration(cfg.DefaultRetryDelayMs) * time.Millisecond,
	}, st, stream, excluded, logger)
	byType[""] = fallback
	all = append(all, fallback)

	for _, q := range all {
		if _, err := q.Initialize(context.Background(), nil); err != nil {
			logger.Error("queue initialize failed", "error", err)
		}
	}
	return all, byType
}

func valueOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func hostOf(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}

func portOf(addr string) int {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		var p int
		fmt.Sscanf(addr[i+1:], "%d", &p)
		return p
	}
	return 0
}
