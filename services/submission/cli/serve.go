package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
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
	redisstore "github.com/ramiqadoumi/go-durable-orchestrator/internal/redis"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/recoverable"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/router"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/store/postgres"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/transition"
	"github.com/ramiqadoumi/go-durable-orchestrator/pkg/telemetry"
	"github.com/ramiqadoumi/go-durable-orchestrator/services/scheduler"
	"github.com/ramiqadoumi/go-durable-orchestrator/services/submission/config"
	"github.com/ramiqadoumi/go-durable-orchestrator/services/submission/handler"
	"github.com/ramiqadoumi/go-durable-orchestrator/services/submission/middleware"
)

const eventsTopic = "orchestrator.job-events"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP ingress and its own engine instance",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-addr", ":8080", "HTTP listen address")
	serveCmd.Flags().String("postgres-dsn", "", "Postgres DSN")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing; empty disables tracing")

	bindFlag("http_addr", serveCmd.Flags(), "http-addr")
	bindFlag("postgres_dsn", serveCmd.Flags(), "postgres-dsn")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// runServe wires a complete orchestrator node: submission is not a thin
// proxy in front of the scheduler's queues — an in-memory jobqueue.Queue
// only lives inside the process that owns it, so every node that accepts
// jobs runs its own engine end to end. Postgres is the shared source of
// truth across nodes; the Redis leader lock only limits the continuation
// liveness sweep to one node at a time.
func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "submission")
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = "submission-" + uuid.New().String()[:8]
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "submission", cfg.OTelEndpoint)
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

	var limiter redisstore.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = redisstore.NewRateLimiter(redisClient, cfg.RateLimit, time.Second)
	}
	rest := handler.NewREST(eng, st, limiter, logger)

	mux := chi.NewRouter()
	mux.Use(middleware.RequestLogger(logger))
	mux.Use(middleware.MaxBodySize(1 << 20))
	mux.Get("/healthz", rest.Healthz)
	mux.Get("/readyz", rest.Readyz)
	mux.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", rest.SubmitJob)
		r.Get("/{id}", rest.GetJobStatus)
	})

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	runCtx, runCancel := context.WithCancel(context.Background())
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	if err := sched.Reload(runCtx); err != nil {
		runCancel()
		return fmt.Errorf("reload: %w", err)
	}

	go sched.Run(runCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("submission http server starting", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	logger.Info("submission starting", slog.String("instance_id", instanceID), slog.Int("workers_per_queue", cfg.WorkersPerQueue))

	select {
	case <-quit:
		logger.Info("shutting down...")
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	runCancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
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
