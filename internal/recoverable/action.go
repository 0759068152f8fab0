// Package recoverable wraps a durable mutation with bounded retry, and
// runs an in-memory follow-up at most once per successful mutation.
package recoverable

import (
	"context"
	"log/slog"
	"time"

	"github.com/ramiqadoumi/go-durable-orchestrator/pkg/retry"
)

// Config bounds the retry policy applied to a recoverable action's body.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Action wraps a body/then pair with retry.Do and a poison-marking
// exhaustion path. The zero value is usable with retry.Do's own defaults.
type Action struct {
	cfg    Config
	log    *slog.Logger
	poison func(ctx context.Context, err error)
}

// New returns an Action bounded by cfg. poison is invoked once the retry
// budget is exhausted, to record a poison marker against the originating
// job; it may be nil.
func New(cfg Config, log *slog.Logger, poison func(ctx context.Context, err error)) *Action {
	if log == nil {
		log = slog.Default()
	}
	return &Action{cfg: cfg, log: log, poison: poison}
}

// Run attempts body with bounded exponential backoff. then is an in-memory
// side effect invoked at most once, only after body succeeds. body's error,
// if any, is swallowed after retry exhaustion and the poison marker is
// recorded instead — propagating it would break the coordinator's
// single-threaded invariant.
func (a *Action) Run(ctx context.Context, body func() error, then func()) {
	log := a.log
	if log == nil {
		log = slog.Default()
	}
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: a.cfg.MaxAttempts,
		BaseDelay:   a.cfg.BaseDelay,
		OnRetry: func(attempt int, err error) {
			log.Warn("recoverable action retrying", "attempt", attempt, "error", err)
		},
	}, body)

	if err != nil {
		log.Error("recoverable action exhausted retries, poisoning", "error", err)
		if a.poison != nil {
			a.poison(ctx, err)
		}
		return
	}

	if then != nil {
		then()
	}
}
