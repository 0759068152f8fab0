// Package leaderlock implements Redis-backed leader election for the
// periodic ContinuationLiveness sweep: at most one scheduler instance runs
// the sweep at a time, with automatic failover if the leader disappears.
package leaderlock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

// Lock is a single named, renewable leader election over a Redis key.
type Lock struct {
	redis      *redis.Client
	key        string
	instanceID string
	ttl        time.Duration
	log        *slog.Logger
}

// New builds a Lock for key, held under instanceID's name for ttl at a
// time, renewed by repeated AcquireOrRenew calls.
func New(client *redis.Client, key, instanceID string, ttl time.Duration, log *slog.Logger) *Lock {
	if log == nil {
		log = slog.Default()
	}
	return &Lock{redis: client, key: key, instanceID: instanceID, ttl: ttl, log: log}
}

// AcquireOrRenew attempts to become leader via SETNX, or — if already
// leader — extends the TTL via an atomic compare-and-expire Lua script so
// a concurrent loser can never steal a lease it doesn't hold. Returns true
// iff this instance holds the lease after the call.
func (l *Lock) AcquireOrRenew(ctx context.Context) bool {
	ok, err := l.redis.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		l.log.Error("leader election setnx failed", "key", l.key, "error", err)
		return false
	}
	if ok {
		l.log.Info("acquired leadership", "key", l.key, "instance_id", l.instanceID)
		return true
	}

	result, err := renewScript.Run(ctx, l.redis, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.log.Error("leader renewal failed", "key", l.key, "error", err)
		return false
	}
	return result == 1
}

// Release drops the lease if this instance still holds it, so a clean
// shutdown doesn't force other instances to wait out the full TTL.
func (l *Lock) Release(ctx context.Context) {
	releaseScript := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	if _, err := releaseScript.Run(ctx, l.redis, []string{l.key}, l.instanceID).Result(); err != nil && !errors.Is(err, redis.Nil) {
		l.log.Warn("leader release failed", "key", l.key, "error", err)
	}
}
