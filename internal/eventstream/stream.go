// Package eventstream is the typed fire-and-forget publication surface
// described in spec.md §6: it broadcasts a JobSnapshot on every successful
// mutation. Consumers are advisory; drop-on-overflow is acceptable.
package eventstream

import (
	"context"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

// Stream publishes job snapshots. Publish never blocks the caller beyond
// enqueueing; delivery is best-effort.
type Stream interface {
	Publish(ctx context.Context, snap domain.Snapshot)
	Close() error
}
