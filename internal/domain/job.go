package domain

import "time"

// Status represents the states a job can be in. See IsValidTransition for
// the legal edges between them.
type Status string

const (
	StatusCreated            Status = "CREATED"
	StatusReady              Status = "READY"
	StatusRunning            Status = "RUNNING"
	StatusWaitingForChildren Status = "WAITING_FOR_CHILDREN"
	StatusCompleted          Status = "COMPLETED"
	StatusFailed             Status = "FAILED"
	StatusPoisoned           Status = "POISONED"
	StatusReadyToComplete    Status = "READY_TO_COMPLETE"
	StatusReadyToPoison      Status = "READY_TO_POISON"
)

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusPoisoned
}

// transitionGraph enumerates every legal Status -> Status edge (spec.md §4.10).
var transitionGraph = map[Status]map[Status]bool{
	StatusCreated: {
		StatusReady: true,
	},
	StatusReady: {
		StatusRunning: true,
	},
	StatusRunning: {
		StatusWaitingForChildren: true,
		StatusReadyToComplete:    true,
		StatusReadyToPoison:      true,
		StatusFailed:             true,
	},
	StatusWaitingForChildren: {
		StatusReadyToComplete: true,
		StatusReadyToPoison:   true,
	},
	StatusReadyToComplete: {
		StatusCompleted: true,
	},
	StatusReadyToPoison: {
		StatusPoisoned: true,
	},
	StatusFailed: {
		StatusReady: true, // retryCount < maxRetries
	},
}

// IsValidTransition reports whether moving a job from `from` to `to` is a
// legal edge of the lifecycle graph.
func IsValidTransition(from, to Status) bool {
	edges, ok := transitionGraph[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Job is the durable, schedulable unit of work.
type Job struct {
	ID               string `json:"id"`
	CorrelationID    string `json:"correlation_id"`
	ParentID         string `json:"parent_id,omitempty"`
	RootID           string `json:"root_id"`
	ActivityType     string `json:"activity_type"`
	Method           string `json:"method"`
	Arguments        []byte `json:"arguments,omitempty"`
	Status           Status `json:"status"`
	DispatchCount    int    `json:"dispatch_count"`
	RetryCount       int    `json:"retry_count"`
	RetryOnCount     int    `json:"retry_on_count"`
	RetryDelay       time.Duration `json:"retry_delay"`
	PoisonRetryCount int           `json:"poison_retry_count"`
	Suspended        bool          `json:"suspended"`
	Continuation     *Continuation `json:"continuation,omitempty"`
	CreatedUtc       time.Time     `json:"created_utc"`
	UpdatedUtc       time.Time     `json:"updated_utc"`
}

// Clone returns a deep-enough copy safe for a caller to mutate without
// affecting the instance held by a queue or coordinator.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Arguments != nil {
		c.Arguments = append([]byte(nil), j.Arguments...)
	}
	if j.Continuation != nil {
		c.Continuation = j.Continuation.Clone()
	}
	return &c
}

// Snapshot is the minimal, JSON-serializable projection of a Job published
// to the event stream on every successful mutation (spec.md §6).
type Snapshot struct {
	ID              string `json:"id"`
	ActivityType    string `json:"activity_type"`
	Method          string `json:"method"`
	Status          Status `json:"status"`
	DispatchCount   int    `json:"dispatch_count"`
	DriftSuspected  bool   `json:"drift_suspected,omitempty"`
}

// ToSnapshot projects a Job into its event-stream representation.
func (j *Job) ToSnapshot() Snapshot {
	return Snapshot{
		ID:            j.ID,
		ActivityType:  j.ActivityType,
		Method:        j.Method,
		Status:        j.Status,
		DispatchCount: j.DispatchCount,
	}
}

// Execution records a single dispatch attempt of a job, mirroring the
// audit trail a durable store keeps alongside the live Job row.
type Execution struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Attempt    int       `json:"attempt"`
	Status     Status    `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

// ActivityConfiguration is the per-activity-type policy surfaced to the
// Job Queue and the transitions.
type ActivityConfiguration struct {
	ActivityType       string // empty = default queue
	MaxQueueLength     int    // 0 = unbounded (always true for the default queue)
	MaxRetries         int
	RetryDelay         time.Duration
	MaxPoisonedRetries int
	ExecutionTimeout   time.Duration // 0 = no per-execution deadline
}

// IsDefault reports whether this configuration describes the fallback queue.
func (c ActivityConfiguration) IsDefault() bool { return c.ActivityType == "" }
