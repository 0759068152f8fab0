// Package continuation implements the Activity-to-Continuation Converter,
// the ContinuationDispatcher, and ContinuationLiveness (spec.md §4.6,
// §4.8, §4.9).
package continuation

import (
	"time"

	"github.com/google/uuid"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

// Converted is the output of converting a returned Activity graph into
// persistable child jobs plus the continuation tree that tracks them.
type Converted struct {
	Continuation *domain.Continuation
	Jobs         []*domain.Job
}

// Convert is a pure transformer: no persistence, no dispatch. It turns the
// Activity graph parent's execution returned into a flat list of new child
// Jobs (status Created, parentId = parent.id, correlationId inherited) and
// the Continuation tree describing what parent is waiting for.
func Convert(parent *domain.Job, activity domain.Activity) (Converted, error) {
	var jobs []*domain.Job
	cont, err := convertNode(parent, activity, &jobs)
	if err != nil {
		return Converted{}, err
	}
	return Converted{Continuation: cont, Jobs: jobs}, nil
}

func convertNode(parent *domain.Job, activity domain.Activity, jobs *[]*domain.Job) (*domain.Continuation, error) {
	switch activity.Kind {
	case domain.ActivityKindSingle:
		child := newChildJob(parent, activity)
		*jobs = append(*jobs, child)
		return &domain.Continuation{Type: domain.ContinuationSingle, ID: child.ID, Status: domain.ContinuationWaiting}, nil

	case domain.ActivityKindParallel:
		if len(activity.Children) == 0 {
			return nil, &domain.ConverterFailedError{JobID: parent.ID, Reason: "parallel activity has no children"}
		}
		children := make([]*domain.Continuation, 0, len(activity.Children))
		for _, child := range activity.Children {
			c, err := convertNode(parent, child, jobs)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return &domain.Continuation{
			Type: domain.ContinuationAll, Children: children,
			// Parallel only ever sets OnAnyFailed; that's the flag
			// recomputeAll consumes as the All node's fail-fast policy.
			Status: domain.ContinuationWaiting, OnAllFailed: activity.OnAnyFailed,
		}, nil

	case domain.ActivityKindSequence:
		if len(activity.Children) == 0 {
			return nil, &domain.ConverterFailedError{JobID: parent.ID, Reason: "sequence activity has no children"}
		}
		children := make([]*domain.Continuation, 0, len(activity.Children))
		for _, child := range activity.Children {
			c, err := convertNode(parent, child, jobs)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return &domain.Continuation{Type: domain.ContinuationSequence, Children: children, Status: domain.ContinuationWaiting}, nil

	case domain.ActivityKindAny:
		if len(activity.Children) == 0 {
			return nil, &domain.ConverterFailedError{JobID: parent.ID, Reason: "any activity has no children"}
		}
		children := make([]*domain.Continuation, 0, len(activity.Children))
		for _, child := range activity.Children {
			c, err := convertNode(parent, child, jobs)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return &domain.Continuation{
			Type: domain.ContinuationAny, Children: children,
			Status: domain.ContinuationWaiting, OnAnyFailed: activity.OnAnyFailed,
		}, nil

	default:
		return nil, &domain.ConverterFailedError{JobID: parent.ID, Reason: "unknown activity kind: " + string(activity.Kind)}
	}
}

func newChildJob(parent *domain.Job, activity domain.Activity) *domain.Job {
	now := time.Now().UTC()
	return &domain.Job{
		ID:            uuid.New().String(),
		CorrelationID: parent.CorrelationID,
		ParentID:      parent.ID,
		RootID:        rootOf(parent),
		ActivityType:  activity.ActivityType,
		Method:        activity.Method,
		Arguments:     activity.Arguments,
		Status:        domain.StatusCreated,
		CreatedUtc:    now,
		UpdatedUtc:    now,
	}
}

func rootOf(parent *domain.Job) string {
	if parent.RootID != "" {
		return parent.RootID
	}
	return parent.ID
}
