package continuation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/continuation"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

func TestConvert_Single(t *testing.T) {
	parent := &domain.Job{ID: "parent", CorrelationID: "corr-1"}
	activity := domain.Single("webhook", "Ping", nil)

	out, err := continuation.Convert(parent, activity)
	require.NoError(t, err)
	require.Len(t, out.Jobs, 1)
	assert.Equal(t, domain.ContinuationSingle, out.Continuation.Type)
	assert.Equal(t, out.Jobs[0].ID, out.Continuation.ID)
	assert.Equal(t, domain.StatusCreated, out.Jobs[0].Status)
	assert.Equal(t, "parent", out.Jobs[0].ParentID)
	assert.Equal(t, "corr-1", out.Jobs[0].CorrelationID)
}

func TestConvert_Parallel_TwoChildren(t *testing.T) {
	parent := &domain.Job{ID: "parent", CorrelationID: "corr-1"}
	activity := domain.Parallel(false, domain.Single("a", "A", nil), domain.Single("b", "B", nil))

	out, err := continuation.Convert(parent, activity)
	require.NoError(t, err)
	require.Len(t, out.Jobs, 2)
	assert.Equal(t, domain.ContinuationAll, out.Continuation.Type)
	require.Len(t, out.Continuation.Children, 2)
	assert.Equal(t, domain.ContinuationSingle, out.Continuation.Children[0].Type)
	assert.Equal(t, domain.ContinuationSingle, out.Continuation.Children[1].Type)
}

func TestConvert_Parallel_PropagatesOnAnyFailedIntoOnAllFailed(t *testing.T) {
	parent := &domain.Job{ID: "parent"}
	activity := domain.Parallel(true, domain.Single("a", "A", nil), domain.Single("b", "B", nil))

	out, err := continuation.Convert(parent, activity)
	require.NoError(t, err)
	assert.True(t, out.Continuation.OnAllFailed)

	activity = domain.Parallel(false, domain.Single("a", "A", nil), domain.Single("b", "B", nil))
	out, err = continuation.Convert(parent, activity)
	require.NoError(t, err)
	assert.False(t, out.Continuation.OnAllFailed)
}

func TestConvert_Sequence(t *testing.T) {
	parent := &domain.Job{ID: "parent"}
	activity := domain.Sequence(domain.Single("a", "A", nil), domain.Single("b", "B", nil))

	out, err := continuation.Convert(parent, activity)
	require.NoError(t, err)
	assert.Equal(t, domain.ContinuationSequence, out.Continuation.Type)
	require.Len(t, out.Continuation.Children, 2)
}

func TestConvert_Any_PropagatesOnAnyFailed(t *testing.T) {
	parent := &domain.Job{ID: "parent"}
	activity := domain.AnyOf(domain.Single("a", "A", nil), domain.Single("b", "B", nil))
	activity.OnAnyFailed = true

	out, err := continuation.Convert(parent, activity)
	require.NoError(t, err)
	assert.True(t, out.Continuation.OnAnyFailed)
}

func TestConvert_EmptyComposition_Fails(t *testing.T) {
	parent := &domain.Job{ID: "parent"}
	activity := domain.Parallel(false)

	_, err := continuation.Convert(parent, activity)
	require.Error(t, err)
	var convErr *domain.ConverterFailedError
	require.ErrorAs(t, err, &convErr)
}

func TestConvert_NestedComposition(t *testing.T) {
	parent := &domain.Job{ID: "parent"}
	activity := domain.Sequence(
		domain.Single("a", "A", nil),
		domain.Parallel(false, domain.Single("b", "B", nil), domain.Single("c", "C", nil)),
	)

	out, err := continuation.Convert(parent, activity)
	require.NoError(t, err)
	require.Len(t, out.Jobs, 3)
	require.Len(t, out.Continuation.Children, 2)
	assert.Equal(t, domain.ContinuationSingle, out.Continuation.Children[0].Type)
	assert.Equal(t, domain.ContinuationAll, out.Continuation.Children[1].Type)
}

func TestConvert_RootID_InheritsFromParentOrDefaultsToParentID(t *testing.T) {
	root := &domain.Job{ID: "root"}
	out, err := continuation.Convert(root, domain.Single("a", "A", nil))
	require.NoError(t, err)
	assert.Equal(t, "root", out.Jobs[0].RootID)

	mid := &domain.Job{ID: "mid", RootID: "root"}
	out2, err := continuation.Convert(mid, domain.Single("a", "A", nil))
	require.NoError(t, err)
	assert.Equal(t, "root", out2.Jobs[0].RootID)
}
