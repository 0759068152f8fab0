package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

func TestAllErrorTypesImplementError(t *testing.T) {
	var _ error = &domain.NotFoundError{}
	var _ error = &domain.StoreFailedError{}
	var _ error = &domain.AlreadyInitializedError{}
	var _ error = &domain.ConverterFailedError{}
	var _ error = &domain.UserActivityError{}
	var _ error = &domain.ShutdownError{}
	var _ error = &domain.InvalidTransitionError{}
	var _ error = &domain.InvalidActivityTypeError{}
}

func TestNotFoundError_Message(t *testing.T) {
	err := &domain.NotFoundError{Kind: "job", ID: "j1"}
	assert.Equal(t, "job not found: j1", err.Error())
}

func TestStoreFailedError_WrapsAndUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := &domain.StoreFailedError{Op: "Store", Err: cause}

	assert.Equal(t, "store failed during Store: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestAlreadyInitializedError_Message(t *testing.T) {
	err := &domain.AlreadyInitializedError{ActivityType: "webhook"}
	assert.Equal(t, `job queue for activity type "webhook" already initialized`, err.Error())
}

func TestConverterFailedError_Message(t *testing.T) {
	err := &domain.ConverterFailedError{JobID: "j1", Reason: "sequence has no children"}
	assert.Equal(t, "converter failed for job j1: sequence has no children", err.Error())
}

func TestUserActivityError_WrapsAndUnwraps(t *testing.T) {
	cause := errors.New("smtp timeout")
	err := &domain.UserActivityError{JobID: "j1", Err: cause}

	assert.Equal(t, "activity error for job j1: smtp timeout", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestShutdownError_Message(t *testing.T) {
	err := &domain.ShutdownError{}
	assert.Equal(t, "job queue shut down", err.Error())
}

func TestInvalidTransitionError_Message(t *testing.T) {
	err := &domain.InvalidTransitionError{JobID: "j1", From: domain.StatusCompleted, To: domain.StatusReady}
	assert.Equal(t, "job j1: illegal transition COMPLETED -> READY", err.Error())
}

func TestInvalidActivityTypeError_Message(t *testing.T) {
	err := &domain.InvalidActivityTypeError{ActivityType: "sms"}
	assert.Equal(t, `no activity executor registered for type "sms"`, err.Error())
}

func TestErrorsAs_DiscriminatesTypes(t *testing.T) {
	var err error = &domain.StoreFailedError{Op: "Load", Err: errors.New("boom")}

	var notFound *domain.NotFoundError
	assert.False(t, errors.As(err, &notFound))

	var storeFailed *domain.StoreFailedError
	assert.True(t, errors.As(err, &storeFailed))
	assert.Equal(t, "Load", storeFailed.Op)
}
