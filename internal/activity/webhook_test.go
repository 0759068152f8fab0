package activity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/activity"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

func TestWebhookExecutor_ActivityType(t *testing.T) {
	e := activity.NewWebhookExecutor()
	assert.Equal(t, "webhook", e.ActivityType())
}

func TestWebhookExecutor_Execute_InvalidJSON(t *testing.T) {
	e := activity.NewWebhookExecutor()
	job := &domain.Job{Arguments: []byte("not-json")}

	_, err := e.Execute(context.Background(), job)
	require.Error(t, err)
}

func TestWebhookExecutor_Execute_MissingURL(t *testing.T) {
	e := activity.NewWebhookExecutor()
	job := &domain.Job{Arguments: []byte(`{"method":"POST","body":"hello"}`)}

	_, err := e.Execute(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestWebhookExecutor_Execute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := activity.NewWebhookExecutor()
	job := &domain.Job{Arguments: []byte(`{"url":"` + srv.URL + `","method":"POST","body":"ping"}`)}

	result, err := e.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultKindValue, result.Kind)
}

func TestWebhookExecutor_Execute_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := activity.NewWebhookExecutor()
	job := &domain.Job{Arguments: []byte(`{"url":"` + srv.URL + `","method":"GET"}`)}

	_, err := e.Execute(context.Background(), job)
	require.Error(t, err, "status 500 should produce an error")
}

func TestWebhookExecutor_Execute_DefaultsMethodToPOST(t *testing.T) {
	var receivedMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := activity.NewWebhookExecutor()
	job := &domain.Job{Arguments: []byte(`{"url":"` + srv.URL + `"}`)}

	_, err := e.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, receivedMethod)
}

func TestWebhookExecutor_Execute_SetsCustomHeaders(t *testing.T) {
	var receivedHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeader = r.Header.Get("X-Secret")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := activity.NewWebhookExecutor()
	job := &domain.Job{Arguments: []byte(`{"url":"` + srv.URL + `","headers":{"X-Secret":"token123"}}`)}

	_, err := e.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "token123", receivedHeader)
}

func TestWebhookExecutor_Execute_FanOutReturnsParallelActivity(t *testing.T) {
	e := activity.NewWebhookExecutor()
	job := &domain.Job{Arguments: []byte(`{"url":"http://example.com/ping","fan_out":3}`)}

	result, err := e.Execute(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, domain.ResultKindActivity, result.Kind)
	require.NotNil(t, result.Activity)
	assert.Equal(t, domain.ActivityKindParallel, result.Activity.Kind)
	require.Len(t, result.Activity.Children, 3)

	for _, child := range result.Activity.Children {
		assert.Equal(t, domain.ActivityKindSingle, child.Kind)
		assert.Equal(t, "webhook", child.ActivityType)

		var args struct {
			URL    string `json:"url"`
			FanOut int    `json:"fan_out"`
		}
		require.NoError(t, json.Unmarshal(child.Arguments, &args))
		assert.Equal(t, "http://example.com/ping", args.URL)
		assert.Equal(t, 0, args.FanOut, "child pings must not re-fan-out")
	}
}
