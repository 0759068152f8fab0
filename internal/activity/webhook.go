package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

// webhookArguments is the expected JSON structure in job.Arguments. When
// FanOut is greater than zero, the executor does not call out itself: it
// returns an Activity graph of FanOut parallel child pings instead, giving
// the continuation engine a concrete producer to schedule.
type webhookArguments struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
	FanOut  int               `json:"fan_out"`
}

// WebhookExecutor makes an outbound HTTP call, or fans a call out into N
// parallel child jobs.
type WebhookExecutor struct {
	client *http.Client
}

// NewWebhookExecutor creates a WebhookExecutor.
func NewWebhookExecutor() *WebhookExecutor {
	return &WebhookExecutor{client: &http.Client{Timeout: 15 * time.Second}}
}

func (e *WebhookExecutor) ActivityType() string { return "webhook" }

func (e *WebhookExecutor) Execute(ctx context.Context, job *domain.Job) (domain.Result, error) {
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "activity.webhook")
	defer span.End()

	var args webhookArguments
	if err := json.Unmarshal(job.Arguments, &args); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid arguments")
		return domain.Result{}, fmt.Errorf("invalid webhook arguments: %w", err)
	}
	if args.URL == "" {
		err := errors.New("webhook arguments missing required field 'url'")
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing 'url' field")
		return domain.Result{}, err
	}
	if args.Method == "" {
		args.Method = http.MethodPost
	}

	if args.FanOut > 0 {
		return e.fanOut(args), nil
	}

	span.SetAttributes(
		attribute.String("webhook.url", args.URL),
		attribute.String("webhook.method", args.Method),
	)

	var bodyReader io.Reader
	if args.Body != "" {
		bodyReader = strings.NewReader(args.Body)
	}

	req, err := http.NewRequestWithContext(ctx, args.Method, args.URL, bodyReader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request failed")
		return domain.Result{}, fmt.Errorf("build webhook request: %w", err)
	}
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "http call failed")
		return domain.Result{}, fmt.Errorf("webhook call to %s: %w", args.URL, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("webhook %s returned status %d", args.URL, resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad status code")
		return domain.Result{}, err
	}
	return domain.ValueResult(nil), nil
}

// fanOut builds a Parallel activity of args.FanOut child pings against the
// same URL, each with FanOut cleared so the child call actually fires.
func (e *WebhookExecutor) fanOut(args webhookArguments) domain.Result {
	children := make([]domain.Activity, args.FanOut)
	for i := range children {
		childArgs := args
		childArgs.FanOut = 0
		payload, _ := json.Marshal(childArgs)
		children[i] = domain.Single("webhook", "ping", payload)
	}
	return domain.ActivityResult(domain.Parallel(false, children...))
}
