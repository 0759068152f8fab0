package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/smtp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
)

// EmailConfig holds SMTP connection details.
type EmailConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// emailArguments is the expected JSON structure in job.Arguments.
type emailArguments struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailExecutor sends an email via SMTP.
type EmailExecutor struct {
	cfg EmailConfig
}

// NewEmailExecutor creates an EmailExecutor from config.
func NewEmailExecutor(cfg EmailConfig) *EmailExecutor {
	return &EmailExecutor{cfg: cfg}
}

func (e *EmailExecutor) ActivityType() string { return "email" }

func (e *EmailExecutor) Execute(ctx context.Context, job *domain.Job) (domain.Result, error) {
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "activity.email")
	defer span.End()

	var args emailArguments
	if err := json.Unmarshal(job.Arguments, &args); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid arguments")
		return domain.Result{}, fmt.Errorf("invalid email arguments: %w", err)
	}
	if args.To == "" {
		err := errors.New("email arguments missing required field 'to'")
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing 'to' field")
		return domain.Result{}, err
	}

	span.SetAttributes(attribute.String("email.to", args.To))

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	msg := buildMIME(e.cfg.From, args.To, args.Subject, args.Body)

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		done <- result{err: smtp.SendMail(addr, auth, e.cfg.From, []string{args.To}, msg)}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, "smtp send failed")
			return domain.Result{}, fmt.Errorf("smtp send to %s: %w", args.To, res.err)
		}
		return domain.ValueResult(nil), nil
	case <-ctx.Done():
		err := fmt.Errorf("email send timed out: %w", ctx.Err())
		span.RecordError(err)
		span.SetStatus(codes.Error, "timeout")
		return domain.Result{}, err
	}
}

func buildMIME(from, to, subject, body string) []byte {
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body,
	)
	return []byte(msg)
}
