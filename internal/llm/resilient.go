package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/zeina-health/companion/pkg/logger"
	"github.com/zeina-health/companion/pkg/metrics"
)

var tracer = otel.Tracer("companion/internal/llm")

// RetryPolicy bounds a model call.
type RetryPolicy struct {
	// Timeout applies to each attempt separately.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after the first failure.
	MaxRetries int
	// InitialInterval is the first backoff wait.
	InitialInterval time.Duration
}

// DefaultRetryPolicy retries once after roughly half a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:         30 * time.Second,
		MaxRetries:      1,
		InitialInterval: 500 * time.Millisecond,
	}
}

// ResilientClient decorates a Client with per-attempt timeouts, bounded
// retries, metrics and tracing.
type ResilientClient struct {
	next   Client
	policy RetryPolicy
	logger *logger.Logger
}

// NewResilientClient wraps next.
func NewResilientClient(next Client, policy RetryPolicy, log *logger.Logger) *ResilientClient {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &ResilientClient{next: next, policy: policy, logger: log}
}

// Name returns the wrapped provider name.
func (c *ResilientClient) Name() string {
	return c.next.Name()
}

// Complete calls the wrapped client, retrying transient failures. A
// cancelled parent context is never retried.
func (c *ResilientClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", c.next.Name()),
		attribute.Int("llm.history_turns", len(req.History)),
	)

	b := backoff.NewExponentialBackOff()
	if c.policy.InitialInterval > 0 {
		b.InitialInterval = c.policy.InitialInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.policy.MaxRetries)), ctx)

	var resp *CompletionResponse
	attempt := 0
	operation := func() error {
		attempt++
		start := time.Now()

		attemptCtx := ctx
		cancel := func() {}
		if c.policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
		}
		defer cancel()

		r, err := c.next.Complete(attemptCtx, req)
		if err != nil {
			metrics.RecordLLMCall(c.next.Name(), "error", time.Since(start).Seconds(), 0, 0)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("model call failed",
				zap.String("provider", c.next.Name()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		metrics.RecordLLMCall(c.next.Name(), "ok", time.Since(start).Seconds(), r.TokensIn, r.TokensOut)
		resp = r
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("llm.attempts", attempt),
		attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
		attribute.Int("llm.tokens_out", resp.TokensOut),
	)
	return resp, nil
}

// isPermanent reports whether the provider rejected the request itself. A
// 4xx other than 429 fails the same way on every attempt.
func isPermanent(err error) bool {
	status := 0
	var oe *openai.APIError
	var re *openai.RequestError
	var ae *anthropic.Error
	switch {
	case errors.As(err, &oe):
		status = oe.HTTPStatusCode
	case errors.As(err, &re):
		status = re.HTTPStatusCode
	case errors.As(err, &ae):
		status = ae.StatusCode
	}
	return status >= 400 && status < 500 && status != 429
}
