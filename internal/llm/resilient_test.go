package llm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeina-health/companion/pkg/logger"
)

type scriptedClient struct {
	calls   atomic.Int32
	results []error
	block   bool
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	n := int(c.calls.Add(1)) - 1
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n < len(c.results) && c.results[n] != nil {
		return nil, c.results[n]
	}
	return &CompletionResponse{Content: "ok"}, nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{Timeout: time.Second, MaxRetries: 1, InitialInterval: time.Millisecond}
}

func TestResilientClientRetriesOnce(t *testing.T) {
	inner := &scriptedClient{results: []error{errors.New("boom")}}
	c := NewResilientClient(inner, fastPolicy(), logger.NewNop())

	resp, err := c.Complete(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestResilientClientGivesUpAfterRetry(t *testing.T) {
	inner := &scriptedClient{results: []error{errors.New("one"), errors.New("two"), errors.New("three")}}
	c := NewResilientClient(inner, fastPolicy(), logger.NewNop())

	_, err := c.Complete(context.Background(), &CompletionRequest{})
	require.Error(t, err)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestResilientClientNoRetryOnCancelledParent(t *testing.T) {
	inner := &scriptedClient{block: true}
	c := NewResilientClient(inner, fastPolicy(), logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Complete(ctx, &CompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestResilientClientPerAttemptTimeout(t *testing.T) {
	inner := &scriptedClient{block: true}
	policy := RetryPolicy{Timeout: 5 * time.Millisecond, MaxRetries: 1, InitialInterval: time.Millisecond}
	c := NewResilientClient(inner, policy, logger.NewNop())

	_, err := c.Complete(context.Background(), &CompletionRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestResilientClientDoesNotRetryRejectedRequest(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		calls int32
	}{
		{name: "bad request", err: &openai.APIError{HTTPStatusCode: 400, Message: "invalid tool_call_id"}, calls: 1},
		{name: "unauthorized", err: &openai.RequestError{HTTPStatusCode: 401, Err: errors.New("bad key")}, calls: 1},
		{name: "wrapped", err: fmt.Errorf("openai: %w", &openai.APIError{HTTPStatusCode: 422}), calls: 1},
		{name: "rate limited", err: &openai.APIError{HTTPStatusCode: 429}, calls: 2},
		{name: "server error", err: &openai.APIError{HTTPStatusCode: 503}, calls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &scriptedClient{results: []error{tt.err, tt.err}}
			c := NewResilientClient(inner, fastPolicy(), logger.NewNop())

			_, err := c.Complete(context.Background(), &CompletionRequest{})
			require.Error(t, err)
			assert.EqualValues(t, tt.calls, inner.calls.Load())
		})
	}
}
