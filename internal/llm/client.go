// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/zeina-health/companion/internal/model"
)

// ErrNoImage is returned when an image call succeeds but carries no data.
var ErrNoImage = errors.New("llm: no image data returned")

// ToolDefinition declares a tool the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

// CompletionRequest represents a completion request. History is the full
// ordered turn log; the last turn is the one the model must answer.
type CompletionRequest struct {
	Model       string
	System      string
	Tools       []ToolDefinition
	History     []model.Turn
	MaxTokens   int
	Temperature float64
}

// CompletionResponse represents a completion response. ToolCalls is empty
// when the model produced its final answer.
type CompletionResponse struct {
	Content    string
	ToolCalls  []model.ToolCall
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// ImageRequest asks for one illustrative image.
type ImageRequest struct {
	Prompt      string
	AspectRatio string
}

// ImageGenerator produces base64-encoded raster images.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req *ImageRequest) (string, error)
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}
