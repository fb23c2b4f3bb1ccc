// Package providers holds concrete ports.ModelClient implementations wired
// at startup by cmd/orchestratorctl; the orchestration core itself only
// ever sees the interfaces.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/orchestrator-core/internal/ports"
)

// OpenAIClient implements ports.StreamingModelClient and ports.Throttler.
// The core wraps the call boundary in its own span/metric/retry layer, so
// the provider carries no retry loop of its own.
type OpenAIClient struct {
	client *openai.Client
	model  string

	mu        sync.Mutex
	rateLimit ports.RateLimitState
	throttled time.Time
}

// NewOpenAIClient constructs a client against apiKey. model is the default
// chat model used when a ModelRequest leaves Model empty.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIClient{client: openai.NewClient(apiKey), model: model}
}

var (
	_ ports.StreamingModelClient = (*OpenAIClient)(nil)
	_ ports.Throttler            = (*OpenAIClient)(nil)
)

// Name identifies this backend for breaker/metric dimensioning.
func (c *OpenAIClient) Name() string {
	return "openai:" + c.model
}

// ShouldThrottle reports whether the supervisor should delay the next
// dispatch. The client marks itself throttled for a minute after a 429.
func (c *OpenAIClient) ShouldThrottle() (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remaining := time.Until(c.throttled); remaining > 0 {
		return true, remaining
	}
	return false, 0
}

// RateLimitState returns the stored remaining-quota state. Nothing in this
// client writes that state, so every field reads as zero.
func (c *OpenAIClient) RateLimitState() ports.RateLimitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimit
}

func (c *OpenAIClient) noteError(err error) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		c.mu.Lock()
		c.throttled = time.Now().Add(time.Minute)
		c.mu.Unlock()
	}
}

// Complete issues one chat completion request and returns the full reply.
func (c *OpenAIClient) Complete(ctx context.Context, req ports.ModelRequest) (ports.ModelResponse, error) {
	if c.client == nil {
		return ports.ModelResponse{}, errors.New("openai client not configured")
	}

	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		c.noteError(err)
		return ports.ModelResponse{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.ModelResponse{}, errors.New("openai completion: empty choices")
	}

	return ports.ModelResponse{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Stream issues one streaming chat completion, forwarding each delta as a
// ports.StreamChunk. The channel closes when the stream ends; usage totals
// ride on the final chunk when the API reports them.
func (c *OpenAIClient) Stream(ctx context.Context, req ports.ModelRequest) (<-chan ports.StreamChunk, error) {
	if c.client == nil {
		return nil, errors.New("openai client not configured")
	}

	request := c.buildRequest(req, true)
	stream, err := c.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		c.noteError(err)
		return nil, fmt.Errorf("openai stream: %w", err)
	}

	out := make(chan ports.StreamChunk, 8)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				c.noteError(err)
				return
			}
			chunk := ports.StreamChunk{}
			if len(resp.Choices) > 0 {
				chunk.Text = resp.Choices[0].Delta.Content
			}
			if resp.Usage != nil {
				chunk.InputTokens = resp.Usage.PromptTokens
				chunk.OutputTokens = resp.Usage.CompletionTokens
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *OpenAIClient) buildRequest(req ports.ModelRequest, stream bool) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	out := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}
