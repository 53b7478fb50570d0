package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pr-diff-review/internal/types"

	"github.com/openai/openai-go"
)

// OpenAIAdapter implements llm.Client using the official OpenAI client. A
// semaphore bounds in-flight requests so a wide batch fan-out cannot exceed
// the provider's concurrency allowance.
type OpenAIAdapter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	sem     chan struct{}
}

// NewOpenAIAdapter creates an adapter. maxConcurrency <= 0 means a single
// in-flight request.
func NewOpenAIAdapter(client *openai.Client, model string, maxConcurrency int) *OpenAIAdapter {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &OpenAIAdapter{
		client:  client,
		model:   model,
		timeout: 120 * time.Second,
		sem:     make(chan struct{}, maxConcurrency),
	}
}

// SetTimeout sets the per-request timeout.
func (a *OpenAIAdapter) SetTimeout(d time.Duration) {
	a.timeout = d
}

// Name returns the model name.
func (a *OpenAIAdapter) Name() string {
	return "openai-" + a.model
}

// Ping sends a minimal request to verify connection
func (a *OpenAIAdapter) Ping(ctx context.Context) error {
	slog.Info("checking llm connection...")
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("hello"),
		},
		MaxTokens: openai.Int(1),
	}
	_, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("llm ping failed: %w", err)
	}
	slog.Info("llm connection verified")
	return nil
}

// Chat sends a chat completion request.
func (a *OpenAIAdapter) Chat(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	select {
	case a.sem <- struct{}{}:
		defer func() { <-a.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if params.Model == "" {
		params.Model = openai.ChatModel(a.model)
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(fmt.Errorf("openai request: %w", err))
	}
	return resp, nil
}

// SimpleTextQuery sends a single text request and returns the text response.
func (a *OpenAIAdapter) SimpleTextQuery(ctx context.Context, systemPrompt, userInput string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion

	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userInput))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: messages,
	}

	resp, err := a.Chat(ctx, params)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no openai response")
	}

	return resp.Choices[0].Message.Content, nil
}

// wrapError marks rate limits and server errors as retryable.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		statusCode := apiErr.StatusCode
		if statusCode == 429 || (statusCode >= 500 && statusCode < 600) {
			return types.NewRetryableError(err)
		}
	}

	return err
}
