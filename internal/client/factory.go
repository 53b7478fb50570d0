package client

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"pr-diff-review/internal/config"
	"pr-diff-review/internal/llm"
)

// NewLLMClient builds the configured LLM client. The endpoint is
// configurable so OpenAI-compatible gateways work unchanged.
func NewLLMClient(cfg *config.Config) llm.Client {
	oc := openai.NewClient(
		option.WithAPIKey(cfg.LLM.APIKey),
		option.WithBaseURL(cfg.LLM.Endpoint),
	)

	adapter := NewOpenAIAdapter(&oc, cfg.LLM.Model, cfg.LLM.MaxConcurrency)
	if cfg.LLM.Timeout > 0 {
		adapter.SetTimeout(cfg.LLM.Timeout)
	}
	return adapter
}
