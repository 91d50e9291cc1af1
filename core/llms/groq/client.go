// Package groq configures the OpenAI-compatible chat completions client for
// Groq's hosted models.
package groq

import "github.com/koscakluka/ema-voice/core/llms/openai"

const (
	BaseURL      = "https://api.groq.com/openai/v1"
	DefaultModel = "llama-3.3-70b-versatile"
)

func NewClient(apiKey string, opts ...openai.ClientOption) *openai.Client {
	return openai.NewClient(apiKey, append([]openai.ClientOption{
		openai.WithBaseURL(BaseURL),
		openai.WithModel(DefaultModel),
	}, opts...)...)
}
