package ollama

import (
	"time"

	"github.com/papercomputeco/chatterbox/pkg/llm"
)

// chatRequest represents an Ollama /api/chat request.
type chatRequest struct {
	Model    string        `json:"model"`            // Model name (e.g., "llama3.2", "mistral")
	Messages []llm.Message `json:"messages"`         // Conversation history
	Stream   *bool         `json:"stream,omitempty"` // Whether to stream responses (default: true in Ollama)

	// Generation options
	Options *options `json:"options,omitempty"`

	// Keep model loaded
	KeepAlive string `json:"keep_alive,omitempty"` // How long to keep model in memory
}

// options contains Ollama inference parameters.
type options struct {
	Temperature *float64 `json:"temperature,omitempty"` // Creativity (0.0-2.0)
	NumPredict  *int     `json:"num_predict,omitempty"` // Max tokens to generate
}

// streamChunk represents a single line of a streaming response.
type streamChunk struct {
	Model     string      `json:"model"`
	CreatedAt time.Time   `json:"created_at"`
	Message   llm.Message `json:"message"`
	Done      bool        `json:"done"`
	Error     string      `json:"error,omitempty"`

	// Final chunk includes metrics
	TotalDuration      int64 `json:"total_duration,omitempty"`
	LoadDuration       int64 `json:"load_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}
