package llm

// Options contains model inference parameters shared by every provider.
// Providers translate them into their own request fields.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"` // Creativity (0.0-2.0)
	MaxTokens   *int     `json:"max_tokens,omitempty"`  // Max tokens to generate
}
