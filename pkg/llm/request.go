package llm

// ChatRequest is the provider-neutral outbound payload: the system directive
// followed by the conversation so far.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Options  *Options  `json:"options,omitempty"`
}
