package contract

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	// JSON asks the provider to constrain its reply to a single JSON object.
	JSON bool `json:"json,omitempty"`
}

type CompletionResponse struct {
	Content string `json:"content"`
}
