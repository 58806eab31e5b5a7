package domain

import "context"

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openai", "anthropic").
	Name() string
}

// StreamDelta is a single incremental chunk from a streaming LLM response.
type StreamDelta struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
	Done      bool            `json:"done,omitempty"`
	Usage     *Usage          `json:"usage,omitempty"`
}

// ToolCallDelta is one fragment of a streamed tool call. Index identifies
// the call within the assistant message: fragments sharing an index belong
// to the same call, and their Arguments concatenate in arrival order. The
// first fragment for an index carries ID and Name.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamingLLMProvider extends LLMProvider with streaming support.
type StreamingLLMProvider interface {
	LLMProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}

// ProviderRegistry resolves a provider identifier to a constructed client.
type ProviderRegistry interface {
	Get(name string) (LLMProvider, error)
}

// TokenCounter estimates token usage for prompt-budget checks.
type TokenCounter interface {
	CountText(text string) int
	CountMessages(messages []Message) int
}
