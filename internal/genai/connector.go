package genai

import "context"

// Invocation is the normalized outcome of one prompt round-trip. The engine
// depends only on this shape, never on a provider SDK.
type Invocation struct {
	Content      string `json:"content"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	LatencyMS    int64  `json:"latency_ms"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Connector is the minimal model-invocation capability a generative pillar
// consumes. Retry policy, if any, belongs to the connector implementation;
// pillars never retry.
type Connector interface {
	Invoke(ctx context.Context, session, prompt string) (*Invocation, error)
}

// Chatter is an optional connector upgrade for multi-turn exchanges.
type Chatter interface {
	Chat(ctx context.Context, session string, messages []Message) (*Invocation, error)
}

// Embedder is an optional connector upgrade for embedding lookups.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}
