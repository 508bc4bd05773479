package domain

import "context"

// Generator is the interface for any LLM backend.
type Generator interface {
	// Generate sends a request and returns a complete normalized response.
	Generate(ctx context.Context, req GenerateRequest) (*CompletionResponse, error)
	// Name returns the provider's identifier (e.g., "openai", "mistral").
	Name() string
}

// StreamDelta is a single incremental chunk from a streaming backend.
// Err is set when the stream failed mid-flight; no further deltas follow it.
type StreamDelta struct {
	Content string
	Done    bool
	Err     error
}

// StreamingGenerator extends Generator with native incremental delivery.
type StreamingGenerator interface {
	Generator
	// GenerateStream sends a request and returns a channel of incremental
	// deltas. The channel is closed after a Done or Err delta, or when ctx
	// is cancelled.
	GenerateStream(ctx context.Context, req GenerateRequest) (<-chan StreamDelta, error)
}

// StreamEventType tags events delivered by the streaming relay.
type StreamEventType string

// Stream event types. Every stream ends with exactly one Done or Error event.
const (
	StreamChunk StreamEventType = "chunk"
	StreamDone  StreamEventType = "done"
	StreamError StreamEventType = "error"
)

// StreamMetadata accompanies the terminal Done event.
type StreamMetadata struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// StreamEvent is one element of the caller-facing streaming sequence.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Chunk    string          `json:"chunk,omitempty"`
	Content  string          `json:"content,omitempty"`
	Metadata *StreamMetadata `json:"metadata,omitempty"`
	Err      error           `json:"-"`
}
