package ai

import (
	"context"
	"io"
)

// TokenUsage is the per-completion token accounting returned by the model.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the result of one chat completion call.
type Completion struct {
	Text  string
	Usage TokenUsage
	Model string
}

// Completer generates a chat completion for a user message with an optional
// injected context block.
type Completer interface {
	Complete(ctx context.Context, message, contextText, userID string) (Completion, error)
}

// Embedder converts text into a fixed-length vector. Empty or
// whitespace-only input yields a nil vector and no error; the caller
// proceeds without retrieval rather than failing the request.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Transcriber converts an audio stream into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Provider bundles the three model capabilities a single vendor exposes.
type Provider interface {
	Completer
	Embedder
	Transcriber
}
