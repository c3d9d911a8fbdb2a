package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"strings"
)

// MockProvider is a deterministic offline provider used when no API key is
// configured and in tests. Completions echo the input, embeddings are a
// stable hash-derived vector so identical texts map to identical vectors.
type MockProvider struct {
	Dim int

	// Optional failure injection for orchestrator tests.
	CompleteErr   error
	EmbedErr      error
	TranscribeErr error

	Transcription string
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &MockProvider{Dim: dim, Transcription: "mock transcription"}
}

func (m *MockProvider) Complete(_ context.Context, message, _, _ string) (Completion, error) {
	if m.CompleteErr != nil {
		return Completion{}, m.CompleteErr
	}
	words := len(strings.Fields(message))
	return Completion{
		Text: fmt.Sprintf("Echo: %s", message),
		Usage: TokenUsage{
			PromptTokens:     words,
			CompletionTokens: 10,
			TotalTokens:      words + 10,
		},
		Model: "mock",
	}, nil
}

func (m *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.Dim)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11))/float64(1<<52) - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] /= float32(norm)
	}
	return vec, nil
}

func (m *MockProvider) Dimensions() int {
	return m.Dim
}

func (m *MockProvider) Transcribe(_ context.Context, audio io.Reader, _ string) (string, error) {
	if m.TranscribeErr != nil {
		return "", m.TranscribeErr
	}
	// Drain the stream so callers exercise the same IO path as the real API.
	_, _ = io.Copy(io.Discard, audio)
	return m.Transcription, nil
}
