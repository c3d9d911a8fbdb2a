package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "You are Lara, a helpful AI assistant."

// OpenAIConfig configures the OpenAI-backed provider.
type OpenAIConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float64
	EmbeddingDim   int
	RequestTimeout time.Duration
}

// OpenAIProvider implements Completer, Embedder and Transcriber on top of
// the OpenAI API.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	)
	return &OpenAIProvider{client: &client, cfg: cfg}
}

func (p *OpenAIProvider) Complete(ctx context.Context, message, contextText, userID string) (Completion, error) {
	system := systemPrompt
	if contextText != "" {
		system += "\n\nRelevant context:\n" + contextText
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(message),
		},
		Model:       p.cfg.ChatModel,
		MaxTokens:   openai.Int(int64(p.cfg.MaxTokens)),
		Temperature: openai.Float(p.cfg.Temperature),
	}
	if userID != "" {
		params.User = openai.String(userID)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("openai chat completion: no choices returned")
	}

	return Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		Model: resp.Model,
	}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: p.cfg.EmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embedding: empty response")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	if len(vec) != p.cfg.EmbeddingDim {
		return nil, fmt.Errorf("openai embedding: dimension %d does not match configured %d", len(vec), p.cfg.EmbeddingDim)
	}
	return vec, nil
}

func (p *OpenAIProvider) Dimensions() int {
	return p.cfg.EmbeddingDim
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		// Whisper infers the container format from the file extension.
		filename = "audio.wav"
	}
	resp, err := p.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(audio, filename, "application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
