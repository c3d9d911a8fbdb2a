package chat

import (
	"errors"

	"github.com/laralabs/lara/internal/ai"
)

// Request is one chat turn to orchestrate. The caller resolves identity
// before handing it over; the orchestrator never sees the bearer token.
type Request struct {
	Message        string
	ConversationID string
	Metadata       map[string]string
	SaveToMemory   bool
}

// Response is the orchestration outcome returned to the client.
type Response struct {
	ConversationID string        `json:"conversationId"`
	Message        string        `json:"message"`
	ResponseText   string        `json:"responseText"`
	TokenUsage     ai.TokenUsage `json:"tokenUsage"`
	MemoryStored   bool          `json:"memoryStored"`
	Transcription  string        `json:"transcription,omitempty"`
}

// ErrTranscriptionFailed marks audio that could not be turned into text.
// The HTTP layer maps it to a client error, not a server failure.
var ErrTranscriptionFailed = errors.New("could not transcribe audio")
