package chatlog

import (
	"context"
	"time"

	"github.com/laralabs/lara/internal/ai"
)

// Turn is one completed chat exchange, recorded append-only for audit and
// quota accounting. Never mutated after insert.
type Turn struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"ownerId"`
	ConversationID string            `json:"conversationId"`
	UserMessage    string            `json:"userMessage"`
	AIResponse     string            `json:"aiResponse"`
	TokenUsage     ai.TokenUsage     `json:"tokenUsage"`
	Model          string            `json:"model"`
	CreatedAt      time.Time         `json:"createdAt"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Store persists chat turn log records.
type Store interface {
	Append(ctx context.Context, turn Turn) error
	// ListRecent returns the owner's turns newest first, at most limit.
	ListRecent(ctx context.Context, ownerID string, limit int) ([]Turn, error)
	Close() error
}
