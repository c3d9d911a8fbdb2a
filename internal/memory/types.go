package memory

import (
	"context"
	"time"
)

// Source types recorded on stored points.
const (
	SourceUserMessage = "user_message"
	SourceAIResponse  = "ai_response"
)

// Point is one stored memory entry. Points are immutable once written;
// duplicates are tolerated and identity is the generated opaque ID.
type Point struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"ownerId"`
	ConversationID string            `json:"conversationId"`
	Text           string            `json:"text"`
	SourceType     string            `json:"sourceType"`
	CreatedAt      time.Time         `json:"createdAt"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Hit is a similarity search result ranked by descending score.
type Hit struct {
	Point
	Score float32 `json:"score"`
}

// WriteRequest describes a point to store.
type WriteRequest struct {
	OwnerID        string
	ConversationID string
	Text           string
	Vector         []float32
	SourceType     string
	Metadata       map[string]string
}

// SearchQuery describes a similarity search. OwnerID is mandatory; the
// optional filters are conjunctive with it.
type SearchQuery struct {
	Vector         []float32
	OwnerID        string
	Limit          int
	ScoreThreshold float32
	ConversationID string
	SourceType     string
}

// Store is the durable similarity index over memory points.
//
// Every read path filters by owner: a point must never be returned to a
// caller other than the owner that wrote it, regardless of vector
// proximity.
type Store interface {
	// EnsureCollection creates the backing collection with the configured
	// dimensionality if absent. Idempotent and safe to call concurrently.
	EnsureCollection(ctx context.Context) error

	// Save writes a new point and returns its generated ID.
	Save(ctx context.Context, req WriteRequest) (string, error)

	// Search returns hits with score >= the threshold, ranked by
	// descending similarity, at most Limit of them. An empty result is a
	// valid outcome.
	Search(ctx context.Context, q SearchQuery) ([]Hit, error)

	// ScrollConversation returns points for an owner+conversation pair
	// without vector comparison. Ordering is not guaranteed; callers sort
	// by CreatedAt.
	ScrollConversation(ctx context.Context, ownerID, conversationID string, limit int) ([]Point, error)

	// DeleteOwner removes all points for an owner. Best-effort: returns
	// false on provider error instead of raising so the caller decides
	// whether to retry.
	DeleteOwner(ctx context.Context, ownerID string) bool

	Close() error
}
