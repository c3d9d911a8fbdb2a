package memory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

const chromemCollection = "ai_memory"

// ChromemStore is an embedded, in-process vector store backed by
// chromem-go. It serves local development and tests when no DATABASE_URL
// is configured; contents do not survive a restart.
//
// chromem-go has no filtered listing API, so a small recency index is kept
// alongside the collection to serve ScrollConversation.
type ChromemStore struct {
	db  *chromem.DB
	col *chromem.Collection
	dim int

	mu     sync.RWMutex
	recent map[string][]Point // ownerID+"\x00"+conversationID -> points
}

func NewChromemStore(dim int) (*ChromemStore, error) {
	s := &ChromemStore{
		db:     chromem.NewDB(),
		dim:    dim,
		recent: make(map[string][]Point),
	}
	if err := s.EnsureCollection(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChromemStore) EnsureCollection(_ context.Context) error {
	col, err := s.db.GetOrCreateCollection(chromemCollection, nil, nil)
	if err != nil {
		return fmt.Errorf("ensure chromem collection: %w", err)
	}
	s.col = col
	return nil
}

func (s *ChromemStore) Save(ctx context.Context, req WriteRequest) (string, error) {
	if len(req.Vector) != s.dim {
		return "", fmt.Errorf("save memory point: vector dimension %d does not match collection %d", len(req.Vector), s.dim)
	}

	id := uuid.NewString()
	createdAt := time.Now().UTC()

	metadata := make(map[string]string, len(req.Metadata)+4)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["owner_id"] = req.OwnerID
	metadata["conversation_id"] = req.ConversationID
	metadata["source_type"] = req.SourceType
	metadata["created_at"] = createdAt.Format(time.RFC3339Nano)

	err := s.col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   req.Text,
		Embedding: req.Vector,
		Metadata:  metadata,
	})
	if err != nil {
		return "", fmt.Errorf("save memory point: %w", err)
	}

	point := Point{
		ID:             id,
		OwnerID:        req.OwnerID,
		ConversationID: req.ConversationID,
		Text:           req.Text,
		SourceType:     req.SourceType,
		CreatedAt:      createdAt,
		Metadata:       req.Metadata,
	}
	key := scrollKey(req.OwnerID, req.ConversationID)
	s.mu.Lock()
	s.recent[key] = append(s.recent[key], point)
	s.mu.Unlock()

	return id, nil
}

func (s *ChromemStore) Search(ctx context.Context, q SearchQuery) ([]Hit, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	// chromem rejects nResults above the collection size.
	n := q.Limit
	if count := s.col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	where := map[string]string{"owner_id": q.OwnerID}
	if q.ConversationID != "" {
		where["conversation_id"] = q.ConversationID
	}
	if q.SourceType != "" {
		where["source_type"] = q.SourceType
	}

	results, err := s.col.QueryEmbedding(ctx, q.Vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("search memory points: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		if r.Similarity < q.ScoreThreshold {
			continue
		}
		hits = append(hits, Hit{Point: pointFromResult(r), Score: r.Similarity})
	}
	return hits, nil
}

func (s *ChromemStore) ScrollConversation(_ context.Context, ownerID, conversationID string, limit int) ([]Point, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.recent[scrollKey(ownerID, conversationID)]
	if len(stored) == 0 {
		return nil, nil
	}
	start := 0
	if len(stored) > limit {
		start = len(stored) - limit
	}
	out := make([]Point, len(stored)-start)
	copy(out, stored[start:])
	return out, nil
}

func (s *ChromemStore) DeleteOwner(ctx context.Context, ownerID string) bool {
	if err := s.col.Delete(ctx, map[string]string{"owner_id": ownerID}, nil); err != nil {
		log.Printf("delete memory points for owner %s failed: %v", ownerID, err)
		return false
	}

	s.mu.Lock()
	for key, points := range s.recent {
		if len(points) > 0 && points[0].OwnerID == ownerID {
			delete(s.recent, key)
		}
	}
	s.mu.Unlock()
	return true
}

func (s *ChromemStore) Close() error {
	// Everything lives in process memory.
	return nil
}

func pointFromResult(r chromem.Result) Point {
	createdAt, _ := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])

	var custom map[string]string
	for k, v := range r.Metadata {
		switch k {
		case "owner_id", "conversation_id", "source_type", "created_at":
		default:
			if custom == nil {
				custom = make(map[string]string)
			}
			custom[k] = v
		}
	}

	return Point{
		ID:             r.ID,
		OwnerID:        r.Metadata["owner_id"],
		ConversationID: r.Metadata["conversation_id"],
		Text:           r.Content,
		SourceType:     r.Metadata["source_type"],
		CreatedAt:      createdAt,
		Metadata:       custom,
	}
}

func scrollKey(ownerID, conversationID string) string {
	return ownerID + "\x00" + conversationID
}
