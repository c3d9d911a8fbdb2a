package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists memory points in PostgreSQL with pgvector.
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(ctx context.Context, databaseURL string, dim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, dim: dim}
	if err := s.EnsureCollection(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) EnsureCollection(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_points (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			source_type TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`, s.dim),
		`CREATE INDEX IF NOT EXISTS idx_memory_points_owner_conv ON memory_points (owner_id, conversation_id);`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			// Concurrent create-if-absent races surface as duplicate
			// object errors; those mean another caller won and the
			// collection exists.
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("ensure memory collection failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, req WriteRequest) (string, error) {
	if len(req.Vector) != s.dim {
		return "", fmt.Errorf("save memory point: vector dimension %d does not match collection %d", len(req.Vector), s.dim)
	}

	id := uuid.NewString()
	metadata, err := json.Marshal(orEmpty(req.Metadata))
	if err != nil {
		return "", fmt.Errorf("marshal point metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO memory_points (id, owner_id, conversation_id, text, source_type, metadata, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8)`,
		id,
		req.OwnerID,
		req.ConversationID,
		req.Text,
		req.SourceType,
		metadata,
		vectorLiteral(req.Vector),
		time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("save memory point: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Search(ctx context.Context, q SearchQuery) ([]Hit, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, conversation_id, text, source_type, metadata, created_at,
		        1 - (embedding <=> $1::vector) AS score
		 FROM memory_points
		 WHERE owner_id = $2
		   AND ($3 = '' OR conversation_id = $3)
		   AND ($4 = '' OR source_type = $4)
		   AND 1 - (embedding <=> $1::vector) >= $5
		 ORDER BY embedding <=> $1::vector
		 LIMIT $6`,
		vectorLiteral(q.Vector),
		q.OwnerID,
		q.ConversationID,
		q.SourceType,
		float64(q.ScoreThreshold),
		q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search memory points: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, q.Limit)
	for rows.Next() {
		var (
			h    Hit
			meta []byte
			sc   float64
		)
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.ConversationID, &h.Text, &h.SourceType, &meta, &h.CreatedAt, &sc); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		h.Score = float32(sc)
		if err := json.Unmarshal(meta, &h.Metadata); err != nil {
			return nil, fmt.Errorf("decode point metadata: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return hits, nil
}

func (s *PostgresStore) ScrollConversation(ctx context.Context, ownerID, conversationID string, limit int) ([]Point, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, conversation_id, text, source_type, metadata, created_at
		 FROM memory_points
		 WHERE owner_id = $1 AND conversation_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		ownerID,
		conversationID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("scroll conversation: %w", err)
	}
	defer rows.Close()

	points := make([]Point, 0, limit)
	for rows.Next() {
		var (
			p    Point
			meta []byte
		)
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.ConversationID, &p.Text, &p.SourceType, &meta, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scroll row: %w", err)
		}
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode point metadata: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scroll rows: %w", err)
	}
	return points, nil
}

func (s *PostgresStore) DeleteOwner(ctx context.Context, ownerID string) bool {
	if _, err := s.pool.Exec(ctx, `DELETE FROM memory_points WHERE owner_id = $1`, ownerID); err != nil {
		log.Printf("delete memory points for owner %s failed: %v", ownerID, err)
		return false
	}
	return true
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders a vector in pgvector's input syntax.
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec)*10 + 2)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
