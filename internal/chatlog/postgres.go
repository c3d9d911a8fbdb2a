package chatlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists chat turns in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_turns (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			user_message TEXT NOT NULL,
			ai_response TEXT NOT NULL,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			model TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_owner_created ON chat_turns (owner_id, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init chat log schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, turn Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	metadata, err := json.Marshal(turn.Metadata)
	if err != nil {
		return fmt.Errorf("marshal turn metadata: %w", err)
	}
	if turn.Metadata == nil {
		metadata = []byte("{}")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_turns (id, owner_id, conversation_id, user_message, ai_response,
			prompt_tokens, completion_tokens, total_tokens, model, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		turn.ID,
		turn.OwnerID,
		turn.ConversationID,
		turn.UserMessage,
		turn.AIResponse,
		turn.TokenUsage.PromptTokens,
		turn.TokenUsage.CompletionTokens,
		turn.TokenUsage.TotalTokens,
		turn.Model,
		metadata,
		turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append chat turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, ownerID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, conversation_id, user_message, ai_response,
			prompt_tokens, completion_tokens, total_tokens, model, metadata, created_at
		 FROM chat_turns WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`,
		ownerID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query chat turns: %w", err)
	}
	defer rows.Close()

	turns := make([]Turn, 0, limit)
	for rows.Next() {
		var (
			t    Turn
			meta []byte
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.ConversationID, &t.UserMessage, &t.AIResponse,
			&t.TokenUsage.PromptTokens, &t.TokenUsage.CompletionTokens, &t.TokenUsage.TotalTokens,
			&t.Model, &meta, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat turn row: %w", err)
		}
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode turn metadata: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat turn rows: %w", err)
	}
	return turns, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
