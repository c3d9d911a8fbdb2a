package memory

import (
	"context"
	"fmt"
	"strings"
)

// NewStore creates the configured vector store backend. "auto" picks
// postgres when a database URL is configured, otherwise the embedded
// chromem store.
func NewStore(ctx context.Context, backend, databaseURL string, dim int) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "postgres":
		return NewPostgresStore(ctx, databaseURL, dim)
	case "chromem":
		return NewChromemStore(dim)
	case "", "auto":
		if strings.TrimSpace(databaseURL) != "" {
			return NewPostgresStore(ctx, databaseURL, dim)
		}
		return NewChromemStore(dim)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", backend)
	}
}
