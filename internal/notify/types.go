package notify

import (
	"context"
	"time"
)

// Notification severities.
const (
	TypeInfo    = "info"
	TypeWarning = "warning"
	TypeError   = "error"
	TypeSuccess = "success"
)

// Notification is a per-user message about something the system did on the
// user's behalf, e.g. a scheduled post going out or failing.
type Notification struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	Type              string    `json:"type"`
	Category          string    `json:"category,omitempty"`
	RelatedEntityType string    `json:"relatedEntityType,omitempty"`
	RelatedEntityID   string    `json:"relatedEntityId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Store persists notifications.
type Store interface {
	Insert(ctx context.Context, n Notification) (Notification, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error)
	Close() error
}
