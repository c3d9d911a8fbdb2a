package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KindPost  = "post"
	KindEmail = "email"
)

// Job status lifecycle: scheduled → processing → {published|sent|failed},
// plus scheduled → cancelled on explicit caller request. A job never
// returns to scheduled once claimed.
const (
	StatusScheduled  = "scheduled"
	StatusProcessing = "processing"
	StatusPublished  = "published"
	StatusSent       = "sent"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

const maxPostTextLen = 2000
const maxSubjectLen = 200

var validPlatforms = map[string]bool{
	"twitter":   true,
	"facebook":  true,
	"instagram": true,
	"linkedin":  true,
	"tiktok":    true,
}

var validPriorities = map[string]bool{
	"low":    true,
	"normal": true,
	"high":   true,
}

var (
	// ErrNotFound covers both unknown ids and jobs owned by someone else;
	// callers cannot distinguish the two.
	ErrNotFound = errors.New("scheduled job not found")

	// ErrNotCancellable is returned when the job has already left the
	// scheduled state.
	ErrNotCancellable = errors.New("job is no longer cancellable")
)

// PostContent is the payload of a scheduled social media post.
type PostContent struct {
	Text      string   `json:"text"`
	ImageURLs []string `json:"imageUrls,omitempty"`
	VideoURLs []string `json:"videoUrls,omitempty"`
	Hashtags  []string `json:"hashtags,omitempty"`
	Mentions  []string `json:"mentions,omitempty"`
}

// EmailContent is the payload of a scheduled email.
type EmailContent struct {
	To       []string `json:"to"`
	CC       []string `json:"cc,omitempty"`
	BCC      []string `json:"bcc,omitempty"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	Priority string   `json:"priority,omitempty"`
}

// Job is one deferred delivery: a post or an email to be sent at a future
// instant. Exactly one of Post/Email is set, matching Kind.
type Job struct {
	ID                string        `json:"id"`
	OwnerID           string        `json:"ownerId"`
	Kind              string        `json:"kind"`
	Platform          string        `json:"platform,omitempty"`
	Post              *PostContent  `json:"post,omitempty"`
	Email             *EmailContent `json:"email,omitempty"`
	Status            string        `json:"status"`
	ScheduledAt       time.Time     `json:"scheduledAt"`
	Attempts          int           `json:"attempts"`
	LastAttemptAt     *time.Time    `json:"lastAttemptAt,omitempty"`
	ErrorMessage      string        `json:"errorMessage,omitempty"`
	ExternalServiceID string        `json:"externalServiceId,omitempty"`
	CompletedAt       *time.Time    `json:"completedAt,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// SuccessStatus is the terminal status delivery of this job's kind reaches.
func (j Job) SuccessStatus() string {
	if j.Kind == KindEmail {
		return StatusSent
	}
	return StatusPublished
}

// Validate checks the payload and the scheduling instant. It runs before
// any persistence: an invalid job must never leave a record behind.
func (j Job) Validate(now time.Time) error {
	if !j.ScheduledAt.After(now) {
		return fmt.Errorf("scheduledAt must be in the future")
	}

	switch j.Kind {
	case KindPost:
		if j.Post == nil {
			return fmt.Errorf("post content is required")
		}
		if !validPlatforms[j.Platform] {
			return fmt.Errorf("unsupported platform %q", j.Platform)
		}
		if strings.TrimSpace(j.Post.Text) == "" {
			return fmt.Errorf("post text is required")
		}
		if len(j.Post.Text) > maxPostTextLen {
			return fmt.Errorf("post text exceeds %d characters", maxPostTextLen)
		}
	case KindEmail:
		if j.Email == nil {
			return fmt.Errorf("email content is required")
		}
		if len(j.Email.To) == 0 {
			return fmt.Errorf("at least one recipient is required")
		}
		if strings.TrimSpace(j.Email.Subject) == "" {
			return fmt.Errorf("email subject is required")
		}
		if len(j.Email.Subject) > maxSubjectLen {
			return fmt.Errorf("email subject exceeds %d characters", maxSubjectLen)
		}
		if j.Email.Priority != "" && !validPriorities[j.Email.Priority] {
			return fmt.Errorf("unsupported priority %q", j.Email.Priority)
		}
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	return nil
}

// ListFilter narrows List results. Empty fields match everything.
type ListFilter struct {
	Status   string
	Platform string
}

// Store persists deferred jobs.
//
// ClaimDue is the dispatcher's claim step: it atomically moves due
// scheduled jobs to processing, incrementing Attempts and stamping
// LastAttemptAt, and returns only the jobs this caller claimed. Two
// concurrent dispatchers never claim the same job.
type Store interface {
	Create(ctx context.Context, job Job) (Job, error)
	List(ctx context.Context, ownerID, kind string, filter ListFilter) ([]Job, error)
	Cancel(ctx context.Context, ownerID, id string) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	MarkResult(ctx context.Context, id, status, errorMessage, externalServiceID string, completedAt time.Time) error
	Close() error
}
