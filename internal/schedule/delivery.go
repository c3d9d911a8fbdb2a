package schedule

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Publisher delivers a post to its social platform and returns the
// platform-assigned id.
type Publisher interface {
	Publish(ctx context.Context, job Job) (externalID string, err error)
}

// Mailer delivers a scheduled email and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, job Job) (externalID string, err error)
}

// LogPublisher logs instead of calling a real platform API. Real delivery
// integrations slot in behind the Publisher interface.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, job Job) (string, error) {
	id := uuid.NewString()
	log.Printf("publishing post %s to %s (external id %s)", job.ID, job.Platform, id)
	return id, nil
}

// LogMailer logs instead of calling a real email provider.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, job Job) (string, error) {
	id := uuid.NewString()
	log.Printf("sending email %s to %d recipients (external id %s)", job.ID, len(job.Email.To), id)
	return id, nil
}
