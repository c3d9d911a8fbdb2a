package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/laralabs/lara/internal/notify"
	"github.com/laralabs/lara/internal/observability"
)

const claimBatchSize = 10

// Dispatcher polls for due jobs and delivers them. Each poll claims a
// batch (moving the jobs to processing and counting the attempt before
// any external call), runs delivery, records the terminal status and
// writes a per-user notification. Failed jobs stay failed; there is no
// automatic retry.
type Dispatcher struct {
	store         Store
	notifications notify.Store
	publisher     Publisher
	mailer        Mailer
	metrics       *observability.Metrics
}

func NewDispatcher(store Store, notifications notify.Store, publisher Publisher, mailer Mailer, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		store:         store,
		notifications: notifications,
		publisher:     publisher,
		mailer:        mailer,
		metrics:       metrics,
	}
}

// Start launches the polling loop. It stops when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := d.RunOnce(ctx, time.Now().UTC()); err != nil {
					log.Printf("dispatch poll failed: %v", err)
				}
			}
		}
	}()
}

// RunOnce claims and delivers one batch of due jobs. It returns the number
// of jobs processed.
func (d *Dispatcher) RunOnce(ctx context.Context, now time.Time) (int, error) {
	jobs, err := d.store.ClaimDue(ctx, now, claimBatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due jobs: %w", err)
	}
	for _, job := range jobs {
		d.deliver(ctx, job, now)
	}
	return len(jobs), nil
}

func (d *Dispatcher) deliver(ctx context.Context, job Job, now time.Time) {
	var (
		externalID string
		err        error
	)
	switch job.Kind {
	case KindEmail:
		externalID, err = d.mailer.Send(ctx, job)
	default:
		externalID, err = d.publisher.Publish(ctx, job)
	}

	if err != nil {
		if markErr := d.store.MarkResult(ctx, job.ID, StatusFailed, err.Error(), "", now); markErr != nil {
			log.Printf("mark job %s failed: %v", job.ID, markErr)
		}
		d.metrics.DispatchJobs.WithLabelValues(job.Kind, "failed").Inc()
		log.Printf("delivery of %s job %s failed: %v", job.Kind, job.ID, err)
		d.notifyOutcome(ctx, job, false, err)
		return
	}

	if markErr := d.store.MarkResult(ctx, job.ID, job.SuccessStatus(), "", externalID, now); markErr != nil {
		log.Printf("mark job %s delivered: %v", job.ID, markErr)
	}
	d.metrics.DispatchJobs.WithLabelValues(job.Kind, "ok").Inc()
	d.notifyOutcome(ctx, job, true, nil)
}

func (d *Dispatcher) notifyOutcome(ctx context.Context, job Job, delivered bool, deliveryErr error) {
	n := notify.Notification{
		UserID:            job.OwnerID,
		Category:          "scheduling",
		RelatedEntityType: "scheduled_" + job.Kind,
		RelatedEntityID:   job.ID,
	}
	switch {
	case delivered && job.Kind == KindEmail:
		n.Title = "Email sent"
		n.Message = fmt.Sprintf("Your scheduled email %q was sent.", job.Email.Subject)
		n.Type = notify.TypeSuccess
	case delivered:
		n.Title = "Post published"
		n.Message = fmt.Sprintf("Your scheduled post was published to %s.", job.Platform)
		n.Type = notify.TypeSuccess
	case job.Kind == KindEmail:
		n.Title = "Email delivery failed"
		n.Message = fmt.Sprintf("Your scheduled email could not be sent: %v", deliveryErr)
		n.Type = notify.TypeError
	default:
		n.Title = "Post publishing failed"
		n.Message = fmt.Sprintf("Your scheduled post to %s could not be published: %v", job.Platform, deliveryErr)
		n.Type = notify.TypeError
	}

	if _, err := d.notifications.Insert(ctx, n); err != nil {
		log.Printf("write notification for job %s failed: %v", job.ID, err)
	}
}
