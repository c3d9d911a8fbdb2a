package schedule

import (
	"context"
	"errors"
	"testing"
	"time"
)

func validPost(owner string, at time.Time) Job {
	return Job{
		OwnerID:     owner,
		Kind:        KindPost,
		Platform:    "twitter",
		Post:        &PostContent{Text: "hello world", Hashtags: []string{"go"}},
		ScheduledAt: at,
	}
}

func validEmail(owner string, at time.Time) Job {
	return Job{
		OwnerID: owner,
		Kind:    KindEmail,
		Email: &EmailContent{
			To:      []string{"a@example.com"},
			Subject: "weekly update",
			Body:    "hi",
		},
		ScheduledAt: at,
	}
}

func TestValidateRejectsPastScheduledAt(t *testing.T) {
	now := time.Now().UTC()
	job := validPost("owner-1", now.Add(-time.Minute))
	if err := job.Validate(now); err == nil {
		t.Fatal("expected past scheduledAt to be rejected")
	}
	job.ScheduledAt = now
	if err := job.Validate(now); err == nil {
		t.Fatal("expected scheduledAt == now to be rejected")
	}
}

func TestValidateContentRules(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Hour)

	post := validPost("owner-1", future)
	post.Platform = "myspace"
	if err := post.Validate(now); err == nil {
		t.Fatal("expected unsupported platform to be rejected")
	}

	post = validPost("owner-1", future)
	post.Post.Text = string(make([]byte, maxPostTextLen+1))
	if err := post.Validate(now); err == nil {
		t.Fatal("expected oversize post text to be rejected")
	}

	email := validEmail("owner-1", future)
	email.Email.To = nil
	if err := email.Validate(now); err == nil {
		t.Fatal("expected email without recipients to be rejected")
	}

	email = validEmail("owner-1", future)
	email.Email.Priority = "urgent"
	if err := email.Validate(now); err == nil {
		t.Fatal("expected unsupported priority to be rejected")
	}
}

func TestCancelOnlyFromScheduled(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	job, err := store.Create(ctx, validPost("owner-1", now.Add(-time.Second)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Another owner cannot see the job at all.
	if err := store.Cancel(ctx, "owner-2", job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Cancel by other owner err = %v, want ErrNotFound", err)
	}

	// Once claimed it is no longer cancellable.
	if _, err := store.ClaimDue(ctx, now, 10); err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if err := store.Cancel(ctx, "owner-1", job.ID); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("Cancel after claim err = %v, want ErrNotCancellable", err)
	}
}

func TestCancelMarksCancelled(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	job, err := store.Create(ctx, validPost("owner-1", now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Cancel(ctx, "owner-1", job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	jobs, err := store.List(ctx, "owner-1", KindPost, ListFilter{Status: StatusCancelled})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Fatalf("List(cancelled) = %+v, want the cancelled job", jobs)
	}

	// Cancelled jobs are never claimed.
	claimed, err := store.ClaimDue(ctx, now.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("claimed %d jobs, want 0", len(claimed))
	}
}

func TestClaimDueStampsAttempt(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	due, err := store.Create(ctx, validEmail("owner-1", now.Add(-time.Minute)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, validEmail("owner-1", now.Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	claimed, err := store.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d jobs, want 1 (future job must not be claimed)", len(claimed))
	}
	got := claimed[0]
	if got.ID != due.ID {
		t.Fatalf("claimed job = %s, want %s", got.ID, due.ID)
	}
	if got.Status != StatusProcessing {
		t.Fatalf("claimed status = %q, want processing", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", got.Attempts)
	}
	if got.LastAttemptAt == nil || !got.LastAttemptAt.Equal(now) {
		t.Fatalf("LastAttemptAt = %v, want %v", got.LastAttemptAt, now)
	}

	// A second poll finds nothing: the job never reverts to scheduled.
	again, err := store.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second claim returned %d jobs, want 0", len(again))
	}
}

func TestListFilters(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	future := time.Now().UTC().Add(time.Hour)

	tw := validPost("owner-1", future)
	if _, err := store.Create(ctx, tw); err != nil {
		t.Fatalf("Create: %v", err)
	}
	li := validPost("owner-1", future)
	li.Platform = "linkedin"
	if _, err := store.Create(ctx, li); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, validPost("owner-2", future)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	jobs, err := store.List(ctx, "owner-1", KindPost, ListFilter{Platform: "linkedin"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Platform != "linkedin" {
		t.Fatalf("List(linkedin) = %+v, want one linkedin post", jobs)
	}

	all, err := store.List(ctx, "owner-1", KindPost, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List() = %d jobs, want 2 (other owner excluded)", len(all))
	}
}
