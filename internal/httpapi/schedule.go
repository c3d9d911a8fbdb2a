package httpapi

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/laralabs/lara/internal/auth"
	"github.com/laralabs/lara/internal/schedule"
)

type schedulePostRequest struct {
	Platform    string               `json:"platform"`
	Content     schedule.PostContent `json:"content"`
	ScheduledAt time.Time            `json:"scheduledAt"`
}

type scheduleEmailRequest struct {
	Content     schedule.EmailContent `json:"content"`
	ScheduledAt time.Time             `json:"scheduledAt"`
}

func (s *Server) handleSchedulePost(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if !s.requireEntitlement(w, r, user.ID, auth.FeatureScheduling) {
		return
	}

	var req schedulePostRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	content := req.Content
	job := schedule.Job{
		OwnerID:     user.ID,
		Kind:        schedule.KindPost,
		Platform:    req.Platform,
		Post:        &content,
		ScheduledAt: req.ScheduledAt,
	}
	s.createJob(w, r, job)
}

func (s *Server) handleScheduleEmail(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if !s.requireEntitlement(w, r, user.ID, auth.FeatureScheduling) {
		return
	}

	var req scheduleEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	content := req.Content
	job := schedule.Job{
		OwnerID:     user.ID,
		Kind:        schedule.KindEmail,
		Email:       &content,
		ScheduledAt: req.ScheduledAt,
	}
	s.createJob(w, r, job)
}

// createJob validates and persists a deferred job. Validation runs first:
// an invalid job leaves no record behind.
func (s *Server) createJob(w http.ResponseWriter, r *http.Request, job schedule.Job) {
	if err := job.Validate(time.Now().UTC()); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.schedules.Create(r.Context(), job)
	if err != nil {
		log.Printf("schedule %s failed: %v", job.Kind, err)
		sendError(w, http.StatusInternalServerError, "Scheduling failed")
		return
	}

	sendResponse(w, http.StatusCreated, "Scheduled successfully", map[string]any{
		"scheduleId":  created.ID,
		"status":      created.Status,
		"scheduledAt": created.ScheduledAt,
	})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	s.listJobs(w, r, schedule.KindPost)
}

func (s *Server) handleListEmails(w http.ResponseWriter, r *http.Request) {
	s.listJobs(w, r, schedule.KindEmail)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request, kind string) {
	user := userFrom(r.Context())

	jobs, err := s.schedules.List(r.Context(), user.ID, kind, schedule.ListFilter{
		Status:   r.URL.Query().Get("status"),
		Platform: r.URL.Query().Get("platform"),
	})
	if err != nil {
		log.Printf("list scheduled %ss failed: %v", kind, err)
		sendError(w, http.StatusInternalServerError, "Could not load scheduled items")
		return
	}
	if jobs == nil {
		jobs = []schedule.Job{}
	}
	sendResponse(w, http.StatusOK, "Scheduled items retrieved", jobs)
}

func (s *Server) handleCancelPost(w http.ResponseWriter, r *http.Request) {
	s.cancelJob(w, r)
}

func (s *Server) handleCancelEmail(w http.ResponseWriter, r *http.Request) {
	s.cancelJob(w, r)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	id := chi.URLParam(r, "id")

	err := s.schedules.Cancel(r.Context(), user.ID, id)
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		sendError(w, http.StatusNotFound, "Scheduled item not found")
	case errors.Is(err, schedule.ErrNotCancellable):
		sendError(w, http.StatusConflict, "Scheduled item can no longer be cancelled")
	case err != nil:
		log.Printf("cancel scheduled job %s failed: %v", id, err)
		sendError(w, http.StatusInternalServerError, "Cancellation failed")
	default:
		sendResponse(w, http.StatusOK, "Scheduled item cancelled", map[string]string{
			"scheduleId": id,
			"status":     schedule.StatusCancelled,
		})
	}
}
