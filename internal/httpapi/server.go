package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/laralabs/lara/internal/auth"
	"github.com/laralabs/lara/internal/chat"
	"github.com/laralabs/lara/internal/chatlog"
	"github.com/laralabs/lara/internal/config"
	"github.com/laralabs/lara/internal/notify"
	"github.com/laralabs/lara/internal/observability"
	"github.com/laralabs/lara/internal/schedule"
	"github.com/laralabs/lara/internal/users"
)

type Server struct {
	cfg           config.Config
	verifier      auth.Verifier
	orchestrator  *chat.Orchestrator
	users         users.Store
	turns         chatlog.Store
	schedules     schedule.Store
	notifications notify.Store
}

func New(cfg config.Config, verifier auth.Verifier, orchestrator *chat.Orchestrator,
	userStore users.Store, turns chatlog.Store, schedules schedule.Store, notifications notify.Store) *Server {
	return &Server{
		cfg:           cfg,
		verifier:      verifier,
		orchestrator:  orchestrator,
		users:         userStore,
		turns:         turns,
		schedules:     schedules,
		notifications: notifications,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverPanics)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		sendResponse(w, http.StatusOK, "Lara Assistant API", map[string]string{"version": "v1"})
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		sendResponse(w, http.StatusOK, "API is running normally", map[string]string{"status": "healthy"})
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/v1/users/register", s.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/api/v1/ai/chat/text", s.handleTextChat)
		r.Post("/api/v1/ai/chat/voice/upload", s.handleVoiceChat)
		r.Get("/api/v1/ai/chat/conversations", s.handleListConversations)
		r.Delete("/api/v1/ai/memory", s.handleDeleteMemory)

		r.Post("/api/v1/schedule/post", s.handleSchedulePost)
		r.Post("/api/v1/schedule/email", s.handleScheduleEmail)
		r.Get("/api/v1/schedule/posts", s.handleListPosts)
		r.Get("/api/v1/schedule/emails", s.handleListEmails)
		r.Delete("/api/v1/schedule/post/{id}", s.handleCancelPost)
		r.Delete("/api/v1/schedule/email/{id}", s.handleCancelEmail)

		r.Get("/api/v1/notifications", s.handleListNotifications)
	})

	return r
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	notes, err := s.notifications.ListByUser(r.Context(), user.ID, 50)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Could not load notifications")
		return
	}
	if notes == nil {
		notes = []notify.Notification{}
	}
	sendResponse(w, http.StatusOK, "Notifications retrieved", notes)
}
