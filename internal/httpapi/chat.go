package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/laralabs/lara/internal/auth"
	"github.com/laralabs/lara/internal/chat"
	"github.com/laralabs/lara/internal/chatlog"
)

type textChatRequest struct {
	Message        string            `json:"message"`
	ConversationID string            `json:"conversationId"`
	Metadata       map[string]string `json:"metadata"`
	// Memory defaults to on; the client opts out explicitly.
	SaveToMemory *bool `json:"saveToMemory"`
}

func (s *Server) handleTextChat(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if !s.requireEntitlement(w, r, user.ID, auth.FeatureAIChat) {
		return
	}

	var req textChatRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		sendError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp, err := s.orchestrator.Chat(r.Context(), user.ID, chat.Request{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		Metadata:       req.Metadata,
		SaveToMemory:   req.SaveToMemory == nil || *req.SaveToMemory,
	})
	if err != nil {
		log.Printf("chat orchestration failed: %v", err)
		sendError(w, http.StatusInternalServerError, "Chat processing failed")
		return
	}

	sendResponse(w, http.StatusOK, "Chat processed successfully", resp)
}

func (s *Server) handleVoiceChat(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if !s.requireEntitlement(w, r, user.ID, auth.FeatureVoiceChat) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxAudioUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxAudioUploadBytes); err != nil {
		sendError(w, http.StatusBadRequest, "Audio upload is missing, malformed or too large")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		sendError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "audio/") {
		sendError(w, http.StatusBadRequest, "audio file must have an audio/* content type")
		return
	}
	if header.Size > s.cfg.MaxAudioUploadBytes {
		sendError(w, http.StatusBadRequest, "audio file exceeds the upload size limit")
		return
	}

	saveToMemory := true
	if v := r.FormValue("saveToMemory"); v != "" {
		saveToMemory = v != "false" && v != "0"
	}

	resp, err := s.orchestrator.VoiceChat(r.Context(), user.ID, file, header.Filename, chat.Request{
		ConversationID: r.FormValue("conversationId"),
		SaveToMemory:   saveToMemory,
	})
	if errors.Is(err, chat.ErrTranscriptionFailed) {
		sendError(w, http.StatusUnprocessableEntity, "Could not transcribe the audio")
		return
	}
	if err != nil {
		log.Printf("voice chat failed: %v", err)
		sendError(w, http.StatusInternalServerError, "Voice chat processing failed")
		return
	}

	sendResponse(w, http.StatusOK, "Voice chat processed successfully", resp)
}

// conversationSummary aggregates the turn log per conversation.
type conversationSummary struct {
	ConversationID string    `json:"conversationId"`
	LastMessage    string    `json:"lastMessage"`
	LastResponse   string    `json:"lastResponse"`
	LastActivity   time.Time `json:"lastActivity"`
	MessageCount   int       `json:"messageCount"`
	TotalTokens    int       `json:"totalTokens"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	turns, err := s.turns.ListRecent(r.Context(), user.ID, 200)
	if err != nil {
		log.Printf("list conversations failed: %v", err)
		sendError(w, http.StatusInternalServerError, "Could not load conversations")
		return
	}

	summaries := summarizeConversations(turns)
	sendResponse(w, http.StatusOK, "Conversations retrieved", summaries)
}

// summarizeConversations folds newest-first turns into one summary per
// conversation, ordered by most recent activity.
func summarizeConversations(turns []chatlog.Turn) []conversationSummary {
	index := make(map[string]int)
	summaries := []conversationSummary{}

	for _, t := range turns {
		i, seen := index[t.ConversationID]
		if !seen {
			index[t.ConversationID] = len(summaries)
			summaries = append(summaries, conversationSummary{
				ConversationID: t.ConversationID,
				LastMessage:    t.UserMessage,
				LastResponse:   t.AIResponse,
				LastActivity:   t.CreatedAt,
			})
			i = len(summaries) - 1
		}
		summaries[i].MessageCount++
		summaries[i].TotalTokens += t.TokenUsage.TotalTokens
	}
	return summaries
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	deleted := s.orchestrator.ForgetOwner(r.Context(), user.ID)
	sendResponse(w, http.StatusOK, "Memory deletion processed", map[string]bool{"deleted": deleted})
}

// requireEntitlement writes a 403 and returns false when the feature is
// not covered by an active subscription.
func (s *Server) requireEntitlement(w http.ResponseWriter, r *http.Request, userID, feature string) bool {
	ent, err := s.verifier.VerifyEntitlement(r.Context(), userID, feature)
	if err != nil {
		log.Printf("entitlement check for %s failed: %v", feature, err)
		sendError(w, http.StatusForbidden, "Subscription verification failed")
		return false
	}
	if ent == nil {
		sendError(w, http.StatusForbidden, "An active subscription is required for this feature")
		return false
	}
	return true
}
