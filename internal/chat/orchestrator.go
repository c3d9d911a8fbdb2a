package chat

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/laralabs/lara/internal/ai"
	"github.com/laralabs/lara/internal/chatlog"
	"github.com/laralabs/lara/internal/memory"
	"github.com/laralabs/lara/internal/observability"
)

const (
	searchLimit    = 5
	scoreThreshold = 0.7
	scrollLimit    = 10

	apologyText = "I'm sorry, I'm experiencing technical difficulties. Please try again later."
)

// Orchestrator runs the chat pipeline: embed, retrieve, complete, persist.
// It holds no per-request state; all mutable state lives in the stores.
//
// Failure policy, in order of appearance: embedding and retrieval degrade
// to an empty context, completion degrades to a fixed apology with zero
// token cost, and persistence failures surface only as MemoryStored=false.
// None of them fail the request.
type Orchestrator struct {
	memory      memory.Store
	turns       chatlog.Store
	provider    ai.Provider
	metrics     *observability.Metrics
	stepTimeout time.Duration
}

func NewOrchestrator(memoryStore memory.Store, turns chatlog.Store, provider ai.Provider, metrics *observability.Metrics, stepTimeout time.Duration) *Orchestrator {
	if stepTimeout <= 0 {
		stepTimeout = 30 * time.Second
	}
	return &Orchestrator{
		memory:      memoryStore,
		turns:       turns,
		provider:    provider,
		metrics:     metrics,
		stepTimeout: stepTimeout,
	}
}

// Chat processes one text turn for an already-authenticated owner.
func (o *Orchestrator) Chat(ctx context.Context, ownerID string, req Request) (Response, error) {
	start := time.Now()

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	vector := o.embed(ctx, req.Message)

	var contextText string
	if req.SaveToMemory {
		contextText = o.retrieveContext(ctx, ownerID, conversationID, vector)
	}

	completion, degraded := o.complete(ctx, ownerID, req.Message, contextText)

	memoryStored := false
	if req.SaveToMemory {
		memoryStored = o.persistTurnMemory(ctx, ownerID, conversationID, req, vector, completion.Text)
	}

	o.appendLog(ctx, chatlog.Turn{
		OwnerID:        ownerID,
		ConversationID: conversationID,
		UserMessage:    req.Message,
		AIResponse:     completion.Text,
		TokenUsage:     completion.Usage,
		Model:          completion.Model,
		Metadata:       req.Metadata,
	})

	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	o.metrics.ChatRequests.WithLabelValues(outcome).Inc()
	o.metrics.ChatLatency.Observe(float64(time.Since(start).Milliseconds()))

	return Response{
		ConversationID: conversationID,
		Message:        req.Message,
		ResponseText:   completion.Text,
		TokenUsage:     completion.Usage,
		MemoryStored:   memoryStored,
	}, nil
}

// VoiceChat transcribes the audio stream and runs the text pipeline on the
// result. The audio is spooled to a temporary file that is removed on
// every exit path.
func (o *Orchestrator) VoiceChat(ctx context.Context, ownerID string, audio io.Reader, filename string, req Request) (Response, error) {
	tmp, err := os.CreateTemp("", "lara-voice-*")
	if err != nil {
		return Response{}, fmt.Errorf("create temp audio file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, audio); err != nil {
		return Response{}, fmt.Errorf("spool audio upload: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Response{}, fmt.Errorf("rewind audio file: %w", err)
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	transcription, err := o.provider.Transcribe(stepCtx, tmp, filename)
	if err != nil {
		o.metrics.ProviderErrors.WithLabelValues("transcription", "request_failed").Inc()
		log.Printf("transcription failed: %v", err)
		return Response{}, ErrTranscriptionFailed
	}
	if strings.TrimSpace(transcription) == "" {
		return Response{}, ErrTranscriptionFailed
	}

	req.Message = transcription
	if req.Metadata == nil {
		req.Metadata = make(map[string]string)
	}
	req.Metadata["sourceType"] = "voice_upload"
	if filename != "" {
		req.Metadata["originalFilename"] = filename
	}

	resp, err := o.Chat(ctx, ownerID, req)
	if err != nil {
		return Response{}, err
	}
	resp.Transcription = transcription
	return resp, nil
}

// ForgetOwner removes all memory points for an owner (data-deletion
// requests). Best-effort, mirroring the store contract.
func (o *Orchestrator) ForgetOwner(ctx context.Context, ownerID string) bool {
	return o.memory.DeleteOwner(ctx, ownerID)
}

func (o *Orchestrator) embed(ctx context.Context, text string) []float32 {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	vector, err := o.provider.Embed(stepCtx, text)
	if err != nil {
		o.metrics.ProviderErrors.WithLabelValues("embedding", "request_failed").Inc()
		o.metrics.DegradedResponses.WithLabelValues("embedding").Inc()
		log.Printf("embedding failed, continuing without retrieval: %v", err)
		return nil
	}
	return vector
}

func (o *Orchestrator) retrieveContext(ctx context.Context, ownerID, conversationID string, vector []float32) string {
	var hits []memory.Hit
	if vector != nil {
		stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
		found, err := o.memory.Search(stepCtx, memory.SearchQuery{
			Vector:         vector,
			OwnerID:        ownerID,
			Limit:          searchLimit,
			ScoreThreshold: scoreThreshold,
			ConversationID: conversationID,
		})
		cancel()
		if err != nil {
			o.metrics.DegradedResponses.WithLabelValues("retrieval").Inc()
			log.Printf("memory search failed, continuing without hits: %v", err)
		} else {
			hits = found
		}
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	recent, err := o.memory.ScrollConversation(stepCtx, ownerID, conversationID, scrollLimit)
	cancel()
	if err != nil {
		o.metrics.DegradedResponses.WithLabelValues("retrieval").Inc()
		log.Printf("conversation scroll failed, continuing without recent turns: %v", err)
		recent = nil
	}

	return BuildContext(hits, recent)
}

func (o *Orchestrator) complete(ctx context.Context, ownerID, message, contextText string) (ai.Completion, bool) {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	completion, err := o.provider.Complete(stepCtx, message, contextText, ownerID)
	if err != nil {
		o.metrics.ProviderErrors.WithLabelValues("completion", "request_failed").Inc()
		o.metrics.DegradedResponses.WithLabelValues("completion").Inc()
		log.Printf("completion failed, serving apology fallback: %v", err)
		return ai.Completion{Text: apologyText, Model: "degraded"}, true
	}
	return completion, false
}

// persistTurnMemory writes the user message and AI response as two
// independent memory points. The writes run concurrently and are not
// transactional: a failure in one does not undo the other.
func (o *Orchestrator) persistTurnMemory(ctx context.Context, ownerID, conversationID string, req Request, userVector []float32, responseText string) bool {
	responseVector := o.embed(ctx, responseText)
	if userVector == nil || responseVector == nil {
		o.metrics.MemoryWrites.WithLabelValues("skipped").Inc()
		return false
	}

	userMeta := map[string]string{"role": "user"}
	for k, v := range req.Metadata {
		userMeta[k] = v
	}

	var g errgroup.Group
	g.Go(func() error {
		stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
		defer cancel()
		_, err := o.memory.Save(stepCtx, memory.WriteRequest{
			OwnerID:        ownerID,
			ConversationID: conversationID,
			Text:           req.Message,
			Vector:         userVector,
			SourceType:     memory.SourceUserMessage,
			Metadata:       userMeta,
		})
		return err
	})
	g.Go(func() error {
		stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
		defer cancel()
		_, err := o.memory.Save(stepCtx, memory.WriteRequest{
			OwnerID:        ownerID,
			ConversationID: conversationID,
			Text:           responseText,
			Vector:         responseVector,
			SourceType:     memory.SourceAIResponse,
			Metadata:       map[string]string{"role": "assistant"},
		})
		return err
	})

	if err := g.Wait(); err != nil {
		o.metrics.MemoryWrites.WithLabelValues("error").Inc()
		log.Printf("memory write failed: %v", err)
		return false
	}
	o.metrics.MemoryWrites.WithLabelValues("ok").Inc()
	return true
}

func (o *Orchestrator) appendLog(ctx context.Context, turn chatlog.Turn) {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	if err := o.turns.Append(stepCtx, turn); err != nil {
		o.metrics.DegradedResponses.WithLabelValues("chat_log").Inc()
		log.Printf("chat log append failed: %v", err)
	}
}
