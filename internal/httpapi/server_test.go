package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/laralabs/lara/internal/ai"
	"github.com/laralabs/lara/internal/auth"
	"github.com/laralabs/lara/internal/chat"
	"github.com/laralabs/lara/internal/chatlog"
	"github.com/laralabs/lara/internal/config"
	"github.com/laralabs/lara/internal/memory"
	"github.com/laralabs/lara/internal/notify"
	"github.com/laralabs/lara/internal/observability"
	"github.com/laralabs/lara/internal/schedule"
	"github.com/laralabs/lara/internal/users"
)

var metricsSeq int64

const testToken = "token-1"

type testEnv struct {
	server    *httptest.Server
	verifier  *auth.MockVerifier
	provider  *ai.MockProvider
	schedules *schedule.InMemoryStore
	users     *users.InMemoryStore
}

func newTestEnv(t *testing.T, features ...string) *testEnv {
	t.Helper()

	cfg := config.Config{
		Debug:               false,
		MaxAudioUploadBytes: 1 << 20,
		BcryptCost:          4,
	}

	verifier := auth.NewMockVerifier()
	verifier.Grant(testToken, auth.User{ID: "user-1", Email: "one@example.com"}, features...)

	provider := ai.NewMockProvider(8)
	store, err := memory.NewChromemStore(8)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	turns := chatlog.NewInMemoryStore()
	metrics := observability.NewMetrics(fmt.Sprintf("httpapi_test_%d", atomic.AddInt64(&metricsSeq, 1)))
	orchestrator := chat.NewOrchestrator(store, turns, provider, metrics, time.Second)

	userStore := users.NewInMemoryStore()
	scheduleStore := schedule.NewInMemoryStore()
	notificationStore := notify.NewInMemoryStore()

	srv := New(cfg, verifier, orchestrator, userStore, turns, scheduleStore, notificationStore)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{
		server:    ts,
		verifier:  verifier,
		provider:  provider,
		schedules: scheduleStore,
		users:     userStore,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, envelope) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope from %q: %v", raw, err)
		}
	}
	return resp, env
}

func dataMap(t *testing.T, env envelope) map[string]any {
	t.Helper()
	m, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("envelope data = %T, want object", env.Data)
	}
	return m
}

func TestHealthNoAuth(t *testing.T) {
	e := newTestEnv(t)

	resp, env := e.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if env.Message != "API is running normally" {
		t.Fatalf("message = %q", env.Message)
	}
	if dataMap(t, env)["status"] != "healthy" {
		t.Fatalf("data = %+v, want status healthy", env.Data)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	e := newTestEnv(t)

	paths := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/ai/chat/text"},
		{http.MethodGet, "/api/v1/ai/chat/conversations"},
		{http.MethodDelete, "/api/v1/ai/memory"},
		{http.MethodPost, "/api/v1/schedule/post"},
		{http.MethodGet, "/api/v1/schedule/emails"},
		{http.MethodGet, "/api/v1/notifications"},
	}
	for _, p := range paths {
		resp, env := e.do(t, p.method, p.path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s %s status = %d, want 401", p.method, p.path, resp.StatusCode)
		}
		if env.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s %s envelope statusCode = %d, want 401", p.method, p.path, env.StatusCode)
		}
	}
}

func TestUnknownTokenRejected(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, http.MethodGet, "/api/v1/ai/chat/conversations", "bad-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRegisterAndDuplicateEmail(t *testing.T) {
	e := newTestEnv(t)

	payload := map[string]any{
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"email":     "ada@example.com",
		"password":  "supersecret",
	}
	resp, env := e.do(t, http.MethodPost, "/api/v1/users/register", "", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", resp.StatusCode, env.Message)
	}
	data := dataMap(t, env)
	if data["id"] == "" || data["id"] == nil {
		t.Fatal("expected a stable user id")
	}
	if data["otpSent"] != true {
		t.Fatalf("otpSent = %v, want true", data["otpSent"])
	}
	if data["status"] != users.StatusActive {
		t.Fatalf("status = %v, want ACTIVE for USER role", data["status"])
	}

	resp, _ = e.do(t, http.MethodPost, "/api/v1/users/register", "", payload)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", resp.StatusCode)
	}
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]any{
		"firstName": "Ada",
		"email":     "ada@example.com",
		"password":  "short",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short password status = %d, want 400", resp.StatusCode)
	}
}

func TestTextChatEndToEnd(t *testing.T) {
	e := newTestEnv(t, auth.FeatureAIChat)

	resp, env := e.do(t, http.MethodPost, "/api/v1/ai/chat/text", testToken, map[string]any{
		"message": "Hi",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", resp.StatusCode, env.Message)
	}
	data := dataMap(t, env)
	if data["conversationId"] == "" || data["conversationId"] == nil {
		t.Fatal("expected a minted conversationId")
	}
	if data["memoryStored"] != true {
		t.Fatalf("memoryStored = %v, want true", data["memoryStored"])
	}
	usage, ok := data["tokenUsage"].(map[string]any)
	if !ok {
		t.Fatalf("tokenUsage = %T, want object", data["tokenUsage"])
	}
	if usage["total_tokens"] != usage["prompt_tokens"].(float64)+usage["completion_tokens"].(float64) {
		t.Fatalf("tokenUsage = %+v, want total = prompt + completion", usage)
	}

	// A second fresh chat mints a different conversation.
	_, env2 := e.do(t, http.MethodPost, "/api/v1/ai/chat/text", testToken, map[string]any{"message": "Hi"})
	if dataMap(t, env2)["conversationId"] == data["conversationId"] {
		t.Fatal("two fresh conversations share an id")
	}
}

func TestTextChatRequiresEntitlement(t *testing.T) {
	e := newTestEnv(t) // no features granted

	resp, _ := e.do(t, http.MethodPost, "/api/v1/ai/chat/text", testToken, map[string]any{"message": "Hi"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestTextChatRequiresMessage(t *testing.T) {
	e := newTestEnv(t, auth.FeatureAIChat)

	resp, _ := e.do(t, http.MethodPost, "/api/v1/ai/chat/text", testToken, map[string]any{"message": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConversationsSummary(t *testing.T) {
	e := newTestEnv(t, auth.FeatureAIChat)

	_, env := e.do(t, http.MethodPost, "/api/v1/ai/chat/text", testToken, map[string]any{"message": "first message"})
	conv := dataMap(t, env)["conversationId"].(string)
	e.do(t, http.MethodPost, "/api/v1/ai/chat/text", testToken, map[string]any{
		"message":        "second message",
		"conversationId": conv,
	})

	resp, env := e.do(t, http.MethodGet, "/api/v1/ai/chat/conversations", testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	list, ok := env.Data.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("conversations = %+v, want one summary", env.Data)
	}
	summary := list[0].(map[string]any)
	if summary["conversationId"] != conv {
		t.Fatalf("conversationId = %v, want %s", summary["conversationId"], conv)
	}
	if summary["messageCount"] != float64(2) {
		t.Fatalf("messageCount = %v, want 2", summary["messageCount"])
	}
	if summary["lastMessage"] != "second message" {
		t.Fatalf("lastMessage = %v, want the newest turn", summary["lastMessage"])
	}
}

func TestVoiceChatUpload(t *testing.T) {
	e := newTestEnv(t, auth.FeatureVoiceChat)
	e.provider.Transcription = "what is on my calendar"

	resp, env := postAudio(t, e, "clip.wav", "audio/wav", []byte("riff-bytes"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", resp.StatusCode, env.Message)
	}
	data := dataMap(t, env)
	if data["transcription"] != e.provider.Transcription {
		t.Fatalf("transcription = %v, want %q", data["transcription"], e.provider.Transcription)
	}
}

func TestVoiceChatRejectsNonAudio(t *testing.T) {
	e := newTestEnv(t, auth.FeatureVoiceChat)

	resp, _ := postAudio(t, e, "notes.txt", "text/plain", []byte("hello"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSchedulePastTimeLeavesNoRecord(t *testing.T) {
	e := newTestEnv(t, auth.FeatureScheduling)

	resp, _ := e.do(t, http.MethodPost, "/api/v1/schedule/post", testToken, map[string]any{
		"platform":    "twitter",
		"content":     map[string]any{"text": "hello"},
		"scheduledAt": time.Now().UTC().Add(-time.Hour),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	_, env := e.do(t, http.MethodGet, "/api/v1/schedule/posts", testToken, nil)
	list, ok := env.Data.([]any)
	if !ok {
		t.Fatalf("posts = %T, want array", env.Data)
	}
	if len(list) != 0 {
		t.Fatalf("a rejected schedule left %d records behind", len(list))
	}
}

func TestScheduleAndCancelPost(t *testing.T) {
	e := newTestEnv(t, auth.FeatureScheduling)

	resp, env := e.do(t, http.MethodPost, "/api/v1/schedule/post", testToken, map[string]any{
		"platform":    "linkedin",
		"content":     map[string]any{"text": "launch day", "hashtags": []string{"go"}},
		"scheduledAt": time.Now().UTC().Add(time.Hour),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", resp.StatusCode, env.Message)
	}
	data := dataMap(t, env)
	if data["status"] != schedule.StatusScheduled {
		t.Fatalf("status = %v, want scheduled", data["status"])
	}
	id := data["scheduleId"].(string)

	resp, _ = e.do(t, http.MethodDelete, "/api/v1/schedule/post/"+id, testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodDelete, "/api/v1/schedule/post/no-such-id", testToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cancel unknown status = %d, want 404", resp.StatusCode)
	}
}

func TestScheduleEmailValidation(t *testing.T) {
	e := newTestEnv(t, auth.FeatureScheduling)

	resp, _ := e.do(t, http.MethodPost, "/api/v1/schedule/email", testToken, map[string]any{
		"content":     map[string]any{"subject": "no recipients", "body": "hi"},
		"scheduledAt": time.Now().UTC().Add(time.Hour),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestScheduleRequiresEntitlement(t *testing.T) {
	e := newTestEnv(t, auth.FeatureAIChat) // chat only, no scheduling

	resp, _ := e.do(t, http.MethodPost, "/api/v1/schedule/post", testToken, map[string]any{
		"platform":    "twitter",
		"content":     map[string]any{"text": "hello"},
		"scheduledAt": time.Now().UTC().Add(time.Hour),
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestDeleteMemory(t *testing.T) {
	e := newTestEnv(t, auth.FeatureAIChat)

	e.do(t, http.MethodPost, "/api/v1/ai/chat/text", testToken, map[string]any{"message": "remember me"})

	resp, env := e.do(t, http.MethodDelete, "/api/v1/ai/memory", testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if dataMap(t, env)["deleted"] != true {
		t.Fatalf("deleted = %v, want true", dataMap(t, env)["deleted"])
	}
}

func postAudio(t *testing.T, e *testEnv, filename, contentType string, payload []byte) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/v1/ai/chat/voice/upload", &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("voice request: %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope from %q: %v", raw, err)
		}
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		t.Fatalf("content type = %q, want json", resp.Header.Get("Content-Type"))
	}
	return resp, env
}
