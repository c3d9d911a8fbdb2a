package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVerifyTokenValid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/verify" {
			t.Fatalf("path = %q, want /auth/verify", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer good-token" {
			t.Fatalf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"statusCode": 200,
			"message":    "ok",
			"data": map[string]any{
				"userId": "user-1",
				"email":  "user@example.com",
			},
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 5*time.Second)
	user, err := client.VerifyToken(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if user == nil || user.ID != "user-1" {
		t.Fatalf("VerifyToken() user = %+v, want user-1", user)
	}
}

func TestVerifyTokenRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 5*time.Second)
	user, err := client.VerifyToken(context.Background(), "bad-token")
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if user != nil {
		t.Fatalf("VerifyToken() user = %+v, want nil", user)
	}
}

func TestVerifyTokenEmpty(t *testing.T) {
	client := NewClient("http://localhost:0", time.Second)
	user, err := client.VerifyToken(context.Background(), "   ")
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if user != nil {
		t.Fatalf("VerifyToken() user = %+v, want nil for empty token", user)
	}
}

func TestVerifyEntitlement(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subscriptions/verify" {
			t.Fatalf("path = %q, want /subscriptions/verify", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["feature"] != "ai_chat" || body["userId"] != "user-1" {
			t.Fatalf("body = %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"statusCode": 200,
			"message":    "ok",
			"data": map[string]any{
				"planType": "premium",
				"status":   "ACTIVE",
			},
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 5*time.Second)
	ent, err := client.VerifyEntitlement(context.Background(), "user-1", FeatureAIChat)
	if err != nil {
		t.Fatalf("VerifyEntitlement() error = %v", err)
	}
	if ent == nil || ent.PlanType != "premium" || ent.Feature != FeatureAIChat {
		t.Fatalf("VerifyEntitlement() = %+v", ent)
	}
}

func TestVerifyEntitlementDenied(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"statusCode": 403,
			"message":    "no subscription",
			"data":       nil,
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 5*time.Second)
	ent, err := client.VerifyEntitlement(context.Background(), "user-1", FeatureScheduling)
	if err != nil {
		t.Fatalf("VerifyEntitlement() error = %v", err)
	}
	if ent != nil {
		t.Fatalf("VerifyEntitlement() = %+v, want nil", ent)
	}
}

func TestCachedVerifierCachesPositiveVerdicts(t *testing.T) {
	mock := NewMockVerifier()
	mock.Grant("tok", User{ID: "user-1"}, FeatureAIChat)

	cached, err := NewCachedVerifier(countingVerifier{mock, new(int)}, time.Minute)
	if err != nil {
		t.Fatalf("NewCachedVerifier() error = %v", err)
	}
	defer cached.Close()

	ent, err := cached.VerifyEntitlement(context.Background(), "user-1", FeatureAIChat)
	if err != nil || ent == nil {
		t.Fatalf("first VerifyEntitlement() = %+v, %v", ent, err)
	}
	// Ristretto applies writes asynchronously.
	cached.cache.Wait()

	if cachedEnt, ok := cached.cache.Get("user-1\x00" + FeatureAIChat); !ok || cachedEnt == nil {
		t.Fatalf("entitlement verdict was not cached")
	}
}

type countingVerifier struct {
	Verifier
	calls *int
}

func (c countingVerifier) VerifyEntitlement(ctx context.Context, userID, feature string) (*Entitlement, error) {
	*c.calls++
	return c.Verifier.VerifyEntitlement(ctx, userID, feature)
}
