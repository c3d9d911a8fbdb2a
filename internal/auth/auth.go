package auth

import "context"

// Features gated by subscription entitlements.
const (
	FeatureAIChat     = "ai_chat"
	FeatureVoiceChat  = "voice_chat"
	FeatureScheduling = "scheduling"
)

// User is the identity resolved by the external auth service.
type User struct {
	ID        string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// Entitlement is an active subscription grant for a feature.
type Entitlement struct {
	Feature  string `json:"feature"`
	PlanType string `json:"planType"`
	Status   string `json:"status"`
}

// Verifier resolves caller identity and subscription entitlements.
// A nil result with a nil error means "checked, not granted": the token is
// invalid or the feature is not covered by an active subscription.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (*User, error)
	VerifyEntitlement(ctx context.Context, userID, feature string) (*Entitlement, error)
}
