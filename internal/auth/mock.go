package auth

import "context"

// MockVerifier is an offline Verifier for tests and local development.
// Tokens map to users; entitlements are granted per user+feature pair.
type MockVerifier struct {
	Users        map[string]*User
	Entitlements map[string]map[string]bool
}

func NewMockVerifier() *MockVerifier {
	return &MockVerifier{
		Users:        make(map[string]*User),
		Entitlements: make(map[string]map[string]bool),
	}
}

// Grant registers a token for a user with the given features enabled.
func (m *MockVerifier) Grant(token string, user User, features ...string) {
	m.Users[token] = &user
	grants := m.Entitlements[user.ID]
	if grants == nil {
		grants = make(map[string]bool)
		m.Entitlements[user.ID] = grants
	}
	for _, f := range features {
		grants[f] = true
	}
}

func (m *MockVerifier) VerifyToken(_ context.Context, token string) (*User, error) {
	return m.Users[token], nil
}

func (m *MockVerifier) VerifyEntitlement(_ context.Context, userID, feature string) (*Entitlement, error) {
	if m.Entitlements[userID][feature] {
		return &Entitlement{Feature: feature, PlanType: "premium", Status: "ACTIVE"}, nil
	}
	return nil, nil
}
