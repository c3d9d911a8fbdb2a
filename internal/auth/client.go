package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client verifies bearer tokens and subscriptions against the external
// auth service over HTTP.
type Client struct {
	verifyURL       string
	subscriptionURL string
	client          *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		verifyURL:       base + "/auth/verify",
		subscriptionURL: base + "/subscriptions/verify",
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// envelope mirrors the auth service's response wrapper.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func (c *Client) VerifyToken(ctx context.Context, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth service request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, nil
	}

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if env.StatusCode != http.StatusOK || len(env.Data) == 0 {
		return nil, nil
	}

	var user User
	if err := json.Unmarshal(env.Data, &user); err != nil {
		return nil, fmt.Errorf("decode verify payload: %w", err)
	}
	if strings.TrimSpace(user.ID) == "" {
		return nil, nil
	}
	return &user, nil
}

func (c *Client) VerifyEntitlement(ctx context.Context, userID, feature string) (*Entitlement, error) {
	payload, err := json.Marshal(map[string]string{
		"userId":  userID,
		"feature": feature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal entitlement request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.subscriptionURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create entitlement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subscription service request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, nil
	}

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode entitlement response: %w", err)
	}
	if env.StatusCode != http.StatusOK || len(env.Data) == 0 {
		return nil, nil
	}

	var ent Entitlement
	if err := json.Unmarshal(env.Data, &ent); err != nil {
		return nil, fmt.Errorf("decode entitlement payload: %w", err)
	}
	if ent.Feature == "" {
		ent.Feature = feature
	}
	return &ent, nil
}
