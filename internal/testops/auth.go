package testops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	tokenEndpoint = "/api/uaa/oauth/token"
	// Refresh the JWT five minutes before it actually expires.
	expiryMargin = 5 * time.Minute
)

// AuthManager exchanges a long-lived API token for a short-lived JWT, caches
// it, and refreshes it before expiry. Safe for concurrent use.
type AuthManager struct {
	endpoint string
	apiToken string
	client   *http.Client

	mu        sync.Mutex
	jwt       string
	expiresAt time.Time
}

// NewAuthManager creates an AuthManager for the given server endpoint.
func NewAuthManager(endpoint, apiToken string, timeout time.Duration) *AuthManager {
	return &AuthManager{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiToken: apiToken,
		client:   &http.Client{Timeout: timeout},
	}
}

// AuthHeader returns a Bearer Authorization header value with a valid JWT,
// exchanging the API token first if the cached JWT is missing or stale.
func (m *AuthManager) AuthHeader(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.jwt == "" || time.Now().After(m.expiresAt) {
		if err := m.exchangeLocked(ctx); err != nil {
			return "", err
		}
	}
	return "Bearer " + m.jwt, nil
}

// Invalidate drops the cached JWT so the next AuthHeader call re-exchanges.
// Called after a 401 response.
func (m *AuthManager) Invalidate() {
	m.mu.Lock()
	m.jwt = ""
	m.mu.Unlock()
}

func (m *AuthManager) exchangeLocked(ctx context.Context) error {
	form := url.Values{
		"grant_type": {"apitoken"},
		"scope":      {"openid"},
		"token":      {m.apiToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.endpoint+tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: token exchange: %v", ErrAuthentication, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: token exchange returned HTTP %d", ErrAuthentication, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("%w: decoding token response: %v", ErrAuthentication, err)
	}
	if payload.AccessToken == "" {
		return fmt.Errorf("%w: token response missing access_token", ErrAuthentication)
	}

	expiresIn := time.Duration(payload.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	m.jwt = payload.AccessToken
	m.expiresAt = time.Now().Add(expiresIn - expiryMargin)
	return nil
}
