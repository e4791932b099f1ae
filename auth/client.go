package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AuthError marks an unrecoverable credential failure (invalid or revoked
// refresh token). The ledger deactivates the tenant when it sees one;
// anything else is transient and retried on the next sweep.
type AuthError struct {
	Status  int
	Message string
}

// Error implements the error interface
func (e *AuthError) Error() string {
	return fmt.Sprintf("oauth refresh rejected (status %d): %s", e.Status, e.Message)
}

// TokenData is one refreshed credential pair
type TokenData struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Client performs the OAuth refresh-token exchange against the Salla
// accounts service.
type Client struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time
}

// NewClient creates an OAuth client
func NewClient(tokenURL, clientID, clientSecret string) *Client {
	return &Client{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Refresh exchanges a refresh token for a new credential pair.
// 4xx responses return an *AuthError; network failures and 5xx responses
// return plain errors the caller treats as transient.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenData, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read refresh response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, &AuthError{Status: resp.StatusCode, Message: oauthErrorMessage(raw)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token refresh returned status %d", resp.StatusCode)
	}

	var parsed refreshResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("token refresh returned empty access token")
	}

	// Salla defaults to 14-day tokens when expires_in is omitted
	expiresIn := parsed.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 14 * 24 * 3600
	}

	data := &TokenData{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    c.now().UTC().Add(time.Duration(expiresIn) * time.Second),
	}
	// Some providers do not rotate the refresh token; keep the old one then
	if data.RefreshToken == "" {
		data.RefreshToken = refreshToken
	}
	return data, nil
}

func oauthErrorMessage(raw []byte) string {
	var parsed struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != "" {
		if parsed.ErrorDescription != "" {
			return parsed.Error + ": " + parsed.ErrorDescription
		}
		return parsed.Error
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return string(raw)
}
