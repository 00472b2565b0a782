// Package hubspot speaks the HubSpot OAuth endpoints: the authorization URL
// and the form-encoded token exchange and refresh grants.
package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the OAuth client settings for one HubSpot app.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// Scopes is space-separated, as HubSpot expects it in the scope parameter.
	Scopes   string
	AuthURL  string
	TokenURL string
	// Timeout bounds every call to the token endpoint.
	Timeout time.Duration
}

// Grant is a token pair returned by the token endpoint. RefreshToken may be
// empty on a refresh grant; the partner is allowed to omit it when the old
// refresh token stays valid.
type Grant struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Client calls the HubSpot OAuth endpoints with a bounded-timeout HTTP client.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient returns a Client for the given config. A non-positive timeout
// defaults to 10 seconds.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// AuthorizationURL returns the browser redirect target for starting the OAuth
// flow, carrying the given state parameter.
func (c *Client) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("scope", c.cfg.Scopes)
	q.Set("state", state)
	return c.cfg.AuthURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Grant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	return c.tokenGrant(ctx, form)
}

// Refresh trades a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenGrant(ctx, form)
}

func (c *Client) tokenGrant(ctx context.Context, form url.Values) (*Grant, error) {
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		// The form values carry the client secret; never include them in the error.
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		// Partner error bodies are safe to surface; they never echo the secret.
		detail := strings.TrimSpace(string(body))
		if len(detail) > 256 {
			detail = detail[:256]
		}
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, detail)
	}

	var g Grant
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if g.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	return &g, nil
}

// IsTimeout reports whether err is a network timeout or a deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
