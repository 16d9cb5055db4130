// Package httpauth obtains tokens from a remote authority over HTTP.
package httpauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"3tcapital/tokenbroker/internal/core/authtoken"
	"3tcapital/tokenbroker/internal/infrastructure/security"
)

// ErrEmptyToken is returned when the authority answers 200 without a token.
var ErrEmptyToken = errors.New("empty token in response")

// HTTPClient interface allows using both standard and traced HTTP clients.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the authority endpoint and credentials.
type Config struct {
	URL        string
	Username   string
	Password   string
	DefaultTTL time.Duration // used when the response carries no expiry
	RateLimit  float64       // requests per second; 0 disables limiting
	RateBurst  int
}

// Client implements authtoken.RefreshOperation with a single POST per call.
type Client struct {
	url        string
	username   string
	password   string
	defaultTTL time.Duration
	limiter    *rate.Limiter
	client     HTTPClient
	clock      authtoken.Clock
	log        *slog.Logger
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	ValidUntil  string `json:"valid_until"`
}

// New creates an authority client.
func New(cfg Config, client HTTPClient, clk authtoken.Clock, log *slog.Logger) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Client{
		url:        cfg.URL,
		username:   cfg.Username,
		password:   cfg.Password,
		defaultTTL: ttl,
		limiter:    rate.NewLimiter(limit, burst),
		client:     client,
		clock:      clk,
		log:        log,
	}
}

// Refresh requests a new token. The call waits for the rate limiter first and
// gives up when ctx ends while waiting.
func (c *Client) Refresh(ctx context.Context) (authtoken.Token, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return authtoken.Empty, fmt.Errorf("rate limit wait: %w", err)
	}

	jsonData, err := json.Marshal(tokenRequest{Username: c.username, Password: c.password})
	if err != nil {
		return authtoken.Empty, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return authtoken.Empty, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return authtoken.Empty, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return authtoken.Empty, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return authtoken.Empty, fmt.Errorf("authentication failed with status %d: %s",
			resp.StatusCode, security.SanitizeBody(body, 512))
	}

	token, err := c.parse(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return authtoken.Empty, err
	}

	c.log.Debug("Token obtained from authority",
		"username", c.username,
		"valid_until", token.ValidUntil,
	)
	return token, nil
}

// parse accepts a JSON token document or, for non-JSON responses, the token
// as plain text.
func (c *Client) parse(contentType string, body []byte) (authtoken.Token, error) {
	now := c.clock.Now()
	trimmed := bytes.TrimSpace(body)

	if !strings.Contains(contentType, "json") && !bytes.HasPrefix(trimmed, []byte("{")) {
		if len(trimmed) == 0 {
			return authtoken.Empty, ErrEmptyToken
		}
		return authtoken.New(string(trimmed), now.Add(c.defaultTTL)), nil
	}

	var tr tokenResponse
	if err := json.Unmarshal(trimmed, &tr); err != nil {
		return authtoken.Empty, fmt.Errorf("decode response: %w", err)
	}
	if tr.AccessToken == "" {
		return authtoken.Empty, ErrEmptyToken
	}

	switch {
	case tr.ValidUntil != "":
		validUntil, err := time.Parse(time.RFC3339, tr.ValidUntil)
		if err != nil {
			return authtoken.Empty, fmt.Errorf("parse valid_until: %w", err)
		}
		return authtoken.New(tr.AccessToken, validUntil), nil
	case tr.ExpiresIn > 0:
		return authtoken.New(tr.AccessToken, now.Add(time.Duration(tr.ExpiresIn)*time.Second)), nil
	default:
		return authtoken.New(tr.AccessToken, now.Add(c.defaultTTL)), nil
	}
}

var _ authtoken.RefreshOperation = (*Client)(nil)
