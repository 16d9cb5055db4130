package httpauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"3tcapital/tokenbroker/internal/infrastructure/clock"
	"3tcapital/tokenbroker/internal/testutil"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(url string, client HTTPClient) *Client {
	return New(Config{
		URL:        url,
		Username:   "testuser",
		Password:   "testpass",
		DefaultTTL: 30 * time.Minute,
	}, client, clock.NewManual(now), testutil.NewNullLogger())
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{URL: "https://auth.example.com/token"}, &http.Client{}, clock.NewManual(now), testutil.NewNullLogger())

	if c.defaultTTL != time.Hour {
		t.Errorf("expected default TTL of 1h, got %v", c.defaultTTL)
	}
	if c.limiter.Burst() != 1 {
		t.Errorf("expected burst 1, got %d", c.limiter.Burst())
	}
}

func TestClient_Refresh_SendsCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/oauth/token" {
			t.Errorf("expected path /oauth/token, got %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}

		var reqBody map[string]string
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if reqBody["username"] != "testuser" || reqBody["password"] != "testpass" {
			t.Errorf("unexpected credentials %v", reqBody)
		}

		jsonHandler(http.StatusOK, `{"access_token":"abc","expires_in":300}`)(w, r)
	}))
	defer server.Close()

	token, err := newTestClient(server.URL+"/oauth/token", server.Client()).Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if token.Value != "abc" {
		t.Errorf("expected token 'abc', got %q", token.Value)
	}
}

func TestClient_Refresh_Expiry(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		expected    time.Time
	}{
		{
			name:        "valid_until wins over expires_in",
			contentType: "application/json",
			body:        `{"access_token":"abc","expires_in":300,"valid_until":"2024-03-01T13:00:00Z"}`,
			expected:    time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC),
		},
		{
			name:        "expires_in relative to clock",
			contentType: "application/json",
			body:        `{"access_token":"abc","expires_in":300}`,
			expected:    now.Add(5 * time.Minute),
		},
		{
			name:        "default TTL without expiry",
			contentType: "application/json",
			body:        `{"access_token":"abc"}`,
			expected:    now.Add(30 * time.Minute),
		},
		{
			name:        "plain text token uses default TTL",
			contentType: "text/plain",
			body:        "  abc\n",
			expected:    now.Add(30 * time.Minute),
		},
		{
			name:        "JSON body without JSON content type",
			contentType: "text/plain",
			body:        `{"access_token":"abc","expires_in":60}`,
			expected:    now.Add(time.Minute),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			token, err := newTestClient(server.URL, server.Client()).Refresh(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if token.Value != "abc" {
				t.Errorf("expected token 'abc', got %q", token.Value)
			}
			if !token.ValidUntil.Equal(tt.expected) {
				t.Errorf("expected valid until %v, got %v", tt.expected, token.ValidUntil)
			}
		})
	}
}

func TestClient_Refresh_Errors(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		expectedErr error
		contains    string
	}{
		{
			name:     "non-200 status",
			handler:  jsonHandler(http.StatusUnauthorized, `{"error":"invalid_grant"}`),
			contains: "status 401",
		},
		{
			name:        "empty JSON token",
			handler:     jsonHandler(http.StatusOK, `{"access_token":"","expires_in":300}`),
			expectedErr: ErrEmptyToken,
		},
		{
			name: "whitespace only plain text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				w.Write([]byte("   \n\t  "))
			},
			expectedErr: ErrEmptyToken,
		},
		{
			name:     "malformed JSON",
			handler:  jsonHandler(http.StatusOK, `{"access_token":`),
			contains: "decode response",
		},
		{
			name:     "malformed valid_until",
			handler:  jsonHandler(http.StatusOK, `{"access_token":"abc","valid_until":"tomorrow"}`),
			contains: "parse valid_until",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			token, err := newTestClient(server.URL, server.Client()).Refresh(context.Background())
			if err == nil {
				t.Fatalf("expected error, got token %+v", token)
			}
			if !token.IsEmpty() {
				t.Errorf("expected empty token on error, got %+v", token)
			}
			if tt.expectedErr != nil && !errors.Is(err, tt.expectedErr) {
				t.Errorf("expected %v, got %v", tt.expectedErr, err)
			}
			if tt.contains != "" && !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("expected error containing %q, got %v", tt.contains, err)
			}
		})
	}
}

func TestClient_Refresh_ErrorBodyIsSanitized(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusBadRequest, `{"error":"bad","password":"testpass"}`))
	defer server.Close()

	_, err := newTestClient(server.URL, server.Client()).Refresh(context.Background())
	if err == nil {
		t.Fatal("expected error for 400 status")
	}
	if strings.Contains(err.Error(), "testpass") {
		t.Errorf("credential leaked into error: %v", err)
	}
}

func TestClient_Refresh_RateLimited(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		jsonHandler(http.StatusOK, `{"access_token":"abc"}`)(w, r)
	}))
	defer server.Close()

	c := New(Config{URL: server.URL, RateLimit: 0.001, RateBurst: 1}, server.Client(), clock.NewManual(now), testutil.NewNullLogger())

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The single burst token is spent; the next wait would exceed the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.Refresh(ctx); err == nil {
		t.Fatal("expected rate limit error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call to reach the authority, got %d", calls)
	}
}

func TestClient_Refresh_CancelledContext(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusOK, `{"access_token":"abc"}`))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL, server.Client()).Refresh(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
