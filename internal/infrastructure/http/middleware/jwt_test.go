package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"3tcapital/tokenbroker/internal/infrastructure/config"
	"3tcapital/tokenbroker/internal/testutil"
)

const testIssuer = "https://issuer.example.com"

func newSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// newTestAuthenticator verifies against key without fetching a JWKS.
func newTestAuthenticator(key *rsa.PrivateKey, bypass ...string) *JWTAuthenticator {
	cfg := config.AuthSettings{
		Enabled:     true,
		IssuerURI:   testIssuer,
		ClockSkew:   time.Minute,
		BypassPaths: bypass,
	}
	return newAuthenticator(cfg, testutil.NewNullLogger(), func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	})
}

func TestNewJWTAuthenticator_AuthDisabled(t *testing.T) {
	auth, err := NewJWTAuthenticator(config.AuthSettings{Enabled: false}, testutil.NewNullLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if auth.cfg.Enabled {
		t.Error("expected auth to be disabled")
	}

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/token", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	// Should not panic
	auth.Close()
}

func TestJWTAuthenticator_Middleware(t *testing.T) {
	key := newSigningKey(t)
	otherKey := newSigningKey(t)
	now := time.Now()

	valid := jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Subject:   "ops@example.com",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
	wrongIssuer := valid
	wrongIssuer.Issuer = "https://elsewhere.example.com"

	tests := []struct {
		name            string
		path            string
		header          string
		expectedStatus  int
		expectedSubject string
	}{
		{
			name:           "bypass path needs no token",
			path:           "/health",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing header",
			path:           "/v1/token",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "malformed header",
			path:           "/v1/token",
			header:         "Token abc",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "garbage token",
			path:           "/v1/token",
			header:         "Bearer invalid.token.here",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:            "valid token",
			path:            "/v1/token",
			header:          "Bearer " + signToken(t, key, valid),
			expectedStatus:  http.StatusOK,
			expectedSubject: "ops@example.com",
		},
		{
			name:           "expired token",
			path:           "/v1/token",
			header:         "Bearer " + signToken(t, key, expired),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong issuer",
			path:           "/v1/token",
			header:         "Bearer " + signToken(t, key, wrongIssuer),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "signed by another key",
			path:           "/v1/token",
			header:         "Bearer " + signToken(t, otherKey, valid),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	auth := newTestAuthenticator(key, "/health")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var subject string
			handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				subject = Subject(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if subject != tt.expectedSubject {
				t.Errorf("expected subject %q, got %q", tt.expectedSubject, subject)
			}
		})
	}
}

func TestSubject_Unauthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)

	if got := Subject(req.Context()); got != "" {
		t.Errorf("expected empty subject, got %q", got)
	}
}

func TestJWTAuthenticator_shouldBypass(t *testing.T) {
	auth := newAuthenticator(config.AuthSettings{BypassPaths: []string{"/health", "/metrics", ""}}, testutil.NewNullLogger(), nil)

	tests := []struct {
		path     string
		expected bool
	}{
		{"/health", true},
		{"/metrics", true},
		{"/v1/token", false},
		{"/health/status", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			result := auth.shouldBypass(tt.path)
			if result != tt.expected {
				t.Errorf("expected shouldBypass(%q)=%v, got %v", tt.path, tt.expected, result)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		expectedTok string
		expectedErr bool
	}{
		{name: "empty header", header: "", expectedErr: true},
		{name: "no Bearer prefix", header: "token123", expectedErr: true},
		{name: "invalid format - no space", header: "Bearertoken", expectedErr: true},
		{name: "invalid format - too many parts", header: "Bearer token extra", expectedErr: true},
		{name: "valid Bearer token", header: "Bearer token123", expectedTok: "token123"},
		{name: "valid Bearer token - case insensitive", header: "bearer token123", expectedTok: "token123"},
		{name: "valid Bearer token - mixed case", header: "BeArEr token123", expectedTok: "token123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := extractBearerToken(tt.header)

			if tt.expectedErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if token != tt.expectedTok {
				t.Errorf("expected token %q, got %q", tt.expectedTok, token)
			}
		})
	}
}
