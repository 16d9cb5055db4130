package authtoken

import (
	"testing"
	"time"
)

func TestToken_Valid(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		token    Token
		expected bool
	}{
		{
			name:     "empty token",
			token:    Empty,
			expected: false,
		},
		{
			name:     "expires in the future",
			token:    New("abc", now.Add(time.Minute)),
			expected: true,
		},
		{
			name:     "expires exactly now",
			token:    New("abc", now),
			expected: false,
		},
		{
			name:     "already expired",
			token:    New("abc", now.Add(-time.Second)),
			expected: false,
		},
		{
			name:     "one nanosecond left",
			token:    New("abc", now.Add(time.Nanosecond)),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.Valid(now); got != tt.expected {
				t.Errorf("expected Valid=%v, got %v", tt.expected, got)
			}
		})
	}
}

func TestToken_IsEmpty(t *testing.T) {
	if !Empty.IsEmpty() {
		t.Error("expected Empty to be empty")
	}

	// An empty value is the sentinel regardless of the expiry instant.
	if !New("", time.Now().Add(time.Hour)).IsEmpty() {
		t.Error("expected token without value to be empty")
	}

	if New("value", time.Time{}).IsEmpty() {
		t.Error("expected token with value not to be empty")
	}
}

func TestToken_Remaining(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	token := New("abc", now.Add(5*time.Minute))

	if got := token.Remaining(now); got != 5*time.Minute {
		t.Errorf("expected 5m remaining, got %v", got)
	}

	if got := token.Remaining(now.Add(6 * time.Minute)); got != -time.Minute {
		t.Errorf("expected -1m remaining, got %v", got)
	}
}
