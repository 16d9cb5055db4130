package authtoken

import "time"

// Token is an opaque credential together with the instant it stops being valid.
// Tokens are values: a refreshed token is a new Token, never a mutated one.
type Token struct {
	Value      string
	ValidUntil time.Time
}

// Empty is the sentinel stored in the cache when no token is held.
var Empty = Token{}

// New builds a token valid until the given instant.
func New(value string, validUntil time.Time) Token {
	return Token{Value: value, ValidUntil: validUntil}
}

// IsEmpty reports whether t is the Empty sentinel.
func (t Token) IsEmpty() bool {
	return t.Value == ""
}

// Valid reports whether the token can still be used at now.
// A token is invalid at exactly its ValidUntil instant.
func (t Token) Valid(now time.Time) bool {
	if t.IsEmpty() {
		return false
	}
	return now.Before(t.ValidUntil)
}

// Remaining returns how long the token stays valid after now (negative once expired).
func (t Token) Remaining(now time.Time) time.Duration {
	return t.ValidUntil.Sub(now)
}
