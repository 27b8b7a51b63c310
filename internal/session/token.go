package session

import "github.com/google/uuid"

// TokenGenerator generates session tokens.
// Implemented by UUIDv7Generator, StaticToken and, in tests,
// testutil.FixedTokenGenerator.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session tokens, so journal
// listings sort by creation time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// StaticToken always returns the same token. It lets a new session append
// to a journaled one.
type StaticToken string

// Generate returns the token itself.
func (t StaticToken) Generate() string {
	return string(t)
}
