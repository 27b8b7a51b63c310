package testutil

import (
	"fmt"
	"sync"
)

// FixedTokenGenerator returns the same session token on every call.
//
// Scenario runs use it so firing ids, and with them golden files, are
// byte-identical across runs.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a generator for token.
//
// The token is normally taken from the scenario YAML:
//
//	session: "test-session-0001"
//
// If token is empty, Generate returns "test-session-default".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-session-default"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}

// SequentialTokenGenerator returns prefix-1, prefix-2, ... for tests that
// open several sessions against one journal.
type SequentialTokenGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialTokenGenerator creates a generator numbering from 1.
func NewSequentialTokenGenerator(prefix string) *SequentialTokenGenerator {
	return &SequentialTokenGenerator{prefix: prefix}
}

// Generate returns the next token in the sequence.
func (g *SequentialTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
