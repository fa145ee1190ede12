package testutil

import "sync"

// FixedTokenGenerator returns predetermined transaction tokens in order.
//
// Once the list is exhausted the last token repeats, so a test that only
// cares about the first session does not have to list every token.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedTokenGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedTokenGenerator creates a generator for tokens. With no tokens,
// Generate returns "test-token-default".
func NewFixedTokenGenerator(tokens ...string) *FixedTokenGenerator {
	if len(tokens) == 0 {
		tokens = []string{"test-token-default"}
	}
	return &FixedTokenGenerator{tokens: tokens}
}

// Generate returns the next token.
func (g *FixedTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	token := g.tokens[g.idx]
	if g.idx < len(g.tokens)-1 {
		g.idx++
	}
	return token
}
