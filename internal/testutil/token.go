package testutil

import (
	"fmt"
	"sync"
)

// SeqTokenGenerator mints predictable transition IDs ("t-1", "t-2", ...)
// for deterministic golden traces.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SeqTokenGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSeqTokenGenerator creates a generator with the given prefix.
// An empty prefix defaults to "t".
func NewSeqTokenGenerator(prefix string) *SeqTokenGenerator {
	if prefix == "" {
		prefix = "t"
	}
	return &SeqTokenGenerator{prefix: prefix}
}

// Generate returns the next token in sequence.
func (g *SeqTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// FixedTokenGenerator returns a predetermined token list, panicking when
// exhausted. Fail-fast catches tests that start more transitions than the
// scenario expected.
type FixedTokenGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedTokenGenerator creates a generator over the given tokens.
func NewFixedTokenGenerator(tokens ...string) *FixedTokenGenerator {
	return &FixedTokenGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedTokenGenerator: all tokens exhausted")
	}
	tok := g.tokens[g.idx]
	g.idx++
	return tok
}
