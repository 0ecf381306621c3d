package engine

import (
	"sync"

	"github.com/google/uuid"
)

// KeyGenerator produces document keys for inserts that do not carry one.
type KeyGenerator interface {
	Generate(docType string) string
}

// UUIDv7Generator generates "<type>::<uuidv7>" keys.
//
// UUIDv7 embeds a timestamp in the most significant bits, so keys of one
// type sort by creation time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new key. An empty type yields a bare UUID.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate(docType string) string {
	id := uuid.Must(uuid.NewV7()).String()
	if docType == "" {
		return id
	}
	return docType + "::" + id
}

// FixedGenerator returns predetermined key suffixes for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu       sync.Mutex
	suffixes []string
	idx      int
}

// NewFixedGenerator creates a generator that returns suffixes in order.
//
//	gen := NewFixedGenerator("1", "2")
//	gen.Generate("items") // "items::1"
//	gen.Generate("items") // "items::2"
//	gen.Generate("items") // panic: all suffixes exhausted
func NewFixedGenerator(suffixes ...string) *FixedGenerator {
	return &FixedGenerator{suffixes: suffixes}
}

// Generate returns the next key.
//
// Panics if all suffixes have been consumed, to catch tests that insert
// more documents than they expect.
func (g *FixedGenerator) Generate(docType string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.suffixes) {
		panic("FixedGenerator: all suffixes exhausted")
	}
	s := g.suffixes[g.idx]
	g.idx++
	if docType == "" {
		return s
	}
	return docType + "::" + s
}
