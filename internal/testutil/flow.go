package testutil

import (
	"strconv"
	"sync"
)

// SequentialKeyGenerator generates "<type>::<n>" keys with n counting from
// 1 per generator. Scenarios that insert documents get stable keys, so
// golden snapshots stay byte-identical across runs.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialKeyGenerator struct {
	mu sync.Mutex
	n  int
}

// NewSequentialKeyGenerator creates a generator starting at 1.
func NewSequentialKeyGenerator() *SequentialKeyGenerator {
	return &SequentialKeyGenerator{}
}

// Generate implements engine.KeyGenerator.
func (g *SequentialKeyGenerator) Generate(docType string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	if docType == "" {
		return strconv.Itoa(g.n)
	}
	return docType + "::" + strconv.Itoa(g.n)
}
