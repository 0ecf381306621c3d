package engine

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_Format(t *testing.T) {
	key := UUIDv7Generator{}.Generate("items")

	require.True(t, strings.HasPrefix(key, "items::"), key)
	parsed, err := uuid.Parse(strings.TrimPrefix(key, "items::"))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_EmptyType(t *testing.T) {
	key := UUIDv7Generator{}.Generate("")
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, key)
}

func TestUUIDv7Generator_Concurrent(t *testing.T) {
	gen := UUIDv7Generator{}
	const goroutines = 100

	keys := make(chan string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys <- gen.Generate("t")
		}()
	}
	wg.Wait()
	close(keys)

	seen := make(map[string]bool)
	for k := range keys {
		require.False(t, seen[k], "duplicate key generated")
		seen[k] = true
	}
	assert.Len(t, seen, goroutines)
}

func TestFixedGenerator_Sequential(t *testing.T) {
	gen := NewFixedGenerator("1", "2")

	assert.Equal(t, "items::1", gen.Generate("items"))
	assert.Equal(t, "2", gen.Generate(""))
	assert.Panics(t, func() { gen.Generate("items") })
}
