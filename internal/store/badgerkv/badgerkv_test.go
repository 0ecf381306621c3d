package badgerkv

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/value"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoundTrip(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	cas, err := s.Upsert(ctx, "items::1", value.Document{"name": "knife", "gone": value.Missing})
	require.NoError(t, err)

	item, err := s.Get(ctx, "items::1")
	require.NoError(t, err)
	assert.Equal(t, "items::1", item.Key)
	assert.Equal(t, value.Document{"name": "knife"}, item.Doc)
	assert.Equal(t, cas, item.CAS)
}

func TestGet_NotFound(t *testing.T) {
	s := openMemory(t)

	_, err := s.Get(context.Background(), "nope")

	assert.True(t, dberr.IsNotFound(err))
}

func TestInsert_ExistingKey(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "k", value.Document{"a": 1})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "k", value.Document{"a": 2})

	assert.True(t, dberr.IsConstraint(err))
	item, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, float64(1), item.Doc["a"])
}

func TestReplace_CAS(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	first, err := s.Upsert(ctx, "k", value.Document{"v": 1})
	require.NoError(t, err)
	second, err := s.Replace(ctx, "k", value.Document{"v": 2}, first)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = s.Replace(ctx, "k", value.Document{"v": 3}, first)
	assert.True(t, dberr.IsConflict(err), "stale cas must conflict")

	_, err = s.Replace(ctx, "missing", value.Document{}, first)
	assert.True(t, dberr.IsNotFound(err))

	item, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, float64(2), item.Doc["v"])
}

func TestRemove(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	_, err := s.Upsert(ctx, "k", value.Document{})
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, "k"))
	assert.True(t, dberr.IsNotFound(s.Remove(ctx, "k")))
}

func TestSerializationFailsBeforeWrite(t *testing.T) {
	s := openMemory(t)

	_, err := s.Upsert(context.Background(), "k", value.Document{"f": func() {}})

	assert.True(t, dberr.IsSerialization(err))
	_, err = s.Get(context.Background(), "k")
	assert.True(t, dberr.IsNotFound(err))
}

func TestCancelledContext(t *testing.T) {
	s := openMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "k")

	assert.True(t, dberr.IsTransient(err))
}

func TestKeys(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	for _, k := range []string{"users::2", "items::1", "users::1", "users::3"} {
		_, err := s.Upsert(ctx, k, value.Document{})
		require.NoError(t, err)
	}

	keys, err := s.Keys(ctx, "users::", 2)

	require.NoError(t, err)
	assert.Equal(t, []string{"users::1", "users::2"}, keys)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	require.NoError(t, err)
	old, err := s.Upsert(ctx, "k", value.Document{"v": "a"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	item, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "a", item.Doc["v"])

	next, err := s.Replace(ctx, "k", value.Document{"v": "b"}, item.CAS)
	require.NoError(t, err)
	assert.Greater(t, uint64(next), uint64(old))
}

// A Connection without a query service serves key-path work from badger.
func TestConnectionOverBadger(t *testing.T) {
	s := openMemory(t)
	conn, err := engine.New("default", s, nil,
		engine.WithKeyGenerator(engine.NewFixedGenerator("1")),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	keys, err := conn.Insert(ctx, "users", []value.Document{{"tags": []any{"a"}}})
	require.NoError(t, err)
	require.Equal(t, []string{"users::1"}, keys)

	changed, err := conn.Push(ctx, "", "users::1", "tags", []any{"b"}, true)
	require.NoError(t, err)
	assert.True(t, changed)

	st := conn.NewState()
	st.SetTarget("users")
	require.NoError(t, st.UseKeys("users::1"))
	res, err := conn.Select(ctx, st, engine.RunOptions{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []any{"a", "b"}, res.Rows[0]["tags"])
	assert.Equal(t, "users", res.Rows[0]["eloquent_type"])

	st = conn.NewState()
	st.SetTarget("users")
	_, err = conn.Select(ctx, st, engine.RunOptions{})
	assert.Equal(t, dberr.CodeUnavailable, dberr.CodeOf(err))
}
