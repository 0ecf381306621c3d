package engine

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/n1ql"
	"github.com/roach88/n1qlorm/internal/queryir"
	"github.com/roach88/n1qlorm/internal/store"
	"github.com/roach88/n1qlorm/internal/testutil"
	"github.com/roach88/n1qlorm/internal/value"
)

// recorder collects events.
type recorder struct {
	mu     sync.Mutex
	events []QueryEvent
}

func (r *recorder) QueryFired(_ context.Context, ev QueryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []QueryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]QueryEvent(nil), r.events...)
}

type fixture struct {
	conn *Connection
	kv   *testutil.MemoryKV
	q    *testutil.ScriptedQuerier
	rec  *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		kv:  testutil.NewMemoryKV(),
		q:   testutil.NewScriptedQuerier(),
		rec: &recorder{},
	}
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithListener(f.rec),
		WithKeyGenerator(NewFixedGenerator("1", "2", "3")),
		WithClock(testutil.NewStepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond).Now),
	}
	conn, err := New("default", f.kv, f.q, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	f.conn = conn
	return f
}

func (f *fixture) state(typ string) *queryir.State {
	s := f.conn.NewState()
	s.SetTarget(typ)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", testutil.NewMemoryKV(), nil)
	assert.Error(t, err)

	_, err = New("default", nil, nil)
	assert.Error(t, err)
}

func TestSelect_KeyPathSingle(t *testing.T) {
	f := newFixture(t)
	f.kv.Seed(map[string]value.Document{
		"items::1": {"eloquent_type": "items", "name": "knife"},
	})
	s := f.state("items")
	require.NoError(t, s.UseKeys("items::1"))

	res, err := f.conn.Select(context.Background(), s, RunOptions{})

	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "items::1", res.Rows[0]["_id"])
	assert.Equal(t, "knife", res.Rows[0]["name"])
	assert.Empty(t, f.q.Calls(), "key path must not issue N1QL")
	assert.Equal(t, []string{"get items::1"}, f.kv.Calls())
}

func TestSelect_KeyPathManyPreservesOrder(t *testing.T) {
	f := newFixture(t, WithKVConcurrency(2))
	f.kv.Seed(map[string]value.Document{
		"items::1": {"eloquent_type": "items", "n": 1.0},
		"items::2": {"eloquent_type": "items", "n": 2.0},
		"users::1": {"eloquent_type": "users", "n": 9.0},
		"items::3": {"eloquent_type": "items", "n": 3.0},
	})
	s := f.state("items")
	require.NoError(t, s.UseKeys("items::3", "missing", "users::1", "items::1", "items::2"))

	res, err := f.conn.Select(context.Background(), s, RunOptions{})

	require.NoError(t, err)
	var ids []any
	for _, r := range res.Rows {
		ids = append(ids, r["_id"])
	}
	assert.Equal(t, []any{"items::3", "items::1", "items::2"}, ids)
	assert.Equal(t, uint64(3), res.Metrics.ResultCount)
	assert.Empty(t, f.q.Calls())
}

func TestSelect_KeyPathWindow(t *testing.T) {
	f := newFixture(t)
	f.kv.Seed(map[string]value.Document{
		"a": {"eloquent_type": "items"}, "b": {"eloquent_type": "items"}, "c": {"eloquent_type": "items"},
	})
	s := f.state("items")
	require.NoError(t, s.UseKeys("a", "b", "c"))
	s.Offset = 1
	s.Limit = 1

	res, err := f.conn.Select(context.Background(), s, RunOptions{})

	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "b", res.Rows[0]["_id"])
}

func TestSelect_KeyPathError(t *testing.T) {
	f := newFixture(t)
	f.kv.FailNext("get", dberr.New(dberr.CodeTransient, "node down"))
	s := f.state("items")
	require.NoError(t, s.UseKeys("a"))

	_, err := f.conn.Select(context.Background(), s, RunOptions{})

	assert.True(t, dberr.IsTransient(err))
}

func TestSelect_CompiledPath(t *testing.T) {
	f := newFixture(t, WithQueryTimeout(5*time.Second))
	f.q.Respond(&store.Result{Rows: []value.Document{{"name": "knife"}}, Metrics: store.Metrics{ResultCount: 1}})
	s := f.state("items")
	s.AddPredicate(&queryir.Basic{Column: "name", Operator: "=", Value: "knife", Conjunction: queryir.And}, queryir.BindWhere, "knife")

	res, err := f.conn.Select(context.Background(), s, RunOptions{})

	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
	calls := f.q.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "select `default`.*, meta(`default`).`id` as `_id` from `default` where `eloquent_type` = ? and `name` = ?", calls[0].Statement)
	assert.Equal(t, []any{"items", "knife"}, calls[0].Options.Bindings)
	assert.Equal(t, store.RequestPlus, calls[0].Options.Consistency)
	assert.Equal(t, 5*time.Second, calls[0].Options.Timeout)
}

func TestSelect_RunOptionsOverride(t *testing.T) {
	f := newFixture(t, WithConsistency(store.RequestPlus))
	s := f.state("items")

	_, err := f.conn.Select(context.Background(), s, RunOptions{Consistency: store.NotBounded, Timeout: time.Second})

	require.NoError(t, err)
	opts := f.q.Calls()[0].Options
	assert.Equal(t, store.NotBounded, opts.Consistency)
	assert.Equal(t, time.Second, opts.Timeout)
}

func TestSelect_KeysWithExtraPredicateUsesN1QL(t *testing.T) {
	f := newFixture(t)
	s := f.state("items")
	require.NoError(t, s.UseKeys("a"))
	s.AddPredicate(&queryir.Null{Column: "deleted_at", Conjunction: queryir.And}, queryir.BindWhere)

	_, err := f.conn.Select(context.Background(), s, RunOptions{})

	require.NoError(t, err)
	require.Len(t, f.q.Calls(), 1)
	assert.Contains(t, f.q.Calls()[0].Statement, `use keys "a"`)
	assert.Empty(t, f.kv.Calls())
}

func TestSelect_InlineParameters(t *testing.T) {
	f := newFixture(t, WithInlineParameters(true))
	s := f.state("items")

	_, err := f.conn.Select(context.Background(), s, RunOptions{})

	require.NoError(t, err)
	call := f.q.Calls()[0]
	assert.Equal(t, "select `default`.*, meta(`default`).`id` as `_id` from `default` where `eloquent_type` = \"items\"", call.Statement)
	assert.Nil(t, call.Options.Bindings)
}

func TestSelect_InlineSerializationFailsBeforeIO(t *testing.T) {
	f := newFixture(t, WithInlineParameters(true))
	s := f.state("items")
	s.AddPredicate(&queryir.Basic{Column: "f", Operator: "=", Conjunction: queryir.And}, queryir.BindWhere, func() {})

	_, err := f.conn.Select(context.Background(), s, RunOptions{})

	assert.True(t, dberr.IsSerialization(err))
	assert.Empty(t, f.q.Calls())
	assert.Empty(t, f.rec.all())
}

func TestSelect_CompileErrorBeforeIO(t *testing.T) {
	f := newFixture(t)
	s := f.state("items")
	s.Keys = []string{"a"}
	s.Indexes = []queryir.IndexHint{{Name: "i", Kind: queryir.IndexGSI}}

	_, err := f.conn.Select(context.Background(), s, RunOptions{})

	assert.True(t, dberr.IsConflictingAccessPath(err))
	assert.Empty(t, f.q.Calls())
	assert.Empty(t, f.kv.Calls())
	assert.Empty(t, f.rec.all())
}

func TestRun_ErrorCarriesStatement(t *testing.T) {
	f := newFixture(t)
	f.q.Fail(dberr.New(dberr.CodeQuerySyntax, "syntax error at 'form'"))
	s := f.state("items")

	_, err := f.conn.Select(context.Background(), s, RunOptions{})

	require.Error(t, err)
	assert.True(t, dberr.IsQuerySyntax(err))
	var de *dberr.Error
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Statement, "from `default`")

	events := f.rec.all()
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.Equal(t, err, events[0].Err)
}

func TestRun_NoQuerier(t *testing.T) {
	conn, err := New("default", testutil.NewMemoryKV(), nil)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Statement(context.Background(), "select 1", nil, RunOptions{})

	require.Error(t, err)
	assert.Equal(t, dberr.CodeUnavailable, dberr.CodeOf(err))
}

func TestEvents_SequenceAndDuration(t *testing.T) {
	f := newFixture(t, WithSequence(NewSequenceAt(41)))
	s := f.state("items")

	_, err := f.conn.Select(context.Background(), s, RunOptions{})
	require.NoError(t, err)
	_, err = f.conn.Statement(context.Background(), "select raw 1", nil, RunOptions{})
	require.NoError(t, err)

	events := f.rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, int64(42), events[0].Seq)
	assert.Equal(t, int64(43), events[1].Seq)
	assert.Equal(t, OpSelect, events[0].Operation)
	assert.Equal(t, OpRaw, events[1].Operation)
	assert.Equal(t, time.Millisecond, events[0].Duration)
	assert.True(t, events[0].Success)
	assert.Equal(t, []any{"items"}, events[0].Bindings)
	assert.Equal(t, store.RequestPlus, events[0].Consistency)
}

func TestInsert(t *testing.T) {
	f := newFixture(t)

	keys, err := f.conn.Insert(context.Background(), "items", []value.Document{
		{"name": "knife", "gone": value.Missing},
		{"_id": "items::custom", "name": "fork"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"items::1", "items::custom"}, keys)
	assert.Equal(t, value.Document{"name": "knife", "eloquent_type": "items"}, f.kv.Doc("items::1"))
	assert.Equal(t, value.Document{"name": "fork", "eloquent_type": "items"}, f.kv.Doc("items::custom"))
	assert.Empty(t, f.q.Calls())
}

func TestInsert_CustomTypeField(t *testing.T) {
	f := newFixture(t, WithTypeField("kind"))

	keys, err := f.conn.Insert(context.Background(), "hotel", []value.Document{{"name": "Ritz"}})

	require.NoError(t, err)
	assert.Equal(t, "hotel", f.kv.Doc(keys[0])["kind"])
	assert.Equal(t, "kind", f.conn.NewState().TypeField)
}

func TestInsert_StopsAtFirstError(t *testing.T) {
	f := newFixture(t)
	f.kv.FailNext("upsert", dberr.New(dberr.CodeTransient, "timeout"))

	keys, err := f.conn.Insert(context.Background(), "items", []value.Document{{"a": 1}, {"b": 2}})

	assert.True(t, dberr.IsTransient(err))
	assert.Empty(t, keys)
}

func TestDelete_KeyPath(t *testing.T) {
	f := newFixture(t)
	f.kv.Seed(map[string]value.Document{
		"items::1": {"eloquent_type": "items"},
		"users::1": {"eloquent_type": "users"},
	})
	s := f.state("items")
	require.NoError(t, s.UseKeys("items::1", "users::1", "missing"))

	n, err := f.conn.Delete(context.Background(), s, RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"users::1"}, f.kv.Keys())
	assert.Empty(t, f.q.Calls())
}

func TestDelete_CompiledPath(t *testing.T) {
	f := newFixture(t)
	f.q.Respond(&store.Result{Rows: []value.Document{{"_id": "a"}, {"_id": "b"}}})
	s := f.state("items")
	s.AddPredicate(&queryir.Basic{Column: "qty", Operator: "<", Value: 1, Conjunction: queryir.And}, queryir.BindWhere, 1)

	n, err := f.conn.Delete(context.Background(), s, RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, f.q.Calls()[0].Statement, "delete from `default` where")
}

func TestUpdateAndUnset(t *testing.T) {
	f := newFixture(t)
	s := f.state("items")
	require.NoError(t, s.UseKeys("items::1"))

	_, err := f.conn.Update(context.Background(), s, value.Document{"qty": 2}, RunOptions{})
	require.NoError(t, err)
	_, err = f.conn.Unset(context.Background(), s, []string{"note1"}, RunOptions{})
	require.NoError(t, err)

	calls := f.q.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Statement, "set `qty` = ?")
	assert.Equal(t, []any{2, "items"}, calls[0].Options.Bindings)
	assert.Contains(t, calls[1].Statement, "unset `note1`")
	assert.NotContains(t, calls[1].Statement, " set ")
}

func TestUpdateEmbedded(t *testing.T) {
	f := newFixture(t)
	s := f.state("orders")

	_, err := f.conn.UpdateEmbedded(context.Background(), s, n1ql.EmbeddedUpdate{
		Array: "lines", KeyField: "sku", Key: "A1", Values: value.Document{"qty": 3},
	}, RunOptions{})

	require.NoError(t, err)
	assert.Regexp(t, "for `v[0-9a-f]+` in `lines` when", f.q.Calls()[0].Statement)
}

func TestInsertViaQuery(t *testing.T) {
	f := newFixture(t)

	key, err := f.conn.InsertViaQuery(context.Background(), f.state("items"), value.Document{"name": "x"}, RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, "items::1", key)
	call := f.q.Calls()[0]
	assert.Equal(t, "items::1", call.Options.Bindings[0])
}

func TestPushPull(t *testing.T) {
	f := newFixture(t)
	f.kv.Seed(map[string]value.Document{
		"users::1": {"eloquent_type": "users", "tags": []any{"a"}, "profile": map[string]any{}},
	})
	ctx := context.Background()

	changed, err := f.conn.Push(ctx, "", "users::1", "tags", []any{"a", "b"}, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []any{"a", "b"}, f.kv.Doc("users::1")["tags"])

	changed, err = f.conn.Push(ctx, "", "users::1", "tags", []any{"a"}, true)
	require.NoError(t, err)
	assert.False(t, changed, "unique push of existing value is a no-op")

	changed, err = f.conn.Push(ctx, "", "users::1", "profile.langs", []any{"go"}, false)
	require.NoError(t, err)
	assert.True(t, changed)
	v, _ := value.Lookup(f.kv.Doc("users::1"), "profile.langs")
	assert.Equal(t, []any{"go"}, v)

	changed, err = f.conn.Pull(ctx, "", "users::1", "tags", []any{"a", "zzz"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []any{"b"}, f.kv.Doc("users::1")["tags"])

	changed, err = f.conn.Pull(ctx, "", "users::1", "tags", []any{"nope"})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPush_NumbersCompareByValue(t *testing.T) {
	f := newFixture(t)
	f.kv.Seed(map[string]value.Document{"k": {"ids": []any{1.0, 2.0}}})

	changed, err := f.conn.Push(context.Background(), "", "k", "ids", []any{2}, true)

	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPush_MissingDocumentIsNoopWithWarning(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	changed, err := f.conn.Push(context.Background(), "", "users::404", "tags", []any{"x"}, false)

	require.NoError(t, err)
	assert.False(t, changed)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "users::404")
}

func TestPushPull_OtherTypeIsNoop(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	f.kv.Seed(map[string]value.Document{"users::1": {"eloquent_type": "users", "tags": []any{"a"}}})
	ctx := context.Background()

	changed, err := f.conn.Push(ctx, "items", "users::1", "tags", []any{"b"}, false)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.conn.Pull(ctx, "items", "users::1", "tags", []any{"a"})
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, []any{"a"}, f.kv.Doc("users::1")["tags"])
	assert.Contains(t, buf.String(), "document of another type")

	changed, err = f.conn.Push(ctx, "users", "users::1", "tags", []any{"b"}, false)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestPush_NotAnArray(t *testing.T) {
	f := newFixture(t)
	f.kv.Seed(map[string]value.Document{"k": {"tags": "a"}})

	_, err := f.conn.Push(context.Background(), "", "k", "tags", []any{"b"}, false)

	assert.True(t, dberr.IsMisuse(err))
}

func TestPush_ConcurrentWriteConflicts(t *testing.T) {
	f := newFixture(t)
	f.kv.Seed(map[string]value.Document{"k": {"tags": []any{}}})
	f.kv.BeforeReplace = func(key string) {
		// Another writer updates the document between read and replace.
		f.kv.Seed(map[string]value.Document{key: {"tags": []any{"other"}}})
	}

	_, err := f.conn.Push(context.Background(), "", "k", "tags", []any{"mine"}, false)

	require.Error(t, err)
	assert.True(t, dberr.IsConflict(err))
	assert.Equal(t, []any{"other"}, f.kv.Doc("k")["tags"], "concurrent write must survive")
}

func TestLogListener(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := LogListener(logger)

	l.QueryFired(context.Background(), QueryEvent{Seq: 1, Operation: OpSelect, Statement: "select 1", Success: true})
	l.QueryFired(context.Background(), QueryEvent{Seq: 2, Operation: OpSelect, Statement: "select 2", Err: dberr.ErrTransient})

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG msg=\"query fired\"")
	assert.Contains(t, out, "level=WARN msg=\"query failed\"")
	assert.Contains(t, out, "error=TRANSIENT")
}
