package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/store"
	"github.com/roach88/n1qlorm/internal/testutil"
	"github.com/roach88/n1qlorm/internal/value"
)

// scriptedPrompter replays lines, then returns io.EOF.
type scriptedPrompter struct {
	lines   []string
	errs    map[int]error
	history []string
	calls   int
}

func (p *scriptedPrompter) Prompt(string) (string, error) {
	i := p.calls
	p.calls++
	if err, ok := p.errs[i]; ok {
		return "", err
	}
	if len(p.lines) == 0 {
		return "", io.EOF
	}
	line := p.lines[0]
	p.lines = p.lines[1:]
	return line, nil
}

func (p *scriptedPrompter) AppendHistory(item string) { p.history = append(p.history, item) }

// keyedKV adds key scans to the in-memory store.
type keyedKV struct {
	*testutil.MemoryKV
}

func (k keyedKV) Keys(_ context.Context, prefix string, limit int) ([]string, error) {
	var out []string
	for _, key := range k.MemoryKV.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, key)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func newShellConn(t *testing.T, q store.Querier) (*engine.Connection, *testutil.MemoryKV) {
	t.Helper()
	kv := testutil.NewMemoryKV()
	kv.Seed(map[string]value.Document{
		"items::1": {"eloquent_type": "items", "name": "knife"},
		"items::2": {"eloquent_type": "items", "name": "fork"},
		"users::1": {"eloquent_type": "users", "name": "ann"},
	})
	conn, err := engine.New("default", kv, q)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, kv
}

func TestShellStatements(t *testing.T) {
	q := testutil.NewScriptedQuerier()
	q.Respond(&store.Result{Rows: []value.Document{{"n": 1}}})
	q.Respond(&store.Result{Metrics: store.Metrics{MutationCount: 2}})
	conn, kv := newShellConn(t, q)

	p := &scriptedPrompter{lines: []string{
		"select 1 as n;",
		"  ",
		"update `default` set x = 1",
	}}
	buf := &bytes.Buffer{}
	require.NoError(t, shellLoop(context.Background(), conn, kv, p, &OutputFormatter{Format: "text", Writer: buf}))

	out := buf.String()
	assert.Contains(t, out, `"n": 1`)
	assert.Contains(t, out, "1 row(s) in")
	assert.Contains(t, out, "0 row(s), 2 mutation(s)")
	assert.Equal(t, []string{"select 1 as n;", "update `default` set x = 1"}, p.history, "blank lines are not kept")

	calls := q.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "select 1 as n", calls[0].Statement, "trailing semicolon is dropped")
}

func TestShellStatementErrorContinues(t *testing.T) {
	conn, kv := newShellConn(t, nil)

	p := &scriptedPrompter{lines: []string{"select 1", ".help"}}
	buf := &bytes.Buffer{}
	require.NoError(t, shellLoop(context.Background(), conn, kv, p, &OutputFormatter{Format: "text", Writer: buf}))

	assert.Contains(t, buf.String(), "Error: UNAVAILABLE")
	assert.Contains(t, buf.String(), ".get <key>", "the loop went on to .help")
}

func TestShellDotCommands(t *testing.T) {
	conn, kv := newShellConn(t, nil)

	tests := []struct {
		name string
		kv   store.KeyValue
		line string
		want string
	}{
		{"get", kv, ".get items::1", `"name": "knife"`},
		{"get missing", kv, ".get items::9", "Error: NOT_FOUND"},
		{"get usage", kv, ".get", "usage: .get <key>"},
		{"keys by prefix", keyedKV{kv}, ".keys items::", "items::1\nitems::2\n"},
		{"keys limit", keyedKV{kv}, ".keys items:: 1", "items::1\n"},
		{"keys bad limit", keyedKV{kv}, ".keys items:: x", `invalid limit "x"`},
		{"keys unsupported", kv, ".keys", "not supported by this backend"},
		{"unknown", kv, ".tables", "unknown command .tables"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			p := &scriptedPrompter{lines: []string{tt.line}}
			require.NoError(t, shellLoop(context.Background(), conn, tt.kv, p, &OutputFormatter{Format: "text", Writer: buf}))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestShellQuit(t *testing.T) {
	for _, cmd := range []string{".quit", ".exit"} {
		t.Run(cmd, func(t *testing.T) {
			conn, kv := newShellConn(t, nil)
			p := &scriptedPrompter{lines: []string{cmd, ".get items::1"}}
			buf := &bytes.Buffer{}
			require.NoError(t, shellLoop(context.Background(), conn, kv, p, &OutputFormatter{Format: "text", Writer: buf}))
			assert.NotContains(t, buf.String(), "knife", "nothing runs after quit")
		})
	}
}

func TestShellPromptErrors(t *testing.T) {
	conn, kv := newShellConn(t, nil)

	t.Run("ctrl-c aborts only the line", func(t *testing.T) {
		p := &scriptedPrompter{lines: []string{".get users::1"}, errs: map[int]error{0: liner.ErrPromptAborted}}
		buf := &bytes.Buffer{}
		require.NoError(t, shellLoop(context.Background(), conn, kv, p, &OutputFormatter{Format: "text", Writer: buf}))
		assert.Contains(t, buf.String(), `"name": "ann"`)
	})

	t.Run("read failure", func(t *testing.T) {
		p := &scriptedPrompter{errs: map[int]error{0: errors.New("tty gone")}}
		err := shellLoop(context.Background(), conn, kv, p, &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}})
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}
