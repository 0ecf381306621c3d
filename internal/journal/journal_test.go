package journal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/store"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("journal file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	for i := 0; i < 3; i++ {
		j, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		j.Close()
	}

	j, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer j.Close()

	var version int
	if err := j.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j := openTemp(t)

	if err := j.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := j.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
	if err := j.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestMigrateToV2_AddsRowCount(t *testing.T) {
	j := openTemp(t)

	// Rebuild a v1 table without row_count.
	_, err := j.db.Exec(`DROP TABLE statements`)
	require.NoError(t, err)
	_, err = j.db.Exec(`CREATE TABLE statements (
		id INTEGER PRIMARY KEY AUTOINCREMENT, seq INTEGER NOT NULL, operation TEXT NOT NULL,
		statement TEXT NOT NULL, bindings TEXT NOT NULL DEFAULT '[]', consistency TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL, error TEXT NOT NULL DEFAULT '', duration_us INTEGER NOT NULL DEFAULT 0,
		recorded_at TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = j.db.Exec(`PRAGMA user_version = 1`)
	require.NoError(t, err)

	require.NoError(t, runMigrations(j.db))

	require.NoError(t, j.Record(context.Background(), Entry{Seq: 1, Operation: "select", Statement: "select 1", Success: true, RowCount: 1}))
	entries, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].RowCount)
}

func TestRecordAndRecent(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		err := j.Record(ctx, Entry{
			Seq:        int64(i),
			Operation:  "select",
			Statement:  "select 1",
			Success:    i != 3,
			Duration:   time.Duration(i) * time.Millisecond,
			RecordedAt: at,
		})
		require.NoError(t, err)
	}

	recent, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(4), recent[0].Seq)
	assert.Equal(t, int64(5), recent[1].Seq)
	assert.Equal(t, 5*time.Millisecond, recent[1].Duration)
	assert.Equal(t, "[]", recent[1].Bindings)
	assert.True(t, at.Equal(recent[1].RecordedAt))

	all, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	failed, err := j.Failures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, int64(3), failed[0].Seq)
}

func TestRecent_EmptyIsNotNil(t *testing.T) {
	j := openTemp(t)

	entries, err := j.Recent(context.Background(), 10)

	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestQueryFired(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	j.QueryFired(ctx, engine.QueryEvent{
		Seq:         7,
		Operation:   "select",
		Statement:   "select `default`.* from `default` where `name` = ?",
		Bindings:    []any{"knife"},
		Consistency: store.RequestPlus,
		Success:     false,
		Err:         errors.New("boom"),
		Duration:    3 * time.Millisecond,
		RowCount:    2,
		At:          time.Now(),
	})

	entries, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, int64(7), e.Seq)
	assert.Equal(t, `["knife"]`, e.Bindings)
	assert.Equal(t, "request_plus", e.Consistency)
	assert.False(t, e.Success)
	assert.Equal(t, "boom", e.Error)
	assert.Equal(t, uint64(2), e.RowCount)
}

func TestEncodeBindings_Unencodable(t *testing.T) {
	got := encodeBindings([]any{make(chan int)})
	assert.NotEmpty(t, got)
	assert.Equal(t, byte('"'), got[0])
}

func TestEntry(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Entry{Seq: 7, Operation: "update", Statement: "update `default` set `a` = ?", Bindings: `[1]`}))
	recent, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	e, err := j.Entry(ctx, recent[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), e.Seq)
	assert.Equal(t, `[1]`, e.Bindings)

	_, err = j.Entry(ctx, recent[0].ID+100)
	assert.True(t, dberr.IsNotFound(err))
}

func TestLastSeq(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	last, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	for _, seq := range []int64{3, 9, 4} {
		require.NoError(t, j.Record(ctx, Entry{Seq: seq, Operation: "kv.get", Statement: "users::1", Success: true}))
	}
	last, err = j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), last)
}
