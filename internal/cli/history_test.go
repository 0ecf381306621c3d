package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/n1qlorm/internal/journal"
)

// writeJournal records entries in a fresh journal and returns its path.
func writeJournal(t *testing.T, entries ...journal.Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, e := range entries {
		e.Seq = int64(i + 1)
		e.RecordedAt = at.Add(time.Duration(i) * time.Second)
		require.NoError(t, j.Record(context.Background(), e))
	}
	return path
}

func sampleEntries() []journal.Entry {
	return []journal.Entry{
		{Operation: "kv.get", Statement: "users::1", Success: true, RowCount: 1},
		{
			Operation:   "select",
			Statement:   "select `default`.* from `default`\nwhere `eloquent_type` = ? and `qty` > ?",
			Bindings:    `["items",3]`,
			Consistency: "request_plus",
			Success:     true,
			RowCount:    2,
			Duration:    1500 * time.Microsecond,
		},
		{
			Operation:   "update",
			Statement:   "update `default` use keys \"items::1\" unset `note1`",
			Bindings:    `["items"]`,
			Consistency: "not_bounded",
			Error:       "UNAVAILABLE: no query service",
		},
	}
}

func TestHistoryText(t *testing.T) {
	path := writeJournal(t, sampleEntries()...)

	out, err := execute(t, NewHistoryCommand(&RootOptions{Format: "text"}), "--journal", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ #1 [kv.get] users::1")
	assert.Contains(t, out, "✓ #2 [select] select `default`.* from `default` where", "statements print on one line")
	assert.Contains(t, out, `bindings=["items",3]`)
	assert.Contains(t, out, "took=1.5ms")
	assert.Contains(t, out, "✗ #3 [update]")
	assert.Contains(t, out, "error: UNAVAILABLE: no query service")
	assert.Contains(t, out, "3 entries, 1 failed")
}

func TestHistoryFilters(t *testing.T) {
	path := writeJournal(t, sampleEntries()...)

	tests := []struct {
		name    string
		args    []string
		wantIDs []int64
	}{
		{"all", []string{"--limit", "0"}, []int64{1, 2, 3}},
		{"limit keeps the newest", []string{"--limit", "2"}, []int64{2, 3}},
		{"failures", []string{"--failures"}, []int64{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--journal", path}, tt.args...)
			out, err := execute(t, NewHistoryCommand(&RootOptions{Format: "json"}), args...)
			require.NoError(t, err)

			var resp struct {
				Data HistoryResult `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			var ids []int64
			for _, e := range resp.Data.Entries {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestHistoryEmpty(t *testing.T) {
	path := writeJournal(t)

	out, err := execute(t, NewHistoryCommand(&RootOptions{Format: "text"}), "--journal", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No statements recorded.")
}

func TestHistoryJournalFromConfig(t *testing.T) {
	path := writeJournal(t, sampleEntries()...)
	t.Setenv("N1QL_JOURNAL_PATH", path)

	out, err := execute(t, NewHistoryCommand(&RootOptions{Format: "json"}))
	require.NoError(t, err)
	assert.Contains(t, out, `"failed":1`)
}

func TestHistoryNoJournal(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"not configured", nil, "no journal configured"},
		{"missing file", []string{"--journal", filepath.Join(t.TempDir(), "none.db")}, "journal not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, NewHistoryCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "select 1 from b", oneLine("select 1\n  from   b\n"))
}
