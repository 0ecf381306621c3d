package journal

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/n1qlorm/internal/dberr"
)

// Recent returns the last limit entries in ascending seq order.
// A limit of zero or less returns every entry.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return j.query(ctx, limit, false)
}

// Failures returns the last limit failed entries in ascending seq order.
func (j *Journal) Failures(ctx context.Context, limit int) ([]Entry, error) {
	return j.query(ctx, limit, true)
}

// Entry returns the entry with the given ID, or a NOT_FOUND error.
func (j *Journal) Entry(ctx context.Context, id int64) (Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, operation, statement, bindings, consistency, success, error, duration_us, row_count, recorded_at
		FROM statements WHERE id = ?
	`, id)
	if err != nil {
		return Entry{}, fmt.Errorf("query statement %d: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Entry{}, fmt.Errorf("query statement %d: %w", id, err)
		}
		return Entry{}, dberr.New(dberr.CodeNotFound, "journal entry %d", id)
	}
	return scanEntry(rows)
}

// LastSeq returns the highest recorded seq, or 0 for an empty journal.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := j.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM statements`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq, nil
}

func (j *Journal) query(ctx context.Context, limit int, failedOnly bool) ([]Entry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	where := ""
	if failedOnly {
		where = "WHERE success = 0"
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, operation, statement, bindings, consistency, success, error, duration_us, row_count, recorded_at
		FROM statements `+where+`
		ORDER BY seq DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query statements: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statements: %w", err)
	}

	slices.Reverse(entries)
	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e          Entry
		durationUS int64
		rowCount   int64
		recorded   string
	)
	err := rows.Scan(&e.ID, &e.Seq, &e.Operation, &e.Statement, &e.Bindings,
		&e.Consistency, &e.Success, &e.Error, &durationUS, &rowCount, &recorded)
	if err != nil {
		return Entry{}, fmt.Errorf("scan statement: %w", err)
	}
	e.Duration = time.Duration(durationUS) * time.Microsecond
	e.RowCount = uint64(rowCount)
	e.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded)
	if err != nil {
		return Entry{}, fmt.Errorf("parse recorded_at %q: %w", recorded, err)
	}
	return e, nil
}
