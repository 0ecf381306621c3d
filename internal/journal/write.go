package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/value"
)

// Entry is one journal row.
type Entry struct {
	ID          int64
	Seq         int64
	Operation   string
	Statement   string
	Bindings    string // JSON array
	Consistency string
	Success     bool
	Error       string
	Duration    time.Duration
	RowCount    uint64
	RecordedAt  time.Time
}

// Record appends an entry. The database assigns ID.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.Bindings == "" {
		e.Bindings = "[]"
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO statements
		(seq, operation, statement, bindings, consistency, success, error, duration_us, row_count, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Seq,
		e.Operation,
		e.Statement,
		e.Bindings,
		e.Consistency,
		e.Success,
		e.Error,
		e.Duration.Microseconds(),
		int64(e.RowCount),
		e.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record statement: %w", err)
	}
	return nil
}

// QueryFired records ev. Write failures are logged, never returned: the
// journal must not change the outcome of the operation it observes.
func (j *Journal) QueryFired(ctx context.Context, ev engine.QueryEvent) {
	entry := Entry{
		Seq:         ev.Seq,
		Operation:   ev.Operation,
		Statement:   ev.Statement,
		Bindings:    encodeBindings(ev.Bindings),
		Consistency: ev.Consistency.String(),
		Success:     ev.Success,
		Duration:    ev.Duration,
		RowCount:    ev.RowCount,
		RecordedAt:  ev.At,
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}
	if err := j.Record(context.WithoutCancel(ctx), entry); err != nil {
		j.logger.Warn("journal write failed", "seq", ev.Seq, "error", err)
	}
}

func encodeBindings(bindings []any) string {
	if len(bindings) == 0 {
		return "[]"
	}
	data, err := value.Encode(bindings)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprintf("%v", bindings))
	}
	return string(data)
}
