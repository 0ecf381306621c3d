package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/n1qlorm/internal/store"
)

// Operation names used in QueryEvent.Operation.
const (
	OpSelect    = "select"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpInsert    = "insert"
	OpRaw       = "statement"
	OpKVGet     = "kv.get"
	OpKVUpsert  = "kv.upsert"
	OpKVRemove  = "kv.remove"
	OpKVReplace = "kv.replace"
)

// QueryEvent describes one completed statement or key-value call.
//
// For key-value calls Statement holds the document key and Bindings is
// empty.
type QueryEvent struct {
	Seq         int64
	Operation   string
	Statement   string
	Bindings    []any
	Consistency store.Consistency
	Success     bool
	Err         error
	Duration    time.Duration
	RowCount    uint64
	At          time.Time
}

// Listener receives QueryFired notifications.
type Listener interface {
	QueryFired(ctx context.Context, ev QueryEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev QueryEvent)

// QueryFired implements Listener.
func (f ListenerFunc) QueryFired(ctx context.Context, ev QueryEvent) { f(ctx, ev) }

// LogListener logs successful statements at Debug and failures at Warn.
func LogListener(logger *slog.Logger) Listener {
	return ListenerFunc(func(ctx context.Context, ev QueryEvent) {
		attrs := []any{
			"seq", ev.Seq,
			"op", ev.Operation,
			"statement", ev.Statement,
			"bindings", ev.Bindings,
			"consistency", ev.Consistency.String(),
			"duration", ev.Duration,
			"rows", ev.RowCount,
		}
		if ev.Success {
			logger.DebugContext(ctx, "query fired", attrs...)
			return
		}
		logger.WarnContext(ctx, "query failed", append(attrs, "error", ev.Err)...)
	})
}

// timer measures one operation and reports it to the listeners.
type timer struct {
	c     *Connection
	start time.Time
	ev    QueryEvent
}

func (c *Connection) begin(op, statement string, bindings []any, cons store.Consistency) *timer {
	return &timer{
		c:     c,
		start: c.now(),
		ev: QueryEvent{
			Operation:   op,
			Statement:   statement,
			Bindings:    bindings,
			Consistency: cons,
		},
	}
}

// done fills in the outcome and notifies listeners. It returns err so call
// sites can end with `return t.done(ctx, n, err)`.
func (t *timer) done(ctx context.Context, rows uint64, err error) error {
	end := t.c.now()
	t.ev.Seq = t.c.seq.Next()
	t.ev.Success = err == nil
	t.ev.Err = err
	t.ev.Duration = end.Sub(t.start)
	t.ev.RowCount = rows
	t.ev.At = end
	for _, l := range t.c.listeners {
		l.QueryFired(ctx, t.ev)
	}
	return err
}
