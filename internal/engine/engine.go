package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/roach88/n1qlorm/internal/n1ql"
	"github.com/roach88/n1qlorm/internal/queryir"
	"github.com/roach88/n1qlorm/internal/store"
)

// DefaultKVConcurrency bounds parallel key-value reads for multi-key finds.
const DefaultKVConcurrency = 8

// Connection is the execution adapter for one bucket.
//
// Thread-safety: all methods are safe for concurrent use. Options must be
// applied at construction.
type Connection struct {
	bucket      string
	typeField   string
	kv          store.KeyValue
	querier     store.Querier
	grammar     *n1ql.Grammar
	consistency store.Consistency
	inline      bool
	timeout     time.Duration
	keys        KeyGenerator
	listeners   []Listener
	logger      *slog.Logger
	seq         *Sequence
	now         func() time.Time

	kvConcurrency int
	pool          *ants.Pool
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) { c.logger = logger }
}

// WithListener registers a QueryFired listener. Listeners run in
// registration order on the calling goroutine.
func WithListener(l Listener) Option {
	return func(c *Connection) { c.listeners = append(c.listeners, l) }
}

// WithConsistency sets the default scan consistency. Default: RequestPlus.
func WithConsistency(cons store.Consistency) Option {
	return func(c *Connection) { c.consistency = cons }
}

// WithInlineParameters makes the connection substitute bindings into the
// statement text instead of sending positional parameters.
func WithInlineParameters(inline bool) Option {
	return func(c *Connection) { c.inline = inline }
}

// WithQueryTimeout sets the default advisory query timeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Connection) { c.timeout = d }
}

// WithTypeField overrides the discriminator field name.
func WithTypeField(field string) Option {
	return func(c *Connection) { c.typeField = field }
}

// WithGrammar replaces the statement compiler.
func WithGrammar(g *n1ql.Grammar) Option {
	return func(c *Connection) { c.grammar = g }
}

// WithKeyGenerator sets the generator for keys of inserted documents.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(c *Connection) { c.keys = g }
}

// WithClock sets the time source used to measure durations.
func WithClock(now func() time.Time) Option {
	return func(c *Connection) { c.now = now }
}

// WithSequence sets the event sequence, for example to resume numbering
// after the last journal entry.
func WithSequence(s *Sequence) Option {
	return func(c *Connection) { c.seq = s }
}

// WithKVConcurrency bounds parallel key-value reads. Default: 8.
func WithKVConcurrency(n int) Option {
	return func(c *Connection) { c.kvConcurrency = n }
}

// New creates a Connection for bucket. querier may be nil for backends
// without a query service; N1QL operations then fail with UNAVAILABLE.
func New(bucket string, kv store.KeyValue, querier store.Querier, opts ...Option) (*Connection, error) {
	if bucket == "" {
		return nil, fmt.Errorf("engine: bucket name required")
	}
	if kv == nil {
		return nil, fmt.Errorf("engine: key-value store required")
	}

	c := &Connection{
		bucket:        bucket,
		typeField:     queryir.DefaultTypeField,
		kv:            kv,
		querier:       querier,
		consistency:   store.RequestPlus,
		keys:          UUIDv7Generator{},
		logger:        slog.Default(),
		seq:           NewSequence(),
		now:           time.Now,
		kvConcurrency: DefaultKVConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.grammar == nil {
		c.grammar = n1ql.NewGrammar()
		c.grammar.NewKey = c.keys.Generate
	}
	if c.kvConcurrency < 1 {
		c.kvConcurrency = 1
	}

	pool, err := ants.NewPool(c.kvConcurrency, ants.WithPanicHandler(func(p any) {
		c.logger.Error("kv worker panic", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("engine: create kv pool: %w", err)
	}
	c.pool = pool

	return c, nil
}

// Close releases the worker pool. It does not close the store.
func (c *Connection) Close() error {
	if c.pool != nil {
		c.pool.Release()
	}
	return nil
}

// Bucket returns the bucket name.
func (c *Connection) Bucket() string { return c.bucket }

// TypeField returns the discriminator field name.
func (c *Connection) TypeField() string { return c.typeField }

// Grammar returns the statement compiler.
func (c *Connection) Grammar() *n1ql.Grammar { return c.grammar }

// Consistency returns the default scan consistency.
func (c *Connection) Consistency() store.Consistency { return c.consistency }

// Inline reports whether bindings are substituted into statement text.
func (c *Connection) Inline() bool { return c.inline }

// Logger returns the connection's logger.
func (c *Connection) Logger() *slog.Logger { return c.logger }

// NewState returns an empty query state for this bucket with the
// connection's discriminator field.
func (c *Connection) NewState() *queryir.State {
	s := queryir.New(c.bucket)
	s.TypeField = c.typeField
	return s
}
