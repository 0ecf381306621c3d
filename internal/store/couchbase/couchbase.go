// Package couchbase implements store.Backend on a Couchbase cluster through
// the gocb v2 SDK.
//
// Documents are stored in the bucket's default collection. Bodies are
// encoded with value.Encode before they reach the SDK, so Missing never
// reaches the wire.
package couchbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchbase/gocb/v2"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/store"
	"github.com/roach88/n1qlorm/internal/value"
)

// DefaultConnectTimeout bounds WaitUntilReady during Open.
const DefaultConnectTimeout = 10 * time.Second

// Config addresses one bucket on a cluster.
type Config struct {
	ConnectionString string
	Username         string
	Password         string
	Bucket           string

	// ConnectTimeout bounds the readiness wait. Zero uses the default.
	ConnectTimeout time.Duration
}

// Store is a store.Backend on one bucket.
//
// Thread-safety: safe for concurrent use; the SDK multiplexes requests.
type Store struct {
	cluster *gocb.Cluster
	bucket  *gocb.Bucket
	col     *gocb.Collection
	logger  *slog.Logger
}

var _ store.Backend = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open connects to the cluster and waits until the bucket is ready.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("couchbase: connection string required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("couchbase: bucket required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	cluster, err := gocb.Connect(cfg.ConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, classify(err, "connect %s", cfg.ConnectionString)
	}

	bucket := cluster.Bucket(cfg.Bucket)
	if err := bucket.WaitUntilReady(timeout, &gocb.WaitUntilReadyOptions{Context: ctx}); err != nil {
		_ = cluster.Close(nil)
		return nil, classify(err, "bucket %q not ready", cfg.Bucket)
	}

	s.cluster = cluster
	s.bucket = bucket
	s.col = bucket.DefaultCollection()
	s.logger.Info("couchbase connected", "bucket", cfg.Bucket)
	return s, nil
}

// Close shuts the cluster connection down.
func (s *Store) Close() error {
	if s.cluster == nil {
		return nil
	}
	return s.cluster.Close(nil)
}

// Get implements store.KeyValue.
func (s *Store) Get(ctx context.Context, key string) (*store.Item, error) {
	res, err := s.col.Get(key, &gocb.GetOptions{Context: ctx})
	if err != nil {
		return nil, classify(err, "get %q", key)
	}
	var raw json.RawMessage
	if err := res.Content(&raw); err != nil {
		return nil, dberr.Wrap(dberr.CodeSerialization, err, "get %q", key)
	}
	doc, err := value.Decode(raw)
	if err != nil {
		return nil, err
	}
	return &store.Item{Key: key, Doc: doc, CAS: store.CAS(res.Cas())}, nil
}

// Upsert implements store.KeyValue.
func (s *Store) Upsert(ctx context.Context, key string, doc value.Document) (store.CAS, error) {
	body, err := value.Encode(doc)
	if err != nil {
		return 0, err
	}
	res, err := s.col.Upsert(key, json.RawMessage(body), &gocb.UpsertOptions{Context: ctx})
	if err != nil {
		return 0, classify(err, "upsert %q", key)
	}
	return store.CAS(res.Cas()), nil
}

// Insert implements store.KeyValue.
func (s *Store) Insert(ctx context.Context, key string, doc value.Document) (store.CAS, error) {
	body, err := value.Encode(doc)
	if err != nil {
		return 0, err
	}
	res, err := s.col.Insert(key, json.RawMessage(body), &gocb.InsertOptions{Context: ctx})
	if err != nil {
		return 0, classify(err, "insert %q", key)
	}
	return store.CAS(res.Cas()), nil
}

// Replace implements store.KeyValue.
func (s *Store) Replace(ctx context.Context, key string, doc value.Document, cas store.CAS) (store.CAS, error) {
	body, err := value.Encode(doc)
	if err != nil {
		return 0, err
	}
	res, err := s.col.Replace(key, json.RawMessage(body), &gocb.ReplaceOptions{
		Cas:     gocb.Cas(cas),
		Context: ctx,
	})
	if err != nil {
		return 0, classify(err, "replace %q", key)
	}
	return store.CAS(res.Cas()), nil
}

// Remove implements store.KeyValue.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.col.Remove(key, &gocb.RemoveOptions{Context: ctx}); err != nil {
		return classify(err, "remove %q", key)
	}
	return nil
}

// Query implements store.Querier. All rows are read before returning.
func (s *Store) Query(ctx context.Context, statement string, opts store.QueryOptions) (*store.Result, error) {
	res, err := s.cluster.Query(statement, queryOptions(ctx, opts))
	if err != nil {
		return nil, classify(err, "query")
	}
	defer res.Close()

	out := &store.Result{}
	for res.Next() {
		var raw json.RawMessage
		if err := res.Row(&raw); err != nil {
			return nil, dberr.Wrap(dberr.CodeSerialization, err, "decode row")
		}
		var row any
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, dberr.Wrap(dberr.CodeSerialization, err, "decode row")
		}
		out.Rows = append(out.Rows, store.RowDocument(row))
	}
	if err := res.Err(); err != nil {
		return nil, classify(err, "query")
	}

	meta, err := res.MetaData()
	if err != nil {
		s.logger.WarnContext(ctx, "query metadata unavailable", "error", err)
		out.Metrics.ResultCount = uint64(len(out.Rows))
		return out, nil
	}
	out.Metrics = metricsOf(meta.Metrics)
	return out, nil
}

// queryOptions translates store options for the SDK. Metrics are always
// requested; pagination reads the sort count from them.
func queryOptions(ctx context.Context, opts store.QueryOptions) *gocb.QueryOptions {
	qo := &gocb.QueryOptions{
		ScanConsistency: scanConsistency(opts.Consistency),
		Metrics:         true,
		Timeout:         opts.Timeout,
		Context:         ctx,
		Adhoc:           true,
	}
	if len(opts.Bindings) > 0 {
		qo.PositionalParameters = encodeBindings(opts.Bindings)
	}
	return qo
}

// encodeBindings strips Missing from every positional value.
func encodeBindings(bindings []any) []any {
	out := make([]any, len(bindings))
	for i, b := range bindings {
		out[i] = value.StripMissing(b)
	}
	return out
}

func scanConsistency(c store.Consistency) gocb.QueryScanConsistency {
	if c == store.NotBounded {
		return gocb.QueryScanConsistencyNotBounded
	}
	return gocb.QueryScanConsistencyRequestPlus
}

func metricsOf(m gocb.QueryMetrics) store.Metrics {
	return store.Metrics{
		ElapsedTime:   m.ElapsedTime,
		ResultCount:   m.ResultCount,
		MutationCount: m.MutationCount,
		SortCount:     m.SortCount,
	}
}

// classify maps SDK errors onto dberr codes.
func classify(err error, format string, args ...any) error {
	code := dberr.CodeQueryFailed
	switch {
	case errors.Is(err, gocb.ErrDocumentNotFound):
		code = dberr.CodeNotFound
	case errors.Is(err, gocb.ErrDocumentExists):
		code = dberr.CodeConstraint
	case errors.Is(err, gocb.ErrCasMismatch):
		code = dberr.CodeConflict
	case errors.Is(err, gocb.ErrParsingFailure),
		errors.Is(err, gocb.ErrPlanningFailure):
		code = dberr.CodeQuerySyntax
	case errors.Is(err, gocb.ErrTimeout),
		errors.Is(err, gocb.ErrAmbiguousTimeout),
		errors.Is(err, gocb.ErrUnambiguousTimeout),
		errors.Is(err, gocb.ErrTemporaryFailure),
		errors.Is(err, gocb.ErrOverload),
		errors.Is(err, gocb.ErrDocumentLocked),
		errors.Is(err, gocb.ErrRequestCanceled),
		errors.Is(err, context.DeadlineExceeded):
		code = dberr.CodeTransient
	case errors.Is(err, gocb.ErrServiceNotAvailable),
		errors.Is(err, gocb.ErrFeatureNotAvailable):
		code = dberr.CodeUnavailable
	}
	return dberr.Wrap(code, err, format, args...)
}
