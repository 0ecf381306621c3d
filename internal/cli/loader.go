package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/n1qlorm/internal/config"
	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/journal"
	"github.com/roach88/n1qlorm/internal/metrics"
	"github.com/roach88/n1qlorm/internal/schema"
	"github.com/roach88/n1qlorm/internal/store"
	"github.com/roach88/n1qlorm/internal/store/badgerkv"
	"github.com/roach88/n1qlorm/internal/store/couchbase"
)

// ErrCodeGeneric is the CLI error code of failures without a dberr code.
const ErrCodeGeneric = schema.ErrCodeGeneric

// session is an open connection and everything hanging off it.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	conn    *engine.Connection
	kv      store.KeyValue
	journal *journal.Journal
	metrics *metrics.Collector

	closers []func() error
}

// loadConfig reads the --config file and N1QL_* environment overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger returns a text logger on stderr at the configured level, or
// Debug with --verbose.
func newLogger(opts *RootOptions, cfg *config.Config) *slog.Logger {
	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openSession opens the configured backend and a connection on it. The
// journal, when configured, and a metrics collector are registered as
// listeners along with extra.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, extra ...engine.Listener) (*session, error) {
	s := &session{cfg: cfg, logger: logger, metrics: metrics.New()}

	var querier store.Querier
	switch cfg.Backend {
	case config.BackendCouchbase:
		cb, err := couchbase.Open(ctx, couchbase.Config{
			ConnectionString: cfg.ConnectionString,
			Username:         cfg.Username,
			Password:         cfg.Password,
			Bucket:           cfg.Bucket,
			ConnectTimeout:   cfg.ConnectTimeout,
		}, couchbase.WithLogger(logger))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to connect", err)
		}
		s.kv, querier = cb, cb
		s.closers = append(s.closers, cb.Close)
	case config.BackendLocal:
		bs, err := badgerkv.Open(cfg.LocalPath, badgerkv.WithLogger(logger))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open local store", err)
		}
		s.kv = bs
		s.closers = append(s.closers, bs.Close)
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown backend %q", cfg.Backend))
	}

	var opts []engine.Option
	listeners := []engine.Listener{engine.LogListener(logger), s.metrics}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			_ = s.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		s.journal = j.WithLogger(logger)
		s.closers = append(s.closers, j.Close)
		listeners = append(listeners, j)

		// Continue numbering where the previous session stopped.
		last, err := j.LastSeq(ctx)
		if err != nil {
			_ = s.Close()
			return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		opts = append(opts, engine.WithSequence(engine.NewSequenceAt(last)))
	}
	listeners = append(listeners, extra...)

	opts = append(opts,
		engine.WithLogger(logger),
		engine.WithConsistency(cfg.ScanConsistency()),
		engine.WithInlineParameters(cfg.InlineParameters),
		engine.WithQueryTimeout(cfg.QueryTimeout),
		engine.WithTypeField(cfg.TypeField),
		engine.WithKVConcurrency(cfg.KVConcurrency),
	)
	for _, l := range listeners {
		opts = append(opts, engine.WithListener(l))
	}

	// The local backend has no query service: statements fail with
	// UNAVAILABLE.
	conn, err := engine.New(cfg.Bucket, s.kv, querier, opts...)
	if err != nil {
		_ = s.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create connection", err)
	}
	s.conn = conn
	s.closers = append(s.closers, conn.Close)
	return s, nil
}

// Close closes everything the session opened, newest first.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// openJournal opens the configured journal for reading.
func openJournal(cfg *config.Config) (*journal.Journal, error) {
	if cfg.JournalPath == "" {
		return nil, NewExitError(ExitCommandError, "no journal configured (set journal_path or N1QL_JOURNAL_PATH)")
	}
	if _, err := os.Stat(cfg.JournalPath); err != nil {
		return nil, WrapExitError(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}
