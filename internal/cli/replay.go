package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/journal"
	"github.com/roach88/n1qlorm/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Journal string
	DryRun  bool
}

// ReplayResult holds the outcome of a replayed statement.
type ReplayResult struct {
	ID            int64  `json:"id"`
	Statement     string `json:"statement"`
	Bindings      []any  `json:"bindings"`
	Consistency   string `json:"consistency"`
	Sent          bool   `json:"sent"`
	Rows          []any  `json:"rows,omitempty"`
	MutationCount uint64 `json:"mutation_count,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <id>",
		Short: "Rerun a journaled statement",
		Long: `Send a journaled statement again with the bindings and scan
consistency it was first sent with. Key-value calls cannot be replayed.

Exit codes:
  0 - Statement succeeded
  1 - Statement failed
  2 - Command error (journal missing, unknown entry, etc.)

Examples:
  n1ql replay 42 --journal ./n1ql.db
  n1ql replay 42 --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "journal path (default from config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the statement without sending it")

	return cmd
}

func runReplay(opts *ReplayOptions, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("invalid entry id %q", arg), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid entry id %q", arg))
	}

	j, err := journalFor(opts.RootOptions, opts.Journal)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	entry, err := j.Entry(cmd.Context(), id)
	_ = j.Close()
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read journal entry", err)
	}

	replay, cons, err := replayOf(entry)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "cannot replay entry", err)
	}

	if !opts.DryRun {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return err
		}
		logger := newLogger(opts.RootOptions, cfg)
		sess, err := openSession(cmd.Context(), cfg, logger)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return err
		}
		defer sess.Close()

		res, err := sess.conn.Statement(cmd.Context(), replay.Statement, replay.Bindings, engine.RunOptions{Consistency: cons})
		if err != nil {
			return formatter.Fail(fmt.Sprintf("replay of #%d failed", id), err)
		}
		replay.Sent = true
		replay.MutationCount = res.Metrics.MutationCount
		for _, row := range res.Rows {
			replay.Rows = append(replay.Rows, row)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(replay)
	}
	printReplay(formatter, replay)
	return nil
}

// replayOf decodes a journal entry into the statement to resend and its
// scan consistency.
func replayOf(e journal.Entry) (ReplayResult, store.Consistency, error) {
	if strings.HasPrefix(e.Operation, "kv.") {
		return ReplayResult{}, 0, fmt.Errorf("entry %d is a key-value call (%s)", e.ID, e.Operation)
	}
	bindings, err := decodeBindings(e.Bindings)
	if err != nil {
		return ReplayResult{}, 0, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	cons, err := store.ParseConsistency(e.Consistency)
	if err != nil {
		return ReplayResult{}, 0, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	return ReplayResult{
		ID:          e.ID,
		Statement:   e.Statement,
		Bindings:    bindings,
		Consistency: cons.String(),
	}, cons, nil
}

// decodeBindings parses a journaled JSON array. Integral numbers come back
// as int64 so keys and counts bind as they were sent.
func decodeBindings(s string) ([]any, error) {
	if s == "" {
		return []any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode bindings: %w", err)
	}
	out := make([]any, len(raw))
	for i, v := range raw {
		out[i] = numbersOf(v)
	}
	return out, nil
}

func numbersOf(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = numbersOf(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = numbersOf(t[k])
		}
		return t
	default:
		return v
	}
}

func printReplay(f *OutputFormatter, r ReplayResult) {
	fmt.Fprintf(f.Writer, "#%d %s\n", r.ID, oneLine(r.Statement))
	if len(r.Bindings) > 0 {
		b, _ := json.Marshal(r.Bindings)
		fmt.Fprintf(f.Writer, "bindings: %s\n", b)
	}
	fmt.Fprintf(f.Writer, "consistency: %s\n", r.Consistency)
	if !r.Sent {
		fmt.Fprintln(f.Writer, "(dry run, not sent)")
		return
	}
	if r.MutationCount > 0 {
		fmt.Fprintf(f.Writer, "mutations: %d\n", r.MutationCount)
	}
	fmt.Fprintf(f.Writer, "%d row(s)\n", len(r.Rows))
	for _, row := range r.Rows {
		_ = printJSON(f.Writer, row)
	}
}
