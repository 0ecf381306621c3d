package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/n1qlorm/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal  string
	Limit    int
	Failures bool
}

// HistoryEntry is one journaled statement as printed by history.
type HistoryEntry struct {
	ID          int64     `json:"id"`
	Seq         int64     `json:"seq"`
	Op          string    `json:"op"`
	Statement   string    `json:"statement"`
	Bindings    string    `json:"bindings"`
	Consistency string    `json:"consistency,omitempty"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	DurationUS  int64     `json:"duration_us"`
	Rows        uint64    `json:"rows"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// HistoryResult holds the history output.
type HistoryResult struct {
	Entries []HistoryEntry `json:"entries"`
	Failed  int            `json:"failed"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled statements",
		Long: `Show the most recent statements and key-value calls recorded in the
statement journal, oldest first.

The journal is the SQLite file named by journal_path (N1QL_JOURNAL_PATH)
or --journal. Entry IDs can be passed to replay.

Examples:
  n1ql history --journal ./n1ql.db
  n1ql history --journal ./n1ql.db --limit 5 --failures
  n1ql history --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "journal path (default from config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of entries to show; 0 for all")
	cmd.Flags().BoolVar(&opts.Failures, "failures", false, "only show failed statements")

	return cmd
}

// journalFor opens the journal named by --journal, or by the config.
func journalFor(opts *RootOptions, path string) (*journal.Journal, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		cfg.JournalPath = path
	}
	return openJournal(cfg)
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	j, err := journalFor(opts.RootOptions, opts.Journal)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	defer j.Close()

	var entries []journal.Entry
	if opts.Failures {
		entries, err = j.Failures(cmd.Context(), opts.Limit)
	} else {
		entries, err = j.Recent(cmd.Context(), opts.Limit)
	}
	if err != nil {
		return formatter.Fail("failed to read journal", err)
	}

	result := HistoryResult{Entries: make([]HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		if !e.Success {
			result.Failed++
		}
		result.Entries = append(result.Entries, HistoryEntry{
			ID:          e.ID,
			Seq:         e.Seq,
			Op:          e.Operation,
			Statement:   e.Statement,
			Bindings:    e.Bindings,
			Consistency: e.Consistency,
			Success:     e.Success,
			Error:       e.Error,
			DurationUS:  e.Duration.Microseconds(),
			Rows:        e.RowCount,
			RecordedAt:  e.RecordedAt,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	printHistory(formatter, result)
	return nil
}

func printHistory(f *OutputFormatter, result HistoryResult) {
	if len(result.Entries) == 0 {
		fmt.Fprintln(f.Writer, "No statements recorded.")
		return
	}
	for _, e := range result.Entries {
		mark := "✓"
		if !e.Success {
			mark = "✗"
		}
		fmt.Fprintf(f.Writer, "%s #%d [%s] %s\n", mark, e.ID, e.Op, oneLine(e.Statement))
		details := []string{fmt.Sprintf("rows=%d", e.Rows), fmt.Sprintf("took=%s", time.Duration(e.DurationUS)*time.Microsecond)}
		if e.Bindings != "" && e.Bindings != "[]" {
			details = append(details, "bindings="+e.Bindings)
		}
		if e.Consistency != "" {
			details = append(details, "consistency="+e.Consistency)
		}
		fmt.Fprintf(f.Writer, "    %s\n", strings.Join(details, " "))
		if e.Error != "" {
			fmt.Fprintf(f.Writer, "    error: %s\n", e.Error)
		}
	}
	fmt.Fprintf(f.Writer, "\n%d entries, %d failed\n", len(result.Entries), result.Failed)
}

// oneLine collapses whitespace runs so multi-line statements print on one
// line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
