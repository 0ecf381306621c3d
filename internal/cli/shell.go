package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/store"
)

// prompter reads input lines. *liner.State implements it.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// keyLister is implemented by backends that can scan keys, such as the
// local badger store.
type keyLister interface {
	Keys(ctx context.Context, prefix string, limit int) ([]string, error)
}

var shellCommands = []string{".exit", ".get", ".help", ".keys", ".quit"}

const shellHelp = `Other lines are sent as N1QL statements with the configured consistency.
  .get <key>            read a document by key
  .keys [prefix] [n]    list keys (local backend only)
  .help                 show this help
  .quit, .exit          leave the shell`

// NewShellCommand creates the shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive N1QL shell",
		Long: `Open an interactive shell on the configured backend. Lines are sent
as N1QL statements; lines starting with a dot are shell commands.

When metrics_addr (N1QL_METRICS_ADDR) is set, Prometheus metrics for the
session are served on it at /metrics.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(rootOpts, cmd)
		},
	}

	return cmd
}

func runShell(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	logger := newLogger(opts, cfg)

	ctx := cmd.Context()
	sess, err := openSession(ctx, cfg, logger)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	defer sess.Close()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", sess.metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(s string) []string {
		var out []string
		for _, c := range shellCommands {
			if strings.HasPrefix(c, s) {
				out = append(out, c)
			}
		}
		return out
	})

	fmt.Fprintf(formatter.Writer, "Connected to bucket %s (%s). Type .help for help.\n", cfg.Bucket, cfg.Backend)
	return shellLoop(ctx, sess.conn, sess.kv, line, formatter)
}

// shellLoop reads lines until EOF or .quit. Statement errors are printed
// and the loop continues.
func shellLoop(ctx context.Context, conn *engine.Connection, kv store.KeyValue, p prompter, f *OutputFormatter) error {
	for {
		input, err := p.Prompt("n1ql> ")
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(f.Writer)
			return nil
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read input", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		p.AppendHistory(input)

		if strings.HasPrefix(input, ".") {
			quit, err := shellCommand(ctx, conn, kv, input, f)
			if err != nil {
				fmt.Fprintf(f.Writer, "Error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		res, err := conn.Statement(ctx, strings.TrimSuffix(input, ";"), nil, engine.RunOptions{})
		if err != nil {
			fmt.Fprintf(f.Writer, "Error: %v\n", err)
			continue
		}
		for _, row := range res.Rows {
			_ = printJSON(f.Writer, row)
		}
		summary := fmt.Sprintf("%d row(s)", len(res.Rows))
		if res.Metrics.MutationCount > 0 {
			summary += fmt.Sprintf(", %d mutation(s)", res.Metrics.MutationCount)
		}
		fmt.Fprintf(f.Writer, "%s in %s\n", summary, res.Metrics.ElapsedTime)
	}
}

func shellCommand(ctx context.Context, conn *engine.Connection, kv store.KeyValue, input string, f *OutputFormatter) (bool, error) {
	fields := strings.Fields(input)
	switch fields[0] {
	case ".quit", ".exit":
		return true, nil
	case ".help":
		fmt.Fprintln(f.Writer, shellHelp)
		return false, nil
	case ".get":
		if len(fields) != 2 {
			return false, errors.New("usage: .get <key>")
		}
		item, err := conn.Get(ctx, fields[1])
		if err != nil {
			return false, err
		}
		return false, printJSON(f.Writer, item.Doc)
	case ".keys":
		lister, ok := kv.(keyLister)
		if !ok {
			return false, errors.New(".keys is not supported by this backend")
		}
		prefix, limit := "", 20
		if len(fields) > 1 {
			prefix = fields[1]
		}
		if len(fields) > 2 {
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				return false, fmt.Errorf("invalid limit %q", fields[2])
			}
			limit = n
		}
		keys, err := lister.Keys(ctx, prefix, limit)
		if err != nil {
			return false, err
		}
		for _, k := range keys {
			fmt.Fprintln(f.Writer, k)
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s (try .help)", fields[0])
	}
}
