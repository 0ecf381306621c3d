package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/n1qlorm/internal/harness"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario against the configured backend",
		Long: `Run a scenario against a real backend instead of the scripted query
service. Seed documents are upserted first, then every flow step runs and
its statements are logged, journaled and counted like any other traffic.

The backend comes from --config and N1QL_* environment variables. With
backend "local" key-value steps run against badger and statements fail
with UNAVAILABLE.

Example:
  n1ql run ./scenarios/unset_by_key.yaml --config cluster.yaml
  N1QL_BACKEND=local n1ql run ./scenarios/owned_roles.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioLive(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runScenarioLive(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	logger := newLogger(opts, cfg)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cancelling", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	rec := harness.NewRecorder(logger)
	sess, err := openSession(ctx, cfg, logger, rec)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Error("error closing session", "error", closeErr)
		}
	}()
	rec.Attach(sess.conn)

	logger.Info("running scenario", "name", scenario.Name, "backend", cfg.Backend, "bucket", cfg.Bucket)
	result, err := harness.RunOn(ctx, rec, scenario)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "scenario failed", err)
	}

	if opts.Format == "json" {
		if !result.Pass {
			response := CLIResponse{
				Status: "error",
				Data:   result,
				Error:  &CLIError{Code: "E_SCENARIO_FAILED", Message: result.Errors[0]},
			}
			encoder := json.NewEncoder(formatter.Writer)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(response); err != nil {
				return err
			}
			return NewExitError(ExitFailure, fmt.Sprintf("%d check(s) failed", len(result.Errors)))
		}
		return formatter.Success(result)
	}

	printRun(formatter, scenario.Name, result)
	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("%d check(s) failed", len(result.Errors)))
	}
	return nil
}

func printRun(f *OutputFormatter, name string, result *harness.Result) {
	for _, step := range result.Steps {
		mark := "✓"
		if step.Error != "" {
			mark = "✗"
		}
		fmt.Fprintf(f.Writer, "%s %s (%s)", mark, step.Name, step.Op)
		if step.Error != "" {
			fmt.Fprintf(f.Writer, ": %s", step.Error)
		}
		fmt.Fprintln(f.Writer)
	}
	fmt.Fprintf(f.Writer, "\n%d statement(s), %d key-value call(s)\n",
		len(result.Statements()), len(result.Trace)-len(result.Statements()))

	if result.Pass {
		fmt.Fprintf(f.Writer, "✓ %s passed\n", name)
		return
	}
	fmt.Fprintf(f.Writer, "✗ %s failed\n", name)
	for _, e := range result.Errors {
		fmt.Fprintf(f.Writer, "  %s\n", e)
	}
}
