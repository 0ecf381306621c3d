package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/n1qlorm/internal/harness"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledStatement is one statement a step would send.
type CompiledStatement struct {
	Op        string `json:"op"`
	Statement string `json:"statement"`
	Bindings  []any  `json:"bindings,omitempty"`
}

// CompiledStep is the compilation output of one flow step.
type CompiledStep struct {
	Name       string              `json:"name"`
	Op         string              `json:"op"`
	Statements []CompiledStatement `json:"statements"`
	Error      string              `json:"error,omitempty"`
}

// CompilationResult holds the statements of every step of a scenario.
type CompilationResult struct {
	Scenario string         `json:"scenario"`
	Steps    []CompiledStep `json:"steps"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <scenario.yaml>",
		Short: "Print the N1QL a scenario compiles to",
		Long: `Compile every step of a scenario and print the statements and
positional bindings it would send. Nothing is sent to a cluster: the
scenario runs against an in-memory store and its scripted responses.

Example:
  n1ql compile ./scenarios/sorted_page.yaml
  n1ql compile ./scenarios/sorted_page.yaml -o statements.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	formatter.VerboseLog("Loaded scenario %s with %d step(s)", scenario.Name, len(scenario.Flow))

	run, err := harness.Run(scenario)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to compile scenario", err)
	}
	result := compilationOf(scenario.Name, run)

	if opts.Output != "" {
		if err := writeCompilation(result, opts.Output); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	printCompilation(formatter, result)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote statements to %s\n", opts.Output)
	}
	return nil
}

// compilationOf groups the statements of a run by step. Key-value calls
// are left out; sql and inline steps contribute their compiled text.
func compilationOf(name string, run *harness.Result) CompilationResult {
	result := CompilationResult{Scenario: name, Steps: make([]CompiledStep, 0, len(run.Steps))}
	stmts := run.Statements()
	for _, sr := range run.Steps {
		step := CompiledStep{Name: sr.Name, Op: sr.Op, Statements: []CompiledStatement{}, Error: sr.Error}
		if sr.SQL != "" {
			step.Statements = append(step.Statements, CompiledStatement{Op: sr.Op, Statement: sr.SQL, Bindings: sr.Bindings})
		}
		for _, ev := range stmts {
			if ev.Step == sr.Name {
				step.Statements = append(step.Statements, CompiledStatement{Op: ev.Op, Statement: ev.Statement, Bindings: ev.Bindings})
			}
		}
		result.Steps = append(result.Steps, step)
	}
	return result
}

func printCompilation(f *OutputFormatter, result CompilationResult) {
	fmt.Fprintf(f.Writer, "Scenario %s\n\n", result.Scenario)
	for _, step := range result.Steps {
		fmt.Fprintf(f.Writer, "%s (%s)\n", step.Name, step.Op)
		if step.Error != "" {
			fmt.Fprintf(f.Writer, "  error: %s\n", step.Error)
		}
		if len(step.Statements) == 0 && step.Error == "" {
			fmt.Fprintln(f.Writer, "  (key-value only)")
		}
		for _, s := range step.Statements {
			fmt.Fprintf(f.Writer, "  %s\n", s.Statement)
			if len(s.Bindings) > 0 {
				b, _ := json.Marshal(s.Bindings)
				fmt.Fprintf(f.Writer, "  bindings: %s\n", b)
			}
		}
		fmt.Fprintln(f.Writer)
	}
}

// writeCompilation writes the result as indented JSON.
func writeCompilation(result CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling statements: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
