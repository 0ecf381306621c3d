package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/n1qlorm/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	TypeField string
}

// ValidationIssue is one problem found in the models directory.
type ValidationIssue struct {
	Model   string `json:"model,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Models []string          `json:"models,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <models-dir>",
		Short: "Validate CUE model declarations",
		Long: `Load every model declared under "model" in a CUE package and check
document types, attribute names, indexes and relations.

All problems are reported, not just the first one.

Exit codes:
  0 - All models valid
  1 - Validation failed
  2 - Command error (directory missing, no CUE files, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.TypeField, "type-field", "", "discriminator field (default from config)")

	return cmd
}

func runValidate(opts *ValidateOptions, modelsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	typeField := opts.TypeField
	if typeField == "" {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return err
		}
		typeField = cfg.TypeField
	}

	loadResult, loadErrors := schema.Load(modelsDir, schema.LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *schema.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, modelsDir)

	var issues []ValidationIssue
	for _, err := range loadErrors {
		issues = append(issues, issueOf(err))
	}
	for _, ve := range schema.Validate(loadResult.Models, typeField) {
		issues = append(issues, ValidationIssue{Model: ve.Model, Field: ve.Field, Message: ve.Message, Code: ve.Code})
	}

	names := make([]string, 0, len(loadResult.Models))
	for _, m := range loadResult.Models {
		formatter.VerboseLog("Validated model %s (type %s)", m.Name, m.Type)
		names = append(names, m.Name)
	}

	if len(issues) > 0 {
		return outputValidationErrors(formatter, names, issues)
	}
	return outputValidateSuccess(formatter, names)
}

func issueOf(err error) ValidationIssue {
	var loadErr *schema.LoadError
	if errors.As(err, &loadErr) {
		return ValidationIssue{Field: "load", Message: loadErr.Message, Code: loadErr.Code, Line: lineOf(loadErr.Pos)}
	}
	return ValidationIssue{Field: "load", Message: err.Error(), Code: ErrCodeGeneric}
}

func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

func outputValidateSuccess(formatter *OutputFormatter, models []string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Models: models})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d model(s) valid\n", len(models))
	return nil
}

func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

func outputValidationErrors(formatter *OutputFormatter, models []string, issues []ValidationIssue) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Models: models, Errors: issues},
			Error:  &CLIError{Code: issues[0].Code, Message: issues[0].Message},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		where := issue.Field
		if issue.Model != "" {
			where = issue.Model + "." + issue.Field
		}
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", issue.Code, where, issue.Message)
	}
	return failure
}
