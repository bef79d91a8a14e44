package cli

import (
	"encoding/json"
	"fmt"

	"facette.io/natsort"
	"github.com/spf13/cobra"

	"github.com/roach88/actionbus/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Workflow string                     `json:"workflow,omitempty"`
	Actions  []string                   `json:"actions,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Cycles   []compiler.CycleWarning    `json:"cycles,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow-dir>",
		Short: "Validate a workflow without running it",
		Long: `Validate a CUE workflow without running it.

Checks the CUE package compiles, every reference resolves, handlers and
rollbacks exist in the built-in catalog and required actions form no
cycle. Loops through subscriptions, triggers and dispatched events are
reported as warnings.

Exit codes:
  0 - Workflow valid
  1 - Validation errors
  2 - Command error (directory not found, CUE errors, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loaded, err := LoadWorkflow(dir)
	if err != nil {
		code, message := loadErrorCode(err)
		return outputValidateError(formatter, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	result := ValidationResult{
		Valid:    loaded.Valid(),
		Workflow: loaded.Workflow.Name,
		Actions:  actionIDs(loaded),
		Errors:   loaded.Errors,
		Cycles:   loaded.Cycles,
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// actionIDs returns the workflow's action ids in natural order.
func actionIDs(loaded *LoadResult) []string {
	ids := make([]string, 0, len(loaded.Workflow.Actions))
	for _, a := range loaded.Workflow.Actions {
		ids = append(ids, a.ID)
	}
	natsort.Sort(ids)
	return ids
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Workflow %s valid (%d actions)\n", result.Workflow, len(result.Actions))
	if formatter.Verbose {
		for _, id := range result.Actions {
			fmt.Fprintf(formatter.Writer, "  %s\n", id)
		}
	}
	for _, c := range result.Cycles {
		fmt.Fprintf(formatter.Writer, "%s: %s\n", c.Level, c.Message)
	}
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
