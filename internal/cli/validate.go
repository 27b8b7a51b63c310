package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulefire/internal/compiler"
	"github.com/roach88/rulefire/internal/consequence"
)

// RuleSummary describes one compiled rule.
type RuleSummary struct {
	ID               string   `json:"id"`
	Variables        []string `json:"variables"`
	Declarations     []string `json:"declarations"`
	Block            bool     `json:"block"`
	Updates          []string `json:"updates,omitempty"`
	Inserts          int      `json:"inserts"`
	Deletes          []string `json:"deletes,omitempty"`
	PropertyReactive bool     `json:"property_reactive"`
}

// ValidationIssue is one compile error, with its source position when known.
type ValidationIssue struct {
	Rule    string `json:"rule,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	FileCount int               `json:"file_count"`
	Rules     []RuleSummary     `json:"rules"`
	Errors    []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules-dir>",
		Short: "Compile rules and report errors",
		Long: `Compile every CUE rule in a directory and report what each one does.

All compile errors are collected, not just the first. A rule that names a Go
block cannot be compiled from the command line and is reported as an error.

Examples:
  rulefire validate ./rules
  rulefire validate ./rules --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, loadErrs := loadRules(rulesDir, compiler.LoadModeCollectAll)
	if loaded == nil {
		err := errors.Join(loadErrs...)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, exitErr.Message, nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to load rules", err)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, rulesDir)

	result := ValidationResult{
		Valid:     len(loadErrs) == 0,
		FileCount: loaded.FileCount,
		Rules:     make([]RuleSummary, 0, len(loaded.Rules)),
	}
	for _, r := range loaded.Rules {
		formatter.VerboseLog("Compiled rule: %s", r.ID)
		result.Rules = append(result.Rules, summarizeRule(r))
	}
	for _, err := range loadErrs {
		result.Errors = append(result.Errors, toIssue(err))
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeCompile,
				Message: fmt.Sprintf("%d rule(s) failed to compile", len(result.Errors)),
			}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		outputValidateText(formatter, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d rule(s) failed to compile", len(result.Errors)))
	}
	return nil
}

func summarizeRule(r *consequence.Rule) RuleSummary {
	s := RuleSummary{
		ID:               r.ID,
		Variables:        make([]string, 0, r.Context.Len()),
		Declarations:     make([]string, 0, len(r.Declarations)),
		PropertyReactive: r.PropertyReactive,
	}
	for _, v := range r.Context.Variables() {
		s.Variables = append(s.Variables, string(v))
	}
	for _, d := range r.Declarations {
		decl := string(d.Name)
		if d.Field != "" {
			decl = fmt.Sprintf("%s=%s.%s", d.Name, r.Context.Variables()[d.Index], d.Field)
		}
		s.Declarations = append(s.Declarations, decl)
	}
	spec := r.Consequence
	s.Block = spec.Block != nil
	for _, u := range spec.Updates {
		s.Updates = append(s.Updates, fmt.Sprintf("%s[%s]", u.Variable, u.Mask))
	}
	s.Inserts = len(spec.Inserts)
	for _, d := range spec.Deletes {
		s.Deletes = append(s.Deletes, string(d))
	}
	return s
}

func toIssue(err error) ValidationIssue {
	var cErr *compiler.CompileError
	if !errors.As(err, &cErr) {
		return ValidationIssue{Message: err.Error()}
	}
	issue := ValidationIssue{
		Rule:    cErr.Rule,
		Field:   cErr.Field,
		Message: cErr.Message,
	}
	if cErr.Pos.IsValid() {
		issue.File = cErr.Pos.Filename()
		issue.Line = cErr.Pos.Line()
	}
	return issue
}

func outputValidateText(f *OutputFormatter, result ValidationResult) {
	w := f.Writer
	for _, r := range result.Rules {
		fmt.Fprintf(w, "✓ %s (%s)\n", r.ID, strings.Join(r.Variables, ", "))
		if f.Verbose {
			fmt.Fprintf(w, "    declarations: %s\n", strings.Join(r.Declarations, ", "))
			fmt.Fprintf(w, "    block: %t  updates: %v  inserts: %d  deletes: %v\n",
				r.Block, r.Updates, r.Inserts, r.Deletes)
		}
	}
	for _, issue := range result.Errors {
		switch {
		case issue.Line > 0:
			fmt.Fprintf(w, "✗ %s:%d: %s\n", issue.File, issue.Line, issue.Message)
		case issue.Rule != "":
			fmt.Fprintf(w, "✗ %s: %s: %s\n", issue.Rule, issue.Field, issue.Message)
		default:
			fmt.Fprintf(w, "✗ %s\n", issue.Message)
		}
	}

	fmt.Fprintln(w)
	if result.Valid {
		fmt.Fprintf(w, "✓ %d rule(s) valid in %d file(s)\n", len(result.Rules), result.FileCount)
		return
	}
	fmt.Fprintf(w, "✗ %d rule(s) failed to compile\n", len(result.Errors))
}
