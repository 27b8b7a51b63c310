package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulefire/internal/compiler"
	"github.com/roach88/rulefire/internal/ir"
	"github.com/roach88/rulefire/internal/memory"
	"github.com/roach88/rulefire/internal/session"
	"github.com/roach88/rulefire/internal/store"
)

// FireOptions holds flags for the fire command.
type FireOptions struct {
	*RootOptions
	Rule       string
	FactsFile  string
	Bind       []string
	Database   string
	Session    string
	MaxFirings int
}

// FactView is a fact as printed by the CLI.
type FactView struct {
	Handle string   `json:"handle"`
	Value  ir.Value `json:"value"`
}

// FireResult holds the fire command output.
type FireResult struct {
	Session string       `json:"session"`
	Firing  store.Firing `json:"firing"`
	Facts   []FactView   `json:"facts"`
}

// NewFireCommand creates the fire command.
func NewFireCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FireOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fire <rules-dir>",
		Short: "Fire one rule against a set of facts",
		Long: `Fire a single rule consequence against facts loaded from a file.

Facts are read from a YAML or JSON list and inserted in order, so the first
fact has handle #1. Each --bind flag binds one of the rule's pattern
variables to a handle. The firing's effects and the resulting working memory
are printed.

With --db the firing is journaled. Passing --session appends to an existing
journaled session; the logical clock continues after its last firing.

Examples:
  rulefire fire ./rules --rule older-than --facts people.yaml --bind '$p1=1' --bind '$p2=2'
  rulefire fire ./rules --rule birthday --facts people.yaml --bind '$p=#1' --db rulefire.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFire(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Rule, "rule", "", "id of the rule to fire (required)")
	_ = cmd.MarkFlagRequired("rule")
	cmd.Flags().StringVar(&opts.FactsFile, "facts", "", "YAML or JSON list of facts (required)")
	_ = cmd.MarkFlagRequired("facts")
	cmd.Flags().StringArrayVar(&opts.Bind, "bind", nil, "bind a variable to a handle, e.g. '$p=1' (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal the firing to this SQLite database")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session token (default: new UUIDv7)")
	cmd.Flags().IntVar(&opts.MaxFirings, "max-firings", session.DefaultMaxFirings, "session firing quota")

	return cmd
}

func runFire(ctx context.Context, opts *FireOptions, rulesDir string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, loadErrs := loadRules(rulesDir, compiler.LoadModeFailFast)
	if loaded == nil || len(loadErrs) > 0 {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to load rules", loadErrs[0])
	}

	facts, err := loadFacts(opts.FactsFile)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeFacts, "failed to load facts", err)
	}

	bindings, err := parseBindings(opts.Bind)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid --bind", err)
	}

	sessOpts := []session.Option{
		session.WithRules(loaded.Rules...),
		session.WithMaxFirings(opts.MaxFirings),
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open database", err)
		}
		defer st.Close()
		sessOpts = append(sessOpts, session.WithJournal(st))

		if opts.Session != "" {
			last, err := st.LastSeq(ctx, opts.Session)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to read session", err)
			}
			sessOpts = append(sessOpts, session.WithClock(memory.NewClockAt(last)))
		}
	}
	if opts.Session != "" {
		sessOpts = append(sessOpts, session.WithTokenGenerator(session.StaticToken(opts.Session)))
	}

	sess := session.New(memory.New(), sessOpts...)
	for i, v := range facts {
		h, err := sess.Insert(ctx, v)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeFacts, fmt.Sprintf("failed to insert fact %d", i), err)
		}
		formatter.VerboseLog("Inserted %s", h)
	}

	rec, fireErr := sess.Fire(ctx, opts.Rule, bindings)
	if fireErr != nil && rec.ID == "" {
		// Rejected before anything ran: nothing to show but the error.
		return formatter.Fail(ExitFailure, ErrCodeFiring, "firing rejected", fireErr)
	}

	result := FireResult{
		Session: sess.Token(),
		Firing:  rec,
		Facts:   factViews(sess.Memory()),
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if fireErr != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeFiring, Message: fireErr.Error()}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		outputFireText(formatter, result)
	}

	if fireErr != nil {
		return WrapExitError(ExitFailure, "firing failed", fireErr)
	}
	return nil
}

func factViews(mem *memory.Memory) []FactView {
	facts := mem.Facts()
	out := make([]FactView, len(facts))
	for i, f := range facts {
		out[i] = FactView{Handle: f.Handle.String(), Value: f.Value}
	}
	return out
}

func outputFireText(f *OutputFormatter, result FireResult) {
	w := f.Writer
	rec := result.Firing

	mark := "✓"
	if rec.Status == store.StatusFailed {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s [%d] %s\n", mark, rec.RuleID, rec.Seq, rec.Status)
	if rec.Error != "" {
		fmt.Fprintf(w, "  error: %s (%s)\n", rec.ErrorCode, rec.Error)
	}
	if f.Verbose {
		fmt.Fprintf(w, "  session: %s\n", result.Session)
		fmt.Fprintf(w, "  firing:  %s\n", rec.ID)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Effects ===")
	if len(rec.Effects) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, e := range rec.Effects {
		fmt.Fprintf(w, "  [%d] %s\n", e.EventSeq, formatEffect(e))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Facts ===")
	if len(result.Facts) == 0 {
		fmt.Fprintln(w, "  (empty)")
	}
	for _, fact := range result.Facts {
		fmt.Fprintf(w, "  %s %s\n", fact.Handle, formatValue(fact.Value))
	}
}
