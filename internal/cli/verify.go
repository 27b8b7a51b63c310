package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulefire/internal/ir"
	"github.com/roach88/rulefire/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
	Session  string
}

// SessionCheck is the verification outcome for one session.
type SessionCheck struct {
	Session  string   `json:"session"`
	Firings  int      `json:"firings"`
	Problems []string `json:"problems,omitempty"`
}

// VerifyResult holds the verify command output.
type VerifyResult struct {
	Consistent bool           `json:"consistent"`
	Sessions   []SessionCheck `json:"sessions"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the firing journal for consistency",
		Long: `Check that every journaled firing is self-consistent.

For each firing, the tuple hash is recomputed from the bound handles and the
firing id from (session, rule, tuple hash, seq). Firing seqs must increase.
Within a firing, effect event seqs must increase. Applied firings must not
carry an error and failed firings must carry an error code.

Exit codes:
  0 - Journal is consistent
  1 - One or more problems found
  2 - Command error (database not found, etc.)

Examples:
  rulefire verify --db ./rulefire.db
  rulefire verify --db ./rulefire.db --session 0192f0c4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "verify one session (default: all)")

	return cmd
}

func runVerify(ctx context.Context, opts *VerifyOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openJournal(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open database", err)
	}
	defer st.Close()

	sessions := []string{opts.Session}
	if opts.Session == "" {
		sessions, err = st.ListSessions(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to list sessions", err)
		}
	}

	result := VerifyResult{Consistent: true, Sessions: make([]SessionCheck, 0, len(sessions))}
	for _, s := range sessions {
		firings, err := st.ReadSession(ctx, s)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to read session", err)
		}
		formatter.VerboseLog("Verifying %s (%d firings)", s, len(firings))

		check := SessionCheck{Session: s, Firings: len(firings), Problems: verifySession(s, firings)}
		if len(check.Problems) > 0 {
			result.Consistent = false
		}
		result.Sessions = append(result.Sessions, check)
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Consistent {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeInconsistent, Message: "journal is inconsistent"}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		outputVerifyText(formatter, result)
	}

	if !result.Consistent {
		return NewExitError(ExitFailure, "journal is inconsistent")
	}
	return nil
}

// verifySession returns every inconsistency found in one session's firings,
// which ReadSession returns in seq order.
func verifySession(session string, firings []store.Firing) []string {
	var problems []string
	var lastSeq int64

	for _, f := range firings {
		where := fmt.Sprintf("firing %d (%s)", f.Seq, f.RuleID)

		if f.Seq <= lastSeq {
			problems = append(problems, fmt.Sprintf("%s: seq does not increase (previous %d)", where, lastSeq))
		}
		lastSeq = f.Seq

		tuple := make([]ir.Fact, len(f.Tuple))
		for i, h := range f.Tuple {
			tuple[i] = ir.Fact{Handle: h}
		}
		tupleHash, err := ir.TupleHash(tuple)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", where, err))
			continue
		}
		if tupleHash != f.TupleHash {
			problems = append(problems, fmt.Sprintf("%s: tuple hash does not match tuple", where))
		}

		id, err := ir.FiringID(session, f.RuleID, f.TupleHash, f.Seq)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", where, err))
			continue
		}
		if id != f.ID {
			problems = append(problems, fmt.Sprintf("%s: id does not match content", where))
		}

		switch f.Status {
		case store.StatusApplied:
			if f.Error != "" || f.ErrorCode != "" {
				problems = append(problems, fmt.Sprintf("%s: applied firing carries an error", where))
			}
		case store.StatusFailed:
			if f.ErrorCode == "" {
				problems = append(problems, fmt.Sprintf("%s: failed firing has no error code", where))
			}
		}

		// Event seqs restart when a session is resumed in a new process, so
		// ordering is only checked within a firing.
		var lastEvent int64
		for _, e := range f.Effects {
			if e.EventSeq <= lastEvent {
				problems = append(problems, fmt.Sprintf("%s: effect event %d out of order", where, e.EventSeq))
			}
			lastEvent = e.EventSeq
		}
	}
	return problems
}

func outputVerifyText(f *OutputFormatter, result VerifyResult) {
	w := f.Writer
	if len(result.Sessions) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}
	for _, s := range result.Sessions {
		if len(s.Problems) == 0 {
			fmt.Fprintf(w, "✓ %s (%d firings)\n", s.Session, s.Firings)
			continue
		}
		fmt.Fprintf(w, "✗ %s (%d firings)\n", s.Session, s.Firings)
		for _, p := range s.Problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	fmt.Fprintln(w)
	if result.Consistent {
		fmt.Fprintln(w, "✓ Journal is consistent")
		return
	}
	fmt.Fprintln(w, "✗ Journal is inconsistent")
}
