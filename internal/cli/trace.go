package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulefire/internal/ir"
	"github.com/roach88/rulefire/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Rule     string // optional - filter to one rule
	Handle   string // optional - show one fact's history instead
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session string         `json:"session"`
	Firings []store.Firing `json:"firings"`
	Stats   TraceStats     `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Firings int `json:"firings"`
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
	Effects int `json:"effects"`
}

// HistoryResult holds every journaled change to one fact.
type HistoryResult struct {
	Session string         `json:"session"`
	Handle  string         `json:"handle"`
	Effects []store.Effect `json:"effects"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled firings",
		Long: `Show the firings journaled for a session, in firing order.

Without --session, lists the sessions in the journal. With --handle, shows
every change the session made to that one fact instead.

Examples:
  rulefire trace --db ./rulefire.db
  rulefire trace --db ./rulefire.db --session 0192f0c4-...
  rulefire trace --db ./rulefire.db --session 0192f0c4-... --rule birthday
  rulefire trace --db ./rulefire.db --session 0192f0c4-... --handle '#2'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session token to trace")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "filter to one rule id")
	cmd.Flags().StringVar(&opts.Handle, "handle", "", "show the history of one fact handle")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openJournal(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open database", err)
	}
	defer st.Close()

	if opts.Session == "" {
		if opts.Handle != "" || opts.Rule != "" {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--rule and --handle require --session", nil)
		}
		return listSessions(ctx, st, formatter)
	}

	if opts.Handle != "" {
		return traceHandle(ctx, st, opts, formatter)
	}

	firings, err := st.ReadSession(ctx, opts.Session)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to read session", err)
	}

	result := TraceResult{Session: opts.Session, Firings: []store.Firing{}}
	for _, f := range firings {
		if opts.Rule != "" && f.RuleID != opts.Rule {
			continue
		}
		result.Firings = append(result.Firings, f)
		result.Stats.Firings++
		result.Stats.Effects += len(f.Effects)
		if f.Status == store.StatusApplied {
			result.Stats.Applied++
		} else {
			result.Stats.Failed++
		}
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	outputTraceText(formatter, result)
	return nil
}

// openJournal opens an existing database. store.Open would create a new
// empty file, which hides a mistyped path.
func openJournal(path string) (*store.Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s", path)
	}
	return store.Open(path)
}

func listSessions(ctx context.Context, st *store.Store, f *OutputFormatter) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeJournal, "failed to list sessions", err)
	}
	if sessions == nil {
		sessions = []string{}
	}
	if f.Format == "json" {
		return f.Success(map[string]any{"sessions": sessions})
	}
	if len(sessions) == 0 {
		fmt.Fprintln(f.Writer, "No sessions found.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintln(f.Writer, s)
	}
	return nil
}

func traceHandle(ctx context.Context, st *store.Store, opts *TraceOptions, f *OutputFormatter) error {
	h, err := parseHandle(opts.Handle)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid --handle", err)
	}
	effects, err := st.HandleHistory(ctx, opts.Session, h)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeJournal, "failed to read handle history", err)
	}
	if effects == nil {
		effects = []store.Effect{}
	}

	result := HistoryResult{Session: opts.Session, Handle: h.String(), Effects: effects}
	if opts.Format == "json" {
		return f.Success(result)
	}

	fmt.Fprintf(f.Writer, "History of %s in session %s\n", result.Handle, result.Session)
	if len(effects) == 0 {
		fmt.Fprintln(f.Writer, "  (no changes)")
	}
	for _, e := range effects {
		fmt.Fprintf(f.Writer, "  [%d] %s\n", e.EventSeq, formatEffect(e))
	}
	return nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(f *OutputFormatter, result TraceResult) {
	w := f.Writer

	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Firings ===")
	if len(result.Firings) == 0 {
		fmt.Fprintln(w, "  (no firings)")
	}
	for _, firing := range result.Firings {
		fmt.Fprintf(w, "  [%d] %s %s %s\n", firing.Seq, firing.RuleID, formatTuple(firing.Tuple), firing.Status)
		if firing.Status == store.StatusFailed {
			fmt.Fprintf(w, "       %s: %s\n", firing.ErrorCode, firing.Error)
		}
		if f.Verbose {
			fmt.Fprintf(w, "       ID: %s\n", truncateID(firing.ID))
		}
		for _, e := range firing.Effects {
			fmt.Fprintf(w, "       [%d] %s\n", e.EventSeq, formatEffect(e))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Firings: %d\n", result.Stats.Firings)
	fmt.Fprintf(w, "  Applied: %d\n", result.Stats.Applied)
	fmt.Fprintf(w, "  Failed:  %d\n", result.Stats.Failed)
	fmt.Fprintf(w, "  Effects: %d\n", result.Stats.Effects)
}

func formatTuple(tuple []ir.FactHandle) string {
	parts := make([]string, len(tuple))
	for i, h := range tuple {
		parts[i] = h.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// formatEffect renders one effect, e.g. "update #2 [age] {age=36, name=Mario}".
func formatEffect(e store.Effect) string {
	s := fmt.Sprintf("%s %s", e.Kind, e.Handle)
	if e.Kind == "update" {
		s += fmt.Sprintf(" [%s]", e.Mask)
	}
	if e.Value != nil {
		s += " " + formatValue(e.Value)
	}
	return s
}

// formatValue formats a value for display. Record keys are sorted so output
// is deterministic.
func formatValue(v ir.Value) string {
	switch val := v.(type) {
	case ir.Record:
		if len(val) == 0 {
			return "{}"
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%s", k, formatValue(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ir.List:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ir.String:
		return string(val)
	case ir.Int:
		return fmt.Sprintf("%d", int64(val))
	case ir.Bool:
		return fmt.Sprintf("%t", bool(val))
	case ir.Null, nil:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
