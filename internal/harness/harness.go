package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/rulefire/internal/compiler"
	"github.com/roach88/rulefire/internal/consequence"
	"github.com/roach88/rulefire/internal/ir"
	"github.com/roach88/rulefire/internal/memory"
	"github.com/roach88/rulefire/internal/session"
	"github.com/roach88/rulefire/internal/store"
	"github.com/roach88/rulefire/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs one scenario against a fresh working memory with a deterministic
// clock and session token.
type Harness struct {
	store   *store.Store
	session *session.Session
	facts   map[string]ir.FactHandle // scenario fact id -> handle
	logger  *slog.Logger
}

// RunOption configures a scenario run.
type RunOption func(*runConfig)

type runConfig struct {
	registry compiler.Registry
	dbPath   string
	logger   *slog.Logger
}

// WithRegistry supplies the named Go blocks rule files may reference.
func WithRegistry(reg compiler.Registry) RunOption {
	return func(c *runConfig) {
		c.registry = reg
	}
}

// WithJournalPath journals the run to a SQLite file instead of an in-memory
// database, so it can be inspected afterwards with `rulefire trace`.
func WithJournalPath(path string) RunOption {
	return func(c *runConfig) {
		c.dbPath = path
	}
}

// WithLogger sets the logger for step progress. Logs are discarded by default.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Open the journal (in-memory unless WithJournalPath is given)
//  2. Compile every rule directory the scenario names
//  3. Insert the scenario facts
//  4. Execute steps, checking expected errors
//  5. Evaluate assertions against the trace, the final facts and the journal
//
// A returned error means the scenario could not be executed at all; step and
// assertion failures are reported through Result.Errors.
func Run(scenario *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{
		dbPath: ":memory:",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	st, err := store.Open(cfg.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer st.Close()

	rules, err := loadRules(scenario.Rules, cfg.registry)
	if err != nil {
		return nil, err
	}

	sessOpts := []session.Option{
		session.WithRules(rules...),
		session.WithJournal(st),
		session.WithTokenGenerator(testutil.NewFixedTokenGenerator(scenario.Session)),
		session.WithClock(testutil.NewDeterministicClock()),
	}
	if scenario.MaxFirings > 0 {
		sessOpts = append(sessOpts, session.WithMaxFirings(scenario.MaxFirings))
	}
	if scenario.NoLoop {
		sessOpts = append(sessOpts, session.WithNoLoop())
	}

	h := &Harness{
		store:   st,
		session: session.New(memory.New(), sessOpts...),
		facts:   make(map[string]ir.FactHandle),
		logger:  cfg.logger,
	}

	ctx := context.Background()
	result := NewResult()
	result.Session = h.session.Token()

	for i, f := range scenario.Facts {
		if err := h.insertFact(ctx, f); err != nil {
			return nil, fmt.Errorf("facts[%d]: %w", i, err)
		}
	}

	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	result.Trace = buildTrace(h.session.Firings())
	result.Facts = snapshotFacts(h.session.Memory())

	actx := &AssertionContext{
		Store:   st,
		Session: h.session.Token(),
		Ctx:     ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// loadRules compiles each directory and rejects rule ids defined twice.
func loadRules(dirs []string, reg compiler.Registry) ([]*consequence.Rule, error) {
	var rules []*consequence.Rule
	seen := make(map[string]string)
	for _, dir := range dirs {
		loaded, errs := compiler.LoadDir(dir, reg, compiler.LoadModeCollectAll)
		if len(errs) > 0 {
			return nil, fmt.Errorf("failed to load rules from %s: %w", dir, errors.Join(errs...))
		}
		for _, r := range loaded.Rules {
			if prev, dup := seen[r.ID]; dup {
				return nil, fmt.Errorf("rule %q defined in both %s and %s", r.ID, prev, dir)
			}
			seen[r.ID] = dir
			rules = append(rules, r)
		}
	}
	return rules, nil
}

func (h *Harness) insertFact(ctx context.Context, f FactStep) error {
	v, err := ir.FromAny(f.Value)
	if err != nil {
		return fmt.Errorf("fact %q: %w", f.ID, err)
	}
	handle, err := h.session.Insert(ctx, v)
	if err != nil {
		return fmt.Errorf("fact %q: %w", f.ID, err)
	}
	h.facts[f.ID] = handle
	h.logger.Info("fact inserted", "id", f.ID, "handle", handle.String())
	return nil
}

// executeSteps runs every step in order. A step that fails unexpectedly, or
// that succeeds when an error was expected, is a scenario failure, not a
// harness error, so execution continues with the next step.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		var err error
		switch {
		case step.Fire != "":
			err = h.fire(ctx, step)
		case step.Insert != nil:
			if err := h.insertFact(ctx, *step.Insert); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		case step.Retract != "":
			err = h.session.Retract(ctx, h.facts[step.Retract])
		}

		h.checkOutcome(i, step, err, result)
	}
	return nil
}

func (h *Harness) fire(ctx context.Context, step Step) error {
	bindings := make(map[ir.Variable]ir.FactHandle, len(step.Bind))
	for v, id := range step.Bind {
		bindings[ir.Variable(v)] = h.facts[id]
	}
	_, err := h.session.Fire(ctx, step.Fire, bindings)
	return err
}

func (h *Harness) checkOutcome(index int, step Step, err error, result *Result) {
	action := describeStep(step)

	if step.Expect == nil {
		if err != nil {
			result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", index, action, err))
			return
		}
		h.logger.Info("step completed", "step", index, "action", action)
		return
	}

	if err == nil {
		result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got none", index, action, step.Expect.Error))
		return
	}
	code := string(session.CodeOf(err))
	if code == "" && errors.Is(err, memory.ErrUnknownHandle) {
		code = string(session.ErrCodeStaleHandle)
	}
	if code != step.Expect.Error {
		result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got %v", index, action, step.Expect.Error, err))
		return
	}
	h.logger.Info("step failed as expected", "step", index, "action", action, "code", code)
}

func describeStep(step Step) string {
	switch {
	case step.Fire != "":
		return "fire " + step.Fire
	case step.Insert != nil:
		return "insert " + step.Insert.ID
	default:
		return "retract " + step.Retract
	}
}

func buildTrace(records []session.FiringRecord) []TraceEvent {
	trace := make([]TraceEvent, 0, len(records))
	for _, rec := range records {
		ev := TraceEvent{
			Seq:     rec.Seq,
			Rule:    rec.RuleID,
			Status:  rec.Status,
			Tuple:   make([]string, len(rec.Tuple)),
			Effects: make([]TraceEffect, len(rec.Effects)),
		}
		for i, h := range rec.Tuple {
			ev.Tuple[i] = h.String()
		}
		for i, e := range rec.Effects {
			ev.Effects[i] = TraceEffect{
				Seq:    e.EventSeq,
				Kind:   e.Kind,
				Handle: e.Handle.String(),
				Mask:   e.Mask,
				Value:  e.Value,
			}
		}
		if rec.Status == store.StatusFailed {
			ev.Error = rec.ErrorCode
		}
		trace = append(trace, ev)
	}
	return trace
}

func snapshotFacts(mem *memory.Memory) []FactSnapshot {
	facts := mem.Facts()
	out := make([]FactSnapshot, len(facts))
	for i, f := range facts {
		out[i] = FactSnapshot{Handle: f.Handle.String(), Value: f.Value}
	}
	return out
}
