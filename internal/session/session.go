// Package session drives rule consequences against one working memory.
//
// A Session is not an agenda: it fires exactly the rule the caller names,
// against the facts the caller binds, in call order. What it adds around
// consequence.Fire is bookkeeping: a firing quota, an optional no-loop
// guard, capture of every working memory event the firing caused, a
// content-addressed firing id and an optional SQLite journal.
//
// Thread-safety model:
//   - Fire, Insert and Retract serialize on one mutex (single writer)
//   - accessors are safe from any goroutine
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/rulefire/internal/consequence"
	"github.com/roach88/rulefire/internal/ir"
	"github.com/roach88/rulefire/internal/memory"
	"github.com/roach88/rulefire/internal/store"
)

// DefaultMaxFirings is the default maximum number of firings per session.
const DefaultMaxFirings = 1000

// FiringRecord is what a session remembers about one firing. It is the same
// shape the journal stores.
type FiringRecord = store.Firing

// Journal persists firing records. *store.Store implements it.
type Journal interface {
	WriteFiring(ctx context.Context, f store.Firing) (bool, error)
}

// Clock issues the per-session firing sequence numbers.
type Clock interface {
	Next() int64
	Current() int64
}

// Session fires rules against a working memory.
type Session struct {
	mu sync.Mutex

	mem      *memory.Memory
	rules    map[string]*consequence.Rule
	invalid  map[string]error // rules that failed Validate at registration
	order    []string         // rule ids in registration order
	token    string
	tokenGen TokenGenerator
	clock    Clock
	journal  Journal

	maxFirings int
	quota      *QuotaEnforcer
	noLoop     bool
	loops      *loopGuard

	firings []FiringRecord
}

// Option allows configuration of session parameters.
type Option func(*Session)

// WithMaxFirings sets the maximum number of firings (default DefaultMaxFirings).
func WithMaxFirings(n int) Option {
	return func(s *Session) {
		s.maxFirings = n
	}
}

// WithJournal records every firing in j.
func WithJournal(j Journal) Option {
	return func(s *Session) {
		s.journal = j
	}
}

// WithTokenGenerator sets how the session token is generated.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *Session) {
		s.tokenGen = g
	}
}

// WithClock sets the firing sequence clock. Use memory.NewClockAt to resume
// numbering after the last journaled firing.
func WithClock(c Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithRules registers compiled rules. Later registrations of the same id
// replace earlier ones but keep the original position. A rule that fails
// Validate stays registered and every firing of it is rejected with
// INVALID_RULE.
func WithRules(rules ...*consequence.Rule) Option {
	return func(s *Session) {
		for _, r := range rules {
			if r == nil {
				continue
			}
			if _, exists := s.rules[r.ID]; !exists {
				s.order = append(s.order, r.ID)
			}
			s.rules[r.ID] = r
			if err := r.Validate(); err != nil {
				s.invalid[r.ID] = err
			} else {
				delete(s.invalid, r.ID)
			}
		}
	}
}

// WithNoLoop rejects a second firing of a rule on a tuple it already fired on.
func WithNoLoop() Option {
	return func(s *Session) {
		s.noLoop = true
	}
}

// New creates a session over mem.
func New(mem *memory.Memory, opts ...Option) *Session {
	s := &Session{
		mem:        mem,
		rules:      make(map[string]*consequence.Rule),
		invalid:    make(map[string]error),
		tokenGen:   UUIDv7Generator{},
		clock:      memory.NewClock(),
		maxFirings: DefaultMaxFirings,
		loops:      newLoopGuard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.token = s.tokenGen.Generate()
	s.quota = NewQuotaEnforcer(s.maxFirings)
	return s
}

// Token returns the session token.
func (s *Session) Token() string {
	return s.token
}

// Memory returns the working memory the session fires against.
func (s *Session) Memory() *memory.Memory {
	return s.mem
}

// Rules returns the registered rule ids in registration order.
func (s *Session) Rules() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Rule returns the registered rule with the given id.
func (s *Session) Rule(id string) (*consequence.Rule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	return r, ok
}

// Firings returns the records of every firing so far, in order.
func (s *Session) Firings() []FiringRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FiringRecord(nil), s.firings...)
}

// Insert adds a fact outside of any firing.
func (s *Session) Insert(ctx context.Context, v ir.Value) (ir.FactHandle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.mem.Insert(v)
	if err != nil {
		return 0, fmt.Errorf("session insert: %w", err)
	}
	slog.Debug("fact inserted",
		"session", s.token,
		"handle", h.String(),
	)
	return h, nil
}

// Retract removes a fact outside of any firing.
func (s *Session) Retract(ctx context.Context, h ir.FactHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.Retract(h); err != nil {
		return fmt.Errorf("session retract: %w", err)
	}
	slog.Debug("fact retracted",
		"session", s.token,
		"handle", h.String(),
	)
	return nil
}

// Fire runs rule ruleID for the match described by bindings, a map from
// the rule's pattern variables to fact handles. Variables left out of the
// map are unbound in the match.
//
// Every firing that gets as far as consequence.Fire is recorded (and
// journaled) whether it succeeded or not; the record lists the effects that
// were applied before any failure. Errors are *RuntimeError values that
// wrap the original cause.
func (s *Session) Fire(ctx context.Context, ruleID string, bindings map[ir.Variable]ir.FactHandle) (FiringRecord, error) {
	if err := ctx.Err(); err != nil {
		return FiringRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[ruleID]
	if !ok {
		return FiringRecord{}, &RuntimeError{
			Code:    ErrCodeUnknownRule,
			Message: fmt.Sprintf("rule %q is not registered", ruleID),
			Session: s.token,
			RuleID:  ruleID,
		}
	}

	if err := s.invalid[ruleID]; err != nil {
		return FiringRecord{}, &RuntimeError{
			Code:    ErrCodeInvalidRule,
			Message: err.Error(),
			Session: s.token,
			RuleID:  ruleID,
			Err:     err,
		}
	}

	tuple, err := s.buildTuple(rule, bindings)
	if err != nil {
		return FiringRecord{}, &RuntimeError{
			Code:    ErrCodeBindingInconsistency,
			Message: err.Error(),
			Session: s.token,
			RuleID:  ruleID,
			Err:     err,
		}
	}

	tupleHash, err := ir.TupleHash(tuple)
	if err != nil {
		return FiringRecord{}, fmt.Errorf("fire %s: %w", ruleID, err)
	}

	if s.noLoop && s.loops.WouldLoop(ruleID, tupleHash) {
		slog.Warn("rule would refire on the same tuple, skipping",
			"session", s.token,
			"rule", ruleID,
			"tuple_hash", tupleHash,
		)
		return FiringRecord{}, &RuntimeError{
			Code:    ErrCodeCycleDetected,
			Message: "rule already fired on this tuple",
			Session: s.token,
			RuleID:  ruleID,
		}
	}

	// Only firings that will run count against the quota.
	if err := s.quota.Check(s.token); err != nil {
		slog.Error("max firings quota exceeded",
			"session", s.token,
			"rule", ruleID,
			"firings", s.quota.Current(),
			"limit", s.maxFirings,
		)
		return FiringRecord{}, &RuntimeError{
			Code:    ErrCodeQuotaExceeded,
			Message: err.Error(),
			Session: s.token,
			RuleID:  ruleID,
			Err:     err,
		}
	}
	if s.noLoop {
		s.loops.Record(ruleID, tupleHash)
	}

	seq := s.clock.Next()
	id, err := ir.FiringID(s.token, ruleID, tupleHash, seq)
	if err != nil {
		return FiringRecord{}, fmt.Errorf("fire %s: %w", ruleID, err)
	}

	var effects []store.Effect
	cancel := s.mem.Subscribe(func(ev memory.Event) {
		effects = append(effects, store.Effect{
			EventSeq: ev.Seq,
			Kind:     string(ev.Kind),
			Handle:   ev.Handle,
			Mask:     ev.Mask.String(),
			Value:    ev.Value,
		})
	})
	fireErr := consequence.Fire(s.mem, rule, consequence.TupleMatch(tuple))
	cancel()

	rec := FiringRecord{
		ID:            id,
		Session:       s.token,
		RuleID:        ruleID,
		TupleHash:     tupleHash,
		Tuple:         handles(tuple),
		Seq:           seq,
		Status:        store.StatusApplied,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
		Effects:       effects,
	}
	if rec.Effects == nil {
		rec.Effects = []store.Effect{}
	}
	var runErr *RuntimeError
	if fireErr != nil {
		runErr = classify(s.token, ruleID, fireErr)
		rec.Status = store.StatusFailed
		rec.Error = fireErr.Error()
		rec.ErrorCode = string(runErr.Code)
	}
	s.firings = append(s.firings, rec)

	if s.journal != nil {
		if _, err := s.journal.WriteFiring(ctx, rec); err != nil {
			return rec, &RuntimeError{
				Code:    ErrCodeJournal,
				Message: err.Error(),
				Session: s.token,
				RuleID:  ruleID,
				Err:     err,
			}
		}
	}

	if fireErr != nil {
		slog.Warn("rule firing failed",
			"session", s.token,
			"rule", ruleID,
			"seq", seq,
			"effects", len(rec.Effects),
			"error", fireErr,
		)
		return rec, runErr
	}

	slog.Info("rule fired",
		"session", s.token,
		"rule", ruleID,
		"firing_id", id,
		"seq", seq,
		"effects", len(rec.Effects),
	)
	return rec, nil
}

// buildTuple lays the bound facts out in rule-context order. Binding a
// variable the rule does not declare is a caller error.
func (s *Session) buildTuple(rule *consequence.Rule, bindings map[ir.Variable]ir.FactHandle) ([]ir.Fact, error) {
	for v := range bindings {
		if _, ok := rule.Context.Position(v); !ok {
			return nil, fmt.Errorf("variable %s is not bound by rule %s", v, rule.ID)
		}
	}

	vars := rule.Context.Variables()
	tuple := make([]ir.Fact, len(vars))
	for i, v := range vars {
		h, ok := bindings[v]
		if !ok || h.IsZero() {
			continue
		}
		// A stale handle is passed through; the consequence core reports it.
		value, _ := s.mem.Lookup(h)
		tuple[i] = ir.Fact{Handle: h, Value: value}
	}
	return tuple, nil
}

func handles(tuple []ir.Fact) []ir.FactHandle {
	out := make([]ir.FactHandle, len(tuple))
	for i, f := range tuple {
		out[i] = f.Handle
	}
	return out
}

func classify(session, ruleID string, err error) *RuntimeError {
	code := ErrCodeActionFailed
	switch {
	case consequence.IsBindingError(err):
		code = ErrCodeBindingInconsistency
	case errors.Is(err, memory.ErrUnknownHandle):
		code = ErrCodeStaleHandle
	}
	return &RuntimeError{
		Code:    code,
		Message: err.Error(),
		Session: session,
		RuleID:  ruleID,
		Err:     err,
	}
}
