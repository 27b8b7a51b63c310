// Package memory provides an in-process working memory: the shared store of
// facts that rule consequences read and mutate.
//
// Memory implements the four operations the consequence core consumes
// (Lookup, MarkChanged, Insert, Retract) and publishes every mutation as an
// Event stamped with a logical sequence number. It does no matching and no
// indexing beyond the handle table; a matching network would subscribe to
// the event stream to keep its own state current.
package memory

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/rulefire/internal/ir"
)

// ErrUnknownHandle is returned when an operation names a handle that was
// never issued or whose fact has already been retracted.
var ErrUnknownHandle = errors.New("unknown fact handle")

// EventKind distinguishes the three mutations.
type EventKind string

const (
	EventInserted  EventKind = "insert"
	EventUpdated   EventKind = "update"
	EventRetracted EventKind = "retract"
)

// Event describes one applied mutation.
// Value is a deep copy taken when the event was raised, so later in-place
// edits to the fact do not rewrite history.
type Event struct {
	Seq    int64         `json:"seq"`
	Kind   EventKind     `json:"kind"`
	Handle ir.FactHandle `json:"handle"`
	Value  ir.Value      `json:"value"`
	Mask   ir.FieldMask  `json:"-"`
}

// Listener receives events after the mutation has been applied.
type Listener func(Event)

// Memory is a handle-addressed fact table.
//
// Thread-safety: all methods are safe for concurrent use. Listeners are
// called without the lock held, in the goroutine that made the change.
type Memory struct {
	mu        sync.RWMutex
	facts     map[ir.FactHandle]ir.Value
	handles   *Clock
	seq       *Clock
	listeners map[int]Listener
	nextSub   int
}

// New creates an empty working memory.
func New() *Memory {
	return &Memory{
		facts:     make(map[ir.FactHandle]ir.Value),
		handles:   NewClock(),
		seq:       NewClock(),
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers l for all future events and returns a function that
// removes it.
func (m *Memory) Subscribe(l Listener) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.listeners[id] = l

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Lookup returns the value currently held for h.
func (m *Memory) Lookup(h ir.FactHandle) (ir.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.facts[h]
	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", h, ErrUnknownHandle)
	}
	return v, nil
}

// Insert adds a fact and returns its new handle.
func (m *Memory) Insert(v ir.Value) (ir.FactHandle, error) {
	if v == nil {
		return 0, errors.New("insert: nil value")
	}

	m.mu.Lock()
	h := ir.FactHandle(m.handles.Next())
	m.facts[h] = v
	ev := m.newEvent(EventInserted, h, v, ir.AllFields)
	ls := m.snapshotListeners()
	m.mu.Unlock()

	notify(ls, ev)
	return h, nil
}

// MarkChanged records that the fact behind h was modified.
// The fact value itself was already changed in place by the caller; this
// call is what makes the change visible to subscribers.
func (m *Memory) MarkChanged(h ir.FactHandle, mask ir.FieldMask) error {
	m.mu.Lock()
	v, ok := m.facts[h]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("update %s: %w", h, ErrUnknownHandle)
	}
	ev := m.newEvent(EventUpdated, h, v, mask)
	ls := m.snapshotListeners()
	m.mu.Unlock()

	notify(ls, ev)
	return nil
}

// Retract removes the fact behind h. The handle is never reissued.
func (m *Memory) Retract(h ir.FactHandle) error {
	m.mu.Lock()
	v, ok := m.facts[h]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("retract %s: %w", h, ErrUnknownHandle)
	}
	delete(m.facts, h)
	ev := m.newEvent(EventRetracted, h, v, ir.AllFields)
	ls := m.snapshotListeners()
	m.mu.Unlock()

	notify(ls, ev)
	return nil
}

// Contains reports whether h names a live fact.
func (m *Memory) Contains(h ir.FactHandle) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.facts[h]
	return ok
}

// Len returns the number of live facts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.facts)
}

// Facts returns all live facts in insertion order.
// The returned values are the live values, not copies.
func (m *Memory) Facts() []ir.Fact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	handles := make([]ir.FactHandle, 0, len(m.facts))
	for h := range m.facts {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	out := make([]ir.Fact, len(handles))
	for i, h := range handles {
		out[i] = ir.Fact{Handle: h, Value: m.facts[h]}
	}
	return out
}

// Find returns the live facts for which match returns true, in insertion order.
func (m *Memory) Find(match func(ir.Value) bool) []ir.Fact {
	var out []ir.Fact
	for _, f := range m.Facts() {
		if match(f.Value) {
			out = append(out, f)
		}
	}
	return out
}

// Seq returns the sequence number of the last event raised.
func (m *Memory) Seq() int64 {
	return m.seq.Current()
}

// newEvent must be called with m.mu held.
func (m *Memory) newEvent(kind EventKind, h ir.FactHandle, v ir.Value, mask ir.FieldMask) Event {
	return Event{
		Seq:    m.seq.Next(),
		Kind:   kind,
		Handle: h,
		Value:  ir.Clone(v),
		Mask:   mask,
	}
}

// snapshotListeners must be called with m.mu held.
// Listeners run in subscription order.
func (m *Memory) snapshotListeners() []Listener {
	if len(m.listeners) == 0 {
		return nil
	}
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	ls := make([]Listener, len(ids))
	for i, id := range ids {
		ls[i] = m.listeners[id]
	}
	return ls
}

func notify(ls []Listener, ev Event) {
	for _, l := range ls {
		l(ev)
	}
}
