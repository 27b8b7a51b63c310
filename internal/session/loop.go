package session

// loopGuard remembers which (rule, tuple) pairs have fired in a session.
//
// It backs the no-loop option: a rule whose own update would make it match
// the same facts again must not fire a second time on that tuple. Without
// the option the guard is not consulted and rules may refire freely.
type loopGuard struct {
	history map[string]bool // rule_id + ":" + tuple_hash
}

func newLoopGuard() *loopGuard {
	return &loopGuard{history: make(map[string]bool)}
}

// WouldLoop reports whether ruleID already fired on tupleHash.
func (g *loopGuard) WouldLoop(ruleID, tupleHash string) bool {
	return g.history[ruleID+":"+tupleHash]
}

// Record marks ruleID as fired on tupleHash.
func (g *loopGuard) Record(ruleID, tupleHash string) {
	g.history[ruleID+":"+tupleHash] = true
}

// Size returns the number of recorded pairs.
func (g *loopGuard) Size() int {
	return len(g.history)
}
