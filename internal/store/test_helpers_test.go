package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/rulefire/internal/ir"
)

// createTestStore creates a fresh journal in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestFiring creates an applied firing with a content-addressed id.
func createTestFiring(session, ruleID string, seq int64, tuple ...ir.FactHandle) Firing {
	facts := make([]ir.Fact, len(tuple))
	for i, h := range tuple {
		facts[i] = ir.Fact{Handle: h}
	}
	tupleHash, err := ir.TupleHash(facts)
	if err != nil {
		panic(err)
	}
	return Firing{
		ID:            ir.MustFiringID(session, ruleID, tupleHash, seq),
		Session:       session,
		RuleID:        ruleID,
		TupleHash:     tupleHash,
		Tuple:         tuple,
		Seq:           seq,
		Status:        StatusApplied,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
}
