package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/roach88/rulefire/internal/ir"
)

func TestWriteFiring_WithEffects(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	f := createTestFiring("session-1", "older", 1, 1, 3)
	f.Effects = []Effect{
		{EventSeq: 4, Kind: "update", Handle: 1, Mask: "age", Value: ir.Record{"age": ir.Int(38)}},
		{EventSeq: 5, Kind: "insert", Handle: 4, Value: ir.String("Mario is older than Mark")},
	}

	inserted, err := s.WriteFiring(ctx, f)
	if err != nil {
		t.Fatalf("WriteFiring() failed: %v", err)
	}
	if !inserted {
		t.Fatal("expected inserted=true for a new firing")
	}

	got, err := s.ReadFiring(ctx, f.ID)
	if err != nil {
		t.Fatalf("ReadFiring() failed: %v", err)
	}
	if got.RuleID != "older" || got.Seq != 1 || got.Status != StatusApplied {
		t.Errorf("unexpected firing: %+v", got)
	}
	if len(got.Tuple) != 2 || got.Tuple[0] != 1 || got.Tuple[1] != 3 {
		t.Errorf("tuple = %v, want [1 3]", got.Tuple)
	}
	if len(got.Effects) != 2 {
		t.Fatalf("effects = %d, want 2", len(got.Effects))
	}
	if got.Effects[0].Mask != "age" {
		t.Errorf("mask = %q, want age", got.Effects[0].Mask)
	}
	if got.Effects[1].Mask != "*" {
		t.Errorf("empty mask stored as %q, want *", got.Effects[1].Mask)
	}
	if !ir.Equal(got.Effects[1].Value, ir.String("Mario is older than Mark")) {
		t.Errorf("effect value = %v", got.Effects[1].Value)
	}
	if !ir.Equal(got.Effects[0].Value, ir.Record{"age": ir.Int(38)}) {
		t.Errorf("effect value = %v", got.Effects[0].Value)
	}
}

func TestWriteFiring_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	f := createTestFiring("session-1", "r", 1, 1)
	f.Effects = []Effect{{EventSeq: 2, Kind: "retract", Handle: 1, Value: ir.Null{}}}

	if _, err := s.WriteFiring(ctx, f); err != nil {
		t.Fatalf("first WriteFiring() failed: %v", err)
	}

	inserted, err := s.WriteFiring(ctx, f)
	if err != nil {
		t.Fatalf("second WriteFiring() failed: %v", err)
	}
	if inserted {
		t.Error("duplicate firing reported as inserted")
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM effects").Scan(&count); err != nil {
		t.Fatalf("count effects: %v", err)
	}
	if count != 1 {
		t.Errorf("effects = %d, want 1 (duplicate must not add effects)", count)
	}
}

func TestWriteFiring_SessionSeqUnique(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.WriteFiring(ctx, createTestFiring("s", "a", 1, 1)); err != nil {
		t.Fatalf("WriteFiring() failed: %v", err)
	}
	// Different rule, same session seq: a different id but a clash on (session, seq).
	if _, err := s.WriteFiring(ctx, createTestFiring("s", "b", 1, 1)); err == nil {
		t.Error("expected UNIQUE(session, seq) violation")
	}
}

func TestWriteFiring_RejectsBadStatus(t *testing.T) {
	s := createTestStore(t)
	f := createTestFiring("s", "a", 1, 1)
	f.Status = "maybe"

	if _, err := s.WriteFiring(context.Background(), f); err == nil {
		t.Error("expected CHECK constraint failure for status")
	}
}

func TestWriteFiring_RollsBackOnBadEffect(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	f := createTestFiring("s", "a", 1, 1)
	f.Effects = []Effect{
		{EventSeq: 1, Kind: "insert", Handle: 2, Value: ir.Int(1)},
		{EventSeq: 2, Kind: "explode", Handle: 2, Value: ir.Int(1)},
	}

	if _, err := s.WriteFiring(ctx, f); err == nil {
		t.Fatal("expected error for invalid effect kind")
	}

	has, err := s.HasFiring(ctx, f.ID)
	if err != nil {
		t.Fatalf("HasFiring() failed: %v", err)
	}
	if has {
		t.Error("firing row survived a failed transaction")
	}
}

func TestHasFiring(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := createTestFiring("s", "a", 1, 1)

	has, err := s.HasFiring(ctx, f.ID)
	if err != nil || has {
		t.Fatalf("HasFiring() before write = %v, %v", has, err)
	}
	if _, err := s.WriteFiring(ctx, f); err != nil {
		t.Fatalf("WriteFiring() failed: %v", err)
	}
	has, err = s.HasFiring(ctx, f.ID)
	if err != nil || !has {
		t.Fatalf("HasFiring() after write = %v, %v", has, err)
	}
}

func TestReadFiring_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadFiring(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}
