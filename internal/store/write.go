package store

import (
	"context"
	"fmt"
)

// WriteFiring journals a firing and its effects in one transaction.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency: if a firing with the same
// id already exists nothing is written and inserted is false. Other
// constraint violations (a second firing at the same session seq, a bad
// status) are returned as errors.
func (s *Store) WriteFiring(ctx context.Context, f Firing) (inserted bool, err error) {
	tupleJSON, err := marshalTuple(f.Tuple)
	if err != nil {
		return false, fmt.Errorf("write firing: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write firing: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO firings
		(id, session, rule_id, tuple_hash, tuple, seq, status, error, error_code, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		f.ID,
		f.Session,
		f.RuleID,
		f.TupleHash,
		tupleJSON,
		f.Seq,
		f.Status,
		f.Error,
		f.ErrorCode,
		f.EngineVersion,
		f.IRVersion,
	)
	if err != nil {
		return false, fmt.Errorf("write firing: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write firing: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("write firing: commit (existing): %w", err)
		}
		return false, nil
	}

	for i, e := range f.Effects {
		valueJSON, err := marshalValue(e.Value)
		if err != nil {
			return false, fmt.Errorf("write firing: effect %d: %w", i, err)
		}
		mask := e.Mask
		if mask == "" {
			mask = "*"
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO effects
			(firing_id, ordinal, event_seq, kind, handle, mask, value)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			f.ID,
			i,
			e.EventSeq,
			e.Kind,
			int64(e.Handle),
			mask,
			valueJSON,
		)
		if err != nil {
			return false, fmt.Errorf("write firing: effect %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write firing: commit: %w", err)
	}

	return true, nil
}

// HasFiring reports whether a firing with the given id is journaled.
func (s *Store) HasFiring(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM firings WHERE id = ?
	`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check firing: %w", err)
	}
	return count > 0, nil
}
