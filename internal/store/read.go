package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/rulefire/internal/ir"
)

const firingColumns = `id, session, rule_id, tuple_hash, tuple, seq, status, error, error_code, engine_version, ir_version`

// ReadSession returns every firing of a session with its effects.
// Results are ordered by seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the session has no firings.
func (s *Store) ReadSession(ctx context.Context, session string) ([]Firing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+firingColumns+`
		FROM firings
		WHERE session = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}

	firings := []Firing{}
	for rows.Next() {
		f, err := scanFiring(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	rows.Close()

	// Effects are read after the firing cursor is closed: the pool holds a
	// single connection.
	for i := range firings {
		effects, err := s.readEffects(ctx, firings[i].ID)
		if err != nil {
			return nil, err
		}
		firings[i].Effects = effects
	}

	return firings, nil
}

// ReadFiring retrieves a single firing and its effects by id.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) ReadFiring(ctx context.Context, id string) (Firing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+firingColumns+`
		FROM firings
		WHERE id = ?
	`, id)

	f, err := scanFiring(row)
	if err != nil {
		return Firing{}, err
	}

	f.Effects, err = s.readEffects(ctx, id)
	if err != nil {
		return Firing{}, err
	}
	return f, nil
}

// ListSessions returns all session tokens that have at least one firing,
// in lexical order.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT session FROM firings
		ORDER BY session COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// HandleHistory returns every effect a session's firings had on one fact,
// in event order.
func (s *Store) HandleHistory(ctx context.Context, session string, h ir.FactHandle) ([]Effect, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.event_seq, e.kind, e.handle, e.mask, e.value
		FROM effects e
		JOIN firings f ON e.firing_id = f.id
		WHERE f.session = ? AND e.handle = ?
		ORDER BY e.event_seq ASC
	`, session, int64(h))
	if err != nil {
		return nil, fmt.Errorf("query handle history: %w", err)
	}
	defer rows.Close()

	return collectEffects(rows)
}

// LastSeq returns the highest firing seq journaled for a session, or 0.
func (s *Store) LastSeq(ctx context.Context, session string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM firings WHERE session = ?
	`, session).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

func (s *Store) readEffects(ctx context.Context, firingID string) ([]Effect, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_seq, kind, handle, mask, value
		FROM effects
		WHERE firing_id = ?
		ORDER BY ordinal ASC
	`, firingID)
	if err != nil {
		return nil, fmt.Errorf("query effects: %w", err)
	}
	defer rows.Close()

	return collectEffects(rows)
}

func collectEffects(rows *sql.Rows) ([]Effect, error) {
	effects := []Effect{}
	for rows.Next() {
		var (
			e         Effect
			handle    int64
			valueJSON string
		)
		if err := rows.Scan(&e.EventSeq, &e.Kind, &handle, &e.Mask, &valueJSON); err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		e.Handle = ir.FactHandle(handle)

		v, err := unmarshalValue(valueJSON)
		if err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		e.Value = v
		effects = append(effects, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate effects: %w", err)
	}
	return effects, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanFiring(sc scanner) (Firing, error) {
	var (
		f         Firing
		tupleJSON string
	)
	err := sc.Scan(
		&f.ID,
		&f.Session,
		&f.RuleID,
		&f.TupleHash,
		&tupleJSON,
		&f.Seq,
		&f.Status,
		&f.Error,
		&f.ErrorCode,
		&f.EngineVersion,
		&f.IRVersion,
	)
	if err != nil {
		return Firing{}, fmt.Errorf("scan firing: %w", err)
	}

	f.Tuple, err = unmarshalTuple(tupleJSON)
	if err != nil {
		return Firing{}, fmt.Errorf("scan firing %s: %w", f.ID, err)
	}
	return f, nil
}
