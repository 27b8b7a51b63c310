package store

import "github.com/roach88/rulefire/internal/ir"

// Firing statuses.
const (
	StatusApplied = "applied"
	StatusFailed  = "failed"
)

// Firing is one journaled execution of a rule consequence.
type Firing struct {
	ID            string          `json:"id"`
	Session       string          `json:"session"`
	RuleID        string          `json:"rule_id"`
	TupleHash     string          `json:"tuple_hash"`
	Tuple         []ir.FactHandle `json:"tuple"`
	Seq           int64           `json:"seq"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	EngineVersion string          `json:"engine_version"`
	IRVersion     string          `json:"ir_version"`
	Effects       []Effect        `json:"effects"`
}

// Effect is one working memory mutation caused by a firing.
// Kind is one of "insert", "update", "retract".
type Effect struct {
	EventSeq int64         `json:"event_seq"`
	Kind     string        `json:"kind"`
	Handle   ir.FactHandle `json:"handle"`
	Mask     string        `json:"mask"`
	Value    ir.Value      `json:"value"`
}
