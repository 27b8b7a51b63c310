package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future algorithm change.
const (
	DomainFiring = "rulefire/firing/v1"
	DomainTuple  = "rulefire/tuple/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps domain and data from running together.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TupleHash identifies the combination of facts a match bound, by handle.
// Values are excluded: the same facts still form the same tuple after an
// update changed one of them.
func TupleHash(tuple []Fact) (string, error) {
	handles := make(List, len(tuple))
	for i, f := range tuple {
		handles[i] = Int(f.Handle)
	}
	canonical, err := MarshalCanonical(handles)
	if err != nil {
		return "", fmt.Errorf("TupleHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTuple, canonical), nil
}

// FiringID computes the content-addressed id of one firing: which session,
// which rule, which tuple and at what logical time.
func FiringID(sessionToken, ruleID, tupleHash string, seq int64) (string, error) {
	obj := Record{
		"session":    String(sessionToken),
		"rule_id":    String(ruleID),
		"tuple_hash": String(tupleHash),
		"seq":        Int(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("FiringID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFiring, canonical), nil
}

// MustFiringID is like FiringID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFiringID(sessionToken, ruleID, tupleHash string, seq int64) string {
	id, err := FiringID(sessionToken, ruleID, tupleHash, seq)
	if err != nil {
		panic(err)
	}
	return id
}
