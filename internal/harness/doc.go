// Package harness runs rule firing scenarios end to end.
//
// A scenario compiles CUE rule directories, seeds a fresh working memory,
// fires rules against named facts through a real session (and journal), and
// then checks the trace and the final facts.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: beta_join
//	description: "What this scenario validates"
//	rules:
//	  - ../rules/people
//	session: test-session-beta
//	facts:
//	  - id: mark
//	    value: { type: Person, name: Mark, age: 37 }
//	steps:
//	  - fire: older-than
//	    bind: { $p1: mark, $p2: mario }
//	  - fire: forget
//	    bind: { $p: mark }
//	    expect: { error: STALE_HANDLE }
//	assertions:
//	  - type: fact_present
//	    value: "Mario is older than Mark"
//	  - type: fact_count
//	    match: { type: Person }
//	    count: 2
//
// # Assertion Types
//
//   - fact_present: some final fact matches value, or has the match fields
//   - fact_absent: no final fact matches
//   - fact_count: exactly count final facts match
//   - trace_order: rules first fired in the given relative order
//   - trace_count: a rule fired exactly count times
//   - journal_count: the journal holds count firings of a rule, by status
//
// # Deterministic Testing
//
// Every run uses a fixed session token (testutil.FixedTokenGenerator), a
// fresh logical clock (testutil.DeterministicClock) and an in-memory SQLite
// journal, so the same scenario always yields the same trace bytes for
// golden comparison.
package harness
