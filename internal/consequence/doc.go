// Package consequence executes the right-hand side of a rule for one match.
//
// A firing runs three steps in sequence:
//
//  1. Resolve: each required declaration is looked up in the match (one
//     lookup per declaration) and its value-extraction rule applied.
//  2. Invoke: the rule's compiled block runs with the resolved values as
//     positional arguments. The block may mutate working memory directly
//     through the Mutator it is handed; those calls take effect at once.
//  3. Apply: the rule's declared effects are applied in a fixed order:
//     all updates, then all inserts, then all deletes, each list in the
//     order it was declared.
//
// Updates go first so the matching network sees current state before new
// facts join against it. Deletes go last so insert producers can still read
// facts that are about to be removed, and so a fact updated and deleted in
// the same firing is never re-announced as fresh state.
//
// ERRORS:
//
// A declaration or variable with no bound fact is a *BindingError: the rule
// compiler and the matching network promised it could not happen, so the
// firing stops immediately. An error from the block is returned exactly as
// the block returned it and no declared effect runs. Errors raised by working
// memory (a stale handle, say) are wrapped with %w and returned.
//
// The package does no logging, retrying or locking. Callers guarantee that
// no other firing mutates the same working memory concurrently.
package consequence
