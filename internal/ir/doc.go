// Package ir provides the data model shared by every rulefire package.
//
// It defines fact values, fact handles, declarations, variables, field
// masks and the per-rule context table. All other internal packages import
// ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Fact handles are opaque tokens issued by working memory, never pointers
//   - A RuleContext is built once per rule and never mutated afterwards
//   - All JSON tags use snake_case
package ir
