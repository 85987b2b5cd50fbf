// Package ir provides the canonical intermediate representation for ignis.
//
// This package contains the data model shared by every other internal
// package: the closed value type used for action inputs and results, built
// action graphs, deployment identities and journal entries. ir imports
// nothing internal, so it stays the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - NO float types anywhere - use int64 or decimal strings for numbers
//   - Values are a sealed set (Null, String, Int, Bool, Array, Object, Ref)
//   - All JSON tags use snake_case
//   - Ordering uses logical sequence numbers, never wall-clock timestamps
//   - Identity (action ids, idempotency keys) is derived only from canonical
//     JSON, so the same declaration always hashes the same way
package ir
