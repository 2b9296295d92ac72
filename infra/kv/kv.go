// Package kv is the persistence substrate: a keyed record store with an
// atomic batch commit, plus a buffered transaction that enforces a
// per-operation access budget.
package kv

import "errors"

var (
	// ErrNotFound is returned by Get for absent keys.
	ErrNotFound = errors.New("kv: key not found")

	// ErrBudgetExceeded aborts an operation that touched more distinct
	// keys than its transaction allows.
	ErrBudgetExceeded = errors.New("kv: access budget exceeded")
)

// Store is the minimal record store the engine runs on.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Apply commits all writes and deletes as one atomic batch.
	Apply(writes map[string][]byte, deletes map[string]struct{}) error

	// Scan visits keys in [lo, hi) in ascending order.
	Scan(lo, hi string, fn func(key string, val []byte) error) error

	Close() error
}
