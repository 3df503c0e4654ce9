// Package graph holds the per-pass node store of the reference graph: the
// identity registry that numbers live objects, the deduplicating node and
// edge store, and the classifier that styles edges.
//
// A Store is not safe for concurrent use. One pass owns one Store.
package graph

import "errors"

var (
	// ErrNodeBudgetExhausted is returned when a node would be created after
	// the configured cap was reached. Lookups of existing nodes still succeed.
	ErrNodeBudgetExhausted = errors.New("node budget exhausted")

	// ErrNilObject is returned when a nil object is offered to the store.
	ErrNilObject = errors.New("nil object")
)
