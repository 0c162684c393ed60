// Package state persists the tracked state of resources between runs.
//
// A Backend stores the serialized state document and optionally provides
// advisory locking so concurrent applies against the same state fail fast
// instead of clobbering each other. The Manager layers convenience
// operations (mark done, mark partial, remove) on top of a backend.
package state
