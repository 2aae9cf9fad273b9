// Package catalog maintains the registry of all known resources: for
// each resource, the URLs of its two representations, its current
// content identity, and caller metadata.
//
// The store is a mutex-guarded in-memory map with stable insertion
// order. Writes always replace the whole entry. Queries filter by
// update time and field equality, then paginate. An injected Storage
// backend persists the entry list write-through; an injected event
// sink observes and may adjust entries. Optimistic concurrency is not
// enforced here — the validator precondition check happens one layer
// up, before Upsert is called.
package catalog
