// Package state defines the application-state Snapshot and everything that
// operates on a Snapshot without scheduling: the typed field enumeration,
// immutable containers, patches and their schema, change detection, the
// bounded history ring and the per-field persistence codec.
//
// # Immutability
//
// A Snapshot is a value. Its containers (Set, Index, Collection, CacheTable)
// expose no mutating methods; "updates" such as Set.With build a new container
// and leave the receiver untouched. A new Snapshot is produced only by
// Snapshot.Merge, which the engine calls once per committed mutation.
//
// # Change Detection
//
// Diff compares two snapshots field by field using FieldEqual. Containers are
// compared structurally (same size, same members or key→value pairs), so a
// rebuilt but identical container does not count as a change.
package state
