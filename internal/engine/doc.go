// Package engine implements the single-writer application-state engine.
//
// The engine owns the one current state.Snapshot. Every change to it is a
// mutation submitted through Submit (or Apply), and every mutation runs on the
// goroutine executing Run.
//
// ARCHITECTURE:
//
// Single-Writer Mutation Loop:
// Submissions are appended to a FIFO queue and consumed by exactly one
// goroutine. This ensures:
//   - Commits happen in submission order
//   - Each updater sees the fully committed result of the previous one
//   - Notifications for commit K finish before commit K+1 starts
//
// Commit Flow:
//  1. Submit enqueues the updater and returns a Future
//  2. Run dequeues it and calls the updater with the current snapshot
//  3. The resulting patch is validated against the fixed field schema
//  4. The patch is merged into a new snapshot, published, and recorded in history
//  5. Subscribers for every changed field run, then wildcard subscribers
//     (wildcard subscribers run even when nothing changed)
//  6. Changed fields are marked for the debounced durable write
//  7. The Future resolves with the new snapshot (or the rejection error)
//
// A rejected mutation leaves the current snapshot untouched. Subscriber
// failures and persistence failures are logged and never reach the caller.
//
// Updaters and subscriber callbacks run on the loop goroutine. They may call
// Submit, but must not block on Apply or Future.Wait: the loop cannot run the
// awaited mutation while it is busy running them.
package engine
