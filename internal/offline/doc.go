// Package offline keeps user actions flowing while the device is offline.
//
// Two cooperating pieces:
//   - Queue: a durable FIFO of pending actions stored in the snapshot's pending
//     field. Actions are replayed strictly in enqueue order; the first failure
//     halts replay and leaves that action and everything after it queued.
//   - Toggles: optimistic set-membership flips (like, save). The flip commits
//     before the remote call; a failed call commits a compensating rollback and
//     the error is returned. While offline the call is queued instead.
//
// Delivery is at-least-once. Every action carries an idempotency key the
// dispatcher forwards so the server can drop duplicates.
package offline
