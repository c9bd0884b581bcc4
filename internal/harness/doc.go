// Package harness runs scripted scenarios against a real engine.
//
// A scenario drives the engine, the offline queue and the cache through a
// list of steps with a fake clock, sequential action ids, an in-memory store
// and a recording dispatcher, so every run produces the same trace. The
// trace can be compared against a golden file.
//
// # Scenario Format
//
//	name: offline_like
//	description: "A like made offline reaches the server on reconnect"
//	flow:
//	  - do: offline
//	  - do: toggle_like
//	    id: v1
//	    expect: { member: true, queued: true }
//	  - do: online
//	    expect: { pending: 0 }
//	assertions:
//	  - type: trace_contains
//	    action: like
//	    args: { id: v1 }
//	  - type: final_state
//	    field: liked
//	    expect: [v1]
//
// # Steps
//
//   - set: replace field with value
//   - toggle_like, toggle_save: optimistic toggle of id
//   - online, offline: change connectivity (online replays the queue)
//   - enqueue: queue an action of type with payload
//   - replay: replay the queue now
//   - fail_remote, heal_remote: make calls for id fail or succeed
//   - cache: GetOrCompute key with ttl, producing value on a miss
//   - invalidate: drop cache keys containing pattern
//   - advance: move the fake clock forward by duration
//
// # Assertion Types
//
//   - trace_contains: a remote call of action with matching args was made
//   - trace_order: remote calls of the listed actions happened in order
//   - trace_count: action was called exactly count times
//   - final_state: field of the final snapshot equals expect
package harness
