// Package store provides the durable key/value adapters the engine persists
// snapshot fields to.
//
// Two adapters implement engine.Persistence:
//   - Store: SQLite-backed, survives restarts
//   - Memory: in-process map, for tests and ephemeral runs
//
// # Key Layout
//
// Keys are "<namespace>:<field>" (see state.Key). Each write replaces the
// stored value and bumps the key's revision; the latest write wins.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention instead of failing
//   - Single connection: SQLite allows one writer at a time
package store
