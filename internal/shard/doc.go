// Package shard models a single connected shard file: its normalized name,
// the open storage handle, a small state machine and per-shard operation
// counters.
//
// # Overview
//
// A shard is one SQLite file under the library root holding the books table.
// Shards are independent: none knows about the others, and a query against
// one never depends on the result of another.
//
//	┌─────────────────────────────────────┐
//	│            SHARD                     │
//	├─────────────────────────────────────┤
//	│  Name   "fiction"  (no extension)   │
//	│  Path   /library/fiction.db         │
//	│  Store  storage.Store (read-only)   │
//	│  State  active | unhealthy | closed │
//	│  Stats  row / count / failures      │
//	└─────────────────────────────────────┘
//
// # Naming
//
// NormalizeName strips the shard extension and surrounding whitespace but
// keeps case, so "Fiction.db", "Fiction" and " Fiction " all refer to the
// same shard while "fiction" is a different one. Registries and the fan-out
// executor compare normalized names only.
//
// # State Machine
//
//	active ──(health checks fail)──▶ unhealthy
//	  ▲                                  │
//	  └──────(health check passes)───────┘
//	active | unhealthy ──(Close)──▶ closed   (terminal)
//
// # Statistics
//
// Row queries, count queries and failures are counted with atomic operations
// so the hot query path never takes the shard mutex.
package shard
