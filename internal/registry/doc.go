// Package registry owns the named connections to shard files and exposes
// the per-shard query primitives the fan-out executor is built on.
//
// # Overview
//
// Every shard is a SQLite file under one library root. The registry maps a
// normalized shard name to its open connection and is the only place those
// connections are created or destroyed. It is an explicit object passed to
// whoever needs it; there is no package-level connection table.
//
//	┌─────────────────────────────────────┐
//	│             REGISTRY                │
//	├─────────────────────────────────────┤
//	│  Connect ─────▶ open file, register │
//	│  Lookup  ─────▶ read-only access    │
//	│  FetchRows / FetchCount             │
//	│          ─────▶ query, absorb errors│
//	│  Disconnect / CloseAll              │
//	│          ─────▶ close, unregister   │
//	├─────────────────────────────────────┤
//	│  HealthMonitor                      │
//	│   - periodic Ping per shard         │
//	│   - unhealthy after N failures      │
//	│   - callback → Disconnect           │
//	└─────────────────────────────────────┘
//
// # Connection Lifecycle
//
//	(absent) ──Connect ok──▶ connected ──Disconnect/CloseAll──▶ (absent)
//	   │  ▲
//	   └──┘ Connect failed: nothing registered, next call retries
//
// Connect on a connected name returns ErrAlreadyConnected and leaves the
// existing connection alone. Lookup never connects.
//
// # Failure Isolation
//
// FetchRows and FetchCount always hand back a usable value. A shard that is
// not connected, or whose query fails, is logged and contributes no rows and
// a zero count. The error comes back alongside so an aggregating caller can
// note the degraded shard, but it never has to abort.
//
// # Concurrency and Synchronization
//
// Lock Granularity:
//   - RWMutex over the name→connection map
//   - One mutex per name around open-then-register, so concurrent Connect
//     calls for the same name cannot both open the file or overwrite the
//     map entry, while different names open in parallel
//   - No lock held during file I/O or queries
//
// Health Monitoring:
//   - One goroutine, ticker driven
//   - Checks run sequentially; each ping has its own timeout
//   - Callbacks run on fresh goroutines so they may call back into the
//     registry
//
// # Usage Example
//
//	reg := registry.NewRegistry(registry.Options{Root: "/srv/library", Logger: logger})
//	defer reg.CloseAll()
//
//	if _, err := reg.ConnectAll(ctx, []string{"fiction", "poetry"}); err != nil {
//	    logger.Warn("some shards failed to connect", zap.Error(err))
//	}
//
//	books, _ := reg.FetchRows(ctx, "fiction", compiled.RowQuery, compiled.Args()...)
//	total, _ := reg.FetchCount(ctx, "fiction", compiled.CountQuery, compiled.Args()...)
package registry
