// Package storage provides the read-only database layer behind every shard:
// one SQLite file holding the books table, wrapped in a small Store interface
// so the registry and fan-out code never touch database/sql directly.
//
// # Overview
//
// Each shard is an independent SQLite file with the same schema. The package
// opens such a file, verifies it is a shard, and executes the parameterized
// row and count queries produced by package query.
//
//	┌─────────────────────────────────────┐
//	│     Registry / Fan-out executor     │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│          Store interface            │
//	│  Books · Count · Ping · Close       │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│     SQLiteStore (database/sql)      │
//	│  modernc "sqlite" | mattn "sqlite3" │
//	└─────────────────────────────────────┘
//
// # Drivers
//
// Two drivers are registered:
//   - DriverModernc ("sqlite"): pure Go, the default, works with CGO disabled
//   - DriverMattn ("sqlite3"): cgo binding, usually faster on large files
//
// Both accept the same named parameters (:name) produced by package query.
//
// # Opening Rules
//
// OpenSQLite refuses to create files. A shard is opened read-only with a busy
// timeout, pinged, and checked for the books table. Anything else is an
// error and nothing stays open. The file is addressed as an absolute,
// percent-escaped file: URI, so any legal file name works.
//
// # Concurrency
//
// A read-only SQLiteStore keeps up to Options.MaxConns connections
// (DefaultReadConns unless set), so the row query, the count query and a
// health ping on one shard run side by side. A writable store stays at one
// connection.
//
// # Row Mapping
//
// Books scans rows generically and maps columns onto Book by name, ignoring
// case. Unknown columns are skipped so shards built by older tools with
// extra columns still load. NULL columns stay nil.
package storage
