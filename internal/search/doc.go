// Package search fans one compiled query out over many shards and turns the
// merged result into a page.
//
// # Overview
//
//	Request ──▶ Service ──compile──▶ query.Compiled
//	                │
//	                ▼
//	            Executor ── Targets(requested ∩ available)
//	                │
//	     ┌──────────┼──────────┐
//	     ▼          ▼          ▼
//	  rows(A)    rows(B)    rows(C)      row barrier
//	  count(A)   count(B)   count(C)     count barrier
//	     └──────────┼──────────┘
//	                ▼
//	   concat rows in target order, sum counts
//	                │
//	                ▼
//	   Paginate ──▶ Response{rows, totalRecords, effectivePage, totalPages}
//
// # Failure Handling
//
// Every shard task writes only its own result slot. A shard that is missing,
// fails its query, or is still running at the deadline leaves its slot
// empty and is listed in Result.Failed. The request as a whole never fails
// for a shard's sake; the only errors returned are validation errors raised
// before any shard is touched. A degraded page is served but not cached.
//
// # Concurrency
//
// Row and count tasks start together. The executor waits for all row tasks
// and then for all count tasks, so latency is bounded by the slowest shard.
// WithMaxConcurrency bounds how many tasks of either kind run at once.
//
// # Pages
//
// Paginate clamps a page past the end to the last page. The service then
// refetches rows for the clamped page, compiling its window with the same
// query.PageLimit used for the original request.
package search
