package search

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dreamware/bookshard/internal/query"
	"github.com/dreamware/bookshard/internal/storage"
)

// Shards is the per-shard query surface the executor fans out over.
// *registry.Registry implements it. A fetch that fails returns empty data
// together with the error.
type Shards interface {
	Normalize(name string) string
	FetchRows(ctx context.Context, name, query string, args ...any) ([]storage.Book, error)
	FetchCount(ctx context.Context, name, query string, args ...any) (int64, error)
}

// Result is the merged outcome of one fan-out.
type Result struct {
	// Rows holds every shard's rows, concatenated in target order.
	Rows []storage.Book
	// TotalRecords is the sum of the per-shard counts.
	TotalRecords int64
	// Shards lists the shards actually queried, in target order.
	Shards []string
	// Failed lists the shards, in target order, whose rows or count are
	// missing because a query failed, was skipped, or missed the deadline.
	Failed []string
}

// Degraded reports whether any shard failed to contribute.
func (r Result) Degraded() bool {
	return len(r.Failed) > 0
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxConcurrency caps the number of shard tasks in flight at once,
// counting row and count tasks together. Zero or less means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(e *Executor) {
		if n < 0 {
			n = 0
		}
		e.maxConcurrency = int64(n)
	}
}

// WithTimeout bounds each fan-out. Tasks still running at the deadline are
// cancelled and contribute nothing. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d < 0 {
			d = 0
		}
		e.timeout = d
	}
}

// WithLogger sets the executor's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Executor issues one compiled query against many shards concurrently and
// merges the results.
type Executor struct {
	shards         Shards
	maxConcurrency int64
	timeout        time.Duration
	logger         *zap.Logger
}

// NewExecutor creates an executor over shards.
func NewExecutor(shards Shards, opts ...Option) *Executor {
	e := &Executor{
		shards: shards,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Targets intersects the requested names with the available ones.
// Names are normalized, caller order is kept, and repeats are collapsed.
// Requested names that are not available are dropped without error.
func (e *Executor) Targets(requested, available []string) []string {
	avail := make(map[string]struct{}, len(available))
	for _, name := range available {
		avail[e.shards.Normalize(name)] = struct{}{}
	}

	out := make([]string, 0, len(requested))
	for _, name := range requested {
		name = e.shards.Normalize(name)
		if _, ok := avail[name]; !ok {
			continue
		}
		if slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Search runs the row and count queries of compiled on every shard in the
// intersection of targets and available.
//
// Fan-out process:
//  1. Intersects targets with available (see Targets)
//  2. Launches one row task and one count task per shard
//  3. Waits for every row task, then for every count task
//  4. Concatenates rows in target order and sums counts
//
// A shard that fails, is missing, or misses the deadline contributes no rows
// and a zero count. Search never fails as a whole. With no targets it returns
// an empty result without touching any shard.
func (e *Executor) Search(ctx context.Context, compiled query.Compiled, targets, available []string) Result {
	return e.resolved(ctx, compiled, e.Targets(targets, available), true)
}

// Rows runs only the row query of compiled, with the same target handling
// as Search. TotalRecords is left zero.
func (e *Executor) Rows(ctx context.Context, compiled query.Compiled, targets, available []string) Result {
	return e.resolved(ctx, compiled, e.Targets(targets, available), false)
}

// resolved fans out over names already produced by Targets.
func (e *Executor) resolved(ctx context.Context, compiled query.Compiled, names []string, withCount bool) Result {
	if len(names) == 0 {
		return Result{Rows: []storage.Book{}, Shards: []string{}}
	}
	return e.fanOut(ctx, compiled, names, withCount)
}

func (e *Executor) fanOut(ctx context.Context, compiled query.Compiled, names []string, withCount bool) Result {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var sem *semaphore.Weighted
	if e.maxConcurrency > 0 {
		sem = semaphore.NewWeighted(e.maxConcurrency)
	}

	args := compiled.Args()
	rowSlots := make([][]storage.Book, len(names))
	countSlots := make([]int64, len(names))
	// A slot counts as done only once its query succeeded inside the deadline.
	rowDone := make([]bool, len(names))
	countDone := make([]bool, len(names))

	// The two groups are the two barriers. Tasks never return errors: a
	// failed shard just leaves its slot empty.
	var rowGroup, countGroup errgroup.Group

	for i, name := range names {
		rowGroup.Go(func() error {
			e.run(ctx, sem, name, "rows", func() {
				rows, err := e.shards.FetchRows(ctx, name, compiled.RowQuery, args...)
				if err == nil && ctx.Err() == nil {
					rowSlots[i] = rows
					rowDone[i] = true
				}
			})
			return nil
		})
		if withCount {
			countGroup.Go(func() error {
				e.run(ctx, sem, name, "count", func() {
					n, err := e.shards.FetchCount(ctx, name, compiled.CountQuery, args...)
					if err == nil && ctx.Err() == nil {
						countSlots[i] = n
						countDone[i] = true
					}
				})
				return nil
			})
		}
	}

	_ = rowGroup.Wait()
	_ = countGroup.Wait()

	if err := ctx.Err(); err != nil {
		e.logger.Warn("fan-out ended early; late shards contribute nothing",
			zap.Strings("shards", names), zap.Error(err))
	}

	size := 0
	for _, rows := range rowSlots {
		size += len(rows)
	}
	result := Result{
		Rows:   make([]storage.Book, 0, size),
		Shards: names,
	}
	for i, name := range names {
		result.Rows = append(result.Rows, rowSlots[i]...)
		result.TotalRecords += countSlots[i]
		if !rowDone[i] || (withCount && !countDone[i]) {
			result.Failed = append(result.Failed, name)
		}
	}
	if result.Degraded() {
		e.logger.Warn("partial result", zap.Strings("failed", result.Failed))
	}
	return result
}

// run executes task under the concurrency cap, if any. A task whose slot
// could not be acquired before ctx ended is skipped.
func (e *Executor) run(ctx context.Context, sem *semaphore.Weighted, name, kind string, task func()) {
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			e.logger.Debug("shard task skipped",
				zap.String("shard", name), zap.String("kind", kind), zap.Error(err))
			return
		}
		defer sem.Release(1)
	}
	if ctx.Err() != nil {
		return
	}
	task()
}
