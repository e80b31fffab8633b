package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/bookshard/internal/query"
	"github.com/dreamware/bookshard/internal/shard"
	"github.com/dreamware/bookshard/internal/storage"
)

// fakeShards serves canned rows and counts per shard. Shards without an
// entry answer with no rows and a zero count; shards in fail answer with
// their error, as the registry does for failures.
type fakeShards struct {
	mu      sync.Mutex
	rows    map[string][]storage.Book
	counts  map[string]int64
	delay   map[string]time.Duration
	fail    map[string]error
	queries []string

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeShards() *fakeShards {
	return &fakeShards{
		rows:   make(map[string][]storage.Book),
		counts: make(map[string]int64),
		delay:  make(map[string]time.Duration),
		fail:   make(map[string]error),
	}
}

func (f *fakeShards) add(name string, count int64, titles ...string) {
	for _, title := range titles {
		t := title
		f.rows[name] = append(f.rows[name], storage.Book{Title: &t, Shard: name})
	}
	f.counts[name] = count
}

func (f *fakeShards) Normalize(name string) string {
	return shard.NormalizeName(name, "")
}

func (f *fakeShards) setDelay(name string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay[name] = d
}

func (f *fakeShards) enter(ctx context.Context, name, q string) error {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.queries = append(f.queries, name+": "+q)
	d := f.delay[name]
	err := f.fail[name]
	f.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeShards) FetchRows(ctx context.Context, name, q string, args ...any) ([]storage.Book, error) {
	if err := f.enter(ctx, name, q); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.Book(nil), f.rows[name]...), nil
}

func (f *fakeShards) FetchCount(ctx context.Context, name, q string, args ...any) (int64, error) {
	if err := f.enter(ctx, name, q); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name], nil
}

func (f *fakeShards) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func titles(books []storage.Book) []string {
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, *b.Title)
	}
	return out
}

func compileAll(t *testing.T) query.Compiled {
	t.Helper()
	c, err := query.BuildSimple("", "", false, 10, 1)
	require.NoError(t, err)
	return c
}

// TestTargets tests the requested/available intersection
func TestTargets(t *testing.T) {
	e := NewExecutor(newFakeShards())

	tests := []struct {
		name      string
		requested []string
		available []string
		want      []string
	}{
		{
			name:      "keeps requested order",
			requested: []string{"c", "a", "b"},
			available: []string{"a", "b", "c"},
			want:      []string{"c", "a", "b"},
		},
		{
			name:      "drops unavailable",
			requested: []string{"a", "ghost", "b"},
			available: []string{"a", "b"},
			want:      []string{"a", "b"},
		},
		{
			name:      "normalizes both sides",
			requested: []string{"a.db", "b"},
			available: []string{"a", "b.db"},
			want:      []string{"a", "b"},
		},
		{
			name:      "collapses repeats",
			requested: []string{"a", "a.db", "b", "a"},
			available: []string{"a", "b"},
			want:      []string{"a", "b"},
		},
		{
			name:      "nothing requested",
			requested: nil,
			available: []string{"a"},
			want:      []string{},
		},
		{
			name:      "nothing available",
			requested: []string{"a"},
			available: nil,
			want:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Targets(tt.requested, tt.available))
		})
	}
}

// TestSearchMerge tests concatenation order and count summation
func TestSearchMerge(t *testing.T) {
	f := newFakeShards()
	f.add("a", 2, "a1", "a2")
	f.add("c", 1, "c1")
	// b is available but broken: no rows, zero count.
	f.fail["b"] = errors.New("disk I/O error")
	f.delay["a"] = 30 * time.Millisecond

	e := NewExecutor(f)
	result := e.Search(context.Background(), compileAll(t),
		[]string{"a", "b", "c", "ghost"}, []string{"a", "b", "c"})

	assert.Equal(t, []string{"a1", "a2", "c1"}, titles(result.Rows))
	assert.Equal(t, int64(3), result.TotalRecords)
	assert.Equal(t, []string{"a", "b", "c"}, result.Shards)
	assert.Equal(t, []string{"b"}, result.Failed)
	assert.True(t, result.Degraded())

	// One row and one count query per queried shard, none for ghost.
	recorded := f.recorded()
	assert.Len(t, recorded, 6)
	for _, q := range recorded {
		assert.False(t, strings.HasPrefix(q, "ghost"))
	}
}

// TestSearchEmptyTargets tests the short circuit
func TestSearchEmptyTargets(t *testing.T) {
	f := newFakeShards()
	f.add("a", 1, "a1")
	e := NewExecutor(f)

	for _, targets := range [][]string{nil, {}, {"ghost"}} {
		result := e.Search(context.Background(), compileAll(t), targets, []string{"a"})
		require.NotNil(t, result.Rows)
		assert.Empty(t, result.Rows)
		assert.Equal(t, int64(0), result.TotalRecords)
		assert.False(t, result.Degraded())
	}
	assert.Empty(t, f.recorded())
}

// TestSearchRowsOnly tests that Rows skips count queries
func TestSearchRowsOnly(t *testing.T) {
	f := newFakeShards()
	f.add("a", 5, "a1")
	e := NewExecutor(f)

	result := e.Rows(context.Background(), compileAll(t), []string{"a"}, []string{"a"})
	assert.Equal(t, []string{"a1"}, titles(result.Rows))
	assert.Equal(t, int64(0), result.TotalRecords)
	assert.Len(t, f.recorded(), 1)
}

// TestSearchUnbounded tests that all tasks run together by default
func TestSearchUnbounded(t *testing.T) {
	f := newFakeShards()
	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		f.add(n, 1, n)
		f.delay[n] = 50 * time.Millisecond
	}
	e := NewExecutor(f)

	start := time.Now()
	result := e.Search(context.Background(), compileAll(t), names, names)
	elapsed := time.Since(start)

	assert.Equal(t, int64(4), result.TotalRecords)
	assert.False(t, result.Degraded())
	assert.Equal(t, int32(8), f.maxInflight.Load())
	// Bounded by the slowest shard, not the sum.
	assert.Less(t, elapsed, 300*time.Millisecond)
}

// TestSearchMaxConcurrency tests the shared cap across row and count tasks
func TestSearchMaxConcurrency(t *testing.T) {
	f := newFakeShards()
	names := []string{"a", "b", "c", "d", "e"}
	for _, n := range names {
		f.add(n, 2, n)
		f.delay[n] = 10 * time.Millisecond
	}
	e := NewExecutor(f, WithMaxConcurrency(2))

	result := e.Search(context.Background(), compileAll(t), names, names)

	assert.Equal(t, names, titles(result.Rows))
	assert.Equal(t, int64(10), result.TotalRecords)
	assert.LessOrEqual(t, f.maxInflight.Load(), int32(2))
}

// TestSearchTimeout tests that late shards contribute nothing
func TestSearchTimeout(t *testing.T) {
	f := newFakeShards()
	f.add("fast", 1, "fast1")
	f.add("slow", 1, "slow1")
	f.delay["slow"] = 5 * time.Second

	e := NewExecutor(f, WithTimeout(100*time.Millisecond))

	start := time.Now()
	result := e.Search(context.Background(), compileAll(t),
		[]string{"slow", "fast"}, []string{"slow", "fast"})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{"fast1"}, titles(result.Rows))
	assert.Equal(t, int64(1), result.TotalRecords)
	assert.Equal(t, []string{"slow"}, result.Failed)
}

// TestSearchCanceledContext tests a caller that gave up before the fan-out
func TestSearchCanceledContext(t *testing.T) {
	f := newFakeShards()
	f.add("a", 1, "a1")
	e := NewExecutor(f, WithMaxConcurrency(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := e.Search(ctx, compileAll(t), []string{"a"}, []string{"a"})
	assert.Empty(t, result.Rows)
	assert.Equal(t, int64(0), result.TotalRecords)
	assert.Equal(t, []string{"a"}, result.Failed, "skipped tasks count as failures")
	assert.Empty(t, f.recorded())
}

// TestOptions tests option normalization
func TestOptions(t *testing.T) {
	e := NewExecutor(newFakeShards(), WithMaxConcurrency(-3), WithTimeout(-time.Second), WithLogger(nil))
	assert.Equal(t, int64(0), e.maxConcurrency)
	assert.Equal(t, time.Duration(0), e.timeout)
	assert.NotNil(t, e.logger)
}
