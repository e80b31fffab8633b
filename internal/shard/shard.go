package shard

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreamware/bookshard/internal/storage"
)

// DefaultExtension is the file extension of shard files
const DefaultExtension = ".db"

// ShardState represents the current state of a shard connection
type ShardState string

const (
	// ShardStateActive means the shard is serving queries
	ShardStateActive ShardState = "active"
	// ShardStateUnhealthy means health checks are failing
	ShardStateUnhealthy ShardState = "unhealthy"
	// ShardStateClosed means the handle has been released
	ShardStateClosed ShardState = "closed"
)

// NormalizeName strips the shard file extension from name
// Case is preserved: "Fiction.db" and "fiction" are different shards
func NormalizeName(name, ext string) string {
	if ext == "" {
		ext = DefaultExtension
	}
	name = strings.TrimSpace(name)
	return strings.TrimSuffix(name, ext)
}

// Shard is an open connection to one shard file
// Exactly one Shard exists per normalized name inside a registry
type Shard struct {
	Name     string        // Normalized shard name
	Path     string        // File backing the shard
	Store    storage.Store // Open database handle
	Opened   time.Time     // When the connection was established
	Stats    *ShardStats   // Operation statistics
	mu       sync.RWMutex  // Protects state
	state    ShardState    // Current shard state
	closeErr error         // Result of the first Close
	closed   bool
}

// ShardStats tracks operational statistics for a shard
type ShardStats struct {
	RowQueries   uint64 // Number of row queries issued
	CountQueries uint64 // Number of count queries issued
	Failures     uint64 // Number of queries that returned an error
}

// ShardInfo contains metadata about a shard
type ShardInfo struct {
	Name         string     `json:"name"`
	Path         string     `json:"path"`
	State        ShardState `json:"state"`
	Opened       time.Time  `json:"opened"`
	RowQueries   uint64     `json:"row_queries"`
	CountQueries uint64     `json:"count_queries"`
	Failures     uint64     `json:"failures"`
}

// NewShard wraps an open store
func NewShard(name, path string, store storage.Store) *Shard {
	return &Shard{
		Name:   name,
		Path:   path,
		Store:  store,
		Opened: time.Now(),
		Stats:  &ShardStats{},
		state:  ShardStateActive,
	}
}

// Rows runs a row query against the shard
// Returned books are stamped with the shard name
func (s *Shard) Rows(ctx context.Context, query string, args ...any) ([]storage.Book, error) {
	atomic.AddUint64(&s.Stats.RowQueries, 1)
	books, err := s.Store.Books(ctx, query, args...)
	if err != nil {
		atomic.AddUint64(&s.Stats.Failures, 1)
		return nil, err
	}
	for i := range books {
		books[i].Shard = s.Name
	}
	return books, nil
}

// Count runs a count query against the shard
func (s *Shard) Count(ctx context.Context, query string, args ...any) (int64, error) {
	atomic.AddUint64(&s.Stats.CountQueries, 1)
	n, err := s.Store.Count(ctx, query, args...)
	if err != nil {
		atomic.AddUint64(&s.Stats.Failures, 1)
		return 0, err
	}
	return n, nil
}

// Ping checks the backing store
func (s *Shard) Ping(ctx context.Context) error {
	return s.Store.Ping(ctx)
}

// Close releases the store; repeated calls return the first result
func (s *Shard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.closeErr
	}
	s.closed = true
	s.state = ShardStateClosed
	s.closeErr = s.Store.Close()
	return s.closeErr
}

// GetStats returns a snapshot of the operation counters
func (s *Shard) GetStats() ShardStats {
	return ShardStats{
		RowQueries:   atomic.LoadUint64(&s.Stats.RowQueries),
		CountQueries: atomic.LoadUint64(&s.Stats.CountQueries),
		Failures:     atomic.LoadUint64(&s.Stats.Failures),
	}
}

// Info returns metadata about the shard
func (s *Shard) Info() ShardInfo {
	stats := s.GetStats()
	return ShardInfo{
		Name:         s.Name,
		Path:         s.Path,
		State:        s.State(),
		Opened:       s.Opened,
		RowQueries:   stats.RowQueries,
		CountQueries: stats.CountQueries,
		Failures:     stats.Failures,
	}
}

// State returns the current shard state
func (s *Shard) State() ShardState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState updates the shard state
// A closed shard stays closed
func (s *Shard) SetState(state ShardState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.state = state
}
