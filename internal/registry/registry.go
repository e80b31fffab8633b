// Package registry owns the set of open shard connections.
// See doc.go for complete package documentation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dreamware/bookshard/internal/shard"
	"github.com/dreamware/bookshard/internal/storage"
)

var (
	// ErrAlreadyConnected is returned by Connect when the name is registered.
	ErrAlreadyConnected = errors.New("shard already connected")

	// ErrNotConnected is returned by Disconnect for unknown names.
	ErrNotConnected = errors.New("shard not connected")

	// ErrInvalidName is returned for empty names or names that escape the root.
	ErrInvalidName = errors.New("invalid shard name")
)

// Opener opens the store backing a shard file.
type Opener func(ctx context.Context, path string) (storage.Store, error)

// SQLiteOpener returns an Opener over storage.OpenSQLite.
func SQLiteOpener(opts storage.Options) Opener {
	return func(ctx context.Context, path string) (storage.Store, error) {
		return storage.OpenSQLite(ctx, path, opts)
	}
}

// Options configures a Registry.
type Options struct {
	// Root is the directory holding shard files.
	Root string

	// Extension is the shard file extension, ".db" when empty.
	Extension string

	// Opener opens a shard file. Defaults to SQLiteOpener with default options.
	Opener Opener

	// Logger receives connection and query failures. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Registry manages named connections to shard files, serving as the single
// owner of every open handle and the lookup point for the fan-out executor.
//
// The registry enforces one connection per normalized name:
//   - Connect registers a name only after its file opened successfully
//   - A failed Connect leaves no trace, so the next call simply retries
//   - Connect on a registered name fails and leaves the entry untouched
//
// Architecture:
//
//	┌─────────────────────────────────────┐
//	│            Registry                 │
//	├─────────────────────────────────────┤
//	│  shards: map[name]→*shard.Shard     │
//	│  locks:  map[name]→*sync.Mutex      │
//	│  mu:     RWMutex over both maps     │
//	├─────────────────────────────────────┤
//	│  "fiction" → /library/fiction.db    │
//	│  "poetry"  → /library/poetry.db     │
//	└─────────────────────────────────────┘
//
// Concurrency Model:
//   - Lookups use RLock and run in parallel with queries
//   - Map writes (register, unregister) use Lock
//   - Each name has its own mutex held across open-then-register, so two
//     Connect calls for one name never both open the file
//   - No registry lock is held while a file is opened or queried
type Registry struct {
	// shards maps normalized names to open connections.
	shards map[string]*shard.Shard

	// locks serializes Connect/Disconnect per name. Entries are never
	// removed so every caller for a name shares one mutex.
	locks map[string]*sync.Mutex

	mu     sync.RWMutex
	root   string
	ext    string
	open   Opener
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
//
// Example:
//
//	reg := registry.NewRegistry(registry.Options{
//	    Root:   "/srv/library",
//	    Opener: registry.SQLiteOpener(storage.Options{Driver: storage.DriverModernc}),
//	    Logger: logger,
//	})
//	defer reg.CloseAll()
func NewRegistry(opts Options) *Registry {
	if opts.Extension == "" {
		opts.Extension = shard.DefaultExtension
	}
	if opts.Opener == nil {
		opts.Opener = SQLiteOpener(storage.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Registry{
		shards: make(map[string]*shard.Shard),
		locks:  make(map[string]*sync.Mutex),
		root:   opts.Root,
		ext:    opts.Extension,
		open:   opts.Opener,
		logger: opts.Logger,
	}
}

// Normalize returns the registry key for name.
func (r *Registry) Normalize(name string) string {
	return shard.NormalizeName(name, r.ext)
}

// Extension returns the shard file extension.
func (r *Registry) Extension() string {
	return r.ext
}

// Path returns the file a shard name maps to.
func (r *Registry) Path(name string) string {
	return filepath.Join(r.root, r.Normalize(name)+r.ext)
}

func (r *Registry) validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func (r *Registry) nameLock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

// Connect opens the shard file for name and registers it.
//
// Connection process:
// 1. Normalizes the name (extension stripped, case kept)
// 2. Takes the per-name mutex
// 3. Fails with ErrAlreadyConnected if the name is registered
// 4. Opens <root>/<name><ext>; on failure nothing is registered
// 5. Registers the new connection
//
// Parameters:
//   - ctx: Bounds the open and the initial ping
//   - name: Shard name, with or without extension
//
// Returns:
//   - nil when the shard is now connected by this call
//   - ErrAlreadyConnected when it was connected before
//   - ErrInvalidName for empty or path-like names
//   - The wrapped open error otherwise
//
// Thread Safety:
// Calls for different names run independently. Calls for the same name are
// serialized; exactly one of them can succeed.
//
// Example:
//
//	if err := reg.Connect(ctx, "fiction.db"); err != nil && !errors.Is(err, registry.ErrAlreadyConnected) {
//	    logger.Warn("shard unavailable", zap.Error(err))
//	}
func (r *Registry) Connect(ctx context.Context, name string) error {
	name = r.Normalize(name)
	if !r.validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	l := r.nameLock(name)
	l.Lock()
	defer l.Unlock()

	r.mu.RLock()
	_, exists := r.shards[name]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, name)
	}

	path := r.Path(name)
	r.logger.Debug("connecting shard", zap.String("shard", name), zap.String("path", path))

	store, err := r.open(ctx, path)
	if err != nil {
		r.logger.Error("failed to connect shard",
			zap.String("shard", name), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("connect shard %s: %w", name, err)
	}

	r.mu.Lock()
	r.shards[name] = shard.NewShard(name, path, store)
	r.mu.Unlock()

	r.logger.Info("connected shard", zap.String("shard", name), zap.String("path", path))
	return nil
}

// ConnectAll connects every name and reports how many are connected
// afterwards. Names already connected count as connected and are not errors.
// Failures are joined into the returned error; they never stop the loop.
func (r *Registry) ConnectAll(ctx context.Context, names []string) (int, error) {
	var (
		connected int
		errs      []error
	)
	for _, name := range names {
		err := r.Connect(ctx, name)
		switch {
		case err == nil, errors.Is(err, ErrAlreadyConnected):
			connected++
		default:
			errs = append(errs, err)
		}
	}
	return connected, errors.Join(errs...)
}

// Lookup returns the connection registered under name. The name is
// normalized first; no connection is ever created here.
func (r *Registry) Lookup(name string) (*shard.Shard, bool) {
	name = r.Normalize(name)

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shards[name]
	return s, ok
}

// FetchRows runs a row query on one shard.
//
// A missing shard or a failing query is logged and yields nil rows: one
// shard's failure must never abort or corrupt the results gathered from the
// others. The error is still returned so callers can tell a degraded result
// from an empty one.
func (r *Registry) FetchRows(ctx context.Context, name, query string, args ...any) ([]storage.Book, error) {
	s, ok := r.Lookup(name)
	if !ok {
		r.logger.Warn("row query skipped: shard not connected", zap.String("shard", name))
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, name)
	}
	books, err := s.Rows(ctx, query, args...)
	if err != nil {
		r.logger.Error("row query failed",
			zap.String("shard", s.Name), zap.String("query", query), zap.Error(err))
		return nil, err
	}
	r.logger.Debug("row query done", zap.String("shard", s.Name), zap.Int("rows", len(books)))
	return books, nil
}

// FetchCount runs a count query on one shard. Failures count as zero and
// are returned, as in FetchRows.
func (r *Registry) FetchCount(ctx context.Context, name, query string, args ...any) (int64, error) {
	s, ok := r.Lookup(name)
	if !ok {
		r.logger.Warn("count query skipped: shard not connected", zap.String("shard", name))
		return 0, fmt.Errorf("%w: %s", ErrNotConnected, name)
	}
	n, err := s.Count(ctx, query, args...)
	if err != nil {
		r.logger.Error("count query failed",
			zap.String("shard", s.Name), zap.String("query", query), zap.Error(err))
		return 0, err
	}
	return n, nil
}

// Disconnect closes and unregisters one shard. The entry is removed even if
// closing the handle fails; the close error is returned.
func (r *Registry) Disconnect(name string) error {
	name = r.Normalize(name)

	l := r.nameLock(name)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	s, ok := r.shards[name]
	delete(r.shards, name)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, name)
	}
	if err := s.Close(); err != nil {
		r.logger.Error("failed to close shard", zap.String("shard", name), zap.Error(err))
		return fmt.Errorf("close shard %s: %w", name, err)
	}
	r.logger.Info("disconnected shard", zap.String("shard", name))
	return nil
}

// CloseAll disconnects every shard. Individual close failures are logged and
// the sweep continues; the registry is empty afterwards.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	shards := r.shards
	r.shards = make(map[string]*shard.Shard)
	r.mu.Unlock()

	for name, s := range shards {
		if err := s.Close(); err != nil {
			r.logger.Error("failed to close shard", zap.String("shard", name), zap.Error(err))
			continue
		}
		r.logger.Info("closed shard", zap.String("shard", name))
	}
}

// Names returns the connected shard names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.shards))
	for name := range r.shards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shards returns the connected shards sorted by name.
func (r *Registry) Shards() []*shard.Shard {
	r.mu.RLock()
	out := make([]*shard.Shard, 0, len(r.shards))
	for _, s := range r.shards {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Infos returns metadata for every connected shard, sorted by name.
func (r *Registry) Infos() []shard.ShardInfo {
	shards := r.Shards()
	infos := make([]shard.ShardInfo, 0, len(shards))
	for _, s := range shards {
		infos = append(infos, s.Info())
	}
	return infos
}

// Len returns the number of connected shards.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shards)
}
