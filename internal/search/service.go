package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/bookshard/internal/query"
	"github.com/dreamware/bookshard/internal/storage"
)

// Request is a validated search over a set of shards.
type Request struct {
	Chain    query.Chain
	Page     int
	PageSize int
	Shards   []string
}

// Response is one served page.
type Response struct {
	Rows          []storage.Book `json:"rows"`
	TotalRecords  int64          `json:"totalRecords"`
	EffectivePage int            `json:"effectivePage"`
	TotalPages    int            `json:"totalPages"`
}

// EmptyResponse is the response to a search that names no shards.
func EmptyResponse() *Response {
	return &Response{Rows: []storage.Book{}, EffectivePage: 1}
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Compiler defaults to query.SQLite{}.
	Compiler query.Compiler
	// Cache may be nil.
	Cache  *Cache
	Logger *zap.Logger
}

// Service turns requests into pages: compile, fan out, paginate.
type Service struct {
	exec     *Executor
	compiler query.Compiler
	cache    *Cache
	logger   *zap.Logger
}

// NewService creates a service running searches on exec.
func NewService(exec *Executor, opts ServiceOptions) *Service {
	if opts.Compiler == nil {
		opts.Compiler = query.SQLite{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		exec:     exec,
		compiler: opts.Compiler,
		cache:    opts.Cache,
		logger:   opts.Logger,
	}
}

// Cache returns the service's result cache, possibly nil.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Search validates req, runs it against the shards of req.Shards that are
// in available, and returns the page.
//
// When the requested page lies past the last page, the page is clamped and
// the rows are fetched again from the clamped page's window, so the rows
// served always belong to EffectivePage.
//
// The only errors are validation errors; shard failures are absorbed. Pages
// missing a shard's contribution are served but never cached.
func (s *Service) Search(ctx context.Context, req Request, available []string) (*Response, error) {
	limit, err := query.PageLimit(req.PageSize, req.Page)
	if err != nil {
		return nil, err
	}
	compiled, err := s.compiler.Compile(req.Chain, limit)
	if err != nil {
		return nil, err
	}
	if len(req.Shards) == 0 {
		return EmptyResponse(), nil
	}

	targets := s.exec.Targets(req.Shards, available)
	key := cacheKey(compiled, targets)
	if resp, ok := s.cache.Get(key); ok {
		s.logger.Debug("search served from cache", zap.Strings("shards", targets))
		return &resp, nil
	}

	start := time.Now()
	result := s.exec.resolved(ctx, compiled, targets, true)
	degraded := result.Degraded()

	page, err := Paginate(result.TotalRecords, req.PageSize, req.Page)
	if err != nil {
		return nil, err
	}

	rows := result.Rows
	if page.Number != req.Page && result.TotalRecords > 0 {
		clamped, err := query.PageLimit(req.PageSize, page.Number)
		if err != nil {
			return nil, err
		}
		recompiled, err := s.compiler.Compile(req.Chain, clamped)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("requested page out of range, refetching",
			zap.Int("requested", req.Page), zap.Int("effective", page.Number))
		refetched := s.exec.resolved(ctx, recompiled, targets, false)
		rows = refetched.Rows
		degraded = degraded || refetched.Degraded()
	}

	resp := Response{
		Rows:          rows,
		TotalRecords:  result.TotalRecords,
		EffectivePage: page.Number,
		TotalPages:    page.TotalPages,
	}
	s.logger.Info("search completed",
		zap.Strings("shards", targets),
		zap.Int("rows", len(rows)),
		zap.Int64("total", resp.TotalRecords),
		zap.Int("page", resp.EffectivePage),
		zap.Bool("degraded", degraded),
		zap.Duration("elapsed", time.Since(start)))

	// A partial page would keep hiding a recovered shard until it expired.
	if !degraded && ctx.Err() == nil {
		s.cache.Put(key, resp)
	}
	return &resp, nil
}
