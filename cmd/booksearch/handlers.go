package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/dreamware/bookshard/internal/query"
	"github.com/dreamware/bookshard/internal/registry"
	"github.com/dreamware/bookshard/internal/shard"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const requestIDHeader = "X-Request-ID"

// server is the thin JSON API over the search service and the registry.
type server struct {
	app     *app
	monitor *registry.HealthMonitor // nil when health checks are off
	started time.Time
}

func newServer(a *app, monitor *registry.HealthMonitor) *server {
	return &server{app: a, monitor: monitor, started: time.Now()}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/shards", s.handleShards)
	mux.HandleFunc("/shards/connect", s.handleConnect)
	mux.HandleFunc("/shards/disconnect", s.handleDisconnect)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

type errorResponse struct {
	Error      string `json:"error"`
	Constraint string `json:"constraint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	if ve, ok := query.AsValidation(err); ok {
		resp.Constraint = string(ve.Constraint)
	}
	writeJSON(w, status, resp)
}

// handleSearch serves GET /search.
func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.Header.Get(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, id)
	logger := s.app.logger.With(zap.String("request_id", id))

	params, err := parseSearchQuery(r.URL.Query(), s.app.cfg.Search.PageSize)
	if err != nil {
		logger.Debug("bad search parameters", zap.Error(err))
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := params.request(s.app.cfg.Search.DefaultField)
	if err != nil {
		logger.Debug("search rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := s.app.svc.Search(r.Context(), req, s.app.available())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, query.ErrValidation) {
			status = http.StatusBadRequest
		}
		logger.Warn("search failed", zap.Error(err))
		writeError(w, status, err)
		return
	}

	logger.Info("search served",
		zap.Strings("shards", req.Shards),
		zap.Int64("total", resp.TotalRecords),
		zap.Int("page", resp.EffectivePage))
	writeJSON(w, http.StatusOK, resp)
}

type shardsResponse struct {
	Available []string                         `json:"available"`
	Connected []shard.ShardInfo                `json:"connected"`
	Health    map[string]*registry.ShardHealth `json:"health,omitempty"`
}

// handleShards serves GET /shards.
func (s *server) handleShards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Get("refresh") == "true" {
		if _, err := s.app.catalog.Refresh(); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	resp := shardsResponse{
		Available: s.app.catalog.Available(),
		Connected: s.app.reg.Infos(),
	}
	if resp.Available == nil {
		resp.Available = []string{}
	}
	if s.monitor != nil {
		resp.Health = s.monitor.GetAllShardHealth()
	}
	writeJSON(w, http.StatusOK, resp)
}

type shardsRequest struct {
	Shards []string `json:"shards"`
}

type shardStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func decodeShards(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	var req shardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return nil, false
	}
	if len(req.Shards) == 0 {
		http.Error(w, "missing shards", http.StatusBadRequest)
		return nil, false
	}
	return req.Shards, true
}

// handleConnect serves POST /shards/connect. Each shard gets its own status;
// the request itself succeeds even when every shard fails.
func (s *server) handleConnect(w http.ResponseWriter, r *http.Request) {
	names, ok := decodeShards(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	out := make([]shardStatus, 0, len(names))
	changed := false
	for _, name := range names {
		st := shardStatus{Name: s.app.reg.Normalize(name)}
		if err := s.app.reg.Connect(ctx, name); err != nil {
			st.Error = err.Error()
		} else {
			st.OK = true
			changed = true
			s.app.catalog.Add(name)
		}
		out = append(out, st)
	}
	if changed {
		s.app.svc.Cache().Purge()
	}
	writeJSON(w, http.StatusOK, struct {
		Results []shardStatus `json:"results"`
	}{Results: out})
}

// handleDisconnect serves POST /shards/disconnect.
func (s *server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	names, ok := decodeShards(w, r)
	if !ok {
		return
	}

	out := make([]shardStatus, 0, len(names))
	for _, name := range names {
		st := shardStatus{Name: s.app.reg.Normalize(name), OK: true}
		if err := s.app.reg.Disconnect(name); err != nil {
			st.OK = false
			st.Error = err.Error()
		}
		out = append(out, st)
	}
	s.app.svc.Cache().Purge()
	writeJSON(w, http.StatusOK, struct {
		Results []shardStatus `json:"results"`
	}{Results: out})
}

// handleHealth serves GET /health.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Shards int    `json:"shards"`
		Uptime string `json:"uptime"`
	}{
		Status: "ok",
		Shards: s.app.reg.Len(),
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}
