package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamware/bookshard/internal/config"
	"github.com/dreamware/bookshard/internal/query"
	"github.com/dreamware/bookshard/internal/search"
	"github.com/dreamware/bookshard/internal/storage/storagetest"
)

// newTestApp builds an app over a library with shards A and C connected and
// B present on disk but not connected.
func newTestApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	storagetest.CreateShard(t, dir, "A",
		storagetest.Row{Title: "Dune", Author: "Frank Herbert"},
		storagetest.Row{Title: "Emma", Author: "Jane Austen"},
	)
	storagetest.CreateShard(t, dir, "B",
		storagetest.Row{Title: "Dune Messiah", Author: "Frank Herbert"},
	)
	storagetest.CreateShard(t, dir, "C",
		storagetest.Row{Title: "Children of Dune", Author: "Frank Herbert"},
	)

	c := config.Default()
	c.Library.Root = dir
	c.Library.Connect = []string{"A", "C"}
	c.Search.PageSize = 10
	require.NoError(t, c.Validate())

	a, err := newApp(context.Background(), c, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func post(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, r io.Reader, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r).Decode(v))
}

// TestHandleSearch tests the search endpoint
func TestHandleSearch(t *testing.T) {
	h := newServer(newTestApp(t), nil).routes()

	tests := []struct {
		name      string
		target    string
		wantTotal int64
		wantRows  int
	}{
		{
			name:      "simple fuzzy",
			target:    "/search?field=title&q=Dune&fuzzy=true&shards=A,C",
			wantTotal: 2,
			wantRows:  2,
		},
		{
			name:      "simple exact",
			target:    "/search?field=title&q=Dune&shards=A,C",
			wantTotal: 1,
			wantRows:  1,
		},
		{
			name:      "default field",
			target:    "/search?q=Emma&shards=A",
			wantTotal: 1,
			wantRows:  1,
		},
		{
			name:      "match all",
			target:    "/search?shards=A,C",
			wantTotal: 3,
			wantRows:  3,
		},
		{
			name:      "unconnected shard is skipped",
			target:    "/search?shards=B,C",
			wantTotal: 1,
			wantRows:  1,
		},
		{
			name:      "advanced",
			target:    "/search?fields=author,title&queries=Jane+Austen,Dune&logics=or&fuzzies=false,true&shards=A,C",
			wantTotal: 3,
			wantRows:  3,
		},
		{
			name:      "repeated parameters",
			target:    "/search?fields=author&fields=title&queries=Frank+Herbert&queries=Children&logics=AND&fuzzies=false&fuzzies=true&shards=A&shards=C",
			wantTotal: 1,
			wantRows:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp search.Response
			decode(t, rec.Body, &resp)
			assert.Equal(t, tt.wantTotal, resp.TotalRecords)
			assert.Len(t, resp.Rows, tt.wantRows)
			assert.Equal(t, 1, resp.EffectivePage)
		})
	}
}

// TestHandleSearchEmptyShards tests that no shards yields an empty page
func TestHandleSearchEmptyShards(t *testing.T) {
	h := newServer(newTestApp(t), nil).routes()

	rec := get(t, h, "/search?field=title&q=Dune")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rows":[],"totalRecords":0,"effectivePage":1,"totalPages":0}`, rec.Body.String())
}

// TestHandleSearchErrors tests rejected requests
func TestHandleSearchErrors(t *testing.T) {
	h := newServer(newTestApp(t), nil).routes()

	tests := []struct {
		name           string
		target         string
		wantConstraint string
	}{
		{"unknown field", "/search?field=colour&q=red&shards=A", string(query.ConstraintUnknownField)},
		{"connector count", "/search?fields=title,author&queries=a,b&shards=A", string(query.ConstraintConnectorCount)},
		{"invalid connector", "/search?fields=title,author&queries=a,b&logics=xor&shards=A", string(query.ConstraintInvalidConnector)},
		{"length mismatch", "/search?fields=title,author&queries=a&logics=and&shards=A", string(query.ConstraintLengthMismatch)},
		{"zero page", "/search?page=0&shards=A", string(query.ConstraintPage)},
		{"zero page size", "/search?page_size=0&shards=A", string(query.ConstraintPageSize)},
		{"non-numeric page", "/search?page=two&shards=A", ""},
		{"bad fuzzy", "/search?field=title&q=x&fuzzy=maybe&shards=A", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			var resp errorResponse
			decode(t, rec.Body, &resp)
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.wantConstraint, resp.Constraint)
		})
	}

	rec := post(t, h, "/search", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// TestHandleSearchPaging tests clamping of an out-of-range page
func TestHandleSearchPaging(t *testing.T) {
	h := newServer(newTestApp(t), nil).routes()

	rec := get(t, h, "/search?shards=A&page=5&page_size=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp search.Response
	decode(t, rec.Body, &resp)
	assert.Equal(t, int64(2), resp.TotalRecords)
	assert.Equal(t, 2, resp.TotalPages)
	assert.Equal(t, 2, resp.EffectivePage)
	assert.Len(t, resp.Rows, 1)
}

// TestRequestID tests request id propagation
func TestRequestID(t *testing.T) {
	h := newServer(newTestApp(t), nil).routes()

	rec := get(t, h, "/search?shards=A")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/search?shards=A", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

// TestHandleShardsLifecycle tests listing, connecting and disconnecting
func TestHandleShardsLifecycle(t *testing.T) {
	h := newServer(newTestApp(t), nil).routes()

	var listed shardsResponse
	rec := get(t, h, "/shards")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec.Body, &listed)
	assert.Equal(t, []string{"A", "B", "C"}, listed.Available)
	require.Len(t, listed.Connected, 2)
	assert.Equal(t, "A", listed.Connected[0].Name)
	assert.Equal(t, "C", listed.Connected[1].Name)

	type results struct {
		Results []shardStatus `json:"results"`
	}

	var connected results
	rec = post(t, h, "/shards/connect", `{"shards":["B.db","A","ghost"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec.Body, &connected)
	require.Len(t, connected.Results, 3)
	assert.True(t, connected.Results[0].OK)
	assert.Equal(t, "B", connected.Results[0].Name)
	assert.False(t, connected.Results[1].OK, "A was already connected")
	assert.Contains(t, connected.Results[1].Error, "already connected")
	assert.False(t, connected.Results[2].OK)

	rec = get(t, h, "/search?shards=B")
	var resp search.Response
	decode(t, rec.Body, &resp)
	assert.Equal(t, int64(1), resp.TotalRecords)

	var disconnected results
	rec = post(t, h, "/shards/disconnect", `{"shards":["B","ghost"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec.Body, &disconnected)
	require.Len(t, disconnected.Results, 2)
	assert.True(t, disconnected.Results[0].OK)
	assert.False(t, disconnected.Results[1].OK)

	rec = get(t, h, "/search?shards=B")
	resp = search.Response{}
	decode(t, rec.Body, &resp)
	assert.Equal(t, int64(0), resp.TotalRecords)
}

// TestHandleShardsBadRequests tests malformed shard management calls
func TestHandleShardsBadRequests(t *testing.T) {
	h := newServer(newTestApp(t), nil).routes()

	assert.Equal(t, http.StatusBadRequest, post(t, h, "/shards/connect", "not json").Code)
	assert.Equal(t, http.StatusBadRequest, post(t, h, "/shards/connect", `{"shards":[]}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, get(t, h, "/shards/disconnect").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, post(t, h, "/shards", "{}").Code)
}

// TestHandleHealth tests the health endpoint
func TestHandleHealth(t *testing.T) {
	h := newServer(newTestApp(t), nil).routes()

	rec := get(t, h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string `json:"status"`
		Shards int    `json:"shards"`
	}
	decode(t, rec.Body, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Shards)
}

// TestListParam tests list parameter parsing
func TestListParam(t *testing.T) {
	v := url.Values{}
	v.Add("single", "a, b ,c")
	v.Add("repeated", "x,1")
	v.Add("repeated", "y")
	v.Add("empty", "")

	assert.Equal(t, []string{"a", "b", "c"}, listParam(v, "single"))
	assert.Equal(t, []string{"x,1", "y"}, listParam(v, "repeated"))
	assert.Nil(t, listParam(v, "empty"))
	assert.Nil(t, listParam(v, "missing"))
}

// TestRunSearch tests the search command output
func TestRunSearch(t *testing.T) {
	a := newTestApp(t)
	searchFlags.field = "author"
	searchFlags.query = "Frank Herbert"
	searchFlags.page = 1
	searchFlags.pageSize = 0
	searchFlags.shards = []string{"A", "C"}
	t.Cleanup(func() { searchFlags = searchOptions{} })

	var out bytes.Buffer
	require.NoError(t, runSearch(context.Background(), a, &out))

	var resp search.Response
	decode(t, &out, &resp)
	assert.Equal(t, int64(2), resp.TotalRecords)
	assert.Len(t, resp.Rows, 2)
}

// TestPrintShards tests the shards command output
func TestPrintShards(t *testing.T) {
	a := newTestApp(t)

	var out bytes.Buffer
	require.NoError(t, printShards(a, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "active")
	assert.Contains(t, lines[2], "unavailable")
	assert.True(t, strings.HasPrefix(lines[2], "B "))
}
