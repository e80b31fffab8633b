package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/bookshard/internal/config"
	"github.com/dreamware/bookshard/internal/search"
	"github.com/dreamware/bookshard/internal/storage/storagetest"
)

const serverAddr = "127.0.0.1:18090"

// TestSystem is a booksearch server running over a scratch library
type TestSystem struct {
	t          *testing.T
	root       string
	server     *exec.Cmd
	baseURL    string
	httpClient *http.Client
}

// NewTestSystem builds the binary and a library of four files: three
// shards and one SQLite file without the books table.
func NewTestSystem(t *testing.T) *TestSystem {
	root := t.TempDir()
	storagetest.CreateShard(t, root, "fiction",
		storagetest.Row{Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593"},
		storagetest.Row{Title: "Emma", Author: "Jane Austen"},
		storagetest.Row{Title: "Persuasion", Author: "Jane Austen"},
	)
	storagetest.CreateShard(t, root, "scifi",
		storagetest.Row{Title: "Dune Messiah", Author: "Frank Herbert"},
		storagetest.Row{Title: "Hyperion", Author: "Dan Simmons"},
	)
	storagetest.CreateShard(t, root, "classics",
		storagetest.Row{Title: "Pride and Prejudice", Author: "Jane Austen"},
	)
	storagetest.CreateEmptyFile(t, root, "broken")

	return &TestSystem{
		t:          t,
		root:       root,
		baseURL:    "http://" + serverAddr,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Start builds booksearch and launches the server
func (ts *TestSystem) Start() error {
	work := ts.t.TempDir()
	bin := filepath.Join(work, "booksearch")
	build := exec.Command("go", "build", "-o", bin, "../../cmd/booksearch")
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		return fmt.Errorf("failed to build booksearch: %w", err)
	}

	cfg := config.Default()
	cfg.Library.Root = ts.root
	cfg.Library.Watch = false
	cfg.Health.Interval = "0"
	cfg.Server.Addr = serverAddr
	cfg.Search.PageSize = 2
	cfgPath := filepath.Join(work, "booksearch.yaml")
	if err := cfg.Save(cfgPath); err != nil {
		return err
	}

	ts.server = exec.Command(bin, "serve", "--config", cfgPath)
	ts.server.Stdout = os.Stdout
	ts.server.Stderr = os.Stderr
	if err := ts.server.Start(); err != nil {
		return fmt.Errorf("failed to start booksearch: %w", err)
	}
	return ts.waitForService(ts.baseURL + "/health")
}

// Stop kills the server
func (ts *TestSystem) Stop() {
	if ts.server != nil && ts.server.Process != nil {
		_ = ts.server.Process.Kill()
		_ = ts.server.Wait()
	}
}

func (ts *TestSystem) waitForService(target string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s", target)
		default:
			resp, err := ts.httpClient.Get(target)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// Search runs GET /search and decodes the page
func (ts *TestSystem) Search(params url.Values) (int, search.Response, error) {
	var out search.Response
	resp, err := ts.httpClient.Get(ts.baseURL + "/search?" + params.Encode())
	if err != nil {
		return 0, out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		err = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out, err
}

// Post sends a shard management request
func (ts *TestSystem) Post(path string, shards ...string) (int, error) {
	body, _ := json.Marshal(map[string][]string{"shards": shards})
	resp, err := ts.httpClient.Post(ts.baseURL+path, "application/json", strings.NewReader(string(body)))
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// TestBookSearch runs end-to-end searches against a live server
func TestBookSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("Skipping integration test: go toolchain not on PATH")
	}

	ts := NewTestSystem(t)
	require.NoError(t, ts.Start())
	defer ts.Stop()

	all := "fiction,scifi,classics"

	t.Run("FuzzyAcrossShards", func(t *testing.T) {
		code, page, err := ts.Search(url.Values{
			"field": {"title"}, "q": {"Dune"}, "fuzzy": {"true"}, "shards": {all},
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, int64(2), page.TotalRecords)
		assert.Equal(t, 1, page.TotalPages)
	})

	t.Run("MergedPaging", func(t *testing.T) {
		params := url.Values{"field": {"author"}, "q": {"Jane Austen"}, "shards": {all}}
		code, page, err := ts.Search(params)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, int64(3), page.TotalRecords)
		assert.Equal(t, 2, page.TotalPages)

		params.Set("page", "9")
		_, page, err = ts.Search(params)
		require.NoError(t, err)
		assert.Equal(t, 2, page.EffectivePage)
	})

	t.Run("AdvancedChain", func(t *testing.T) {
		code, page, err := ts.Search(url.Values{
			"fields":  {"author,title"},
			"queries": {"Frank Herbert,Messiah"},
			"logics":  {"and"},
			"fuzzies": {"false,true"},
			"shards":  {all},
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, page.Rows, 1)
		require.NotNil(t, page.Rows[0].Title)
		assert.Equal(t, "Dune Messiah", *page.Rows[0].Title)
	})

	t.Run("UnconnectedFileIsSkipped", func(t *testing.T) {
		code, page, err := ts.Search(url.Values{"shards": {"broken,classics"}})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, int64(1), page.TotalRecords)
	})

	t.Run("RejectsUnknownField", func(t *testing.T) {
		code, _, err := ts.Search(url.Values{"field": {"colour"}, "q": {"red"}, "shards": {all}})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("DisconnectAndReconnect", func(t *testing.T) {
		code, err := ts.Post("/shards/disconnect", "scifi")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, code)

		_, page, err := ts.Search(url.Values{"shards": {all}})
		require.NoError(t, err)
		assert.Equal(t, int64(4), page.TotalRecords)

		code, err = ts.Post("/shards/connect", "scifi")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, code)

		_, page, err = ts.Search(url.Values{"shards": {all}})
		require.NoError(t, err)
		assert.Equal(t, int64(6), page.TotalRecords)
	})

	t.Run("ConcurrentSearches", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				code, page, err := ts.Search(url.Values{"q": {"Dune"}, "field": {"title"}, "fuzzy": {"true"}, "shards": {all}})
				switch {
				case err != nil:
					errs <- err
				case code != http.StatusOK || page.TotalRecords != 2:
					errs <- fmt.Errorf("search %d: status %d, total %d", i, code, page.TotalRecords)
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Error(err)
		}
	})
}
