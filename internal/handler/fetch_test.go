package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/taskgate/internal/task"
)

const scrapePage = `<html><body>
<ul><li class="item"> First </li><li class="item">Second</li><li>skip</li></ul>
</body></html>`

func newFetchServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "taskgate-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, scrapePage)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testFetcher(srv *httptest.Server, maxBytes int64) *fetcher {
	return newFetcher(Deps{HTTP: srv.Client(), Fetch: FetchConfig{MaxBodyBytes: maxBytes, UserAgent: "taskgate-test"}})
}

func TestAPIFetch(t *testing.T) {
	srv := newFetchServer(t)
	out := filepath.Join(t.TempDir(), "api.json")
	h := &apiFetch{fetcher: testFetcher(srv, 0)}

	_, err := h.Handle(context.Background(), task.NewDescriptor(task.KindAPIFetch, map[string]any{"api_url": srv.URL + "/api", "output": out}))
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, readFile(t, out))
}

func TestAPIFetchFailures(t *testing.T) {
	srv := newFetchServer(t)
	out := filepath.Join(t.TempDir(), "api.json")
	h := &apiFetch{fetcher: testFetcher(srv, 16)}

	_, err := h.Handle(context.Background(), task.NewDescriptor(task.KindAPIFetch, map[string]any{"api_url": srv.URL + "/missing", "output": out}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = h.Handle(context.Background(), task.NewDescriptor(task.KindAPIFetch, map[string]any{"api_url": srv.URL + "/big", "output": out}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	_, err = h.Handle(context.Background(), task.NewDescriptor(task.KindAPIFetch, map[string]any{"api_url": "file:///etc/passwd", "output": out}))
	assert.ErrorIs(t, err, task.ErrInvalidParameter)

	assert.NoFileExists(t, out)
}

func TestWebScraping(t *testing.T) {
	srv := newFetchServer(t)
	out := filepath.Join(t.TempDir(), "items.txt")
	h := &webScrape{fetcher: testFetcher(srv, 0)}

	_, err := h.Handle(context.Background(), task.NewDescriptor(task.KindWebScraping, map[string]any{
		"url": srv.URL + "/page", "selector": "li.item", "output": out,
	}))
	require.NoError(t, err)
	assert.Equal(t, "First\nSecond", readFile(t, out))
}

func TestFetchHonoursContext(t *testing.T) {
	srv := newFetchServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testFetcher(srv, 0).get(ctx, srv.URL+"/api")
	assert.ErrorIs(t, err, context.Canceled)
}
