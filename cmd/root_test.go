package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/car-listing-crawler/internal/app"
	"github.com/JakeFAU/car-listing-crawler/internal/config"
)

func writeConfig(t *testing.T, baseURL, exportDir string) string {
	t.Helper()
	body := fmt.Sprintf(`
site:
  base_url: %s/search
discovery:
  max_pages: 16
fetcher:
  workers: 2
store:
  provider: memory
export:
  provider: local
  local_dir: %s
logging:
  level: error
`, baseURL, exportDir)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		fmt.Fprint(w, "<html><body>")
		if page <= 2 {
			fmt.Fprintf(w, `<a class="m-link-ticket" href="/auto_%d.html">car</a>`, page)
		}
		fmt.Fprint(w, "</body></html>")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><h1 class="head">Skoda Octavia 2015</h1></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRootRegistersSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd(&closer{})
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"crawl", "serve", "export", "migrate"})
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestMigrateWithMemoryStore(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "http://127.0.0.1:1", t.TempDir())
	require.NoError(t, run(context.Background(), []string{"--config", path, "migrate"}))
}

func TestCrawlThenExport(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	exportDir := t.TempDir()
	path := writeConfig(t, site.URL, exportDir)

	require.NoError(t, run(context.Background(), []string{"--config", path, "crawl", "--export"}))

	files, err := filepath.Glob(filepath.Join(exportDir, "listings_*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Skoda Octavia 2015")
}

func TestInvalidConfigFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  provider: memory\n"), 0o600))
	err := run(context.Background(), []string{"--config", path, "migrate"})
	require.ErrorContains(t, err, "load config")
}

func TestAppInitFailure(t *testing.T) {
	original := newApp
	t.Cleanup(func() { newApp = original })
	newApp = func(context.Context, config.Config, *zap.Logger) (*app.App, error) {
		return nil, errors.New("database unreachable")
	}

	path := writeConfig(t, "http://127.0.0.1:1", t.TempDir())
	err := run(context.Background(), []string{"--config", path, "migrate"})
	require.ErrorContains(t, err, "database unreachable")
}
