package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/peaking-cli/internal/resilience"
	"github.com/sells-group/peaking-cli/internal/tracker"
)

const trackerCSV = "title,,,,,\n" +
	"City name tidy up,\"Inventory\n_year\",Source_Protocol,\"Inventory\n_year\",\"Emissions\n_mtCO2e\",Use in peaking (Yes or No)\n" +
	"Accra,2016,C40_GPC,2015,180,Yes\n" +
	"Lima,2013,City_Other,2012,95,Yes\n"

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(Options{
		UserAgent:     "test-agent",
		Timeout:       5 * time.Second,
		RatePerSecond: 1000,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	})
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.org/tracker.xlsx"))
	assert.True(t, IsRemote("http://localhost:8080/t.csv"))
	assert.False(t, IsRemote("/data/tracker.xlsx"))
	assert.False(t, IsRemote("tracker.csv"))
	assert.False(t, IsRemote("ftp://example.org/tracker.csv"))
	assert.False(t, IsRemote("https://"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "tracker.xlsx", fileName("https://example.org/files/tracker.xlsx?dl=1"))
	assert.Equal(t, "tracker", fileName("https://example.org/"))
	assert.Equal(t, "tracker", fileName("https://example.org"))
}

func TestLocalize_LocalPathUnchanged(t *testing.T) {
	f := newTestFetcher()
	got, err := f.Localize(context.Background(), "/data/tracker.xlsx", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "/data/tracker.xlsx", got)
}

func TestLocalize_DownloadsAndReusesUnchanged(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(trackerCSV))
	}))
	defer srv.Close()

	f := newTestFetcher()
	dir := t.TempDir()

	first, err := f.Localize(context.Background(), srv.URL+"/exports/tracker.csv", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tracker.csv"), first)
	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, trackerCSV, string(data))
	_, err = os.Stat(first + ".part")
	assert.True(t, os.IsNotExist(err))

	second, err := f.Localize(context.Background(), srv.URL+"/exports/tracker.csv", dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), notModified.Load())
}

func TestLocalize_RedownloadsWhenCachedFileIsGone(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Empty(t, r.Header.Get("If-None-Match"))
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(trackerCSV))
	}))
	defer srv.Close()

	f := newTestFetcher()
	dir := t.TempDir()

	path, err := f.Localize(context.Background(), srv.URL+"/tracker.csv", dir)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	path, err = f.Localize(context.Background(), srv.URL+"/tracker.csv", dir)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, int32(2), hits.Load())
}

func TestDownloadIfChanged_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, _, changed, err := f.DownloadIfChanged(context.Background(), srv.URL, "")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck
	assert.True(t, changed)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDownloadIfChanged_NotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, _, _, err := f.DownloadIfChanged(context.Background(), srv.URL+"/missing.xlsx", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Retryable())
	assert.Equal(t, int32(1), hits.Load())
}

func TestDownloadIfChanged_GivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, _, _, err := f.DownloadIfChanged(context.Background(), srv.URL, "")
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestTrackerReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(trackerCSV))
	}))
	defer srv.Close()

	read := newTestFetcher().TrackerReader(t.TempDir())
	rows, err := read(context.Background(), srv.URL+"/tracker.csv", tracker.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Accra", rows[0].City)
	assert.Equal(t, 2015, rows[0].Year)
	assert.Equal(t, "Lima", rows[1].City)
}
