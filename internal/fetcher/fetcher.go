// Package fetcher downloads tracker files published over HTTP so they can be
// read like local files.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/peaking-cli/internal/model"
	"github.com/sells-group/peaking-cli/internal/resilience"
	"github.com/sells-group/peaking-cli/internal/tracker"
)

// Options configures the HTTP fetcher.
type Options struct {
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64 // 0 means 1 request per second
	Retry         resilience.RetryConfig
}

// StatusError is returned for a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected status %d from %s", e.Code, e.URL)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type cachedFile struct {
	etag string
	path string
}

// HTTPFetcher downloads remote trackers with retry and rate limiting. A
// downloaded file is reused while the server reports it unchanged.
type HTTPFetcher struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]cachedFile
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "peaking-cli/1.0"
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 1
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("fetch tracker")
	}
	if opts.Retry.ShouldRetry == nil {
		opts.Retry.ShouldRetry = shouldRetry
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		cache:   make(map[string]cachedFile),
	}
}

func shouldRetry(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return resilience.IsTransient(err)
}

// IsRemote reports whether src is an http or https URL.
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// DownloadIfChanged fetches rawURL unless the server answers 304 for etag.
// It returns the body, the new ETag and whether the content changed.
func (f *HTTPFetcher) DownloadIfChanged(ctx context.Context, rawURL, etag string) (io.ReadCloser, string, bool, error) {
	resp, err := resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (*http.Response, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotModified {
			_ = resp.Body.Close()
			return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		return nil, "", false, eris.Wrapf(err, "fetcher: download %s", rawURL)
	}

	if resp.StatusCode == http.StatusNotModified {
		_ = resp.Body.Close()
		return nil, etag, false, nil
	}
	return resp.Body, resp.Header.Get("ETag"), true, nil
}

// Localize returns a local path for src. Local paths are returned as they
// are; URLs are downloaded into dir under the file name of the URL path.
func (f *HTTPFetcher) Localize(ctx context.Context, src, dir string) (string, error) {
	if !IsRemote(src) {
		return src, nil
	}

	f.mu.Lock()
	prev, cached := f.cache[src]
	f.mu.Unlock()
	if cached {
		if _, err := os.Stat(prev.path); err != nil {
			cached = false
			prev = cachedFile{}
		}
	}

	body, etag, changed, err := f.DownloadIfChanged(ctx, src, prev.etag)
	if err != nil {
		return "", err
	}
	if !changed {
		zap.L().Debug("fetcher: tracker unchanged", zap.String("url", src), zap.String("etag", etag))
		return prev.path, nil
	}
	defer body.Close() //nolint:errcheck

	dest := filepath.Join(dir, fileName(src))
	n, err := writeAtomic(dest, body)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.cache[src] = cachedFile{etag: etag, path: dest}
	f.mu.Unlock()

	zap.L().Info("fetcher: tracker downloaded",
		zap.String("url", src),
		zap.String("path", dest),
		zap.Int64("bytes", n),
		zap.String("etag", etag),
	)
	return dest, nil
}

// TrackerReader returns a reader that localizes the input before parsing it.
// The result is assignable to runner.ReadFunc.
func (f *HTTPFetcher) TrackerReader(dir string) func(ctx context.Context, src string, opts tracker.Options) ([]model.RawRow, error) {
	return func(ctx context.Context, src string, opts tracker.Options) ([]model.RawRow, error) {
		local, err := f.Localize(ctx, src, dir)
		if err != nil {
			return nil, err
		}
		return tracker.Read(ctx, local, opts)
	}
}

// fileName keeps the extension of the URL path so the tracker parser can
// pick a format.
func fileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "tracker"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "tracker"
	}
	return strings.ReplaceAll(name, string(filepath.Separator), "_")
}

func writeAtomic(dest string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, eris.Wrapf(err, "fetcher: create %s", filepath.Dir(dest))
	}
	tmp := dest + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}

	n, err := io.Copy(file, r)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrap(err, "fetcher: write file")
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrap(err, "fetcher: rename file")
	}
	return n, nil
}
