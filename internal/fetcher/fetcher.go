// Package fetcher downloads documents to local storage.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/imroc/req/v3"
	"github.com/openmined/docsync/internal/utils"
	"github.com/openmined/docsync/internal/version"
)

const DefaultTimeout = 10 * time.Second

// LocalFile is a fully written and flushed download.
type LocalFile struct {
	Path string
	Name string
	Size int64
}

// Fetcher retrieves the bytes behind a URL into destDir, named after the URL's basename.
// On failure it returns a *FetchError and leaves no partial file behind.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, destDir string) (*LocalFile, error)
}

// HTTPFetcher is the Fetcher used in production.
type HTTPFetcher struct {
	client  *req.Client
	timeout time.Duration
}

type Option func(*HTTPFetcher)

// WithTimeout bounds each fetch, body transfer included.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithClient replaces the underlying req client. The timeout option still applies.
func WithClient(c *req.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		// no retries, the next run retries through rediscovery
		f.client = req.C().SetUserAgent(version.UserAgent())
	}
	f.client.SetTimeout(f.timeout)
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, destDir string) (*LocalFile, error) {
	if _, err := utils.ParseDocumentURL(rawURL); err != nil {
		return nil, newError(KindInvalidURL, rawURL, err)
	}
	name := utils.DocumentID(rawURL)
	if name == "" {
		return nil, newError(KindInvalidURL, rawURL, errors.New("url has no file name"))
	}

	if err := utils.EnsureDir(destDir); err != nil {
		return nil, newError(KindWrite, rawURL, fmt.Errorf("create %q: %w", destDir, err))
	}

	resp, err := f.client.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		Get(rawURL)
	if err != nil {
		return nil, newError(KindNetwork, rawURL, err)
	}
	defer resp.Body.Close()

	if !resp.IsSuccessState() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{Kind: KindHTTPStatus, URL: rawURL, StatusCode: resp.GetStatusCode()}
	}

	destPath := filepath.Join(destDir, name)
	size, err := writeAtomic(destPath, resp.Body)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			fe.URL = rawURL
			return nil, fe
		}
		return nil, newError(KindWrite, rawURL, err)
	}

	slog.Debug("fetch done", "url", rawURL, "path", destPath, "size", humanize.Bytes(uint64(size)))
	return &LocalFile{Path: destPath, Name: name, Size: size}, nil
}

// writeAtomic streams body into a temp file beside destPath, syncs it and renames it into
// place. Read failures are network errors, everything else is a write error.
func writeAtomic(destPath string, body io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".part-*")
	if err != nil {
		return 0, newError(KindWrite, "", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	w := &trackingWriter{w: tmp}
	size, err := io.Copy(w, body)
	if err != nil {
		if w.err != nil {
			return 0, newError(KindWrite, "", w.err)
		}
		return 0, newError(KindNetwork, "", err)
	}

	if err := tmp.Sync(); err != nil {
		return 0, newError(KindWrite, "", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, newError(KindWrite, "", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return 0, newError(KindWrite, "", err)
	}
	committed = true
	return size, nil
}

// trackingWriter remembers the writer side error so io.Copy failures can be attributed.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
