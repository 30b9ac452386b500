package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPDFServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/pdf/guide.pdf", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 guide"))
	})
	mux.HandleFunc("/pdf/missing.pdf", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("/pdf/slow.pdf", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetch_WritesFileNamedAfterURL(t *testing.T) {
	srv, _ := newPDFServer(t)
	dest := filepath.Join(t.TempDir(), "documentsRelH9")

	f := NewHTTPFetcher()
	file, err := f.Fetch(context.Background(), srv.URL+"/pdf/guide.pdf", dest)
	require.NoError(t, err)

	assert.Equal(t, "guide.pdf", file.Name)
	assert.Equal(t, filepath.Join(dest, "guide.pdf"), file.Path)
	assert.Equal(t, int64(len("%PDF-1.7 guide")), file.Size)

	data, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 guide", string(data))

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetch_OverwritesPreviousCopy(t *testing.T) {
	srv, _ := newPDFServer(t)
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "guide.pdf"), []byte("stale"), 0o644))

	file, err := NewHTTPFetcher().Fetch(context.Background(), srv.URL+"/pdf/guide.pdf", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 guide", string(data))
}

func TestFetch_HTTPStatusLeavesNoFile(t *testing.T) {
	srv, _ := newPDFServer(t)
	dest := t.TempDir()

	_, err := NewHTTPFetcher().Fetch(context.Background(), srv.URL+"/pdf/missing.pdf", dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHTTPStatus)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, CodeHTTPStatus, fe.Code())

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetch_InvalidURLFailsBeforeNetwork(t *testing.T) {
	srv, hits := newPDFServer(t)

	for _, raw := range []string{"not a url", "/pdf/guide.pdf", "ftp://host/guide.pdf", srv.URL + "/", srv.URL + "/pdf/%2E%2E"} {
		_, err := NewHTTPFetcher().Fetch(context.Background(), raw, t.TempDir())
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
		assert.NotErrorIs(t, err, ErrNetwork, raw)
	}
	assert.Equal(t, int32(0), hits.Load())
}

func TestFetch_TimeoutIsNetworkError(t *testing.T) {
	srv, _ := newPDFServer(t)
	dest := t.TempDir()

	f := NewHTTPFetcher(WithTimeout(100 * time.Millisecond))
	_, err := f.Fetch(context.Background(), srv.URL+"/pdf/slow.pdf", dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher().Fetch(context.Background(), addr+"/doc.pdf", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestFetch_UnwritableDestination(t *testing.T) {
	srv, _ := newPDFServer(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := NewHTTPFetcher().Fetch(context.Background(), srv.URL+"/pdf/guide.pdf", filepath.Join(blocker, "out"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrite)
}

func TestFetchError_Messages(t *testing.T) {
	err := &FetchError{Kind: KindHTTPStatus, URL: "https://x/doc.pdf", StatusCode: 503}
	assert.Equal(t, `fetch "https://x/doc.pdf": http status 503`, err.Error())

	err = newError(KindNetwork, "https://x/doc.pdf", errors.New("reset"))
	assert.Contains(t, err.Error(), "network error: reset")
	assert.Equal(t, "network", KindNetwork.String())
}
