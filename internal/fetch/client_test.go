package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, timeout time.Duration) *Client {
	t.Helper()
	c, err := NewClient(Options{Timeout: timeout, UserAgent: "test-agent/1.0", MaxBodyBytes: 1 << 20})
	require.NoError(t, err)
	return c
}

func TestGetSendsHeadersAndFollowsRedirects(t *testing.T) {
	var gotUA string
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>moved here</body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page, err := newTestClient(t, 5*time.Second).Get(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new", page.URL)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, page.Body, "moved here")
	assert.Equal(t, "test-agent/1.0", gotUA)
}

func TestGetDecodesDeclaredCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "café" in Latin-1
		_, _ = w.Write([]byte{'c', 'a', 'f', 0xe9})
	}))
	defer srv.Close()

	page, err := newTestClient(t, 5*time.Second).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "café", page.Body)
}

func TestGetReturnsErrorStatusesAsPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	page, err := newTestClient(t, 5*time.Second).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, page.StatusCode)
}

func TestGetTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(t, 50*time.Millisecond).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestGetTimeoutMidBodyIsAnError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>partial@example.com"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	page, err := newTestClient(t, 100*time.Millisecond).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Nil(t, page)
	assert.True(t, IsTimeout(err))
	assert.Contains(t, err.Error(), "reading body")
}

func TestGetTruncatedBodyIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("<html><body>cut short"))
	}))
	defer srv.Close()

	page, err := newTestClient(t, 5*time.Second).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Nil(t, page)
	assert.Contains(t, err.Error(), "read body")
}

func TestGetInvalidURL(t *testing.T) {
	_, err := newTestClient(t, time.Second).Get(context.Background(), "http://[::1")
	assert.Error(t, err)
}
