package provider

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	f := NewHTTPFetcher()
	resp, err := f.Fetch(context.Background(), Request{
		URL:       server.URL + "/paper",
		Headers:   map[string]string{"Accept": "application/json"},
		RateLimit: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestHTTPFetcher_StatusErrors(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusTooManyRequests, http.StatusInternalServerError} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		_, err := NewHTTPFetcher().Fetch(context.Background(), Request{URL: server.URL, RateLimit: 100})
		server.Close()

		require.Error(t, err)
		assert.True(t, IsUnavailable(err))
		assert.Equal(t, code == http.StatusNotFound, IsNotFound(err))
		assert.Equal(t, code == http.StatusTooManyRequests, IsRateLimited(err))
	}
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	f := NewHTTPFetcher(WithTimeout(50 * time.Millisecond))
	_, err := f.Fetch(context.Background(), Request{URL: server.URL, RateLimit: 100})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestHTTPFetcher_RejectsOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("a"), maxBodySize+1))
	}))
	defer server.Close()

	_, err := NewHTTPFetcher().Fetch(context.Background(), Request{URL: server.URL, RateLimit: 100})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestHTTPFetcher_DownloadCopiesWholeBody(t *testing.T) {
	body := bytes.Repeat([]byte("b"), maxBodySize+100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(body)
	}))
	defer server.Close()

	var buf bytes.Buffer
	contentType, err := NewHTTPFetcher().Download(context.Background(), Request{URL: server.URL, RateLimit: 100}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.Equal(t, len(body), buf.Len())
}

func TestHTTPFetcher_DownloadStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	var buf bytes.Buffer
	_, err := NewHTTPFetcher().Download(context.Background(), Request{URL: server.URL, RateLimit: 100}, &buf)
	assert.True(t, IsNotFound(err))
	assert.Zero(t, buf.Len())
}

func TestHTTPFetcher_InvalidURL(t *testing.T) {
	_, err := NewHTTPFetcher().Fetch(context.Background(), Request{URL: "not a url"})
	assert.True(t, IsUnavailable(err))
}

func TestHTTPFetcher_LimiterPerHost(t *testing.T) {
	f := NewHTTPFetcher()
	a := f.limiter("a.example", 0)
	b := f.limiter("b.example", 3)
	assert.NotSame(t, a, b)
	assert.Same(t, a, f.limiter("a.example", 0))
	assert.InDelta(t, DefaultRateLimit, float64(a.Limit()), 0.001)

	f.limiter("b.example", 1)
	assert.InDelta(t, 1.0, float64(b.Limit()), 0.001)
}
