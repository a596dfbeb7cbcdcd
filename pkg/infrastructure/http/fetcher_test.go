package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "crcns-mirror/test", r.UserAgent())
		if r.URL.Path == "/large" {
			fmt.Fprint(w, "<html><body>0123456789</body></html>")
			return
		}
		fmt.Fprint(w, "<html><body>")
	}))
	defer server.Close()

	fetcher := NewFetcher(Config{
		Timeout:           time.Second,
		MaxResponseSize:   12,
		UserAgent:         "crcns-mirror/test",
		RequestsPerSecond: 100,
	})

	resp, err := fetcher.Fetch(context.Background(), server.URL+"/sitemap")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html><body>", resp.Body)

	_, err = fetcher.Fetch(context.Background(), server.URL+"/large")
	assert.True(t, errors.Is(err, entity.ErrResponseTooLarge))

	_, err = fetcher.Fetch(context.Background(), server.URL+"/missing")
	assert.True(t, errors.Is(err, entity.ErrUnexpectedStatus))
}

func TestFetcher_CanceledContext(t *testing.T) {
	fetcher := NewFetcher(Config{Timeout: time.Second, MaxResponseSize: 1, RequestsPerSecond: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.Fetch(ctx, "http://127.0.0.1:1/")
	assert.Error(t, err)
}

func TestFileFetcher_PostsForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "alice", r.PostForm.Get("username"))
		assert.Equal(t, "secret", r.PostForm.Get("password"))
		assert.Equal(t, "pfc-1/filelist.txt", r.PostForm.Get("fn"))
		assert.Equal(t, "Login", r.PostForm.Get("submit"))
		fmt.Fprint(w, "sample1.dat 1024\n")
	}))
	defer server.Close()

	fetcher := NewFileFetcher(FileFetcherConfig{
		Endpoint:    server.URL + "/download/index.php",
		Credentials: Credentials{Username: "alice", Password: "secret"},
		Timeout:     time.Second,
	})

	dl, err := fetcher.Open(context.Background(), "pfc-1/filelist.txt")
	require.NoError(t, err)
	defer dl.Body.Close()

	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "sample1.dat 1024\n", string(body))
	assert.Equal(t, int64(len(body)), dl.Size)
}

func TestFileFetcher_MissingCredentials(t *testing.T) {
	fetcher := NewFileFetcher(FileFetcherConfig{Endpoint: "http://127.0.0.1:1/"})
	_, err := fetcher.Open(context.Background(), "pfc-1/filelist.txt")
	assert.True(t, errors.Is(err, entity.ErrMissingCredentials))
}
