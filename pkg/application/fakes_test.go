package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/iotest"

	"github.com/WangYihang/crcns-mirror/pkg/domain/service"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestState(t *testing.T) *State {
	t.Helper()
	state, err := NewState(afero.NewMemMapFs(), "/work")
	require.NoError(t, err)
	return state
}

// pageFetcher serves canned pages by URL
type pageFetcher struct {
	pages map[string]string
	mu    sync.Mutex
	calls []string
}

func (f *pageFetcher) Fetch(_ context.Context, url string) (*service.HTTPResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: connection refused", url)
	}
	return &service.HTTPResponse{URL: url, StatusCode: 200, Body: body, ContentLength: len(body)}, nil
}

// fileFetcher serves canned files by repository name
type fileFetcher struct {
	files map[string]string
	// noLength simulates a response without a declared size
	noLength bool
	// failAfter, when positive, breaks the body after that many bytes
	failAfter int
	calls     atomic.Int64
}

var errBrokenBody = errors.New("connection reset")

func (f *fileFetcher) Open(_ context.Context, fn string) (*service.Download, error) {
	f.calls.Add(1)
	body, ok := f.files[fn]
	if !ok {
		return nil, fmt.Errorf("POST %s: not found", fn)
	}
	size := int64(len(body))
	if f.noLength {
		size = -1
	}
	var r io.Reader = strings.NewReader(body)
	if f.failAfter > 0 && f.failAfter < len(body) {
		r = io.MultiReader(strings.NewReader(body[:f.failAfter]), iotest.ErrReader(errBrokenBody))
	}
	return &service.Download{Body: io.NopCloser(r), Size: size}, nil
}
