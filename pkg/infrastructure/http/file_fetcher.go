package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/domain/service"
)

// Credentials authenticate against the download endpoint
type Credentials struct {
	Username string
	Password string
}

// FileFetcherConfig holds the download endpoint configuration
type FileFetcherConfig struct {
	Endpoint    string
	Credentials Credentials
	UserAgent   string
	// Timeout bounds connection setup and headers, not the body transfer
	Timeout time.Duration
}

// FileFetcher implements service.FileFetcher against the form-login
// download endpoint.
type FileFetcher struct {
	client   *http.Client
	endpoint string
	creds    Credentials
	agent    string
}

// NewFileFetcher creates a file fetcher
func NewFileFetcher(config FileFetcherConfig) *FileFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = config.Timeout

	return &FileFetcher{
		client:   &http.Client{Transport: transport},
		endpoint: config.Endpoint,
		creds:    config.Credentials,
		agent:    config.UserAgent,
	}
}

// Open posts the login form for fn and returns the streaming body
func (f *FileFetcher) Open(ctx context.Context, fn string) (*service.Download, error) {
	if f.creds.Username == "" || f.creds.Password == "" {
		return nil, entity.ErrMissingCredentials
	}

	form := url.Values{
		"username": {f.creds.Username},
		"password": {f.creds.Password},
		"fn":       {fn},
		"submit":   {"Login"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if f.agent != "" {
		req.Header.Set("User-Agent", f.agent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("POST %s: %w: %s", fn, entity.ErrUnexpectedStatus, resp.Status)
	}

	return &service.Download{Body: resp.Body, Size: resp.ContentLength}, nil
}
