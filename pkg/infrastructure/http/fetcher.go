package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/domain/service"
	"golang.org/x/time/rate"
)

// Fetcher implements service.PageFetcher
type Fetcher struct {
	client          *http.Client
	limiter         *rate.Limiter
	maxResponseSize int64
	userAgent       string
}

// Config holds HTTP fetcher configuration
type Config struct {
	Timeout         time.Duration
	MaxResponseSize int64
	UserAgent       string
	// RequestsPerSecond bounds page fetches; zero disables the limit
	RequestsPerSecond float64
	Burst             int
}

// NewFetcher creates a new HTTP fetcher
func NewFetcher(config Config) *Fetcher {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return &Fetcher{
		client:          newClient(config.Timeout),
		limiter:         limiter,
		maxResponseSize: config.MaxResponseSize,
		userAgent:       config.UserAgent,
	}
}

func newClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// Fetch implements service.PageFetcher. Any non-2xx status is an error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*service.HTTPResponse, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &service.HTTPResponse{URL: url, StatusCode: resp.StatusCode},
			fmt.Errorf("GET %s: %w: %s", url, entity.ErrUnexpectedStatus, resp.Status)
	}

	// One byte past the cap tells a page of exactly the cap from a longer one
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxResponseSize+1))
	if err != nil {
		return &service.HTTPResponse{URL: url, StatusCode: resp.StatusCode}, err
	}
	if int64(len(body)) > f.maxResponseSize {
		return &service.HTTPResponse{URL: url, StatusCode: resp.StatusCode},
			fmt.Errorf("GET %s: %w: more than %d bytes", url, entity.ErrResponseTooLarge, f.maxResponseSize)
	}

	return &service.HTTPResponse{
		URL:           url,
		StatusCode:    resp.StatusCode,
		Body:          string(body),
		ContentLength: len(body),
	}, nil
}
