package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds one outbound request.
	DefaultTimeout = 10 * time.Second

	// DefaultDownloadTimeout bounds one file download, body included.
	DefaultDownloadTimeout = 5 * time.Minute

	// DefaultRateLimit is the per-host request rate when a provider sets none.
	DefaultRateLimit = 5.0

	// UserAgent identifies plib to metadata services.
	UserAgent = "plib/1.0 (https://github.com/matsen/plib)"

	maxBodySize = 10 << 20
)

// Request is a single outbound fetch built by a provider.
type Request struct {
	URL       string
	Headers   map[string]string
	Timeout   time.Duration // 0 = fetcher default
	RateLimit float64       // requests per second for the host, 0 = fetcher default
}

// Response is the raw answer handed to Provider.Parse.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher performs requests. Providers that read local files implement
// Fetcher themselves and are used in place of the shared one.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Downloader streams a response body to w instead of buffering it. File
// downloads use it so large PDFs are neither held in memory nor truncated.
type Downloader interface {
	Download(ctx context.Context, req Request, w io.Writer) (contentType string, err error)
}

// HTTPFetcher is a rate-limited HTTP client shared by all network providers.
// Each host gets its own limiter. Requests are not retried.
type HTTPFetcher struct {
	httpClient *http.Client
	timeout    time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.httpClient = hc
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewHTTPFetcher creates a fetcher.
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs a GET request. Network failures, timeouts, non-2xx
// responses and bodies over the size cap are reported as ErrSourceUnavailable.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	resp, cancel, err := f.do(ctx, req, f.timeoutFor(req, f.timeout))
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrSourceUnavailable, err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("%w: response from %s larger than %d bytes", ErrSourceUnavailable, req.URL, maxBodySize)
	}

	return &Response{
		URL:         req.URL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Download performs a GET request and copies the whole body to w. The
// timeout covers the body, so it defaults to DefaultDownloadTimeout.
func (f *HTTPFetcher) Download(ctx context.Context, req Request, w io.Writer) (string, error) {
	resp, cancel, err := f.do(ctx, req, f.timeoutFor(req, DefaultDownloadTimeout))
	if err != nil {
		return "", err
	}
	defer cancel()
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrSourceUnavailable, err)
	}
	return resp.Header.Get("Content-Type"), nil
}

func (f *HTTPFetcher) timeoutFor(req Request, def time.Duration) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return def
}

// do waits for the host's limiter, then sends the request with the timeout
// applied and checks the status. On success the caller closes the body and
// calls cancel once the body is read.
func (f *HTTPFetcher) do(ctx context.Context, req Request, timeout time.Duration) (*http.Response, context.CancelFunc, error) {
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return nil, nil, fmt.Errorf("%w: invalid url %q", ErrSourceUnavailable, req.URL)
	}

	if err := f.limiter(u.Host, req.RateLimit).Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: rate limiter: %v", ErrSourceUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%w: creating request: %v", ErrSourceUnavailable, err)
	}
	httpReq.Header.Set("User-Agent", UserAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, nil, &StatusError{StatusCode: resp.StatusCode, URL: req.URL}
	}
	return resp, cancel, nil
}

// limiter returns the host's limiter, adjusting its rate if the caller asks
// for a different one.
func (f *HTTPFetcher) limiter(host string, rps float64) *rate.Limiter {
	if rps <= 0 {
		rps = DefaultRateLimit
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(rps), 1)
		f.limiters[host] = l
	} else if l.Limit() != rate.Limit(rps) {
		l.SetLimit(rate.Limit(rps))
	}
	return l
}
