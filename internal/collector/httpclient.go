package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"StockScreener/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
)

// HTTPOptions configures the shared HTTP behaviour of quote providers.
type HTTPOptions struct {
	Timeout       time.Duration
	Proxy         string
	RPS           float64 // 0 disables pacing
	Burst         int
	MaxRetries    int
	RetryDelay    time.Duration
	RetryDelay429 time.Duration
}

// DefaultHTTPOptions mirrors the provider defaults used in production.
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		Timeout:       10 * time.Second,
		RPS:           5,
		Burst:         5,
		MaxRetries:    3,
		RetryDelay:    500 * time.Millisecond,
		RetryDelay429: 5 * time.Second,
	}
}

// httpGetter performs paced GET requests with bounded retries.
type httpGetter struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
	opts    HTTPOptions
	referer string
}

func newHTTPGetter(name, referer string, opts HTTPOptions) *httpGetter {
	transport := &http.Transport{}
	if opts.Proxy != "" {
		if u, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	g := &httpGetter{
		name:    name,
		client:  &http.Client{Timeout: opts.Timeout, Transport: transport},
		opts:    opts,
		referer: referer,
	}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return g
}

// get returns the response body. Transport errors and non-200 statuses are
// retried; after the last attempt the error wraps model.ErrProviderUnavailable.
func (g *httpGetter) get(ctx context.Context, rawURL string) ([]byte, error) {
	log := zerolog.Ctx(ctx)
	var lastErr error
	var lastStatus int
	for attempt := 0; attempt < g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.opts.RetryDelay
			if lastStatus == http.StatusTooManyRequests && g.opts.RetryDelay429 > 0 {
				backoff = g.opts.RetryDelay429
			}
			log.Debug().Str("provider", g.name).Int("attempt", attempt+1).Dur("backoff", backoff).Err(lastErr).Msg("retrying request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", g.name, err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json, text/plain, */*")
		req.Header.Set("Accept-Language", acceptLanguage)
		if g.referer != "" {
			req.Header.Set("Referer", g.referer)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr, lastStatus = err, 0
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr, lastStatus = err, 0
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("status %d, body: %s", resp.StatusCode, truncate(body, 200))
			lastStatus = resp.StatusCode
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("%s: %d attempts: %w: %w", g.name, g.opts.MaxRetries, model.ErrProviderUnavailable, lastErr)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
