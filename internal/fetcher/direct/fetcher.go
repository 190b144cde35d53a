// Package direct implements the lightweight HTTP fetch path using gocolly.
package direct

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/parselab/shop-parser/internal/challenge"
	"github.com/parselab/shop-parser/internal/parser"
	"github.com/parselab/shop-parser/internal/session"
)

// Config controls collector behavior.
type Config struct {
	Timeout   time.Duration
	JitterMax time.Duration
}

// Fetcher implements parser.Fetcher using the Colly collector. Each fetch
// borrows the target domain's session (user agent, cookie jar, proxy) and
// applies a randomized jitter delay on top of the caller's rate limiting.
type Fetcher struct {
	cfg           Config
	sessions      *session.Store
	detector      *challenge.Detector
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config, sessions *session.Store, detector *challenge.Detector) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	// Error statuses flow through OnResponse so challenge pages served with
	// 403/503 can still be fingerprinted from the body.
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport(""))
	return &Fetcher{
		cfg:           cfg,
		sessions:      sessions,
		detector:      detector,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET.
func (f *Fetcher) Fetch(ctx context.Context, request parser.FetchRequest) (parser.FetchResponse, error) {
	if err := f.jitter(ctx); err != nil {
		return parser.FetchResponse{}, err
	}

	domain := session.Domain(request.URL)
	sess := f.sessions.Acquire(domain)

	var (
		result   parser.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(request, sess, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL); err != nil {
		return parser.FetchResponse{}, parser.NewTransportError(request.URL, err)
	}
	if fetchErr != nil {
		if result.StatusCode > 0 && !is2xx(result.StatusCode) {
			return parser.FetchResponse{}, parser.NewHTTPStatusError(result.URL, result.StatusCode)
		}
		return parser.FetchResponse{}, parser.NewTransportError(request.URL, fetchErr)
	}
	if ch := f.detector.Detect(result); ch != nil {
		return parser.FetchResponse{}, ch
	}
	if !is2xx(result.StatusCode) {
		return parser.FetchResponse{}, parser.NewHTTPStatusError(result.URL, result.StatusCode)
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request parser.FetchRequest,
	sess *session.Session,
	start time.Time,
	result *parser.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = sess.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(newHTTPTransport(sess.ProxyURL))
	if sess.Jar != nil {
		collector.SetCookieJar(sess.Jar)
	}

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		*result = parser.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headersOrEmpty(r.Headers),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.URL = request.URL
			result.StatusCode = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				result.URL = r.Request.URL.String()
			}
		}
		*fetchErr = err
	})

	return collector
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit failed: %w", err)
		}
		return nil
	}
}

// jitter sleeps a random duration up to JitterMax to break up the fixed
// request cadence imposed by the rate limiter.
func (f *Fetcher) jitter(ctx context.Context) error {
	if f.cfg.JitterMax <= 0 {
		return nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(f.cfg.JitterMax)))
	if err != nil {
		return nil
	}
	timer := time.NewTimer(time.Duration(n.Int64()))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("jitter wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

func headersOrEmpty(h *http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}

func newHTTPTransport(proxyURL string) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			t.Proxy = http.ProxyURL(u)
		}
	}
	return t
}
