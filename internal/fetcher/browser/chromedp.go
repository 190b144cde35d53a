// Package browser renders JavaScript-driven pages via headless Chrome.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/parselab/shop-parser/internal/challenge"
	"github.com/parselab/shop-parser/internal/parser"
	"github.com/parselab/shop-parser/internal/session"
)

// Config controls the behavior of the browser fetcher.
type Config struct {
	MaxParallel       int
	NavigationTimeout time.Duration
	ScrollSettle      time.Duration
}

// Fetcher implements parser.Fetcher using chromedp. Rendered fetches share
// one exec allocator; MaxParallel caps concurrent tabs.
type Fetcher struct {
	cfg         Config
	sessions    *session.Store
	detector    *challenge.Detector
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a browser fetcher backed by chromedp.
func New(cfg Config, sessions *session.Store, detector *challenge.Detector) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ScrollSettle <= 0 {
		cfg.ScrollSettle = 800 * time.Millisecond
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		sessions:    sessions,
		detector:    detector,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser, lets scripted content and
// infinite scroll settle, and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request parser.FetchRequest) (parser.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return parser.FetchResponse{}, err
	}
	defer f.release()

	domain := session.Domain(request.URL)
	sess := f.sessions.Acquire(domain)

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, cookies, err := f.runBrowser(taskCtx, request, sess)
	if err != nil {
		if ctx.Err() != nil {
			return parser.FetchResponse{}, parser.NewTransportError(request.URL, ctx.Err())
		}
		return parser.FetchResponse{}, parser.NewTransportError(request.URL, err)
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	resp := parser.FetchResponse{
		URL:         responseURL,
		StatusCode:  status,
		Headers:     headers,
		Body:        []byte(html),
		Duration:    time.Since(start),
		UsedBrowser: true,
	}

	if ch := f.detector.Detect(resp); ch != nil {
		return parser.FetchResponse{}, ch
	}
	if status < 200 || status >= 300 {
		return parser.FetchResponse{}, parser.NewHTTPStatusError(responseURL, status)
	}

	f.persistCookies(domain, responseURL, cookies)
	return resp, nil
}

func (f *Fetcher) runBrowser(
	ctx context.Context,
	request parser.FetchRequest,
	sess *session.Session,
) (string, string, []*network.Cookie, error) {
	var (
		html     string
		finalURL string
		cookies  []*network.Cookie
	)
	actions := []chromedp.Action{
		f.networkSetupAction(sess, request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		f.scrollSettleAction(),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			got, err := network.GetCookies().Do(ctx)
			if err != nil {
				return nil // cookie capture is best effort
			}
			cookies = got
			return nil
		}),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", nil, fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, cookies, nil
}

// scrollSettleAction scrolls to the bottom twice so lazy-loaded and
// infinite-scroll content has a chance to render before capture.
func (f *Fetcher) scrollSettleAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for i := 0; i < 2; i++ {
			if err := chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil).Do(ctx); err != nil {
				return fmt.Errorf("scroll: %w", err)
			}
			if err := chromedp.Sleep(f.cfg.ScrollSettle).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *Fetcher) networkSetupAction(sess *session.Session, headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if sess.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(sess.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) persistCookies(domain, responseURL string, cookies []*network.Cookie) {
	if len(cookies) == 0 {
		return
	}
	u, err := url.Parse(responseURL)
	if err != nil {
		return
	}
	converted := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		converted = append(converted, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Path:   c.Path,
			Domain: c.Domain,
			Secure: c.Secure,
		})
	}
	f.sessions.UpdateCookies(domain, u, converted)
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range resp.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.headers = headers
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, u := m.status, m.headers.Clone(), m.url
	m.mu.RUnlock()

	switch {
	case u != "":
	case finalURL != "":
		u = finalURL
	default:
		u = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	if headers == nil {
		headers = http.Header{}
	}
	return status, headers, u
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
