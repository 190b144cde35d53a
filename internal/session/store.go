// Package session holds per-domain fetch identities: rotating user agents,
// cookie jars, and proxy assignments. Sessions persist for the lifetime of
// the process so login state survives across fetches within a task.
package session

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// Session is the identity assigned to one domain.
type Session struct {
	Domain    string
	UserAgent string
	Jar       http.CookieJar
	ProxyURL  string
}

// Config controls session assignment.
type Config struct {
	UserAgents []string
	Proxies    []string
}

// Store hands out and retains per-domain sessions. Safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	userAgents []string
	proxies    []string
	nextUA     int
	nextProxy  int
}

// NewStore builds a Store. Empty user-agent lists fall back to a built-in
// rotation.
func NewStore(cfg Config) *Store {
	agents := cfg.UserAgents
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &Store{
		sessions:   make(map[string]*Session),
		userAgents: agents,
		proxies:    cfg.Proxies,
	}
}

// Acquire returns the session for a domain, creating one on first use.
// User agents and proxies rotate round-robin across domains.
func (s *Store) Acquire(domain string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[domain]; ok {
		return sess
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		// cookiejar.New(nil) cannot fail with a nil PublicSuffixList,
		// but keep the session usable regardless.
		jar = nil
	}
	sess := &Session{
		Domain:    domain,
		UserAgent: s.userAgents[s.nextUA%len(s.userAgents)],
		Jar:       jar,
	}
	s.nextUA++
	if len(s.proxies) > 0 {
		sess.ProxyURL = s.proxies[s.nextProxy%len(s.proxies)]
		s.nextProxy++
	}
	s.sessions[domain] = sess
	return sess
}

// UpdateCookies merges cookies observed in a response into the domain's
// jar, keeping login state alive for subsequent fetches.
func (s *Store) UpdateCookies(domain string, u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 || u == nil {
		return
	}
	sess := s.Acquire(domain)
	if sess.Jar != nil {
		sess.Jar.SetCookies(u, cookies)
	}
}

// Domain extracts the session key for a URL.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
