package httpclient

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"
)

// DefaultUserAgents are rotated by NewBrowserLikeClient when none are configured
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// NewBrowserLikeClient creates an HTTP client with a cookie jar and a rotating
// User-Agent, for quote pages that reject bare Go clients.
func NewBrowserLikeClient(timeout time.Duration, userAgents []string) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}

	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
		Transport: &UserAgentTransport{
			Base:       http.DefaultTransport,
			UserAgents: userAgents,
		},
	}, nil
}

// UserAgentTransport sets browser headers on every request, cycling through UserAgents
type UserAgentTransport struct {
	Base       http.RoundTripper
	UserAgents []string

	mu   sync.Mutex
	next int
}

// RoundTrip implements http.RoundTripper
func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if ua := t.pick(); ua != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", ua)
	}
	if clone.Header.Get("Accept") == "" {
		clone.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	if clone.Header.Get("Accept-Language") == "" {
		clone.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

func (t *UserAgentTransport) pick() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.UserAgents) == 0 {
		return ""
	}
	ua := t.UserAgents[t.next%len(t.UserAgents)]
	t.next++
	return ua
}
