package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

const (
	DefaultBaseURL = "https://claude.ai"
	UsagePageURL   = DefaultBaseURL + "/settings/usage"

	userAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:147.0) Gecko/20100101 Firefox/147.0"
	timeout      = 15 * time.Second
	maxRedirects = 3
	cookieName   = "sessionKey"
)

var ErrSessionExpired = errors.New("session expired, update your session key")

type Client struct {
	http    *http.Client
	baseURL string

	mu         sync.RWMutex
	orgID      string
	sessionKey string
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(sessionKey, orgID string, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		baseURL:    DefaultBaseURL,
		orgID:      orgID,
		sessionKey: sessionKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) OrgID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orgID
}

func (c *Client) UpdateOrgID(orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orgID = orgID
}

func (c *Client) SessionKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionKey
}

func (c *Client) UpdateSessionKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionKey = key
}

func (c *Client) newRequest(ctx context.Context) (*http.Request, error) {
	url := fmt.Sprintf("%s/api/organizations/%s/usage", c.baseURL, c.OrgID())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", UsagePageURL)
	req.Header.Set("anthropic-client-platform", "web_claude_ai")
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: cookieName, Value: c.SessionKey()})
	return req, nil
}

// FetchUsage requests the current usage snapshot. Authentication failures
// are reported as ErrSessionExpired.
func (c *Client) FetchUsage(ctx context.Context) (*Result, error) {
	req, err := c.newRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrSessionExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var usage UsageResponse
	if err := sonic.Unmarshal(body, &usage); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &Result{
		Usage:               &usage,
		RefreshedSessionKey: refreshedSessionKey(resp),
	}, nil
}

func refreshedSessionKey(resp *http.Response) string {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == cookieName && cookie.Value != "" {
			return cookie.Value
		}
	}
	return ""
}
