// Package jobserver fetches report HTML files hosted as outputs on the Jobs
// site, the direct-file backend. Unlike the GitHub backend there is no
// size-limited endpoint, so there is no fallback branching.
package jobserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensafely-core/reports/common/cache"
	"github.com/opensafely-core/reports/common/config"
	"github.com/opensafely-core/reports/common/httpcache"
	"github.com/opensafely-core/reports/common/logger"
)

// Client is a connection to the Jobs site, using cached requests when a
// cache store is supplied
type Client struct {
	http      *http.Client
	cache     *httpcache.Transport
	token     string
	userAgent string
	log       *logger.Logger
}

// NewClient creates a job-server client. The fetch timeout is short by
// design: the job server is internal and expected to answer fast.
func NewClient(cfg *config.Config, store cache.Cache, log *logger.Logger) *Client {
	var transport http.RoundTripper = http.DefaultTransport

	var caching *httpcache.Transport
	if store != nil {
		caching = httpcache.New(transport, store, cfg.Cache.Namespace, cfg.Cache.DefaultTTL, log)
		transport = caching
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.JobServer.Timeout,
		},
		cache:     caching,
		token:     cfg.JobServer.Token,
		userAgent: cfg.JobServer.UserAgent,
		log:       log,
	}
}

// FileExists reports whether url is reachable. Redirects count as success;
// a 404 is a false return, not an error.
func (c *Client) FileExists(ctx context.Context, url string) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("head %s: %w", url, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusBadRequest, nil
}

// GetFile fetches the body text at url along with the Last-Modified response
// header parsed as a timestamp. A missing or unparsable header is an error:
// the caller needs the provenance, not just the bytes.
func (c *Client) GetFile(ctx context.Context, url string) (string, time.Time, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return "", time.Time{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", time.Time{}, fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}

	lastModified, err := http.ParseTime(resp.Header.Get("Last-Modified"))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parse Last-Modified header for %s: %w", url, err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("read body of %s: %w", url, err)
	}

	return string(body), lastModified, nil
}

// ClearCache removes every cached response whose URL contains substr,
// case-insensitively. It is a no-op when caching is disabled.
func (c *Client) ClearCache(ctx context.Context, substr string) (int, error) {
	if c.cache == nil {
		return 0, nil
	}
	return c.cache.Clear(ctx, substr)
}

func (c *Client) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	// Always set a token, even for published outputs, to keep the code the
	// same on both sides
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}
	return req, nil
}
