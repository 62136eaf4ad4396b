// Package httpcache provides a caching http.RoundTripper backed by a
// cache.Cache. Successful GET responses are stored in their wire form keyed
// by full request URL, so entries for one repository can later be cleared by
// substring match on the URL.
package httpcache

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/opensafely-core/reports/common/cache"
	"github.com/opensafely-core/reports/common/logger"
)

// Transport is a caching http.RoundTripper
type Transport struct {
	base      http.RoundTripper
	cache     cache.Cache
	namespace string
	ttl       time.Duration
	log       *logger.Logger
}

// New creates a caching transport wrapping base. Keys are prefixed with
// namespace so multiple logical sessions can share one cache store.
func New(base http.RoundTripper, c cache.Cache, namespace string, ttl time.Duration, log *logger.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:      base,
		cache:     c,
		namespace: namespace,
		ttl:       ttl,
		log:       log,
	}
}

// RoundTrip serves GET requests from cache when possible, and stores
// successful responses for later requests
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.base.RoundTrip(req)
	}

	key := t.key(req.URL.String())

	if data, ok, err := t.cache.Get(req.Context(), key); err == nil && ok {
		resp, readErr := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), req)
		if readErr == nil {
			t.log.Debug("http cache hit", "url", req.URL.String())
			return resp, nil
		}
		// Unreadable entry: drop it and fall through to the network
		_ = t.cache.Delete(req.Context(), key)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// DumpResponse drains and replaces resp.Body
		dump, dumpErr := httputil.DumpResponse(resp, true)
		if dumpErr == nil {
			if setErr := t.cache.Set(req.Context(), key, dump, t.ttl); setErr != nil {
				t.log.Warn("http cache store failed", "url", req.URL.String(), "error", setErr)
			}
		}
	}

	return resp, nil
}

// Clear removes every cached response whose URL contains substr,
// case-insensitively, and returns the number removed
func (t *Transport) Clear(ctx context.Context, substr string) (int, error) {
	removed, err := t.cache.DeleteMatching(ctx, substr)
	if err != nil {
		return removed, err
	}
	t.log.Info("http cache cleared", "match", substr, "removed", removed)
	return removed, nil
}

func (t *Transport) key(url string) string {
	return t.namespace + ":" + url
}
