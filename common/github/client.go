// Package github fetches report HTML files hosted in GitHub repos. It wraps
// the GitHub REST API with optional response caching and classifies the two
// failure modes the fetch cycle branches on: not-found and file-too-large.
package github

import (
	"context"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/opensafely-core/reports/common/cache"
	"github.com/opensafely-core/reports/common/config"
	"github.com/opensafely-core/reports/common/httpcache"
	"github.com/opensafely-core/reports/common/logger"
)

const userAgent = "OpenSAFELY Reports"

// Client is a connection to the GitHub API, using cached requests when a
// cache store is supplied
type Client struct {
	gh    *gh.Client
	cache *httpcache.Transport
	org   string
	log   *logger.Logger
}

// NewClient creates a GitHub API client. Authentication is enabled when a
// token is configured; without one only public repos are reachable. When
// store is non-nil, GET responses are cached keyed by request URL under the
// configured namespace. A custom BaseURL points the client at a GitHub
// Enterprise instance.
func NewClient(cfg *config.Config, store cache.Cache, log *logger.Logger) (*Client, error) {
	var base http.RoundTripper = http.DefaultTransport

	if cfg.GitHub.Token != "" {
		base = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHub.Token}),
			Base:   base,
		}
	}

	var caching *httpcache.Transport
	if store != nil {
		caching = httpcache.New(base, store, cfg.Cache.Namespace, cfg.Cache.DefaultTTL, log)
		base = caching
	}

	client := gh.NewClient(&http.Client{Transport: base})
	client.UserAgent = userAgent

	if cfg.GitHub.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.GitHub.BaseURL, cfg.GitHub.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set GitHub base URL: %w", err)
		}
	}

	return &Client{
		gh:    client,
		cache: caching,
		org:   cfg.GitHub.Org,
		log:   log,
	}, nil
}

// GetRepo ensures a repo exists in the configured org and returns a handle to it
func (c *Client) GetRepo(ctx context.Context, name string) (*Repo, error) {
	if _, _, err := c.gh.Repositories.Get(ctx, c.org, name); err != nil {
		return nil, classifyError(err)
	}
	return c.Repo(name), nil
}

// Repo returns a handle to a repo in the configured org without calling the
// API. Use GetRepo when existence needs checking.
func (c *Client) Repo(name string) *Repo {
	return &Repo{
		client: c,
		owner:  c.org,
		name:   name,
	}
}

// ClearCache removes every cached response whose URL contains substr,
// case-insensitively. It is a no-op when caching is disabled.
func (c *Client) ClearCache(ctx context.Context, substr string) (int, error) {
	if c.cache == nil {
		return 0, nil
	}
	return c.cache.Clear(ctx, substr)
}
