// Package github fetches documents from a GitHub repository directory.
package github

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client is a rate limited GitHub API client.
type Client struct {
	*github.Client
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	// Token authenticates requests; anonymous clients get a much lower rate limit.
	Token string
	// BaseURL points at a GitHub Enterprise or test server. Empty uses api.github.com.
	BaseURL string
}

// NewClient creates a client that waits out primary and secondary rate limits.
func NewClient(opts ClientOptions) (*Client, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	ghClient := github.NewClient(rateLimiter)
	if opts.Token != "" {
		ghClient = ghClient.WithAuthToken(opts.Token)
	}
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse base url %q: %w", opts.BaseURL, err)
		}
		ghClient.BaseURL = u
	}

	return &Client{Client: ghClient}, nil
}
