package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/google/go-github/v75/github"
	"github.com/gregjones/httpcache"
	"github.com/jferrl/go-githubauth"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// Client wraps GitHub REST and GraphQL clients with rate limiting and retry logic
type Client struct {
	rest        *github.Client
	graphql     *githubv4.Client
	baseURL     string
	token       string
	appAuth     bool
	rateLimiter *RateLimiter
	retryer     *Retryer
	logger      *slog.Logger

	loginMu sync.Mutex
	login   string
}

// ClientConfig configures the GitHub client. Either Token or the three App
// fields must be set.
type ClientConfig struct {
	BaseURL string
	Token   string

	AppID             int64
	AppPrivateKey     string // file path or inline PEM
	AppInstallationID int64

	Timeout           time.Duration
	RetryConfig       RetryConfig
	RequestsPerSecond float64
	// EnableCache adds an in-memory ETag cache. Only safe for clients that
	// never need to observe their own writes.
	EnableCache bool
	Logger      *slog.Logger
}

// HasAppCredentials reports whether GitHub App authentication is configured.
func (c ClientConfig) HasAppCredentials() bool {
	return c.AppID > 0 && c.AppPrivateKey != "" && c.AppInstallationID > 0
}

// InstanceType represents the type of GitHub instance
type InstanceType int

const (
	// InstanceTypeGitHub is standard GitHub.com
	InstanceTypeGitHub InstanceType = iota
	// InstanceTypeGHEC is GitHub Enterprise Cloud with data residency
	InstanceTypeGHEC
	// InstanceTypeGHES is GitHub Enterprise Server (self-hosted)
	InstanceTypeGHES
)

// GitHubAPIURL is the standard GitHub.com API URL
const GitHubAPIURL = "https://api.github.com"

func isDotCom(baseURL string) bool {
	return baseURL == "" || strings.TrimSuffix(baseURL, "/") == GitHubAPIURL
}

// detectInstanceType determines the type of GitHub instance from the base URL
func detectInstanceType(baseURL string) InstanceType {
	if isDotCom(baseURL) {
		return InstanceTypeGitHub
	}
	// Data residency tenants live under .ghe.com
	if strings.Contains(baseURL, ".ghe.com") {
		return InstanceTypeGHEC
	}
	return InstanceTypeGHES
}

// buildGraphQLURL builds the correct GraphQL endpoint URL based on instance type
func buildGraphQLURL(baseURL string) string {
	switch detectInstanceType(baseURL) {
	case InstanceTypeGitHub:
		return GitHubAPIURL + "/graphql"
	case InstanceTypeGHEC:
		// octocorp.ghe.com -> https://api.octocorp.ghe.com/graphql
		domain := strings.TrimPrefix(baseURL, "https://")
		domain = strings.TrimPrefix(domain, "http://")
		domain = strings.TrimPrefix(domain, "api.")
		domain = strings.TrimSuffix(domain, "/")
		return fmt.Sprintf("https://api.%s/graphql", domain)
	default:
		url := strings.TrimSuffix(baseURL, "/")
		url = strings.TrimSuffix(url, "/api/v3")
		url = strings.TrimSuffix(url, "/api")
		return url + "/api/graphql"
	}
}

// webURL strips the API path so GitHub App token exchange can target GHES.
func webURL(baseURL string) string {
	url := strings.TrimSuffix(baseURL, "/")
	url = strings.TrimSuffix(url, "/api/v3")
	return strings.TrimSuffix(url, "/api")
}

// NewClient creates a new GitHub client. Requests go through, outermost
// first: authentication, secondary rate limit handling, and optionally an
// ETag cache.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Token == "" && !cfg.HasAppCredentials() {
		return nil, fmt.Errorf("either a token or GitHub App credentials are required")
	}

	var base http.RoundTripper = http.DefaultTransport
	if cfg.EnableCache {
		base = httpcache.NewMemoryCacheTransport()
	}
	base = github_ratelimit.NewClient(base).Transport

	ts, appAuth, err := tokenSource(cfg)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base},
		Timeout:   cfg.Timeout,
	}

	var restClient *github.Client
	var graphqlClient *githubv4.Client
	if isDotCom(cfg.BaseURL) {
		restClient = github.NewClient(httpClient)
		graphqlClient = githubv4.NewClient(httpClient)
	} else {
		restClient, err = github.NewClient(httpClient).WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, WrapError(err, "NewClient", cfg.BaseURL)
		}
		graphqlClient = githubv4.NewEnterpriseClient(buildGraphQLURL(cfg.BaseURL), httpClient)
	}

	cfg.Logger.Debug("GitHub client configured",
		"base_url", cfg.BaseURL,
		"graphql_url", buildGraphQLURL(cfg.BaseURL),
		"instance_type", detectInstanceType(cfg.BaseURL),
		"app_auth", appAuth,
		"cache", cfg.EnableCache)

	rateLimiter := NewRateLimiter(cfg.RequestsPerSecond, cfg.Logger)

	return &Client{
		rest:        restClient,
		graphql:     graphqlClient,
		baseURL:     cfg.BaseURL,
		token:       cfg.Token,
		appAuth:     appAuth,
		rateLimiter: rateLimiter,
		retryer:     NewRetryer(cfg.RetryConfig, rateLimiter, cfg.Logger),
		logger:      cfg.Logger,
	}, nil
}

// tokenSource prefers GitHub App installation tokens when configured.
func tokenSource(cfg ClientConfig) (oauth2.TokenSource, bool, error) {
	if !cfg.HasAppCredentials() {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}), false, nil
	}

	key, err := loadPrivateKey(cfg.AppPrivateKey)
	if err != nil {
		return nil, false, err
	}
	appTS, err := githubauth.NewApplicationTokenSource(cfg.AppID, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create GitHub App token source: %w", err)
	}

	if isDotCom(cfg.BaseURL) {
		return githubauth.NewInstallationTokenSource(cfg.AppInstallationID, appTS), true, nil
	}
	return githubauth.NewInstallationTokenSource(cfg.AppInstallationID, appTS,
		githubauth.WithEnterpriseURL(webURL(cfg.BaseURL))), true, nil
}

// loadPrivateKey accepts an inline PEM block or a path to one.
func loadPrivateKey(value string) ([]byte, error) {
	if strings.Contains(value, "-----BEGIN") {
		return []byte(value), nil
	}
	data, err := os.ReadFile(value)
	if err != nil {
		return nil, fmt.Errorf("failed to read GitHub App private key: %w", err)
	}
	return data, nil
}

// REST returns the underlying GitHub REST client
func (c *Client) REST() *github.Client {
	return c.rest
}

// GraphQL returns the underlying GitHub GraphQL client
func (c *Client) GraphQL() *githubv4.Client {
	return c.graphql
}

// BaseURL returns the base URL of the GitHub instance
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsPATAuthenticated reports whether requests carry a personal access token.
// Teams created with a PAT get the token owner added as a maintainer.
func (c *Client) IsPATAuthenticated() bool {
	return !c.appAuth
}

// RateLimiter returns the client's limiter
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

func (c *Client) updateRate(resp *github.Response) {
	if resp != nil && resp.Rate.Limit > 0 {
		c.rateLimiter.UpdateLimits(resp.Rate.Remaining, resp.Rate.Limit, resp.Rate.Reset.Time)
	}
}

// DoWithRetry executes a REST API operation with retry logic
func (c *Client) DoWithRetry(ctx context.Context, operation string, fn func(ctx context.Context) (*github.Response, error)) (*github.Response, error) {
	var resp *github.Response

	err := c.retryer.Do(ctx, operation, func(ctx context.Context) error {
		start := time.Now()

		var err error
		resp, err = fn(ctx)
		c.updateRate(resp)
		if err != nil {
			wrapped := WrapError(err, operation, c.baseURL)
			c.logger.Debug("GitHub API call failed",
				"operation", operation,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", wrapped)
			return wrapped
		}

		c.logger.Debug("GitHub API call completed",
			"operation", operation,
			"duration_ms", time.Since(start).Milliseconds())
		return nil
	})
	return resp, err
}

// QueryWithRetry executes a GraphQL query with retry logic
func (c *Client) QueryWithRetry(ctx context.Context, operation string, query any, variables map[string]any) error {
	return c.retryer.Do(ctx, operation, func(ctx context.Context) error {
		if err := c.graphql.Query(ctx, query, variables); err != nil {
			return WrapError(err, operation, c.baseURL)
		}
		return nil
	})
}

// GetAuthenticatedUserLogin returns the login of the token owner. App
// installations have no user and return "".
func (c *Client) GetAuthenticatedUserLogin(ctx context.Context) (string, error) {
	if c.appAuth {
		return "", nil
	}

	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if c.login != "" {
		return c.login, nil
	}

	var user *github.User
	_, err := c.DoWithRetry(ctx, "GetAuthenticatedUser", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		user, resp, err = c.rest.Users.Get(ctx, "")
		return resp, err
	})
	if err != nil {
		return "", err
	}
	c.login = user.GetLogin()
	return c.login, nil
}

// TestAuthentication verifies that the client is authenticated properly
func (c *Client) TestAuthentication(ctx context.Context) error {
	if c.appAuth {
		_, err := c.DoWithRetry(ctx, "ListInstallationRepos", func(ctx context.Context) (*github.Response, error) {
			_, resp, err := c.rest.Apps.ListRepos(ctx, &github.ListOptions{PerPage: 1})
			return resp, err
		})
		return err
	}

	login, err := c.GetAuthenticatedUserLogin(ctx)
	if err != nil {
		c.logger.Error("Authentication test failed", "error", err)
		return err
	}
	c.logger.Info("Authentication successful", "user", login)
	return nil
}

// CheckRateLimit refreshes and logs the primary rate limit.
func (c *Client) CheckRateLimit(ctx context.Context) error {
	limits, _, err := c.rest.RateLimit.Get(ctx)
	if err != nil {
		return WrapError(err, "GetRateLimits", c.baseURL)
	}
	if limits != nil && limits.Core != nil {
		c.rateLimiter.UpdateLimits(limits.Core.Remaining, limits.Core.Limit, limits.Core.Reset.Time)
		c.logger.Info("Rate limit status",
			"remaining", limits.Core.Remaining,
			"limit", limits.Core.Limit,
			"reset", limits.Core.Reset.Time)
	}
	return nil
}
