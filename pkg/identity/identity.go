// Package identity authenticates a GitHub access token and enumerates the
// repositories owned by the authenticated account.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/google/go-github/v66/github"
)

var (
	// ErrAuthentication is returned when the token is missing, malformed or
	// rejected by the server.
	ErrAuthentication = errors.New("authentication failed")
	// ErrEnumeration is returned when a page of repositories could not be listed.
	ErrEnumeration = errors.New("repository listing failed")
)

const defaultUserAgent = "github-backup"

// Client is an authenticated GitHub API client.
type Client struct {
	gh    *github.Client
	login string
	// number of repositories the account owns as reported by the user endpoint
	ownedRepos int
	log        *slog.Logger
}

type options struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	log        *slog.Logger
}

// Option configures Authenticate
type Option func(*options)

// WithBaseURL sets the REST API root, used for GitHub Enterprise
// eg. "https://github.example.com/api/v3/"
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithHTTPClient sets the http client used for API requests
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header of API requests
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Authenticate validates the token and looks up the account it belongs to.
// The lookup is done immediately so an invalid token is reported before any
// repository is processed.
func Authenticate(ctx context.Context, token string, opts ...Option) (*Client, error) {
	o := &options{userAgent: defaultUserAgent, log: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	if err := validateToken(token); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	gh := github.NewClient(o.httpClient).WithAuthToken(token)
	gh.UserAgent = o.userAgent
	if o.baseURL != "" {
		u, err := url.Parse(o.baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid api url %q err:%w", o.baseURL, err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		gh.BaseURL = u
	}

	user, _, err := gh.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: unable to look up authenticated user err:%w", ErrAuthentication, err)
	}
	if user.GetLogin() == "" {
		return nil, fmt.Errorf("%w: server returned user without login", ErrAuthentication)
	}

	c := &Client{
		gh:         gh,
		login:      user.GetLogin(),
		ownedRepos: user.GetPublicRepos() + int(user.GetOwnedPrivateRepos()),
		log:        o.log,
	}
	c.log.Debug("authenticated", "login", c.login, "owned-repos", c.ownedRepos)

	return c, nil
}

// Login returns the login of the authenticated account
func (c *Client) Login() string {
	return c.login
}

// validateToken rejects tokens which can never be valid, the server decides
// on the rest
func validateToken(token string) error {
	if token == "" {
		return fmt.Errorf("token is empty")
	}
	if strings.IndexFunc(token, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return fmt.Errorf("token contains whitespace or control characters")
	}
	return nil
}
