// Package github is the remote content gateway: raw-content reads, the git
// data API sequence for batch commits and the issue channel used by the
// link protocol.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v62/github"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"dipcp-go/internal/dip"
)

// Defaults for Options fields left empty.
const (
	DefaultRawURL = "https://raw.githubusercontent.com"
	DefaultBranch = "main"
)

// QuotaObserver is told the remaining request quota after every API call.
type QuotaObserver interface {
	ObserveQuota(remaining int)
}

// Options configures a Client.
type Options struct {
	APIURL         string // empty means api.github.com
	RawURL         string
	Branch         string
	CommitterEmail string
	RequestsPerSec float64 // <= 0 disables the client-side budget
	Burst          int
	HTTPClient     *http.Client
	Logger         dip.Logger
	Quota          QuotaObserver // optional
}

// Client implements dip.Remote against GitHub.
type Client struct {
	gh        *gh.Client
	http      *http.Client
	rawURL    string
	branch    string
	email     string
	limiter   *rate.Limiter
	logger    dip.Logger
	quota     QuotaObserver
	sanitizer *bluemonday.Policy

	mu       sync.Mutex
	branches map[string]string // owner/repo -> branch confirmed to exist
}

// NewClient creates a gateway authenticated with token. An empty token gives
// anonymous access, which is enough for reading public works.
func NewClient(token string, opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	client := gh.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if opts.APIURL != "" {
		u, err := url.Parse(strings.TrimSuffix(opts.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing api_url: %w", err)
		}
		client.BaseURL = u
	}

	limit := rate.Inf
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	rawURL := opts.RawURL
	if rawURL == "" {
		rawURL = DefaultRawURL
	}
	branch := opts.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	logger := opts.Logger
	if logger == nil {
		logger = dip.NewNopLogger()
	}

	return &Client{
		gh:        client,
		http:      httpClient,
		rawURL:    strings.TrimSuffix(rawURL, "/"),
		branch:    branch,
		email:     opts.CommitterEmail,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
		quota:     opts.Quota,
		sanitizer: bluemonday.StrictPolicy(),
		branches:  make(map[string]string),
	}, nil
}

// call runs one API request inside the request budget, reports the remaining
// quota and translates the error.
func (c *Client) call(ctx context.Context, op string, fn func() (*gh.Response, error)) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return dip.NewError(dip.ErrTransientNetwork, op, err)
	}
	resp, err := fn()
	if resp != nil && resp.Rate.Limit > 0 {
		c.logger.Debug("api call", "op", op, "remaining", resp.Rate.Remaining, "limit", resp.Rate.Limit)
		if c.quota != nil {
			c.quota.ObserveQuota(resp.Rate.Remaining)
		}
	}
	return translateError(op, resp, err)
}

// GetRepository reads the repository settings the link protocol depends on.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*dip.RepositoryInfo, error) {
	var r *gh.Repository
	err := c.call(ctx, "get repository", func() (resp *gh.Response, err error) {
		r, resp, err = c.gh.Repositories.Get(ctx, owner, repo)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return &dip.RepositoryInfo{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		DefaultBranch: r.GetDefaultBranch(),
		HasIssues:     r.GetHasIssues(),
	}, nil
}

// CurrentUser returns the account the token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*dip.User, error) {
	var u *gh.User
	err := c.call(ctx, "get user", func() (resp *gh.Response, err error) {
		u, resp, err = c.gh.Users.Get(ctx, "")
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return &dip.User{Login: u.GetLogin(), Name: u.GetName(), Email: u.GetEmail()}, nil
}

// branchFor returns the branch reads and commits of owner/repo go to: the
// one resolved earlier, else the configured branch.
func (c *Client) branchFor(owner, repo string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.branches[owner+"/"+repo]; ok {
		return b
	}
	return c.branch
}

func (c *Client) rememberBranch(owner, repo, branch string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.branches[owner+"/"+repo] = branch
}

// fallbackBranch is consulted after a NotFound on the configured branch. It
// looks up the repository default branch once per repository and returns it
// when it differs from the branch already tried.
func (c *Client) fallbackBranch(ctx context.Context, owner, repo string) (string, bool) {
	c.mu.Lock()
	_, resolved := c.branches[owner+"/"+repo]
	c.mu.Unlock()
	if resolved {
		return "", false
	}

	info, err := c.GetRepository(ctx, owner, repo)
	if err != nil {
		c.logger.Debug("default branch lookup failed", "repo", owner+"/"+repo, "error", err)
		return "", false
	}
	branch := info.DefaultBranch
	if branch == "" {
		branch = c.branch
	}
	c.rememberBranch(owner, repo, branch)
	if branch == c.branch {
		return "", false
	}
	c.logger.Info("using repository default branch", "repo", owner+"/"+repo, "branch", branch)
	return branch, true
}

// ListDirectory lists one directory of the work's branch.
func (c *Client) ListDirectory(ctx context.Context, owner, repo, dir string) ([]dip.RemoteEntry, error) {
	entries, err := c.listContents(ctx, owner, repo, dir, c.branchFor(owner, repo))
	if errors.Is(err, dip.ErrNotFound) {
		if branch, ok := c.fallbackBranch(ctx, owner, repo); ok {
			entries, err = c.listContents(ctx, owner, repo, dir, branch)
		}
	}
	if err != nil {
		return nil, err
	}
	if entries == nil {
		return nil, dip.Validationf("list directory", "%s/%s/%s is a file", owner, repo, dir)
	}

	out := make([]dip.RemoteEntry, 0, len(entries))
	for _, e := range entries {
		var typ dip.EntryType
		switch e.GetType() {
		case "file":
			typ = dip.EntryFile
		case "dir":
			typ = dip.EntryDir
		default:
			continue
		}
		out = append(out, dip.RemoteEntry{Name: e.GetName(), Path: e.GetPath(), Type: typ})
	}
	return out, nil
}

func (c *Client) listContents(ctx context.Context, owner, repo, dir, branch string) ([]*gh.RepositoryContent, error) {
	var entries []*gh.RepositoryContent
	err := c.call(ctx, "list directory", func() (resp *gh.Response, err error) {
		_, entries, resp, err = c.gh.Repositories.GetContents(ctx, owner, repo, dir,
			&gh.RepositoryContentGetOptions{Ref: branch})
		return resp, err
	})
	return entries, err
}

var _ dip.Remote = (*Client)(nil)
