package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dipcp-go/internal/dip"
)

// rawFileURL builds the raw-content URL of p on branch. Each path segment
// is escaped on its own.
func (c *Client) rawFileURL(p *dip.Path, branch string) string {
	segments := strings.Split(p.RepoPath(), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.rawURL + "/" + url.PathEscape(p.Owner) + "/" + url.PathEscape(p.Repo) + "/" +
		url.PathEscape(branch) + "/" + strings.Join(segments, "/")
}

// FetchRaw reads a text file through the raw-content endpoint.
func (c *Client) FetchRaw(ctx context.Context, path string) (string, error) {
	data, err := c.FetchRawBytes(ctx, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FetchRawBytes reads a file through the raw-content endpoint. The raw host
// has its own budget, so the API limiter is not applied. A miss on the
// configured branch is retried once on the repository default branch.
func (c *Client) FetchRawBytes(ctx context.Context, path string) ([]byte, error) {
	p := dip.ParsePath(path)
	if p == nil {
		return nil, dip.Validationf("fetch raw", "invalid path %q", path)
	}
	data, err := c.fetchRaw(ctx, p, c.branchFor(p.Owner, p.Repo))
	if errors.Is(err, dip.ErrNotFound) {
		if branch, ok := c.fallbackBranch(ctx, p.Owner, p.Repo); ok {
			data, err = c.fetchRaw(ctx, p, branch)
		}
	}
	return data, err
}

func (c *Client) fetchRaw(ctx context.Context, p *dip.Path, branch string) ([]byte, error) {
	const op = "fetch raw"
	path := p.String()

	u := c.rawFileURL(p, branch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, dip.NewError(dip.ErrTransientNetwork, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, dip.NewError(dip.ErrNotFound, op, fmt.Errorf("%s", path))
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := defaultRetryAfter
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
		return nil, &dip.RateLimitError{Op: op, RetryAfter: wait, Err: fmt.Errorf("%s", path)}
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, dip.NewError(dip.ErrPermissionDenied, op, fmt.Errorf("%s: status %d", path, resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, dip.NewError(dip.ErrTransientNetwork, op, fmt.Errorf("%s: status %d", path, resp.StatusCode))
	default:
		return nil, fmt.Errorf("%s: %s: unexpected status %d", op, path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dip.NewError(dip.ErrTransientNetwork, op, fmt.Errorf("reading %s: %w", path, err))
	}
	c.logger.Debug("raw fetch", "path", path, "bytes", len(data))
	return data, nil
}
