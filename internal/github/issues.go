package github

import (
	"context"
	"html"

	gh "github.com/google/go-github/v62/github"

	"dipcp-go/internal/dip"
)

// ListIssues returns the open issues of owner/repo, newest first. Pull
// requests are skipped and bodies are reduced to plain text.
func (c *Client) ListIssues(ctx context.Context, owner, repo string) ([]*dip.Issue, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var out []*dip.Issue
	for {
		var page []*gh.Issue
		var next int
		err := c.call(ctx, "list issues", func() (*gh.Response, error) {
			issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
			page = issues
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, is := range page {
			if is.IsPullRequest() {
				continue
			}
			out = append(out, c.convertIssue(is))
		}
		if next == 0 {
			return out, nil
		}
		opts.Page = next
	}
}

// CreateIssue opens an issue on owner/repo.
func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string) (*dip.Issue, error) {
	var is *gh.Issue
	err := c.call(ctx, "create issue", func() (resp *gh.Response, err error) {
		is, resp, err = c.gh.Issues.Create(ctx, owner, repo, &gh.IssueRequest{
			Title: gh.String(title),
			Body:  gh.String(body),
		})
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return c.convertIssue(is), nil
}

// CloseIssue closes issue number of owner/repo.
func (c *Client) CloseIssue(ctx context.Context, owner, repo string, number int) error {
	return c.call(ctx, "close issue", func() (*gh.Response, error) {
		_, resp, err := c.gh.Issues.Edit(ctx, owner, repo, number, &gh.IssueRequest{State: gh.String("closed")})
		return resp, err
	})
}

// CommentIssue adds a comment to issue number of owner/repo.
func (c *Client) CommentIssue(ctx context.Context, owner, repo string, number int, body string) error {
	return c.call(ctx, "comment issue", func() (*gh.Response, error) {
		_, resp, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &gh.IssueComment{Body: gh.String(body)})
		return resp, err
	})
}

func (c *Client) convertIssue(is *gh.Issue) *dip.Issue {
	return &dip.Issue{
		Number: is.GetNumber(),
		Title:  is.GetTitle(),
		Body:   c.plainText(is.GetBody()),
		Author: is.GetUser().GetLogin(),
		State:  is.GetState(),
	}
}

// plainText strips any markup from an untrusted issue body. The strict policy
// escapes entities, which are turned back into text afterwards.
func (c *Client) plainText(body string) string {
	return html.UnescapeString(c.sanitizer.Sanitize(body))
}
