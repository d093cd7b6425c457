package github

import (
	"context"
	"encoding/base64"
	"errors"

	gh "github.com/google/go-github/v62/github"
	"golang.org/x/sync/errgroup"

	"dipcp-go/internal/dip"
)

// BatchCommit writes files to owner/repo as one commit. The sequence is
// tip -> tree -> blobs -> new tree -> commit -> ref; only the final ref update
// makes anything visible, so a failure before it leaves the branch as it was.
// A failure of the ref update itself that did not come with a definite
// rejection is reported as dip.ErrUnknownOutcome.
func (c *Client) BatchCommit(ctx context.Context, owner, repo string, files []dip.CommitFile, message string, author dip.CommitAuthor) (string, error) {
	if len(files) == 0 {
		return "", dip.Validationf("batch commit", "no files")
	}

	branch, tip, err := c.resolveTip(ctx, owner, repo)
	if err != nil {
		return "", err
	}

	var base *gh.Commit
	err = c.call(ctx, "get commit", func() (resp *gh.Response, err error) {
		base, resp, err = c.gh.Git.GetCommit(ctx, owner, repo, tip)
		return resp, err
	})
	if err != nil {
		return "", err
	}

	// Blobs are independent of each other.
	shas := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			sha, err := c.createBlob(gctx, owner, repo, f)
			shas[i] = sha
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	entries := make([]*gh.TreeEntry, len(files))
	for i, f := range files {
		entries[i] = &gh.TreeEntry{
			Path: gh.String(f.Path),
			Mode: gh.String("100644"),
			Type: gh.String("blob"),
			SHA:  gh.String(shas[i]),
		}
	}
	var tree *gh.Tree
	err = c.call(ctx, "create tree", func() (resp *gh.Response, err error) {
		tree, resp, err = c.gh.Git.CreateTree(ctx, owner, repo, base.GetTree().GetSHA(), entries)
		return resp, err
	})
	if err != nil {
		return "", err
	}

	identity := c.identity(author)
	var commit *gh.Commit
	err = c.call(ctx, "create commit", func() (resp *gh.Response, err error) {
		commit, resp, err = c.gh.Git.CreateCommit(ctx, owner, repo, &gh.Commit{
			Message:   gh.String(message),
			Tree:      &gh.Tree{SHA: tree.SHA},
			Parents:   []*gh.Commit{{SHA: gh.String(tip)}},
			Author:    identity,
			Committer: identity,
		}, nil)
		return resp, err
	})
	if err != nil {
		return "", err
	}

	ref := &gh.Reference{
		Ref:    gh.String("refs/heads/" + branch),
		Object: &gh.GitObject{SHA: commit.SHA},
	}
	err = c.call(ctx, "update ref", func() (resp *gh.Response, err error) {
		_, resp, err = c.gh.Git.UpdateRef(ctx, owner, repo, ref, true)
		return resp, err
	})
	if err != nil {
		if errors.Is(err, dip.ErrTransientNetwork) {
			return "", dip.NewError(dip.ErrUnknownOutcome, "update ref", err).
				WithHint("check the repository history before submitting again")
		}
		return "", err
	}

	c.logger.Info("commit created", "repo", owner+"/"+repo, "branch", branch, "sha", commit.GetSHA(), "files", len(files))
	return commit.GetSHA(), nil
}

// resolveTip returns the branch to write to and its tip commit. The work's
// branch is tried first, then the repository default branch. The branch
// found is remembered for later reads.
func (c *Client) resolveTip(ctx context.Context, owner, repo string) (string, string, error) {
	branch := c.branchFor(owner, repo)
	sha, err := c.branchTip(ctx, owner, repo, branch)
	if err == nil {
		c.rememberBranch(owner, repo, branch)
		return branch, sha, nil
	}
	if !errors.Is(err, dip.ErrNotFound) {
		return "", "", err
	}

	info, rerr := c.GetRepository(ctx, owner, repo)
	if rerr != nil {
		return "", "", rerr
	}
	if info.DefaultBranch == "" || info.DefaultBranch == branch {
		return "", "", err
	}
	sha, err = c.branchTip(ctx, owner, repo, info.DefaultBranch)
	if err != nil {
		return "", "", err
	}
	c.rememberBranch(owner, repo, info.DefaultBranch)
	return info.DefaultBranch, sha, nil
}

func (c *Client) branchTip(ctx context.Context, owner, repo, branch string) (string, error) {
	var ref *gh.Reference
	err := c.call(ctx, "get ref", func() (resp *gh.Response, err error) {
		ref, resp, err = c.gh.Git.GetRef(ctx, owner, repo, "heads/"+branch)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return ref.GetObject().GetSHA(), nil
}

func (c *Client) createBlob(ctx context.Context, owner, repo string, f dip.CommitFile) (string, error) {
	content := f.Content
	if !f.Base64 {
		content = base64.StdEncoding.EncodeToString([]byte(f.Content))
	}
	var blob *gh.Blob
	err := c.call(ctx, "create blob", func() (resp *gh.Response, err error) {
		blob, resp, err = c.gh.Git.CreateBlob(ctx, owner, repo, &gh.Blob{
			Content:  gh.String(content),
			Encoding: gh.String("base64"),
		})
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return blob.GetSHA(), nil
}

func (c *Client) identity(a dip.CommitAuthor) *gh.CommitAuthor {
	email := a.Email
	if email == "" {
		email = c.email
	}
	if email == "" {
		email = a.Name + "@users.noreply.github.com"
	}
	ca := &gh.CommitAuthor{Name: gh.String(a.Name), Email: gh.String(email)}
	if !a.Date.IsZero() {
		ca.Date = &gh.Timestamp{Time: a.Date}
	}
	return ca
}
