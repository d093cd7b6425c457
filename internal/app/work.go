package app

import (
	"context"
	"fmt"
	"sort"

	"dipcp-go/internal/dip"
)

func splitRepository(op, repository string) (string, string, error) {
	owner, repo, ok := dip.SplitRepository(repository)
	if !ok {
		return "", "", dip.Validationf(op, "invalid repository %q, want OWNER/REPO", repository)
	}
	return owner, repo, nil
}

// CurrentWork returns the owner/repo of the work opened last, or "".
func (a *App) CurrentWork() (string, error) {
	cur, err := a.store.GetSetting(dip.SettingCurrentRepo)
	if err != nil {
		return "", fmt.Errorf("reading current work: %w", err)
	}
	return string(cur), nil
}

// OwnRepository returns the user's copy of the current work.
func (a *App) OwnRepository() (string, error) {
	if a.session.User == "" {
		return "", errNotSignedIn
	}
	cur, err := a.CurrentWork()
	if err != nil {
		return "", err
	}
	_, repo, ok := dip.SplitRepository(cur)
	if !ok {
		return "", dip.Validationf("current work", "no work opened yet: run dip work open OWNER/REPO")
	}
	return a.session.User + "/" + repo, nil
}

// OpenWork makes repository the current work, syncing it on first visit.
func (a *App) OpenWork(ctx context.Context, repository string) (*dip.Creation, error) {
	owner, repo, err := splitRepository("open work", repository)
	if err != nil {
		return nil, a.fail(err)
	}
	c, err := a.sync.OpenWork(ctx, owner, repo)
	return c, a.track(err)
}

// ListWorks returns the opened works, most recently read first.
func (a *App) ListWorks() ([]*dip.Creation, error) {
	return a.store.ListCreations()
}

// RenameWork sets the display name of an opened work.
func (a *App) RenameWork(repository, name string) error {
	return a.track(a.sync.RenameWork(repository, name))
}

// SyncWork downloads the articles of repository that are not cached yet.
func (a *App) SyncWork(ctx context.Context, repository string) (int, error) {
	owner, repo, err := splitRepository("sync", repository)
	if err != nil {
		return 0, a.fail(err)
	}
	n, err := a.sync.SyncDirectory(ctx, owner, repo)
	a.metrics.RecordDownloads(n)
	return n, a.track(err)
}

// Read returns an article, downloading it when it is not cached. With
// refresh the remote copy is fetched again. Linked articles and media are
// prefetched; failures there are only logged.
func (a *App) Read(ctx context.Context, path string, refresh bool) (*dip.Article, error) {
	var article *dip.Article
	var err error
	if refresh {
		article, err = a.sync.Refresh(ctx, path)
		err = a.track(err)
	} else {
		article, err = a.sync.ReadOrDownload(ctx, path)
		err = a.fail(err)
	}
	if err != nil {
		return nil, err
	}
	if err := a.sync.PrefetchLinked(ctx, article); err != nil {
		a.logger.Warn("prefetching linked files failed", "path", article.Path, "error", err)
	}
	return article, nil
}

// CreateArticle creates an empty article name.md under dir in the user's repository.
func (a *App) CreateArticle(dir, name string) (*dip.Article, error) {
	article, err := a.sync.CreateArticle(dir, name)
	return article, a.track(err)
}

// SaveArticle stores text as the new content of one of the user's articles.
// A header in text, as printed by Read, is dropped and regenerated; text
// after the commentary separator becomes the commentary.
func (a *App) SaveArticle(path, text string) (*dip.Article, error) {
	meta := dip.ParseArticleMetadata(text)
	body, commentary, _ := dip.SplitCommentary(meta.Content)
	article, err := a.sync.SaveArticle(path, body, commentary)
	return article, a.track(err)
}

// DeleteArticle removes one of the user's articles from the cache.
func (a *App) DeleteArticle(path string) error {
	return a.track(a.sync.DeleteArticle(path))
}

// Tree returns the cached file tree of repository.
func (a *App) Tree(repository string) (*dip.TreeNode, error) {
	if _, _, err := splitRepository("tree", repository); err != nil {
		return nil, err
	}
	return a.sync.RepositoryTree(repository)
}

// Vote queues a vote on another author's article.
func (a *App) Vote(path string, value int) error {
	return a.track(a.sync.Vote(path, value))
}

// FlushVotes posts the queued votes to the current work's vote issue.
func (a *App) FlushVotes(ctx context.Context) (int, error) {
	votes, err := a.sync.FlushVotes(ctx)
	if err == nil {
		a.metrics.RecordVotesFlushed(len(votes))
	}
	return len(votes), a.track(err)
}

// Pending lists the files waiting to be submitted, for repo or for every repository.
func (a *App) Pending(repo string) ([]*dip.PendingChange, error) {
	return a.sync.Pending(repo)
}

// Submit commits paths to the user's repository as one commit. With no
// paths, every pending file of the user's copy of the current work is
// submitted.
func (a *App) Submit(ctx context.Context, paths []string, message string) (*dip.Submission, error) {
	if len(paths) == 0 {
		repo, err := a.OwnRepository()
		if err != nil {
			return nil, a.fail(err)
		}
		pending, err := a.sync.Pending(repo)
		if err != nil {
			return nil, a.fail(err)
		}
		for _, p := range pending {
			paths = append(paths, p.Path)
		}
		if len(paths) == 0 {
			return nil, nil
		}
	}

	sub, err := a.sync.SubmitBatch(ctx, paths, message)
	if sub != nil {
		a.metrics.RecordSubmission(sub.Status)
	}
	return sub, a.track(err)
}

// History returns the most recent submissions.
func (a *App) History(limit int) ([]*dip.Submission, error) {
	return a.store.ListSubmissions(limit)
}

// PullMedia downloads the media an article refers to.
func (a *App) PullMedia(ctx context.Context, path string) (int, error) {
	article, err := a.sync.ReadOrDownload(ctx, path)
	if err != nil {
		return 0, a.fail(err)
	}
	n, err := a.sync.DownloadMedias(ctx, dip.ParseMediaLinks(article.Content))
	return n, a.track(err)
}

// AddMedia stores a media file in the user's repository for the next submission.
func (a *App) AddMedia(path string, data []byte) error {
	return a.track(a.sync.UploadMedia(path, data))
}

// ClearCache empties every cache collection.
func (a *App) ClearCache() error {
	if err := a.store.ClearAll(); err != nil {
		return a.track(fmt.Errorf("clearing cache: %w", err))
	}
	a.metrics.SetPending(0)
	return a.track(nil)
}

// Linkify turns plain mentions of other articles of the same work into
// links inside one of the user's articles. It reports whether the article
// changed.
func (a *App) Linkify(path string) (bool, error) {
	p := dip.ParsePath(path)
	if p == nil {
		return false, a.fail(dip.Validationf("linkify", "invalid path %q", path))
	}
	article, err := a.store.GetArticle(p.String())
	if err != nil {
		return false, a.fail(err)
	}
	if article == nil {
		return false, a.fail(dip.NewError(dip.ErrNotFound, "linkify", fmt.Errorf("%s is not cached", p)))
	}

	scope := p.Repository()
	if cur, err := a.CurrentWork(); err == nil && cur != "" {
		if _, repo, ok := dip.SplitRepository(cur); ok && repo == p.Repo {
			scope = cur
		}
	}

	meta := dip.ParseArticleMetadata(article.Content)
	body, commentary, _ := dip.SplitCommentary(meta.Content)
	linked, err := a.linker.Linkify(body, p.String(), scope)
	if err != nil {
		return false, a.fail(err)
	}
	if linked == body {
		return false, nil
	}
	if _, err := a.sync.SaveArticle(p.String(), linked, commentary); err != nil {
		return false, a.track(err)
	}
	return true, a.track(nil)
}

// LinkCandidates lists the articles path could request a link from.
func (a *App) LinkCandidates(path string) ([]string, error) {
	return a.linker.LinkCandidates(path)
}

// RequestLink asks the owner of remotePath to link localPath.
func (a *App) RequestLink(ctx context.Context, localPath, remotePath string) (*dip.Link, error) {
	link, err := a.linker.RequestLink(ctx, localPath, remotePath)
	return link, a.track(err)
}

// Notices lists the open protocol issues of every work the user has
// opened, in the user's own copies.
func (a *App) Notices(ctx context.Context) ([]*dip.Notice, error) {
	if a.session.User == "" {
		return nil, errNotSignedIn
	}
	works, err := a.store.ListCreations()
	if err != nil {
		return nil, fmt.Errorf("listing works: %w", err)
	}

	seen := make(map[string]bool)
	var repos []string
	for _, w := range works {
		_, repo, ok := dip.SplitRepository(w.Repository)
		if !ok {
			continue
		}
		own := a.session.User + "/" + repo
		if !seen[own] {
			seen[own] = true
			repos = append(repos, own)
		}
	}
	sort.Strings(repos)

	var out []*dip.Notice
	for _, repo := range repos {
		notices, err := a.linker.ListNotices(ctx, repo)
		if err != nil {
			return nil, err
		}
		out = append(out, notices...)
	}
	return out, nil
}

func (a *App) findNotice(ctx context.Context, repository string, number int) (*dip.Notice, error) {
	notices, err := a.linker.ListNotices(ctx, repository)
	if err != nil {
		return nil, err
	}
	for _, n := range notices {
		if n.Issue.Number == number {
			return n, nil
		}
	}
	return nil, dip.NewError(dip.ErrNotFound, "find notice", fmt.Errorf("no open notice #%d in %s", number, repository))
}

// RespondToLinkRequest accepts or rejects link request #number in repository.
func (a *App) RespondToLinkRequest(ctx context.Context, repository string, number int, accept bool, reason string) error {
	n, err := a.findNotice(ctx, repository, number)
	if err != nil {
		return a.fail(err)
	}
	return a.track(a.linker.RespondToLinkRequest(ctx, n, accept, reason))
}

// CloseNotice closes result notice #number in repository and returns the
// local paths whose links were rejected.
func (a *App) CloseNotice(ctx context.Context, repository string, number int) ([]string, error) {
	n, err := a.findNotice(ctx, repository, number)
	if err != nil {
		return nil, a.fail(err)
	}
	edit, err := a.linker.CloseFeedback(ctx, n)
	return edit, a.track(err)
}
