package dip

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultContentDir is the canonical content directory of a work.
const DefaultContentDir = "story"

// Session is the application context: who is using the tool.
type Session struct {
	User  string
	Email string
}

// SyncOptions configures a Synchronizer.
type SyncOptions struct {
	ContentDir    string
	Workers       int
	AlwaysRefresh bool
	Ignore        Matcher // optional
}

// Synchronizer keeps the local cache and the remote host in step.
type Synchronizer struct {
	store   Store
	remote  Remote
	session Session
	opts    SyncOptions
	logger  Logger
	clock   Clock
	ids     IDGenerator
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(store Store, remote Remote, session Session, opts SyncOptions, logger Logger, clock Clock, ids IDGenerator) *Synchronizer {
	if opts.ContentDir == "" {
		opts.ContentDir = DefaultContentDir
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Synchronizer{
		store:   store,
		remote:  remote,
		session: session,
		opts:    opts,
		logger:  logger,
		clock:   clock,
		ids:     ids,
	}
}

// Session returns the session the synchronizer acts for.
func (s *Synchronizer) Session() Session { return s.session }

func (s *Synchronizer) owns(p *Path) bool { return p.Owner == s.session.User }

func parseOrFail(op, raw string) (*Path, error) {
	p := ParsePath(raw)
	if p == nil {
		return nil, Validationf(op, "invalid article path %q", raw)
	}
	return p, nil
}

// ReadOrDownload returns the cached article at path, downloading it when
// absent. Another author's article is re-downloaded when always-refresh is on;
// the user's own articles are never refreshed from remote.
func (s *Synchronizer) ReadOrDownload(ctx context.Context, rawPath string) (*Article, error) {
	p, err := parseOrFail("read article", rawPath)
	if err != nil {
		return nil, err
	}

	cached, err := s.store.GetArticle(p.String())
	if err != nil {
		return nil, fmt.Errorf("reading cached article: %w", err)
	}

	article := cached
	switch {
	case cached == nil:
		article, err = s.download(ctx, p, nil, false)
	case !s.owns(p) && s.alwaysRefresh():
		article, err = s.download(ctx, p, cached, true)
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.PutSetting(SettingCurrentArticle, []byte(p.String())); err != nil {
		return nil, fmt.Errorf("recording current article: %w", err)
	}
	return article, nil
}

// Refresh re-downloads path, keeping the vote and resetting the scroll position.
func (s *Synchronizer) Refresh(ctx context.Context, rawPath string) (*Article, error) {
	p, err := parseOrFail("refresh article", rawPath)
	if err != nil {
		return nil, err
	}
	prev, err := s.store.GetArticle(p.String())
	if err != nil {
		return nil, fmt.Errorf("reading cached article: %w", err)
	}
	return s.download(ctx, p, prev, true)
}

func (s *Synchronizer) alwaysRefresh() bool {
	v, err := s.store.GetSetting(SettingAlwaysRefresh)
	if err != nil || v == nil {
		return s.opts.AlwaysRefresh
	}
	return string(v) == "true"
}

// download fetches p and caches it. The previous vote is kept; the scroll
// position is kept unless resetScroll is set.
func (s *Synchronizer) download(ctx context.Context, p *Path, prev *Article, resetScroll bool) (*Article, error) {
	content, err := s.remote.FetchRaw(ctx, p.String())
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", p, err)
	}

	article := NewArticle(p, content)
	if prev != nil {
		article.Vote = prev.Vote
		article.Translation = prev.Translation
		if !resetScroll {
			article.ScrollTop = prev.ScrollTop
		}
	}
	if err := s.store.PutArticle(article); err != nil {
		return nil, fmt.Errorf("caching %s: %w", p, err)
	}
	s.logger.Debug("article downloaded", "path", p.String(), "bytes", len(content))
	return article, nil
}

// CreateArticle creates an empty article named name.md under dir, which is
// an owner/repo[/subdir] prefix in the user's own repository.
func (s *Synchronizer) CreateArticle(dir, name string) (*Article, error) {
	if err := ValidateArticleName(name); err != nil {
		return nil, err
	}
	p, err := parseOrFail("create article", strings.TrimSuffix(dir, "/")+"/"+name+".md")
	if err != nil {
		return nil, err
	}
	if !s.owns(p) {
		return nil, Validationf("create article", "%s is not in your repository", p)
	}
	existing, err := s.store.GetArticle(p.String())
	if err != nil {
		return nil, fmt.Errorf("reading cached article: %w", err)
	}
	if existing != nil {
		return nil, Conflictf("create article", "%s already exists", p)
	}

	article, err := s.store.SaveArticle(p.String(), NewArticleContent(s.session.User), true)
	if err != nil {
		return nil, fmt.Errorf("saving article: %w", err)
	}
	if err := s.store.RecordPendingChange(p.String()); err != nil {
		return nil, fmt.Errorf("marking pending: %w", err)
	}
	return article, nil
}

// SaveArticle writes a local edit of one of the user's own articles,
// regenerating the header, and marks it pending.
func (s *Synchronizer) SaveArticle(rawPath, body, commentary string) (*Article, error) {
	p, err := parseOrFail("save article", rawPath)
	if err != nil {
		return nil, err
	}
	if !s.owns(p) {
		return nil, Validationf("save article", "%s belongs to %s", p, p.Owner)
	}

	var prev *Metadata
	existing, err := s.store.GetArticle(p.String())
	if err != nil {
		return nil, fmt.Errorf("reading cached article: %w", err)
	}
	if existing != nil {
		prev = ParseArticleMetadata(existing.Content)
	}

	content := BuildFullContent(prev, s.session.User, body, commentary, s.clock.Now())
	article, err := s.store.SaveArticle(p.String(), content, false)
	if err != nil {
		return nil, fmt.Errorf("saving article: %w", err)
	}
	if err := s.store.RecordPendingChange(p.String()); err != nil {
		return nil, fmt.Errorf("marking pending: %w", err)
	}
	s.logger.Info("article saved", "path", p.String(), "version", ParseArticleMetadata(content).Version)
	return article, nil
}

// DeleteArticle removes one of the user's own articles from the cache. The
// remote copy is untouched.
func (s *Synchronizer) DeleteArticle(rawPath string) error {
	p, err := parseOrFail("delete article", rawPath)
	if err != nil {
		return err
	}
	if !s.owns(p) {
		return Validationf("delete article", "%s belongs to %s", p, p.Owner)
	}
	if err := s.store.DeleteArticle(p.String()); err != nil {
		return fmt.Errorf("deleting article: %w", err)
	}
	if err := s.store.ClearPendingChange(p.String()); err != nil {
		return fmt.Errorf("clearing pending marker: %w", err)
	}
	return nil
}

// MarkPending queues path for the next submission.
func (s *Synchronizer) MarkPending(rawPath string) error {
	p, err := parseOrFail("mark pending", rawPath)
	if err != nil {
		return err
	}
	return s.store.RecordPendingChange(p.String())
}

// Pending lists the pending paths of repo, or of every repository when repo is empty.
func (s *Synchronizer) Pending(repo string) ([]*PendingChange, error) {
	return s.store.ListPending(repo)
}

// SyncDirectory downloads every uncached markdown file under the work's
// content directory. Hidden entries are skipped.
func (s *Synchronizer) SyncDirectory(ctx context.Context, owner, repo string) (int, error) {
	var files []string
	var walk func(dir string, top bool) error
	walk = func(dir string, top bool) error {
		entries, err := s.remote.ListDirectory(ctx, owner, repo, dir)
		if err != nil {
			if top {
				return err
			}
			s.logger.Warn("listing directory failed", "repo", owner+"/"+repo, "dir", dir, "error", err)
			return nil
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name, ".") || s.ignored(e.Path) {
				continue
			}
			switch e.Type {
			case EntryFile:
				if strings.HasSuffix(e.Name, ".md") {
					files = append(files, owner+"/"+repo+"/"+e.Path)
				}
			case EntryDir:
				if err := walk(e.Path, false); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(s.opts.ContentDir, true); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Info("work has no content directory", "repo", owner+"/"+repo, "dir", s.opts.ContentDir)
			return 0, nil
		}
		return 0, fmt.Errorf("listing %s/%s: %w", owner, repo, err)
	}

	s.logger.Info("syncing work", "repo", owner+"/"+repo, "files", len(files))
	return s.DownloadFiles(ctx, files)
}

func (s *Synchronizer) ignored(relativePath string) bool {
	return s.opts.Ignore != nil && s.opts.Ignore.Match(relativePath)
}

// DownloadFiles downloads the paths that are not cached yet through the
// worker pool. Failures are logged and skipped. It returns how many files
// were downloaded.
func (s *Synchronizer) DownloadFiles(ctx context.Context, paths []string) (int, error) {
	var todo []*Path
	for _, raw := range paths {
		if strings.HasPrefix(raw, ".") {
			continue
		}
		p := ParsePath(raw)
		if p == nil {
			s.logger.Warn("skipping invalid path", "path", raw)
			continue
		}
		cached, err := s.store.GetArticle(p.String())
		if err != nil {
			return 0, fmt.Errorf("checking cache: %w", err)
		}
		if cached == nil {
			todo = append(todo, p)
		}
	}

	var done atomic.Int64
	err := runPool(ctx, s.opts.Workers, len(todo), func(ctx context.Context, i int) {
		if _, err := s.download(ctx, todo[i], nil, false); err != nil {
			s.logger.Warn("download failed", "path", todo[i].String(), "error", err)
			return
		}
		done.Add(1)
	})
	return int(done.Load()), err
}

// DownloadMedias makes sure every media path is cached with a valid blob.
// Blobs below MinMediaSize are discarded and fetched again.
func (s *Synchronizer) DownloadMedias(ctx context.Context, paths []string) (int, error) {
	var todo []string
	for _, raw := range paths {
		p := ParsePath(raw)
		if p == nil {
			s.logger.Warn("skipping invalid media path", "path", raw)
			continue
		}
		m, err := s.store.GetMedia(p.String())
		if err != nil {
			return 0, fmt.Errorf("checking media cache: %w", err)
		}
		if m != nil && m.Valid() {
			continue
		}
		if m != nil {
			if err := s.store.DeleteMedia(p.String()); err != nil {
				return 0, fmt.Errorf("discarding truncated media: %w", err)
			}
		}
		todo = append(todo, p.String())
	}

	var done atomic.Int64
	err := runPool(ctx, s.opts.Workers, len(todo), func(ctx context.Context, i int) {
		data, err := s.remote.FetchRawBytes(ctx, todo[i])
		if err != nil {
			s.logger.Warn("media download failed", "path", todo[i], "error", err)
			return
		}
		m := &Media{Path: todo[i], Data: data, ContentType: MediaContentType(todo[i])}
		if err := s.store.PutMedia(m); err != nil {
			s.logger.Warn("caching media failed", "path", todo[i], "error", err)
			return
		}
		done.Add(1)
	})
	return int(done.Load()), err
}

// PrefetchLinked downloads the articles and media an article links to.
func (s *Synchronizer) PrefetchLinked(ctx context.Context, a *Article) error {
	if _, err := s.DownloadFiles(ctx, ParseTextLinks(a.Content)); err != nil {
		return err
	}
	_, err := s.DownloadMedias(ctx, ParseMediaLinks(a.Content))
	return err
}

// UploadMedia stores a media blob for one of the user's own paths and marks it pending.
func (s *Synchronizer) UploadMedia(rawPath string, data []byte) error {
	p, err := parseOrFail("upload media", rawPath)
	if err != nil {
		return err
	}
	if !IsMediaPath(p.FullFilename) {
		return Validationf("upload media", "%s is not an image or audio file", p.FullFilename)
	}
	if !s.owns(p) {
		return Validationf("upload media", "%s belongs to %s", p, p.Owner)
	}
	m := &Media{Path: p.String(), Data: data, ContentType: MediaContentType(p.FullFilename)}
	if err := s.store.PutMedia(m); err != nil {
		return fmt.Errorf("storing media: %w", err)
	}
	return s.store.RecordPendingChange(p.String())
}

// SubmitBatch commits the selected paths to the user's own copy of their
// repository as a single commit. Pending markers are cleared only after the
// commit is confirmed; on failure they are left for a retry.
func (s *Synchronizer) SubmitBatch(ctx context.Context, paths []string, message string) (*Submission, error) {
	if len(paths) == 0 {
		return nil, Validationf("submit", "nothing selected")
	}

	parsed := make([]*Path, 0, len(paths))
	for _, raw := range paths {
		p, err := parseOrFail("submit", raw)
		if err != nil {
			return nil, err
		}
		if !s.owns(p) {
			return nil, Validationf("submit", "%s belongs to %s", p, p.Owner)
		}
		if len(parsed) > 0 && p.Repo != parsed[0].Repo {
			return nil, Validationf("submit", "paths span repositories %s and %s", parsed[0].Repo, p.Repo)
		}
		parsed = append(parsed, p)
	}
	repoName := parsed[0].Repo

	files := make([]CommitFile, 0, len(paths))
	names := make([]string, 0, len(paths))
	for _, p := range parsed {
		content, err := s.encodeForCommit(p)
		if err != nil {
			return nil, err
		}
		files = append(files, CommitFile{Path: p.RepoPath(), Content: content, Base64: true})
		names = append(names, p.FullFilename)
	}

	if strings.TrimSpace(message) == "" {
		message = "Update " + strings.Join(names, ", ")
	}
	now := s.clock.Now()
	sub := &Submission{
		ID:         s.ids.New(),
		Repository: s.session.User + "/" + repoName,
		Paths:      paths,
		Status:     SubmissionPending,
		CreatedAt:  now,
	}
	sub.Message = message + "\n\nBatch-Id: " + sub.ID
	if err := s.store.CreateSubmission(sub); err != nil {
		return nil, fmt.Errorf("recording submission: %w", err)
	}

	author := CommitAuthor{Name: s.session.User, Email: s.session.Email, Date: now}
	sha, err := s.remote.BatchCommit(ctx, s.session.User, repoName, files, sub.Message, author)
	if err != nil {
		sub.Status = SubmissionFailed
		if errors.Is(err, ErrUnknownOutcome) {
			sub.Status = SubmissionUnknown
		}
		if ferr := s.store.FinishSubmission(sub.ID, sub.Status, ""); ferr != nil {
			s.logger.Error("recording failed submission", "batch", sub.ID, "error", ferr)
		}
		s.logger.Error("submission failed", "batch", sub.ID, "status", string(sub.Status), "error", err)
		return sub, fmt.Errorf("submitting batch %s: %w", sub.ID, err)
	}

	sub.Status = SubmissionCommitted
	sub.CommitSHA = sha
	if err := s.store.FinishSubmission(sub.ID, sub.Status, sha); err != nil {
		return sub, fmt.Errorf("recording submission: %w", err)
	}
	for _, p := range parsed {
		if err := s.store.ClearPendingChange(p.String()); err != nil {
			return sub, fmt.Errorf("clearing pending marker for %s: %w", p, err)
		}
	}
	s.logger.Info("batch committed", "batch", sub.ID, "repo", sub.Repository, "sha", sha, "files", len(files))
	return sub, nil
}

func (s *Synchronizer) encodeForCommit(p *Path) (string, error) {
	if IsMediaPath(p.FullFilename) {
		m, err := s.store.GetMedia(p.String())
		if err != nil {
			return "", fmt.Errorf("reading media %s: %w", p, err)
		}
		if m == nil {
			return "", NewError(ErrNotFound, "submit", fmt.Errorf("media %s is not cached", p))
		}
		return base64.StdEncoding.EncodeToString(m.Data), nil
	}

	a, err := s.store.GetArticle(p.String())
	if err != nil {
		return "", fmt.Errorf("reading article %s: %w", p, err)
	}
	if a == nil {
		return "", NewError(ErrNotFound, "submit", fmt.Errorf("article %s is not cached", p))
	}
	return base64.StdEncoding.EncodeToString([]byte(a.Content)), nil
}

// Vote records the user's vote on another author's cached article and
// queues it for flushing. Votes on the user's own or uncached articles are
// ignored.
func (s *Synchronizer) Vote(rawPath string, value int) error {
	if err := ValidateVote(rawPath, value); err != nil {
		return err
	}
	p, err := parseOrFail("vote", rawPath)
	if err != nil {
		return err
	}
	if s.owns(p) {
		return nil
	}
	a, err := s.store.GetArticle(p.String())
	if err != nil {
		return fmt.Errorf("reading cached article: %w", err)
	}
	if a == nil {
		return nil
	}

	a.Vote = value
	if err := s.store.PutArticle(a); err != nil {
		return fmt.Errorf("saving vote: %w", err)
	}
	if err := s.store.PutVote(VoteRecord{Path: a.Path, Vote: value}); err != nil {
		return fmt.Errorf("queueing vote: %w", err)
	}
	return nil
}

// VoteIssueNumber is the issue of a work's repository that collects votes.
const VoteIssueNumber = 1

// FlushVotes drains the vote queue and posts it as a comment on the current
// work's vote issue. Votes are delivered at most once: the queue is cleared
// before posting and a failed post is reported, not retried.
func (s *Synchronizer) FlushVotes(ctx context.Context) ([]VoteRecord, error) {
	current, err := s.store.GetSetting(SettingCurrentRepo)
	if err != nil {
		return nil, fmt.Errorf("reading current work: %w", err)
	}
	owner, repo, ok := SplitRepository(string(current))
	if !ok {
		s.logger.Warn("no current work, votes kept", "current_repo", string(current))
		return nil, nil
	}

	votes, err := s.store.ClearVoting()
	if err != nil {
		return nil, fmt.Errorf("draining votes: %w", err)
	}
	if len(votes) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(votes)
	if err != nil {
		return votes, fmt.Errorf("encoding votes: %w", err)
	}
	if err := s.remote.CommentIssue(ctx, owner, repo, VoteIssueNumber, string(body)); err != nil {
		s.logger.Error("vote flush failed, votes dropped", "repo", owner+"/"+repo, "count", len(votes), "error", err)
		return votes, fmt.Errorf("posting votes: %w", err)
	}
	s.logger.Info("votes flushed", "repo", owner+"/"+repo, "count", len(votes))
	return votes, nil
}

// FlushVotesIfDue flushes votes when at least interval has passed since the
// last flush and reports whether it did.
func (s *Synchronizer) FlushVotesIfDue(ctx context.Context, interval time.Duration) (bool, error) {
	now := s.clock.Now()
	raw, err := s.store.GetSetting(SettingLastVoteFlush)
	if err != nil {
		return false, fmt.Errorf("reading last flush: %w", err)
	}
	if raw == nil {
		return false, s.store.PutSetting(SettingLastVoteFlush, []byte(now.Format(time.RFC3339)))
	}
	last, err := time.Parse(time.RFC3339, string(raw))
	if err == nil && now.Sub(last) < interval {
		return false, nil
	}

	_, ferr := s.FlushVotes(ctx)
	if err := s.store.PutSetting(SettingLastVoteFlush, []byte(now.Format(time.RFC3339))); err != nil {
		return true, fmt.Errorf("recording flush time: %w", err)
	}
	return true, ferr
}

// OpenWork makes owner/repo the current work. On the first visit the work's
// content directory is synced.
func (s *Synchronizer) OpenWork(ctx context.Context, owner, repo string) (*Creation, error) {
	repository := owner + "/" + repo
	c, err := s.store.GetCreation(repository)
	if err != nil {
		return nil, fmt.Errorf("reading work: %w", err)
	}
	first := c == nil
	if first {
		c = &Creation{Repository: repository, Name: repo}
	}
	c.LastRead = s.clock.Now()
	if err := s.store.PutCreation(c); err != nil {
		return nil, fmt.Errorf("saving work: %w", err)
	}

	if first {
		if _, err := s.SyncDirectory(ctx, owner, repo); err != nil {
			return nil, err
		}
	}

	if err := s.store.PutSetting(SettingCurrentRepo, []byte(repository)); err != nil {
		return nil, fmt.Errorf("recording current work: %w", err)
	}
	index := path.Join(repository, s.opts.ContentDir, "index.md")
	if err := s.store.PutSetting(SettingCurrentArticle, []byte(index)); err != nil {
		return nil, fmt.Errorf("recording current article: %w", err)
	}
	return c, nil
}

// RenameWork sets the display name of a known work.
func (s *Synchronizer) RenameWork(repository, name string) error {
	if err := ValidateWorkName(name); err != nil {
		return err
	}
	c, err := s.store.GetCreation(repository)
	if err != nil {
		return fmt.Errorf("reading work: %w", err)
	}
	if c == nil {
		return NewError(ErrNotFound, "rename work", fmt.Errorf("work %s has not been opened", repository))
	}
	c.Name = name
	return s.store.PutCreation(c)
}

// RepositoryTree returns the cached file tree of a work.
func (s *Synchronizer) RepositoryTree(repository string) (*TreeNode, error) {
	articles, err := s.store.ListArticles(repository)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	sort.Slice(articles, func(i, j int) bool { return articles[i].Path < articles[j].Path })
	return BuildTree(articles), nil
}
