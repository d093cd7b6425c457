package dip

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// reservedNames are repository files that are never link targets.
var reservedNames = map[string]bool{
	"CONTRIBUTING.md": true,
	"LICENSE.md":      true,
	"DIPCP.md":        true,
}

var markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)

type span struct{ start, end int }

func linkSpans(text string) []span {
	var out []span
	for _, loc := range markdownLinkRe.FindAllStringIndex(text, -1) {
		out = append(out, span{loc[0], loc[1]})
	}
	return out
}

func insideAny(start, end int, spans []span) bool {
	for _, s := range spans {
		if start >= s.start && end <= s.end {
			return true
		}
	}
	return false
}

// replaceOutsideLinks replaces up to limit occurrences of word that are not
// inside a markdown link with replacement; limit < 0 replaces all. It
// returns the new text and the number of replacements.
func replaceOutsideLinks(text, word, replacement string, limit int) (string, int) {
	if word == "" {
		return text, 0
	}
	spans := linkSpans(text)
	var hits []span
	for i := 0; i <= len(text)-len(word); {
		j := strings.Index(text[i:], word)
		if j < 0 {
			break
		}
		start := i + j
		end := start + len(word)
		if !insideAny(start, end, spans) {
			hits = append(hits, span{start, end})
			if limit >= 0 && len(hits) == limit {
				break
			}
		}
		i = end
	}

	// Back to front so earlier offsets stay valid.
	for k := len(hits) - 1; k >= 0; k-- {
		text = text[:hits[k].start] + replacement + text[hits[k].end:]
	}
	return text, len(hits)
}

// NoticeKind distinguishes the two kinds of protocol issues.
type NoticeKind int

const (
	NoticeLinkRequest NoticeKind = iota + 1
	NoticeResult
)

// Notice is an open protocol issue in one of the user's repositories.
type Notice struct {
	Kind  NoticeKind
	Owner string
	Repo  string
	Issue *Issue
}

// Linker turns article mentions into links and runs the link request
// protocol between authors.
type Linker struct {
	sync    *Synchronizer
	chooser Chooser

	mu         sync.Mutex
	selections map[string]string // filename -> chosen path, for this session
}

// NewLinker creates a Linker. chooser may be nil, in which case ambiguous
// names are left alone.
func NewLinker(s *Synchronizer, chooser Chooser) *Linker {
	return &Linker{
		sync:       s,
		chooser:    chooser,
		selections: make(map[string]string),
	}
}

// Linkify replaces plain mentions of other articles in the same work with
// markdown links. repoScope is the work's owner/repo; every author's copy of
// that repository is in scope. Text already inside a link is never touched.
func (l *Linker) Linkify(content, currentPath, repoScope string) (string, error) {
	_, scopeRepo, ok := SplitRepository(repoScope)
	if !ok {
		return "", Validationf("linkify", "invalid work %q", repoScope)
	}
	var currentName string
	if cur := ParsePath(currentPath); cur != nil {
		currentName = cur.Filename
	}

	articles, err := l.sync.store.ListArticles("")
	if err != nil {
		return "", fmt.Errorf("listing articles: %w", err)
	}
	groups := make(map[string][]*Path)
	for _, a := range articles {
		p := ParsePath(a.Path)
		if p == nil || p.Repo != scopeRepo || !strings.EqualFold(p.Extension, "md") {
			continue
		}
		groups[p.FullFilename] = append(groups[p.FullFilename], p)
	}

	// Longest names first, so a short name inside a longer one is already
	// covered by a link when its turn comes.
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	result := content
	for _, full := range names {
		candidates := groups[full]
		name := candidates[0].Filename
		if name == currentName || !strings.Contains(result, name) {
			continue
		}
		target, err := l.pick(full, name, candidates)
		if err != nil {
			return "", err
		}
		if target == nil {
			continue
		}
		link := "[" + name + "](" + target.String() + ")"
		result, _ = replaceOutsideLinks(result, name, link, -1)
	}
	return result, nil
}

// pick chooses the link target among same-named candidates: the user's own
// article, else the only other one, else the session's earlier choice,
// else whatever the chooser says.
func (l *Linker) pick(full, name string, candidates []*Path) (*Path, error) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].String() < candidates[j].String() })

	var others []*Path
	for _, c := range candidates {
		if l.sync.owns(c) {
			return c, nil
		}
		others = append(others, c)
	}
	if len(others) == 1 {
		return others[0], nil
	}

	l.mu.Lock()
	prev := l.selections[full]
	l.mu.Unlock()
	for _, c := range others {
		if c.String() == prev {
			return c, nil
		}
	}

	if l.chooser == nil {
		return nil, nil
	}
	paths := make([]string, len(others))
	for i, c := range others {
		paths[i] = c.String()
	}
	choice, err := l.chooser.Choose(name, paths)
	if err != nil {
		return nil, fmt.Errorf("choosing link for %s: %w", name, err)
	}
	if choice == "" {
		return nil, nil
	}
	for _, c := range others {
		if c.String() == choice {
			l.mu.Lock()
			l.selections[full] = choice
			l.mu.Unlock()
			return c, nil
		}
	}
	return nil, Validationf("linkify", "%q is not a candidate for %s", choice, name)
}

// LinkCandidates lists the other authors' articles in the same work that
// localPath could request a link from.
func (l *Linker) LinkCandidates(localPath string) ([]string, error) {
	lp, err := parseOrFail("link candidates", localPath)
	if err != nil {
		return nil, err
	}
	articles, err := l.sync.store.ListArticles("")
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	links, err := l.sync.store.ListLinks("")
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	linked := make(map[string]bool)
	for _, ln := range links {
		if ln.LocalPath == lp.String() {
			linked[ln.RemotePath] = true
		}
	}

	var out []string
	for _, a := range articles {
		p := ParsePath(a.Path)
		if p == nil || p.Repo != lp.Repo || l.sync.owns(p) {
			continue
		}
		if reservedNames[p.FullFilename] || p.String() == lp.String() || linked[p.String()] || l.sync.ignored(p.RepoPath()) {
			continue
		}
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out, nil
}

// RequestLink asks the owner of remotePath to link it to localPath by
// opening a "Link Request:" issue in the target repository, and records the
// request locally.
func (l *Linker) RequestLink(ctx context.Context, localPath, remotePath string) (*Link, error) {
	lp, err := parseOrFail("request link", localPath)
	if err != nil {
		return nil, err
	}
	rp, err := parseOrFail("request link", remotePath)
	if err != nil {
		return nil, err
	}
	if l.sync.owns(rp) {
		return nil, Validationf("request link", "%s is your own article", rp)
	}

	pending, err := l.sync.store.IsPending(lp.String())
	if err != nil {
		return nil, fmt.Errorf("checking pending state: %w", err)
	}
	if pending {
		return nil, NewError(ErrConflictLikely, "request link", fmt.Errorf("%s has unsubmitted changes", lp)).
			WithHint("submit the file first")
	}
	existing, err := l.sync.store.FindLink(lp.String(), rp.String())
	if err != nil {
		return nil, fmt.Errorf("checking existing links: %w", err)
	}
	if existing != nil {
		return nil, Conflictf("request link", "a %s link from %s to %s already exists", existing.State, lp, rp)
	}

	info, err := l.sync.remote.GetRepository(ctx, rp.Owner, rp.Repo)
	if err != nil {
		return nil, fmt.Errorf("reading target repository: %w", err)
	}
	if !info.HasIssues {
		return nil, NewError(ErrPermissionDenied, "request link", fmt.Errorf("issues are disabled on %s", rp.Repository())).
			WithHint("ask the repository owner to enable issues")
	}

	user := l.sync.session.User
	body := FormatLinkRequest(LinkRequest{
		Applicant:   user,
		RequestFile: lp.InRepository(user, lp.Repo).String(),
		LinkToFile:  rp.String(),
	})
	if _, err := l.sync.remote.CreateIssue(ctx, rp.Owner, rp.Repo, TitleLinkRequest+" "+lp.FullFilename, body); err != nil {
		return nil, fmt.Errorf("opening link request: %w", err)
	}

	repo := lp.Repository()
	if cur, err := l.sync.store.GetSetting(SettingCurrentRepo); err == nil && len(cur) > 0 {
		repo = string(cur)
	}
	link, err := l.sync.store.AddLink(&Link{Repo: repo, LocalPath: lp.String(), RemotePath: rp.String(), State: LinkRequested})
	if err != nil {
		return nil, fmt.Errorf("recording link: %w", err)
	}
	l.sync.logger.Info("link requested", "local", lp.String(), "remote", rp.String())
	return link, nil
}

// ListNotices returns the open protocol issues of one of the user's repositories.
func (l *Linker) ListNotices(ctx context.Context, repository string) ([]*Notice, error) {
	owner, repo, ok := SplitRepository(repository)
	if !ok {
		return nil, Validationf("list notices", "invalid repository %q", repository)
	}
	issues, err := l.sync.remote.ListIssues(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("listing issues of %s: %w", repository, err)
	}
	var out []*Notice
	for _, is := range issues {
		switch {
		case strings.HasPrefix(is.Title, TitleLinkRequest):
			out = append(out, &Notice{Kind: NoticeLinkRequest, Owner: owner, Repo: repo, Issue: is})
		case strings.HasPrefix(is.Title, TitleApplicationResult):
			out = append(out, &Notice{Kind: NoticeResult, Owner: owner, Repo: repo, Issue: is})
		}
	}
	return out, nil
}

// RespondToLinkRequest accepts or rejects a link request addressed to the
// user. Accepting links the requester's article from the user's target
// article (first plain mention, else appended), bumps its version and marks
// it pending. A target that already carries the link is left as is, so an
// accept can be retried after a failed notification. Either way the
// requester is notified in their repository and the request is closed.
// Rejecting requires a reason.
func (l *Linker) RespondToLinkRequest(ctx context.Context, n *Notice, accept bool, reason string) error {
	if n.Kind != NoticeLinkRequest {
		return Validationf("respond to link request", "issue #%d is not a link request", n.Issue.Number)
	}
	req := ParseLinkRequest(n.Issue.Body)
	if req == nil {
		return Validationf("respond to link request", "issue #%d is missing file paths", n.Issue.Number)
	}
	requester, err := parseOrFail("respond to link request", req.RequestFile)
	if err != nil {
		return err
	}

	var body string
	if accept {
		if err := l.applyLink(ctx, req, requester); err != nil {
			return err
		}
		body = FormatAccepted(req.RequestFile)
	} else {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return Validationf("reject link request", "a reason is required")
		}
		body = FormatRejected(req.LinkToFile, reason)
	}

	if _, err := l.sync.remote.CreateIssue(ctx, requester.Owner, requester.Repo, TitleApplicationResult, body); err != nil {
		return fmt.Errorf("notifying %s: %w", requester.Repository(), err)
	}
	if err := l.sync.remote.CloseIssue(ctx, n.Owner, n.Repo, n.Issue.Number); err != nil {
		return fmt.Errorf("closing request #%d: %w", n.Issue.Number, err)
	}
	l.sync.logger.Info("link request answered", "issue", n.Issue.Number, "accepted", accept, "request_file", req.RequestFile)
	return nil
}

func (l *Linker) applyLink(ctx context.Context, req *LinkRequest, requester *Path) error {
	target, err := parseOrFail("accept link request", req.LinkToFile)
	if err != nil {
		return err
	}
	if !l.sync.owns(target) {
		return Validationf("accept link request", "%s is not your article", target)
	}
	article, err := l.sync.ReadOrDownload(ctx, target.String())
	if err != nil {
		return fmt.Errorf("loading %s: %w", target, err)
	}

	link := "[" + requester.Filename + "](" + req.RequestFile + ")"
	meta := ParseArticleMetadata(article.Content)
	body, commentary, _ := SplitCommentary(meta.Content)
	if strings.Contains(body, link) {
		// Left by an earlier accept whose notification failed.
		l.sync.logger.Info("link already in place", "path", target.String(), "request_file", req.RequestFile)
		return nil
	}

	updated, n := replaceOutsideLinks(body, requester.Filename, link, 1)
	if n == 0 {
		if updated = strings.TrimSpace(body); updated != "" {
			updated += "\n\n" + link
		} else {
			updated = link
		}
	}

	penName := meta.PenName
	if penName == "" {
		penName = l.sync.session.User
	}
	content := BuildFullContent(meta, penName, updated, commentary, l.sync.clock.Now())
	if _, err := l.sync.store.SaveArticle(target.String(), content, false); err != nil {
		return fmt.Errorf("saving %s: %w", target, err)
	}
	return l.sync.store.RecordPendingChange(target.String())
}

// CloseFeedback closes an "Application result:" notice and applies it to
// the local link records. Accepted links become approved; rejected links are
// removed and their local paths returned for editing.
func (l *Linker) CloseFeedback(ctx context.Context, n *Notice) ([]string, error) {
	if n.Kind != NoticeResult {
		return nil, Validationf("close feedback", "issue #%d is not a result notice", n.Issue.Number)
	}
	if n.Issue.State == "" || n.Issue.State == "open" {
		if err := l.sync.remote.CloseIssue(ctx, n.Owner, n.Repo, n.Issue.Number); err != nil {
			return nil, fmt.Errorf("closing notice #%d: %w", n.Issue.Number, err)
		}
	}

	fb := ParseFeedback(n.Issue.Body)
	if fb == nil || fb.Path == "" {
		return nil, nil
	}
	links, err := l.matchingLinks(fb.Path)
	if err != nil {
		return nil, err
	}

	var edit []string
	for _, ln := range links {
		if fb.Accepted {
			if err := l.sync.store.UpdateLinkState(ln.ID, LinkApproved); err != nil {
				return nil, fmt.Errorf("approving link %d: %w", ln.ID, err)
			}
			continue
		}
		if err := l.sync.store.DeleteLink(ln.ID); err != nil {
			return nil, fmt.Errorf("removing link %d: %w", ln.ID, err)
		}
		edit = append(edit, ln.LocalPath)
	}
	return edit, nil
}

// matchingLinks finds the link records a feedback path refers to. Rejections
// name the target article; acceptances name the requesting article as it
// lives in the user's own repository.
func (l *Linker) matchingLinks(path string) ([]*Link, error) {
	byRemote, err := l.sync.store.ListLinksByRemotePath(path)
	if err != nil {
		return nil, fmt.Errorf("finding links: %w", err)
	}
	if len(byRemote) > 0 {
		return byRemote, nil
	}

	all, err := l.sync.store.ListLinks("")
	if err != nil {
		return nil, fmt.Errorf("finding links: %w", err)
	}
	var out []*Link
	for _, ln := range all {
		lp := ParsePath(ln.LocalPath)
		if lp != nil && lp.InRepository(l.sync.session.User, lp.Repo).String() == path {
			out = append(out, ln)
		}
	}
	return out, nil
}
