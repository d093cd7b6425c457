package testutil

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"

	"dipcp-go/internal/dip"
)

// Operation names accepted by FakeRemote.FailOn and CallCount.
const (
	OpFetchRaw      = "FetchRaw"
	OpListDirectory = "ListDirectory"
	OpBatchCommit   = "BatchCommit"
	OpGetRepository = "GetRepository"
	OpCurrentUser   = "CurrentUser"
	OpListIssues    = "ListIssues"
	OpCreateIssue   = "CreateIssue"
	OpCloseIssue    = "CloseIssue"
	OpCommentIssue  = "CommentIssue"
)

// FakeCommit is a commit accepted by FakeRemote.
type FakeCommit struct {
	Owner   string
	Repo    string
	Files   map[string]string // repository-relative path -> decoded content
	Message string
	Author  dip.CommitAuthor
	SHA     string
}

// FakeComment is a comment posted through FakeRemote.
type FakeComment struct {
	Owner  string
	Repo   string
	Number int
	Body   string
}

// FakeRemote is an in-memory dip.Remote. Files are keyed by their full
// owner/repo/... address; issues by owner/repo. Safe for concurrent use.
type FakeRemote struct {
	mu       sync.Mutex
	user     dip.User
	files    map[string][]byte
	repos    map[string]*dip.RepositoryInfo
	issues   map[string][]*dip.Issue
	nextNum  map[string]int
	commits  []FakeCommit
	comments []FakeComment
	failures map[string]error
	calls    map[string]int
	onFetch  func(path string)
}

var _ dip.Remote = (*FakeRemote)(nil)

// NewFakeRemote creates an empty remote authenticated as login.
func NewFakeRemote(login string) *FakeRemote {
	return &FakeRemote{
		user:     dip.User{Login: login, Name: login},
		files:    make(map[string][]byte),
		repos:    make(map[string]*dip.RepositoryInfo),
		issues:   make(map[string][]*dip.Issue),
		nextNum:  make(map[string]int),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// AddFile stores a file at its full address.
func (r *FakeRemote) AddFile(path, content string) {
	r.AddBytes(path, []byte(content))
}

// AddBytes stores a binary file at its full address.
func (r *FakeRemote) AddBytes(path string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = data
}

// File returns the content stored at path and whether it exists.
func (r *FakeRemote) File(path string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[path]
	return string(data), ok
}

// SetRepository overrides the settings of a repository. Unknown
// repositories report issues enabled on branch main.
func (r *FakeRemote) SetRepository(info dip.RepositoryInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repos[info.Owner+"/"+info.Name] = &info
}

// AddIssue opens an issue on owner/repo as author.
func (r *FakeRemote) AddIssue(owner, repo, title, body, author string) *dip.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addIssue(owner, repo, title, body, author)
}

func (r *FakeRemote) addIssue(owner, repo, title, body, author string) *dip.Issue {
	key := owner + "/" + repo
	r.nextNum[key]++
	is := &dip.Issue{Number: r.nextNum[key], Title: title, Body: body, Author: author, State: "open"}
	r.issues[key] = append(r.issues[key], is)
	return is
}

// Issues returns every issue of owner/repo, open or closed, oldest first.
func (r *FakeRemote) Issues(owner, repo string) []dip.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dip.Issue
	for _, is := range r.issues[owner+"/"+repo] {
		out = append(out, *is)
	}
	return out
}

// Commits returns the accepted commits in order.
func (r *FakeRemote) Commits() []FakeCommit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FakeCommit(nil), r.commits...)
}

// Comments returns the posted comments in order.
func (r *FakeRemote) Comments() []FakeComment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FakeComment(nil), r.comments...)
}

// FailOn makes every later call of op return err. A nil err clears it.
func (r *FakeRemote) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, op)
		return
	}
	r.failures[op] = err
}

// OnFetch installs fn to run at the start of every raw fetch, outside the
// remote's lock, so tests can observe or hold concurrent downloads.
func (r *FakeRemote) OnFetch(fn func(path string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFetch = fn
}

// CallCount reports how many times op was called.
func (r *FakeRemote) CallCount(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// enter records a call and returns the injected failure, if any. The caller
// must hold r.mu.
func (r *FakeRemote) enter(op string) error {
	r.calls[op]++
	return r.failures[op]
}

func (r *FakeRemote) FetchRaw(ctx context.Context, path string) (string, error) {
	data, err := r.fetch(ctx, OpFetchRaw, path)
	return string(data), err
}

func (r *FakeRemote) FetchRawBytes(ctx context.Context, path string) ([]byte, error) {
	return r.fetch(ctx, OpFetchRaw, path)
}

func (r *FakeRemote) fetch(ctx context.Context, op, path string) ([]byte, error) {
	r.mu.Lock()
	hook := r.onFetch
	r.mu.Unlock()
	if hook != nil {
		hook(path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(op); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, dip.NewError(dip.ErrTransientNetwork, "fetch raw", err)
	}
	data, ok := r.files[path]
	if !ok {
		return nil, dip.NewError(dip.ErrNotFound, "fetch raw", fmt.Errorf("%s", path))
	}
	return append([]byte(nil), data...), nil
}

func (r *FakeRemote) ListDirectory(_ context.Context, owner, repo, dir string) ([]dip.RemoteEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpListDirectory); err != nil {
		return nil, err
	}

	prefix := owner + "/" + repo + "/"
	if dir = strings.Trim(dir, "/"); dir != "" {
		prefix += dir + "/"
	}
	seen := make(map[string]bool)
	var out []dip.RemoteEntry
	for full := range r.files {
		rest, ok := strings.CutPrefix(full, prefix)
		if !ok {
			continue
		}
		name, _, isDir := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		e := dip.RemoteEntry{Name: name, Path: strings.TrimPrefix(full, owner+"/"+repo+"/"), Type: dip.EntryFile}
		if isDir {
			e.Path = strings.TrimPrefix(prefix+name, owner+"/"+repo+"/")
			e.Type = dip.EntryDir
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, dip.NewError(dip.ErrNotFound, "list directory", fmt.Errorf("%s", prefix))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *FakeRemote) BatchCommit(_ context.Context, owner, repo string, files []dip.CommitFile, message string, author dip.CommitAuthor) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpBatchCommit); err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", dip.Validationf("batch commit", "no files")
	}

	decoded := make(map[string]string, len(files))
	for _, f := range files {
		content := f.Content
		if f.Base64 {
			data, err := base64.StdEncoding.DecodeString(f.Content)
			if err != nil {
				return "", dip.Validationf("batch commit", "bad base64 for %s: %v", f.Path, err)
			}
			content = string(data)
		}
		decoded[f.Path] = content
	}
	for p, content := range decoded {
		r.files[owner+"/"+repo+"/"+p] = []byte(content)
	}

	c := FakeCommit{
		Owner:   owner,
		Repo:    repo,
		Files:   decoded,
		Message: message,
		Author:  author,
		SHA:     fmt.Sprintf("sha-%d", len(r.commits)+1),
	}
	r.commits = append(r.commits, c)
	return c.SHA, nil
}

func (r *FakeRemote) GetRepository(_ context.Context, owner, repo string) (*dip.RepositoryInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpGetRepository); err != nil {
		return nil, err
	}
	if info, ok := r.repos[owner+"/"+repo]; ok {
		c := *info
		return &c, nil
	}
	return &dip.RepositoryInfo{Owner: owner, Name: repo, DefaultBranch: "main", HasIssues: true}, nil
}

func (r *FakeRemote) CurrentUser(context.Context) (*dip.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpCurrentUser); err != nil {
		return nil, err
	}
	u := r.user
	return &u, nil
}

func (r *FakeRemote) ListIssues(_ context.Context, owner, repo string) ([]*dip.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpListIssues); err != nil {
		return nil, err
	}
	all := r.issues[owner+"/"+repo]
	var out []*dip.Issue
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].State == "open" {
			c := *all[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *FakeRemote) CreateIssue(_ context.Context, owner, repo, title, body string) (*dip.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpCreateIssue); err != nil {
		return nil, err
	}
	c := *r.addIssue(owner, repo, title, body, r.user.Login)
	return &c, nil
}

func (r *FakeRemote) CloseIssue(_ context.Context, owner, repo string, number int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpCloseIssue); err != nil {
		return err
	}
	for _, is := range r.issues[owner+"/"+repo] {
		if is.Number == number {
			is.State = "closed"
			return nil
		}
	}
	return dip.NewError(dip.ErrNotFound, "close issue", fmt.Errorf("%s/%s#%d", owner, repo, number))
}

func (r *FakeRemote) CommentIssue(_ context.Context, owner, repo string, number int, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpCommentIssue); err != nil {
		return err
	}
	r.comments = append(r.comments, FakeComment{Owner: owner, Repo: repo, Number: number, Body: body})
	return nil
}
