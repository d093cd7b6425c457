package dip

import (
	"context"
	"time"
)

// EntryType distinguishes files from directories in a remote listing.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

// RemoteEntry is one item of a remote directory listing. Path is relative to
// the repository root.
type RemoteEntry struct {
	Name string
	Path string
	Type EntryType
}

// CommitFile is one file of a batch commit. Path is relative to the
// repository root. When Base64 is false the gateway encodes Content itself.
type CommitFile struct {
	Path    string
	Content string
	Base64  bool
}

// CommitAuthor is the identity written as author and committer.
type CommitAuthor struct {
	Name  string
	Email string
	Date  time.Time
}

// RepositoryInfo is the subset of repository settings this tool relies on.
type RepositoryInfo struct {
	Owner         string
	Name          string
	DefaultBranch string
	HasIssues     bool
}

// Issue is a discussion item on the remote host.
type Issue struct {
	Number int
	Title  string
	Body   string
	Author string
	State  string
}

// User is the authenticated remote account.
type User struct {
	Login string
	Name  string
	Email string
}

// Remote is the gateway to the remote git host.
type Remote interface {
	// FetchRaw reads a file through the raw-content endpoint. It does not retry.
	FetchRaw(ctx context.Context, path string) (string, error)
	// FetchRawBytes is FetchRaw for binary content.
	FetchRawBytes(ctx context.Context, path string) ([]byte, error)
	// ListDirectory lists one directory through the structured API.
	ListDirectory(ctx context.Context, owner, repo, dir string) ([]RemoteEntry, error)
	// BatchCommit writes files as one commit on the branch tip and returns the
	// new commit sha. The ref moves only after every object exists.
	BatchCommit(ctx context.Context, owner, repo string, files []CommitFile, message string, author CommitAuthor) (string, error)

	GetRepository(ctx context.Context, owner, repo string) (*RepositoryInfo, error)
	CurrentUser(ctx context.Context) (*User, error)

	// ListIssues returns open issues, newest first.
	ListIssues(ctx context.Context, owner, repo string) ([]*Issue, error)
	CreateIssue(ctx context.Context, owner, repo, title, body string) (*Issue, error)
	CloseIssue(ctx context.Context, owner, repo string, number int) error
	CommentIssue(ctx context.Context, owner, repo string, number int, body string) error
}

// Chooser resolves an ambiguous link target. It is given the display name
// and the candidate paths and returns the chosen path, or "" to skip.
type Chooser interface {
	Choose(name string, candidates []string) (string, error)
}

// Matcher reports whether a repository-relative path should be skipped.
type Matcher interface {
	Match(relativePath string) bool
}
