package dip

import (
	"path"
	"time"
)

// VoteUnset is the vote of an article the user has not voted on.
const VoteUnset = -2

// Article is a cached markdown file, keyed by its full address.
type Article struct {
	Path        string
	Repo        string // owner/repo
	Owner       string
	Filename    string // full filename with extension
	Content     string
	Vote        int
	ScrollTop   int
	Translation string
}

// NewArticle returns an article record for p with no vote and no scroll position.
func NewArticle(p *Path, content string) *Article {
	return &Article{
		Path:      p.String(),
		Repo:      p.Repository(),
		Owner:     p.Owner,
		Filename:  p.FullFilename,
		Content:   content,
		Vote:      VoteUnset,
		ScrollTop: 0,
	}
}

// PendingChange marks a path whose local state has not been committed remotely.
type PendingChange struct {
	Path string
	Repo string
}

// LinkState is the lifecycle state of a cross-reference.
type LinkState int

const (
	LinkRequested LinkState = 1
	LinkApproved  LinkState = 2
)

func (s LinkState) String() string {
	switch s {
	case LinkRequested:
		return "requested"
	case LinkApproved:
		return "approved"
	default:
		return "unknown"
	}
}

// Link is a cross-reference from a local article to another author's article.
type Link struct {
	ID         int64
	Repo       string
	LocalPath  string
	RemotePath string
	State      LinkState
}

// MinMediaSize is the smallest blob accepted as valid media. Anything smaller
// is treated as a truncated download.
const MinMediaSize = 100

// Media is a cached binary blob.
type Media struct {
	Path        string
	Data        []byte
	ContentType string
}

// Valid reports whether the blob is large enough to be trusted.
func (m *Media) Valid() bool { return len(m.Data) >= MinMediaSize }

// MediaContentType derives the stored content type from the file extension.
func MediaContentType(p string) string {
	ext := path.Ext(p)
	if ext == "" {
		return ""
	}
	return ext[1:]
}

// VoteRecord is a vote waiting to be flushed to the work's aggregate.
type VoteRecord struct {
	Path string `json:"path"`
	Vote int    `json:"vote"`
}

// Creation is what is known locally about a collaborative work.
type Creation struct {
	Repository  string // owner/repo
	Name        string
	Description string
	Language    string
	Category    string
	Articles    int
	Authors     int
	Readers     int
	Likes       int
	Hates       int
	CreatedAt   string
	LastRead    time.Time
}

// SubmissionStatus tracks one batch submission.
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionCommitted SubmissionStatus = "committed"
	SubmissionFailed    SubmissionStatus = "failed"
	SubmissionUnknown   SubmissionStatus = "unknown"
)

// Submission records one attempt to commit a batch of pending paths.
// ID is the batch id embedded in the commit message.
type Submission struct {
	ID         string
	Repository string
	Paths      []string
	Message    string
	Status     SubmissionStatus
	CommitSHA  string
	CreatedAt  time.Time
	FinishedAt time.Time
}

// Setting keys used in the settings collection.
const (
	SettingCurrentRepo     = "current_repo"
	SettingCurrentArticle  = "current_article"
	SettingAlwaysRefresh   = "always_refresh"
	SettingToken           = "token"
	SettingLogin           = "login"
	SettingEmail           = "email"
	SettingLastVoteFlush   = "last_update"
	SettingSnapshotVersion = "snapshot_version"
)
