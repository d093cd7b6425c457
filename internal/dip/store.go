package dip

// PendingObserver is told about every pending-set mutation after it commits.
type PendingObserver func(path string, added bool)

// Store is the local cache. Lookups that miss return nil and no error.
// Engine failures are reported as ErrStorageUnavailable.
type Store interface {
	// Settings
	GetSetting(key string) ([]byte, error)
	PutSetting(key string, value []byte) error
	DeleteSetting(key string) error

	// Articles
	GetArticle(path string) (*Article, error)
	PutArticle(a *Article) error
	DeleteArticle(path string) error
	// ListArticles returns the cached articles of repo, or every article
	// when repo is empty.
	ListArticles(repo string) ([]*Article, error)
	// SaveArticle upserts content at path. A new record gets VoteUnset and
	// scroll position 0; an existing record keeps both unless reset is set.
	SaveArticle(path string, content string, reset bool) (*Article, error)

	// Pending changes. Both mutations are idempotent.
	RecordPendingChange(path string) error
	ClearPendingChange(path string) error
	IsPending(path string) (bool, error)
	ListPending(repo string) ([]*PendingChange, error)
	OnPendingChange(fn PendingObserver)

	// Links
	AddLink(l *Link) (*Link, error)
	FindLink(localPath, remotePath string) (*Link, error)
	ListLinks(repo string) ([]*Link, error)
	ListLinksByRemotePath(remotePath string) ([]*Link, error)
	UpdateLinkState(id int64, state LinkState) error
	DeleteLink(id int64) error

	// Media
	GetMedia(path string) (*Media, error)
	PutMedia(m *Media) error
	DeleteMedia(path string) error

	// Votes
	PutVote(v VoteRecord) error
	// ClearVoting returns every queued vote and empties the queue.
	ClearVoting() ([]VoteRecord, error)

	// Creations
	PutCreation(c *Creation) error
	GetCreation(repository string) (*Creation, error)
	GetCreationByName(name string) (*Creation, error)
	// ListCreations returns works ordered by LastRead, most recent first.
	ListCreations() ([]*Creation, error)

	// Submissions
	CreateSubmission(s *Submission) error
	FinishSubmission(id string, status SubmissionStatus, sha string) error
	ListSubmissions(limit int) ([]*Submission, error)

	// ClearAll empties every collection in one transaction.
	ClearAll() error

	// CheckMigrations verifies the schema is current.
	CheckMigrations() error
	// BackupTo writes a consistent copy of the cache to destPath.
	BackupTo(destPath string) error
	Close() error
}
