package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"dipcp-go/internal/database/migrations"
	"dipcp-go/internal/dip"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase is the local cache, stored in SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string

	mu        sync.RWMutex
	observers []dip.PendingObserver
}

// NewSQLiteDatabase opens the cache at path and brings its schema up to date.
// path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, unavailable("open cache", err)
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens a SQLite connection configured for the cache.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, unavailable("open cache", err)
	}
	// One connection: an in-memory database exists per connection, and the
	// cache never needs concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, unavailable("open cache", fmt.Errorf("enabling foreign keys: %w", err))
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, unavailable("open cache", fmt.Errorf("setting busy timeout: %w", err))
	}
	return db, nil
}

func unavailable(op string, err error) error {
	return dip.NewError(dip.ErrStorageUnavailable, op, err)
}

// Settings

func (s *SQLiteDatabase) GetSetting(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("get setting", err)
	}
	return value, nil
}

func (s *SQLiteDatabase) PutSetting(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return unavailable("put setting", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteSetting(key string) error {
	if _, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key); err != nil {
		return unavailable("delete setting", err)
	}
	return nil
}

// Articles

const articleColumns = "path, repo, owner, filename, content, vote, scroll_top, translation"

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (*dip.Article, error) {
	var a dip.Article
	err := row.Scan(&a.Path, &a.Repo, &a.Owner, &a.Filename, &a.Content, &a.Vote, &a.ScrollTop, &a.Translation)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteDatabase) GetArticle(path string) (*dip.Article, error) {
	a, err := scanArticle(s.db.QueryRow("SELECT "+articleColumns+" FROM files WHERE path = ?", path))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("get article", err)
	}
	return a, nil
}

func (s *SQLiteDatabase) PutArticle(a *dip.Article) error {
	_, err := s.db.Exec(`INSERT INTO files (`+articleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			repo = excluded.repo,
			owner = excluded.owner,
			filename = excluded.filename,
			content = excluded.content,
			vote = excluded.vote,
			scroll_top = excluded.scroll_top,
			translation = excluded.translation`,
		a.Path, a.Repo, a.Owner, a.Filename, a.Content, a.Vote, a.ScrollTop, a.Translation)
	if err != nil {
		return unavailable("put article", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteArticle(path string) error {
	if _, err := s.db.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return unavailable("delete article", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListArticles(repo string) ([]*dip.Article, error) {
	query := "SELECT " + articleColumns + " FROM files"
	var args []any
	if repo != "" {
		query += " WHERE repo = ?"
		args = append(args, repo)
	}
	query += " ORDER BY path"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, unavailable("list articles", err)
	}
	defer rows.Close()

	var out []*dip.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, unavailable("list articles", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list articles", err)
	}
	return out, nil
}

func (s *SQLiteDatabase) SaveArticle(path string, content string, reset bool) (*dip.Article, error) {
	p := dip.ParsePath(path)
	if p == nil {
		return nil, dip.Validationf("save article", "invalid article path %q", path)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, unavailable("save article", fmt.Errorf("starting transaction: %w", err))
	}
	defer tx.Rollback()

	a, err := scanArticle(tx.QueryRow("SELECT "+articleColumns+" FROM files WHERE path = ?", p.String()))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		a = dip.NewArticle(p, content)
	case err != nil:
		return nil, unavailable("save article", err)
	default:
		a.Content = content
		if reset {
			a.Vote = dip.VoteUnset
			a.ScrollTop = 0
		}
	}

	_, err = tx.Exec(`INSERT INTO files (`+articleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET content = excluded.content, vote = excluded.vote, scroll_top = excluded.scroll_top`,
		a.Path, a.Repo, a.Owner, a.Filename, a.Content, a.Vote, a.ScrollTop, a.Translation)
	if err != nil {
		return nil, unavailable("save article", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("save article", fmt.Errorf("committing transaction: %w", err))
	}
	return a, nil
}

// Pending changes

// OnPendingChange registers fn to be told about pending-set mutations.
func (s *SQLiteDatabase) OnPendingChange(fn dip.PendingObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *SQLiteDatabase) notify(path string, added bool) {
	s.mu.RLock()
	observers := append([]dip.PendingObserver(nil), s.observers...)
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(path, added)
	}
}

func (s *SQLiteDatabase) RecordPendingChange(path string) error {
	p := dip.ParsePath(path)
	if p == nil {
		return dip.Validationf("record pending change", "invalid path %q", path)
	}
	res, err := s.db.Exec("INSERT OR IGNORE INTO pending (path, repo) VALUES (?, ?)", p.String(), p.Repository())
	if err != nil {
		return unavailable("record pending change", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(p.String(), true)
	}
	return nil
}

func (s *SQLiteDatabase) ClearPendingChange(path string) error {
	res, err := s.db.Exec("DELETE FROM pending WHERE path = ?", path)
	if err != nil {
		return unavailable("clear pending change", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(path, false)
	}
	return nil
}

func (s *SQLiteDatabase) IsPending(path string) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM pending WHERE path = ?", path).Scan(&n); err != nil {
		return false, unavailable("check pending change", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) ListPending(repo string) ([]*dip.PendingChange, error) {
	query := "SELECT path, repo FROM pending"
	var args []any
	if repo != "" {
		query += " WHERE repo = ?"
		args = append(args, repo)
	}
	query += " ORDER BY path"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, unavailable("list pending changes", err)
	}
	defer rows.Close()

	var out []*dip.PendingChange
	for rows.Next() {
		var pc dip.PendingChange
		if err := rows.Scan(&pc.Path, &pc.Repo); err != nil {
			return nil, unavailable("list pending changes", err)
		}
		out = append(out, &pc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list pending changes", err)
	}
	return out, nil
}

// Links

func (s *SQLiteDatabase) AddLink(l *dip.Link) (*dip.Link, error) {
	res, err := s.db.Exec("INSERT INTO links (repo, local_path, remote_path, state) VALUES (?, ?, ?, ?)",
		l.Repo, l.LocalPath, l.RemotePath, int(l.State))
	if err != nil {
		return nil, unavailable("add link", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, unavailable("add link", err)
	}
	out := *l
	out.ID = id
	return &out, nil
}

func (s *SQLiteDatabase) FindLink(localPath, remotePath string) (*dip.Link, error) {
	var l dip.Link
	err := s.db.QueryRow("SELECT id, repo, local_path, remote_path, state FROM links WHERE local_path = ? AND remote_path = ?",
		localPath, remotePath).Scan(&l.ID, &l.Repo, &l.LocalPath, &l.RemotePath, &l.State)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("find link", err)
	}
	return &l, nil
}

func (s *SQLiteDatabase) queryLinks(op, where string, arg string) ([]*dip.Link, error) {
	query := "SELECT id, repo, local_path, remote_path, state FROM links"
	var args []any
	if where != "" {
		query += " WHERE " + where + " = ?"
		args = append(args, arg)
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var out []*dip.Link
	for rows.Next() {
		var l dip.Link
		if err := rows.Scan(&l.ID, &l.Repo, &l.LocalPath, &l.RemotePath, &l.State); err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

func (s *SQLiteDatabase) ListLinks(repo string) ([]*dip.Link, error) {
	if repo == "" {
		return s.queryLinks("list links", "", "")
	}
	return s.queryLinks("list links", "repo", repo)
}

func (s *SQLiteDatabase) ListLinksByRemotePath(remotePath string) ([]*dip.Link, error) {
	return s.queryLinks("list links", "remote_path", remotePath)
}

func (s *SQLiteDatabase) UpdateLinkState(id int64, state dip.LinkState) error {
	if _, err := s.db.Exec("UPDATE links SET state = ? WHERE id = ?", int(state), id); err != nil {
		return unavailable("update link", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteLink(id int64) error {
	if _, err := s.db.Exec("DELETE FROM links WHERE id = ?", id); err != nil {
		return unavailable("delete link", err)
	}
	return nil
}

// Media

func (s *SQLiteDatabase) GetMedia(path string) (*dip.Media, error) {
	var m dip.Media
	err := s.db.QueryRow("SELECT path, data, content_type FROM medias WHERE path = ?", path).
		Scan(&m.Path, &m.Data, &m.ContentType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("get media", err)
	}
	return &m, nil
}

func (s *SQLiteDatabase) PutMedia(m *dip.Media) error {
	data := m.Data
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.Exec(`INSERT INTO medias (path, data, content_type) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, content_type = excluded.content_type`,
		m.Path, data, m.ContentType)
	if err != nil {
		return unavailable("put media", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteMedia(path string) error {
	if _, err := s.db.Exec("DELETE FROM medias WHERE path = ?", path); err != nil {
		return unavailable("delete media", err)
	}
	return nil
}

// Votes

func (s *SQLiteDatabase) PutVote(v dip.VoteRecord) error {
	_, err := s.db.Exec(`INSERT INTO voting (path, vote) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET vote = excluded.vote`, v.Path, v.Vote)
	if err != nil {
		return unavailable("put vote", err)
	}
	return nil
}

func (s *SQLiteDatabase) ClearVoting() ([]dip.VoteRecord, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, unavailable("clear voting", fmt.Errorf("starting transaction: %w", err))
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT path, vote FROM voting ORDER BY path")
	if err != nil {
		return nil, unavailable("clear voting", err)
	}
	var votes []dip.VoteRecord
	for rows.Next() {
		var v dip.VoteRecord
		if err := rows.Scan(&v.Path, &v.Vote); err != nil {
			rows.Close()
			return nil, unavailable("clear voting", err)
		}
		votes = append(votes, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, unavailable("clear voting", err)
	}

	if _, err := tx.Exec("DELETE FROM voting"); err != nil {
		return nil, unavailable("clear voting", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("clear voting", fmt.Errorf("committing transaction: %w", err))
	}
	return votes, nil
}

// Creations

const creationColumns = "repository, name, description, language, category, articles, authors, readers, likes, hates, created_at, last_read"

func scanCreation(row scanner) (*dip.Creation, error) {
	var c dip.Creation
	err := row.Scan(&c.Repository, &c.Name, &c.Description, &c.Language, &c.Category,
		&c.Articles, &c.Authors, &c.Readers, &c.Likes, &c.Hates, &c.CreatedAt, &c.LastRead)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteDatabase) PutCreation(c *dip.Creation) error {
	_, err := s.db.Exec(`INSERT INTO creations (`+creationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repository) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			language = excluded.language,
			category = excluded.category,
			articles = excluded.articles,
			authors = excluded.authors,
			readers = excluded.readers,
			likes = excluded.likes,
			hates = excluded.hates,
			created_at = excluded.created_at,
			last_read = excluded.last_read`,
		c.Repository, c.Name, c.Description, c.Language, c.Category,
		c.Articles, c.Authors, c.Readers, c.Likes, c.Hates, c.CreatedAt, c.LastRead.UTC())
	if err != nil {
		return unavailable("put creation", err)
	}
	return nil
}

func (s *SQLiteDatabase) getCreation(op, column, value string) (*dip.Creation, error) {
	c, err := scanCreation(s.db.QueryRow("SELECT "+creationColumns+" FROM creations WHERE "+column+" = ? ORDER BY last_read DESC LIMIT 1", value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable(op, err)
	}
	return c, nil
}

func (s *SQLiteDatabase) GetCreation(repository string) (*dip.Creation, error) {
	return s.getCreation("get creation", "repository", repository)
}

func (s *SQLiteDatabase) GetCreationByName(name string) (*dip.Creation, error) {
	return s.getCreation("get creation", "name", name)
}

func (s *SQLiteDatabase) ListCreations() ([]*dip.Creation, error) {
	rows, err := s.db.Query("SELECT " + creationColumns + " FROM creations ORDER BY last_read DESC, repository")
	if err != nil {
		return nil, unavailable("list creations", err)
	}
	defer rows.Close()

	var out []*dip.Creation
	for rows.Next() {
		c, err := scanCreation(rows)
		if err != nil {
			return nil, unavailable("list creations", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list creations", err)
	}
	return out, nil
}

// Submissions

func (s *SQLiteDatabase) CreateSubmission(sub *dip.Submission) error {
	paths, err := json.Marshal(sub.Paths)
	if err != nil {
		return fmt.Errorf("encoding submission paths: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO submissions (id, repository, paths, message, status, commit_sha, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Repository, string(paths), sub.Message, string(sub.Status), sub.CommitSHA, sub.CreatedAt.UTC())
	if err != nil {
		return unavailable("create submission", err)
	}
	return nil
}

func (s *SQLiteDatabase) FinishSubmission(id string, status dip.SubmissionStatus, sha string) error {
	res, err := s.db.Exec("UPDATE submissions SET status = ?, commit_sha = ?, finished_at = ? WHERE id = ?",
		string(status), sha, time.Now().UTC(), id)
	if err != nil {
		return unavailable("finish submission", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dip.NewError(dip.ErrNotFound, "finish submission", fmt.Errorf("submission %s", id))
	}
	return nil
}

// ListSubmissions returns the most recent submissions first. limit <= 0 means no limit.
func (s *SQLiteDatabase) ListSubmissions(limit int) ([]*dip.Submission, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT id, repository, paths, message, status, commit_sha, created_at, finished_at
		FROM submissions ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("list submissions", err)
	}
	defer rows.Close()

	var out []*dip.Submission
	for rows.Next() {
		var (
			sub      dip.Submission
			paths    string
			status   string
			finished sql.NullTime
		)
		if err := rows.Scan(&sub.ID, &sub.Repository, &paths, &sub.Message, &status, &sub.CommitSHA, &sub.CreatedAt, &finished); err != nil {
			return nil, unavailable("list submissions", err)
		}
		if err := json.Unmarshal([]byte(paths), &sub.Paths); err != nil {
			return nil, fmt.Errorf("decoding submission %s paths: %w", sub.ID, err)
		}
		sub.Status = dip.SubmissionStatus(status)
		if finished.Valid {
			sub.FinishedAt = finished.Time
		}
		out = append(out, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list submissions", err)
	}
	return out, nil
}

// ClearAll empties every collection in one transaction. Observers are told
// about each pending path that was dropped.
func (s *SQLiteDatabase) ClearAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return unavailable("clear cache", fmt.Errorf("starting transaction: %w", err))
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT path FROM pending")
	if err != nil {
		return unavailable("clear cache", err)
	}
	var dropped []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return unavailable("clear cache", err)
		}
		dropped = append(dropped, p)
	}
	rows.Close()

	for _, table := range []string{"settings", "files", "pending", "links", "medias", "voting", "creations", "submissions"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return unavailable("clear cache", fmt.Errorf("clearing %s: %w", table, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("clear cache", fmt.Errorf("committing transaction: %w", err))
	}

	for _, p := range dropped {
		s.notify(p, false)
	}
	return nil
}

// Path returns the file the cache lives in.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the cache schema is up to date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a consistent copy of the cache to destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return unavailable("back up cache", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ dip.Store = (*SQLiteDatabase)(nil)
