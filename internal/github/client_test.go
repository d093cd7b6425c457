package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dipcp-go/internal/dip"
)

type recordingQuota struct {
	mu   sync.Mutex
	seen []int
}

func (q *recordingQuota) ObserveQuota(remaining int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seen = append(q.seen, remaining)
}

// newTestClient starts an httptest server serving mux and returns a client
// whose API and raw endpoints both point at it.
func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, *recordingQuota) {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	quota := &recordingQuota{}
	c, err := NewClient("test-token", Options{
		APIURL: srv.URL + "/",
		RawURL: srv.URL + "/raw",
		Branch: "main",
		Quota:  quota,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c, quota
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-RateLimit-Limit", "5000")
	w.Header().Set("X-RateLimit-Remaining", "4999")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func TestClient_FetchRaw(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /raw/alice/w/main/story/{file}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("file") {
		case "my chapter.md":
			fmt.Fprint(w, "pen_name:alice\nversion:1\nupdate_time:\ncreate_time:\nHello")
		case "broken.md":
			w.WriteHeader(http.StatusBadGateway)
		case "busy.md":
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	t.Run("escapes path segments", func(t *testing.T) {
		got, err := c.FetchRaw(ctx, "alice/w/story/my chapter.md")
		if err != nil {
			t.Fatalf("FetchRaw() error = %v", err)
		}
		if got != "pen_name:alice\nversion:1\nupdate_time:\ncreate_time:\nHello" {
			t.Errorf("FetchRaw() = %q", got)
		}
	})

	tests := []struct {
		name string
		path string
		want error
	}{
		{name: "missing file", path: "alice/w/story/none.md", want: dip.ErrNotFound},
		{name: "server error", path: "alice/w/story/broken.md", want: dip.ErrTransientNetwork},
		{name: "too many requests", path: "alice/w/story/busy.md", want: dip.ErrRateLimited},
		{name: "invalid path", path: "alice/none.md", want: dip.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.FetchRaw(ctx, tt.path)
			if !errors.Is(err, tt.want) {
				t.Errorf("FetchRaw() error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("rate limit carries retry after", func(t *testing.T) {
		_, err := c.FetchRaw(ctx, "alice/w/story/busy.md")
		var rl *dip.RateLimitError
		if !errors.As(err, &rl) {
			t.Fatalf("FetchRaw() error = %v, want *dip.RateLimitError", err)
		}
		if rl.RetryAfter != 30*time.Second {
			t.Errorf("RetryAfter = %v, want 30s", rl.RetryAfter)
		}
	})
}

// gitServer simulates the git data endpoints of one repository.
type gitServer struct {
	t *testing.T

	defaultBranch string
	branches      map[string]string // branch -> tip sha
	failBlob      string            // path whose blob creation is rejected with 403
	failRef       int               // status returned by the ref update, 0 for success

	blobs      atomic.Int32
	treeBody   map[string]any
	commitBody map[string]any
	refUpdates atomic.Int32
	refBody    map[string]any
	repoReads  atomic.Int32
}

func (g *gitServer) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/alice/w", func(w http.ResponseWriter, r *http.Request) {
		g.repoReads.Add(1)
		writeJSON(g.t, w, http.StatusOK, map[string]any{
			"name": "w", "owner": map[string]any{"login": "alice"},
			"default_branch": g.defaultBranch, "has_issues": true,
		})
	})
	mux.HandleFunc("GET /repos/alice/w/git/ref/heads/{branch}", func(w http.ResponseWriter, r *http.Request) {
		sha, ok := g.branches[r.PathValue("branch")]
		if !ok {
			writeJSON(g.t, w, http.StatusNotFound, map[string]any{"message": "Not Found"})
			return
		}
		writeJSON(g.t, w, http.StatusOK, map[string]any{
			"ref": "refs/heads/" + r.PathValue("branch"), "object": map[string]any{"sha": sha, "type": "commit"},
		})
	})
	mux.HandleFunc("GET /repos/alice/w/git/commits/{sha}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(g.t, w, http.StatusOK, map[string]any{"sha": r.PathValue("sha"), "tree": map[string]any{"sha": "base-tree"}})
	})
	mux.HandleFunc("POST /repos/alice/w/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content  string `json:"content"`
			Encoding string `json:"encoding"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Encoding != "base64" {
			g.t.Errorf("blob encoding = %q, want base64", body.Encoding)
		}
		if g.failBlob != "" && body.Content == g.failBlob {
			writeJSON(g.t, w, http.StatusForbidden, map[string]any{"message": "Resource not accessible by integration"})
			return
		}
		n := g.blobs.Add(1)
		writeJSON(g.t, w, http.StatusCreated, map[string]any{"sha": "blob-" + strconv.Itoa(int(n))})
	})
	mux.HandleFunc("POST /repos/alice/w/git/trees", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&g.treeBody)
		writeJSON(g.t, w, http.StatusCreated, map[string]any{"sha": "new-tree"})
	})
	mux.HandleFunc("POST /repos/alice/w/git/commits", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&g.commitBody)
		writeJSON(g.t, w, http.StatusCreated, map[string]any{"sha": "new-commit"})
	})
	mux.HandleFunc("PATCH /repos/alice/w/git/refs/heads/{branch}", func(w http.ResponseWriter, r *http.Request) {
		g.refUpdates.Add(1)
		if g.failRef != 0 {
			writeJSON(g.t, w, g.failRef, map[string]any{"message": "upstream failure"})
			return
		}
		json.NewDecoder(r.Body).Decode(&g.refBody)
		writeJSON(g.t, w, http.StatusOK, map[string]any{
			"ref": "refs/heads/" + r.PathValue("branch"), "object": map[string]any{"sha": "new-commit"},
		})
	})
	return mux
}

func newGitServer(t *testing.T) *gitServer {
	return &gitServer{t: t, defaultBranch: "main", branches: map[string]string{"main": "tip"}}
}

var testFiles = []dip.CommitFile{
	{Path: "story/a.md", Content: "YQ==", Base64: true},
	{Path: "story/b.md", Content: "b", Base64: false},
}

var testAuthor = dip.CommitAuthor{Name: "alice", Email: "alice@example.com", Date: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}

func TestClient_BatchCommit(t *testing.T) {
	t.Run("runs the full sequence", func(t *testing.T) {
		g := newGitServer(t)
		c, quota := newTestClient(t, g.mux())

		sha, err := c.BatchCommit(context.Background(), "alice", "w", testFiles, "Update a.md, b.md", testAuthor)
		if err != nil {
			t.Fatalf("BatchCommit() error = %v", err)
		}
		if sha != "new-commit" {
			t.Errorf("BatchCommit() = %q, want %q", sha, "new-commit")
		}
		if got := g.blobs.Load(); got != 2 {
			t.Errorf("blobs created = %d, want 2", got)
		}
		if g.treeBody["base_tree"] != "base-tree" {
			t.Errorf("base_tree = %v, want base-tree", g.treeBody["base_tree"])
		}
		entries, _ := g.treeBody["tree"].([]any)
		if len(entries) != 2 {
			t.Fatalf("tree entries = %d, want 2", len(entries))
		}
		first := entries[0].(map[string]any)
		if first["path"] != "story/a.md" || first["mode"] != "100644" || first["type"] != "blob" {
			t.Errorf("tree entry = %v", first)
		}
		parents, _ := g.commitBody["parents"].([]any)
		if len(parents) != 1 || parents[0] != "tip" {
			t.Errorf("parents = %v, want [tip]", parents)
		}
		if g.refBody["sha"] != "new-commit" || g.refBody["force"] != true {
			t.Errorf("ref update = %v, want sha new-commit with force", g.refBody)
		}
		if len(quota.seen) == 0 {
			t.Error("quota observer was never called")
		}
	})

	t.Run("falls back to the default branch", func(t *testing.T) {
		g := newGitServer(t)
		g.defaultBranch = "trunk"
		g.branches = map[string]string{"trunk": "trunk-tip"}
		c, _ := newTestClient(t, g.mux())

		if _, err := c.BatchCommit(context.Background(), "alice", "w", testFiles, "m", testAuthor); err != nil {
			t.Fatalf("BatchCommit() error = %v", err)
		}
		parents, _ := g.commitBody["parents"].([]any)
		if len(parents) != 1 || parents[0] != "trunk-tip" {
			t.Errorf("parents = %v, want [trunk-tip]", parents)
		}
	})

	t.Run("blob rejection aborts before the ref moves", func(t *testing.T) {
		g := newGitServer(t)
		g.failBlob = "Yg==" // base64 of "b"
		c, _ := newTestClient(t, g.mux())

		_, err := c.BatchCommit(context.Background(), "alice", "w", testFiles, "m", testAuthor)
		if !errors.Is(err, dip.ErrPermissionDenied) {
			t.Fatalf("BatchCommit() error = %v, want ErrPermissionDenied", err)
		}
		if n := g.refUpdates.Load(); n != 0 {
			t.Errorf("ref updates = %d, want 0", n)
		}
	})

	t.Run("ref update server error is an unknown outcome", func(t *testing.T) {
		g := newGitServer(t)
		g.failRef = http.StatusBadGateway
		c, _ := newTestClient(t, g.mux())

		_, err := c.BatchCommit(context.Background(), "alice", "w", testFiles, "m", testAuthor)
		if !errors.Is(err, dip.ErrUnknownOutcome) {
			t.Fatalf("BatchCommit() error = %v, want ErrUnknownOutcome", err)
		}
		if dip.Retryable(err) {
			t.Error("Retryable() = true for an unknown outcome")
		}
	})

	t.Run("ref update rejection is a conflict", func(t *testing.T) {
		g := newGitServer(t)
		g.failRef = http.StatusUnprocessableEntity
		c, _ := newTestClient(t, g.mux())

		_, err := c.BatchCommit(context.Background(), "alice", "w", testFiles, "m", testAuthor)
		if !errors.Is(err, dip.ErrConflictLikely) {
			t.Fatalf("BatchCommit() error = %v, want ErrConflictLikely", err)
		}
	})

	t.Run("no files", func(t *testing.T) {
		c, _ := newTestClient(t, http.NewServeMux())
		_, err := c.BatchCommit(context.Background(), "alice", "w", nil, "m", testAuthor)
		if !errors.Is(err, dip.ErrValidation) {
			t.Errorf("BatchCommit() error = %v, want ErrValidation", err)
		}
	})
}

func TestClient_DefaultBranchReads(t *testing.T) {
	// serve adds raw and contents endpoints that only know the trunk branch.
	serve := func(t *testing.T) (*gitServer, *Client, *atomic.Int32) {
		t.Helper()
		g := newGitServer(t)
		g.defaultBranch = "trunk"
		g.branches = map[string]string{"trunk": "trunk-tip"}
		var mainHits atomic.Int32

		mux := g.mux()
		mux.HandleFunc("GET /raw/alice/w/{branch}/story/a.md", func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("branch") != "trunk" {
				mainHits.Add(1)
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprint(w, "on trunk")
		})
		mux.HandleFunc("GET /repos/alice/w/contents/story", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("ref") != "trunk" {
				writeJSON(t, w, http.StatusNotFound, map[string]any{"message": "No commit found for the ref"})
				return
			}
			writeJSON(t, w, http.StatusOK, []map[string]any{{"name": "a.md", "path": "story/a.md", "type": "file"}})
		})
		c, _ := newTestClient(t, mux)
		return g, c, &mainHits
	}
	ctx := context.Background()

	t.Run("raw read falls back once per repository", func(t *testing.T) {
		g, c, mainHits := serve(t)

		for range 2 {
			got, err := c.FetchRaw(ctx, "alice/w/story/a.md")
			if err != nil {
				t.Fatalf("FetchRaw() error = %v", err)
			}
			if got != "on trunk" {
				t.Errorf("FetchRaw() = %q, want %q", got, "on trunk")
			}
		}
		if n := g.repoReads.Load(); n != 1 {
			t.Errorf("repository lookups = %d, want 1", n)
		}
		if n := mainHits.Load(); n != 1 {
			t.Errorf("reads on main = %d, want 1", n)
		}
	})

	t.Run("commit branch is reused by reads", func(t *testing.T) {
		_, c, mainHits := serve(t)

		if _, err := c.BatchCommit(ctx, "alice", "w", testFiles, "m", testAuthor); err != nil {
			t.Fatalf("BatchCommit() error = %v", err)
		}
		if _, err := c.FetchRaw(ctx, "alice/w/story/a.md"); err != nil {
			t.Fatalf("FetchRaw() error = %v", err)
		}
		if n := mainHits.Load(); n != 0 {
			t.Errorf("reads on main = %d, want 0", n)
		}
	})

	t.Run("directory listing falls back", func(t *testing.T) {
		_, c, _ := serve(t)

		got, err := c.ListDirectory(ctx, "alice", "w", "story")
		if err != nil {
			t.Fatalf("ListDirectory() error = %v", err)
		}
		if len(got) != 1 || got[0].Name != "a.md" {
			t.Errorf("ListDirectory() = %+v", got)
		}
	})

	t.Run("missing file on the default branch stays not found", func(t *testing.T) {
		g := newGitServer(t)
		mux := g.mux()
		mux.HandleFunc("GET /raw/alice/w/{branch}/story/none.md", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		c, _ := newTestClient(t, mux)

		for range 2 {
			if _, err := c.FetchRaw(ctx, "alice/w/story/none.md"); !errors.Is(err, dip.ErrNotFound) {
				t.Errorf("FetchRaw() error = %v, want ErrNotFound", err)
			}
		}
		if n := g.repoReads.Load(); n != 1 {
			t.Errorf("repository lookups = %d, want 1", n)
		}
	})
}

func TestClient_RateLimited(t *testing.T) {
	reset := time.Now().Add(10 * time.Minute).Unix()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"API rate limit exceeded"}`)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.CurrentUser(context.Background())
	var rl *dip.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("CurrentUser() error = %v, want *dip.RateLimitError", err)
	}
	if rl.RetryAfter < 9*time.Minute || rl.RetryAfter > 10*time.Minute {
		t.Errorf("RetryAfter = %v, want about 10m", rl.RetryAfter)
	}
	if !errors.Is(err, dip.ErrRateLimited) {
		t.Error("errors.Is(err, ErrRateLimited) = false")
	}
}

func TestClient_ListDirectory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/alice/w/contents/story", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ref"); got != "main" {
			t.Errorf("ref = %q, want main", got)
		}
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"name": "a.md", "path": "story/a.md", "type": "file"},
			{"name": "part1", "path": "story/part1", "type": "dir"},
			{"name": "link", "path": "story/link", "type": "symlink"},
		})
	})
	c, _ := newTestClient(t, mux)

	got, err := c.ListDirectory(context.Background(), "alice", "w", "story")
	if err != nil {
		t.Fatalf("ListDirectory() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(ListDirectory()) = %d, want 2", len(got))
	}
	if got[0].Type != dip.EntryFile || got[1].Type != dip.EntryDir {
		t.Errorf("entry types = %q %q", got[0].Type, got[1].Type)
	}

	_, err = c.ListDirectory(context.Background(), "alice", "w", "missing")
	if !errors.Is(err, dip.ErrNotFound) {
		t.Errorf("ListDirectory(missing) error = %v, want ErrNotFound", err)
	}
}

func TestClient_Issues(t *testing.T) {
	var closed, commented atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/alice/w/issues", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != "open" {
			t.Errorf("state = %q, want open", r.URL.Query().Get("state"))
		}
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"number": 3, "title": "Link Request: b.md", "state": "open", "user": map[string]any{"login": "bob"},
				"body": "<b>**applicant**</b>: bob &amp; co\n**request file**: bob/w/story/b.md"},
			{"number": 2, "title": "Some PR", "state": "open", "pull_request": map[string]any{"url": "x"}},
		})
	})
	mux.HandleFunc("POST /repos/alice/w/issues", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(t, w, http.StatusCreated, map[string]any{"number": 9, "title": body["title"], "body": body["body"], "state": "open"})
	})
	mux.HandleFunc("PATCH /repos/alice/w/issues/3", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["state"] == "closed" {
			closed.Store(true)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"number": 3, "state": "closed"})
	})
	mux.HandleFunc("POST /repos/alice/w/issues/1/comments", func(w http.ResponseWriter, r *http.Request) {
		commented.Store(true)
		writeJSON(t, w, http.StatusCreated, map[string]any{"id": 1})
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	issues, err := c.ListIssues(ctx, "alice", "w")
	if err != nil {
		t.Fatalf("ListIssues() error = %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("len(ListIssues()) = %d, want 1 (pull requests skipped)", len(issues))
	}
	want := "**applicant**: bob & co\n**request file**: bob/w/story/b.md"
	if issues[0].Body != want {
		t.Errorf("Body = %q, want %q", issues[0].Body, want)
	}
	if issues[0].Author != "bob" {
		t.Errorf("Author = %q, want bob", issues[0].Author)
	}

	created, err := c.CreateIssue(ctx, "alice", "w", "Application result:", "✅ **Accepted**: x")
	if err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}
	if created.Number != 9 {
		t.Errorf("CreateIssue() number = %d, want 9", created.Number)
	}

	if err := c.CloseIssue(ctx, "alice", "w", 3); err != nil {
		t.Fatalf("CloseIssue() error = %v", err)
	}
	if !closed.Load() {
		t.Error("CloseIssue() did not send state=closed")
	}

	if err := c.CommentIssue(ctx, "alice", "w", 1, "[]"); err != nil {
		t.Fatalf("CommentIssue() error = %v", err)
	}
	if !commented.Load() {
		t.Error("CommentIssue() did not post a comment")
	}
}

func TestClient_GetRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/bob/w", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"name": "w", "owner": map[string]any{"login": "bob"}, "default_branch": "main", "has_issues": false,
		})
	})
	mux.HandleFunc("GET /repos/bob/private", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, map[string]any{"message": "Forbidden"})
	})
	c, _ := newTestClient(t, mux)

	info, err := c.GetRepository(context.Background(), "bob", "w")
	if err != nil {
		t.Fatalf("GetRepository() error = %v", err)
	}
	if info.HasIssues {
		t.Error("HasIssues = true, want false")
	}

	_, err = c.GetRepository(context.Background(), "bob", "private")
	if !errors.Is(err, dip.ErrPermissionDenied) {
		t.Fatalf("GetRepository(private) error = %v, want ErrPermissionDenied", err)
	}
	var de *dip.Error
	if !errors.As(err, &de) || de.Hint == "" {
		t.Error("permission error carries no hint")
	}
}
