package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dipcp-go/internal/config"
	"dipcp-go/internal/database"
	"dipcp-go/internal/dip"
	"dipcp-go/internal/github"
	"dipcp-go/internal/testutil"
	"dipcp-go/internal/vault"
)

type appFixture struct {
	cfg    *config.Config
	store  dip.Store
	remote *testutil.FakeRemote
	vault  vault.Vault
	sealer dip.Sealer
	clock  *testutil.StubClock
	tokens []string
	logs   bytes.Buffer
}

// newAppFixture prepares an app rooted in a temp dir with a file-backed
// cache. login, when set, is stored as the signed-in user.
func newAppFixture(t *testing.T, login string) *appFixture {
	t.Helper()
	t.Setenv(TokenEnv, "")

	cfg := config.NewConfig(t.TempDir())
	cfg.Encryption.Type = "test"
	f := &appFixture{
		cfg:    cfg,
		remote: testutil.NewFakeRemote("carol"),
		vault:  testutil.NewTestVault(),
		sealer: testutil.NewTestSealer(),
		clock:  testutil.FixedClock(),
	}
	f.store = f.openStore(t)
	if login != "" {
		if err := f.store.PutSetting(dip.SettingLogin, []byte(login)); err != nil {
			t.Fatalf("PutSetting() error = %v", err)
		}
	}
	return f
}

func (f *appFixture) openStore(t *testing.T) dip.Store {
	t.Helper()
	store, err := database.NewStoreFromConfig(f.cfg.Cache)
	if err != nil {
		t.Fatalf("NewStoreFromConfig() error = %v", err)
	}
	return store
}

func (f *appFixture) assemble(t *testing.T, opts Options) (*App, error) {
	t.Helper()
	op := NewOperation("Test", f.clock.Now())
	return assemble(context.Background(), f.cfg, op, components{
		store:  f.store,
		vault:  f.vault,
		sealer: f.sealer,
		newRemote: func(token string, _ github.QuotaObserver) (dip.Remote, error) {
			f.tokens = append(f.tokens, token)
			return f.remote, nil
		},
		logger: slog.New(&dipHandler{w: &f.logs, opID: op.ID()}),
		clock:  f.clock,
		ids:    testutil.NewStubIDGenerator(),
	}, opts)
}

func (f *appFixture) app(t *testing.T) *App {
	t.Helper()
	a, err := f.assemble(t, Options{})
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}
	return a
}

func TestApp_Session(t *testing.T) {
	t.Run("stored login is used without a lookup", func(t *testing.T) {
		f := newAppFixture(t, "carol")
		a := f.app(t)
		defer a.Close()

		if a.Session().User != "carol" {
			t.Errorf("User = %q, want carol", a.Session().User)
		}
		if n := f.remote.CallCount(testutil.OpCurrentUser); n != 0 {
			t.Errorf("CurrentUser called %d times", n)
		}
	})

	t.Run("token from the environment looks the user up once", func(t *testing.T) {
		f := newAppFixture(t, "")
		t.Setenv(TokenEnv, "env-token")
		a := f.app(t)
		defer a.Close()

		if a.Session().User != "carol" {
			t.Errorf("User = %q, want carol", a.Session().User)
		}
		if len(f.tokens) != 1 || f.tokens[0] != "env-token" {
			t.Errorf("tokens = %v", f.tokens)
		}
		login, _ := f.store.GetSetting(dip.SettingLogin)
		if string(login) != "carol" {
			t.Errorf("stored login = %q", login)
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		f := newAppFixture(t, "")
		a := f.app(t)
		defer a.Close()

		if a.Session().User != "" {
			t.Errorf("User = %q, want empty", a.Session().User)
		}
		if _, err := a.OwnRepository(); !errors.Is(err, errNotSignedIn) {
			t.Errorf("OwnRepository() error = %v, want errNotSignedIn", err)
		}
	})

	t.Run("configured committer email wins", func(t *testing.T) {
		f := newAppFixture(t, "carol")
		f.cfg.GitHub.CommitterEmail = "pen@example.com"
		a := f.app(t)
		defer a.Close()

		if a.Session().Email != "pen@example.com" {
			t.Errorf("Email = %q", a.Session().Email)
		}
	})
}

func TestApp_AuthLogin(t *testing.T) {
	ctx := context.Background()
	f := newAppFixture(t, "")
	a := f.app(t)
	defer a.Close()

	if _, err := a.AuthLogin(ctx, "", "pass"); !errors.Is(err, dip.ErrValidation) {
		t.Errorf("AuthLogin() with empty token error = %v, want ErrValidation", err)
	}

	u, err := a.AuthLogin(ctx, "secret-token", "pass")
	if err != nil {
		t.Fatalf("AuthLogin() error = %v", err)
	}
	if u.Login != "carol" || a.Session().User != "carol" {
		t.Errorf("user = %+v, session = %+v", u, a.Session())
	}
	if !a.Operation().Mutated() {
		t.Error("AuthLogin() did not mark the operation mutated")
	}

	sealed, _ := f.store.GetSetting(dip.SettingToken)
	if len(sealed) == 0 || strings.Contains(string(sealed), "secret-token") {
		t.Errorf("stored token = %q, want sealed", sealed)
	}

	token, err := resolveToken(f.store, f.sealer, func() (string, error) { return "pass", nil })
	if err != nil || token != "secret-token" {
		t.Errorf("resolveToken() = %q, %v", token, err)
	}
	if _, err := resolveToken(f.store, f.sealer, func() (string, error) { return "wrong", nil }); !errors.Is(err, dip.ErrPermissionDenied) {
		t.Errorf("resolveToken() with wrong passphrase error = %v, want ErrPermissionDenied", err)
	}
	if token, err := resolveToken(f.store, f.sealer, nil); err != nil || token != "" {
		t.Errorf("resolveToken() without passphrase = %q, %v; want anonymous", token, err)
	}

	if _, err := a.AuthLogin(ctx, "other-token", "wrong"); !errors.Is(err, dip.ErrPermissionDenied) {
		t.Errorf("AuthLogin() with wrong passphrase error = %v, want ErrPermissionDenied", err)
	}
}

func TestApp_SnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	const path = "carol/novel/story/a.md"

	// First machine: a change is snapshotted on close.
	first := newAppFixture(t, "carol")
	a := first.app(t)
	if _, err := a.SaveArticle(path, "Hello"); err != nil {
		t.Fatalf("SaveArticle() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	version, _ := first.vault.SnapshotVersion(ctx, "carol")
	if version != first.clock.Now().Unix() {
		t.Fatalf("snapshot version = %d, want %d", version, first.clock.Now().Unix())
	}

	// Second machine sharing the vault: its empty cache is behind.
	second := newAppFixture(t, "carol")
	second.vault = first.vault
	if _, err := second.assemble(t, Options{}); err == nil || !strings.Contains(err.Error(), "cache restore") {
		t.Fatalf("assemble() error = %v, want a restore hint", err)
	}

	b, err := second.assemble(t, Options{SkipSnapshotCheck: true})
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}
	got, err := b.RestoreSnapshot(ctx)
	if err != nil {
		t.Fatalf("RestoreSnapshot() error = %v", err)
	}
	if got != version {
		t.Errorf("RestoreSnapshot() = %d, want %d", got, version)
	}
	article, err := b.store.GetArticle(path)
	if err != nil || article == nil {
		t.Fatalf("restored GetArticle() = %v, %v", article, err)
	}
	pending, _ := b.Pending("")
	if len(pending) != 1 || pending[0].Path != path {
		t.Errorf("restored pending = %v", pending)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if v, _ := first.vault.SnapshotVersion(ctx, "carol"); v != version {
		t.Errorf("read-only close uploaded version %d", v)
	}

	// The restored cache is current.
	second.store = second.openStore(t)
	c, err := second.assemble(t, Options{})
	if err != nil {
		t.Fatalf("assemble() after restore error = %v", err)
	}
	c.Close()
}

func TestApp_CloseWithoutChanges(t *testing.T) {
	f := newAppFixture(t, "carol")
	a := f.app(t)
	if _, err := a.ListWorks(); err != nil {
		t.Fatalf("ListWorks() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if v, _ := f.vault.SnapshotVersion(context.Background(), "carol"); v != 0 {
		t.Errorf("snapshot version = %d, want none", v)
	}
}

func TestApp_RestoreSnapshotErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing stored", func(t *testing.T) {
		f := newAppFixture(t, "carol")
		a := f.app(t)
		defer a.Close()
		if _, err := a.RestoreSnapshot(ctx); !errors.Is(err, vault.ErrSnapshotNotFound) {
			t.Errorf("RestoreSnapshot() error = %v, want ErrSnapshotNotFound", err)
		}
	})

	t.Run("no vault", func(t *testing.T) {
		f := newAppFixture(t, "carol")
		f.vault = nil
		a := f.app(t)
		defer a.Close()
		if _, err := a.RestoreSnapshot(ctx); err == nil {
			t.Error("RestoreSnapshot() error = nil, want error")
		}
	})
}

func TestApp_SaveArticle(t *testing.T) {
	f := newAppFixture(t, "carol")
	a := f.app(t)
	defer a.Close()

	text := "pen_name:someone\nversion:7\nupdate_time:\ncreate_time:\nHello there\n" + dip.CommentarySeparator + "\nmy note"
	article, err := a.SaveArticle("carol/novel/story/a.md", text)
	if err != nil {
		t.Fatalf("SaveArticle() error = %v", err)
	}
	meta := dip.ParseArticleMetadata(article.Content)
	if meta.PenName != "carol" || meta.Version != "1" {
		t.Errorf("header = %q, %q", meta.PenName, meta.Version)
	}
	body, commentary, _ := dip.SplitCommentary(meta.Content)
	if body != "Hello there" || commentary != "my note" {
		t.Errorf("body = %q, commentary = %q", body, commentary)
	}
	if a.Operation().Status != "success" {
		t.Errorf("Status = %q", a.Operation().Status)
	}

	if _, err := a.SaveArticle("dave/novel/story/a.md", "x"); !errors.Is(err, dip.ErrValidation) {
		t.Errorf("SaveArticle() on another author error = %v, want ErrValidation", err)
	}
	if a.Operation().Status != "error" {
		t.Errorf("Status = %q, want error", a.Operation().Status)
	}
}

func TestApp_Submit(t *testing.T) {
	ctx := context.Background()
	f := newAppFixture(t, "carol")
	f.remote.AddFile("alice/novel/story/index.md", "index")
	a := f.app(t)
	defer a.Close()

	if _, err := a.Submit(ctx, nil, ""); err == nil {
		t.Error("Submit() before opening a work error = nil")
	}
	if _, err := a.OpenWork(ctx, "alice/novel"); err != nil {
		t.Fatalf("OpenWork() error = %v", err)
	}
	sub, err := a.Submit(ctx, nil, "")
	if err != nil || sub != nil {
		t.Fatalf("Submit() with nothing pending = %v, %v", sub, err)
	}

	for _, p := range []string{"carol/novel/story/a.md", "carol/novel/story/b.md"} {
		if _, err := a.SaveArticle(p, "text of "+p); err != nil {
			t.Fatalf("SaveArticle() error = %v", err)
		}
	}
	sub, err = a.Submit(ctx, nil, "two chapters")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sub.Status != dip.SubmissionCommitted || sub.Repository != "carol/novel" {
		t.Errorf("submission = %+v", sub)
	}
	commits := f.remote.Commits()
	if len(commits) != 1 || len(commits[0].Files) != 2 {
		t.Fatalf("commits = %+v", commits)
	}
	if pending, _ := a.Pending(""); len(pending) != 0 {
		t.Errorf("pending after submit = %v", pending)
	}
	history, err := a.History(10)
	if err != nil || len(history) != 1 {
		t.Errorf("History() = %v, %v", history, err)
	}
}

func TestApp_Linkify(t *testing.T) {
	f := newAppFixture(t, "carol")
	a := f.app(t)
	defer a.Close()

	if _, err := f.store.SaveArticle("dave/novel/story/Town.md", "a town", true); err != nil {
		t.Fatalf("SaveArticle() error = %v", err)
	}
	const mine = "carol/novel/story/a.md"
	if _, err := a.SaveArticle(mine, "Go to Town."); err != nil {
		t.Fatalf("SaveArticle() error = %v", err)
	}

	changed, err := a.Linkify(mine)
	if err != nil || !changed {
		t.Fatalf("Linkify() = %v, %v", changed, err)
	}
	article, _ := f.store.GetArticle(mine)
	meta := dip.ParseArticleMetadata(article.Content)
	if meta.Content != "Go to [Town](dave/novel/story/Town.md)." || meta.Version != "2" {
		t.Errorf("article = %q (version %s)", meta.Content, meta.Version)
	}

	changed, err = a.Linkify(mine)
	if err != nil || changed {
		t.Errorf("second Linkify() = %v, %v; want unchanged", changed, err)
	}
	if _, err := a.Linkify("carol/novel/story/missing.md"); !errors.Is(err, dip.ErrNotFound) {
		t.Errorf("Linkify() of uncached article error = %v, want ErrNotFound", err)
	}
}

func TestApp_Notices(t *testing.T) {
	ctx := context.Background()
	f := newAppFixture(t, "carol")
	f.remote.AddFile("alice/novel/story/index.md", "index")
	f.remote.AddIssue("carol", "novel", dip.TitleLinkRequest+" x.md",
		dip.FormatLinkRequest(dip.LinkRequest{Applicant: "dave", RequestFile: "dave/novel/story/x.md", LinkToFile: "carol/novel/story/a.md"}), "dave")
	f.remote.AddIssue("carol", "novel", dip.TitleApplicationResult, dip.FormatAccepted("carol/novel/story/b.md"), "erin")
	a := f.app(t)
	defer a.Close()

	if _, err := a.OpenWork(ctx, "alice/novel"); err != nil {
		t.Fatalf("OpenWork() error = %v", err)
	}
	notices, err := a.Notices(ctx)
	if err != nil {
		t.Fatalf("Notices() error = %v", err)
	}
	if len(notices) != 2 {
		t.Fatalf("got %d notices, want 2", len(notices))
	}

	counts := a.checkNotices(ctx)
	if counts[dip.NoticeLinkRequest] != 1 || counts[dip.NoticeResult] != 1 {
		t.Errorf("checkNotices() = %v", counts)
	}

	repo, err := a.OwnRepository()
	if err != nil || repo != "carol/novel" {
		t.Fatalf("OwnRepository() = %q, %v", repo, err)
	}
	if err := a.RespondToLinkRequest(ctx, repo, 99, false, "no"); !errors.Is(err, dip.ErrNotFound) {
		t.Errorf("RespondToLinkRequest() error = %v, want ErrNotFound", err)
	}
	if _, err := a.CloseNotice(ctx, repo, 2); err != nil {
		t.Errorf("CloseNotice() error = %v", err)
	}
	if got := f.remote.Issues("carol", "novel")[1].State; got != "closed" {
		t.Errorf("State = %q, want closed", got)
	}
}

func TestApp_Watch(t *testing.T) {
	f := newAppFixture(t, "carol")
	a := f.app(t)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if !a.Operation().Mutated() {
		t.Error("Watch() did not mark the operation mutated")
	}
}

func TestLoadIgnore(t *testing.T) {
	cfg := config.NewConfig(t.TempDir())
	cfg.Sync.Ignore = []string{"*.bak"}
	if err := os.WriteFile(filepath.Join(cfg.BaseDir, "ignore"), []byte("drafts/\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := loadIgnore(cfg)
	if err != nil {
		t.Fatalf("loadIgnore() error = %v", err)
	}
	for _, p := range []string{"story/a.bak", "story/drafts/x.md"} {
		if !m.Match(p) {
			t.Errorf("Match(%q) = false, want true", p)
		}
	}
	if m.Match("story/a.md") {
		t.Error("Match(story/a.md) = true, want false")
	}
}
