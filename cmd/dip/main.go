package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"dipcp-go/internal/app"
	"dipcp-go/internal/config"
	"dipcp-go/internal/dip"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var de *dip.Error
		if errors.As(err, &de) && de.Hint != "" {
			fmt.Fprintln(os.Stderr, "hint:", de.Hint)
		}
		stop()
		os.Exit(1)
	}
}

var verbose bool

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "OpenWork", "Submit").
func newApp(cmd *cobra.Command, operation string, opts app.Options) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if opts.Passphrase == nil {
		opts.Passphrase = passphrasePrompt(cmd.ErrOrStderr())
	}
	opts.Verbose = verbose

	a, err := app.NewApp(cmd.Context(), cfg, operation, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// noticeRepository returns the --repo flag, defaulting to the user's copy
// of the current work.
func noticeRepository(cmd *cobra.Command, a *app.App) (string, error) {
	repo, _ := cmd.Flags().GetString("repo")
	if repo != "" {
		return repo, nil
	}
	return a.OwnRepository()
}

func parseIssueNumber(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, dip.Validationf("notice", "invalid issue number %q", arg)
	}
	return n, nil
}

// readInput reads the named file, or stdin when name is "-".
func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

func printTree(w io.Writer, node *dip.TreeNode, depth int) {
	for _, child := range node.Children {
		name := child.Name
		if child.IsDir {
			name += "/"
		}
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), name)
		if child.IsDir {
			printTree(w, child, depth+1)
		}
	}
}

func noticeKind(k dip.NoticeKind) string {
	switch k {
	case dip.NoticeLinkRequest:
		return "request"
	case dip.NoticeResult:
		return "result"
	default:
		return "unknown"
	}
}

var rootCmd = &cobra.Command{
	Use:          "dip",
	Short:        "Collaborative writing on GitHub, offline first",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Cache:     %s %s\n", cfg.Cache.Type, cfg.Cache.DataDir)
		fmt.Printf("Raw URL:   %s\n", cfg.GitHub.RawURL)
		fmt.Printf("Branch:    %s\n", cfg.GitHub.Branch)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:     %s (%s)\n", v.Name, v.Type)
		}
		if cfg.Metrics.Listen != "" {
			fmt.Printf("Metrics:   %s\n", cfg.Metrics.Listen)
		}
		return nil
	},
}

// auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage GitHub credentials",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a GitHub token sealed with a passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		stderr := cmd.ErrOrStderr()
		token, err := readSecret(stderr, "GitHub token: ")
		if err != nil {
			return err
		}
		passphrase, err := readSecret(stderr, "Passphrase: ")
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "AuthLogin", app.Options{
			Passphrase: func() (string, error) { return passphrase, nil },
		})
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.AuthLogin(cmd.Context(), token, passphrase)
		if err != nil {
			return fmt.Errorf("signing in: %w", err)
		}

		fmt.Printf("Signed in as %s\n", user.Login)
		return nil
	},
}

// work command
var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Manage opened works",
}

var workOpenCmd = &cobra.Command{
	Use:   "open OWNER/REPO",
	Short: "Open a work, syncing it on first visit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "OpenWork", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.OpenWork(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("opening work: %w", err)
		}

		fmt.Printf("Opened %s (%d article(s))\n", c.Repository, c.Articles)
		return nil
	},
}

var workListCmd = &cobra.Command{
	Use:   "list",
	Short: "List opened works",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ListWorks", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		works, err := a.ListWorks()
		if err != nil {
			return err
		}

		if len(works) == 0 {
			fmt.Println("No works opened.")
			return nil
		}

		for _, w := range works {
			lastRead := "-"
			if !w.LastRead.IsZero() {
				lastRead = w.LastRead.Format("2006-01-02 15:04")
			}
			fmt.Printf("%-30s  %-25s  %4d  %s\n", w.Repository, w.Name, w.Articles, lastRead)
		}
		return nil
	},
}

var workRenameCmd = &cobra.Command{
	Use:   "rename OWNER/REPO NAME",
	Short: "Set the display name of an opened work",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "RenameWork", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		return a.RenameWork(args[0], args[1])
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync OWNER/REPO",
	Short: "Download every article of a work",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "SyncWork", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.SyncWork(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Printf("Downloaded %d article(s)\n", n)
		return nil
	},
}

// read command
var readCmd = &cobra.Command{
	Use:   "read PATH",
	Short: "Print an article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")

		a, err := newApp(cmd, "Read", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		article, err := a.Read(cmd.Context(), args[0], refresh)
		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), article.Content)
		return nil
	},
}

// new command
var newCmd = &cobra.Command{
	Use:   "new DIR NAME",
	Short: "Create an empty article in your copy of the current work",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "CreateArticle", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		article, err := a.CreateArticle(args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("Created %s\n", article.Path)
		return nil
	},
}

// save command
var saveCmd = &cobra.Command{
	Use:   "save PATH [FILE]",
	Short: "Save an article from a file or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := "-"
		if len(args) > 1 {
			source = args[1]
		}
		text, err := readInput(cmd, source)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		a, err := newApp(cmd, "SaveArticle", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		article, err := a.SaveArticle(args[0], string(text))
		if err != nil {
			return err
		}

		fmt.Printf("Saved %s\n", article.Path)
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete PATH",
	Short: "Delete one of your articles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "DeleteArticle", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteArticle(args[0]); err != nil {
			return err
		}

		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// vote command
var voteCmd = &cobra.Command{
	Use:   "vote PATH VALUE",
	Short: "Vote on an article (1, 0 or -1)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.Atoi(args[1])
		if err != nil {
			return dip.Validationf("vote", "invalid vote %q", args[1])
		}

		a, err := newApp(cmd, "Vote", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Vote(args[0], value)
	},
}

var votesCmd = &cobra.Command{
	Use:   "votes",
	Short: "Manage queued votes",
}

var votesFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Send queued votes now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "FlushVotes", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.FlushVotes(cmd.Context())
		if err != nil {
			return fmt.Errorf("flushing votes: %w", err)
		}

		fmt.Printf("Flushed %d vote(s)\n", n)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List pending changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Pending", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		pending, err := a.Pending("")
		if err != nil {
			return err
		}

		if len(pending) == 0 {
			fmt.Println("Nothing pending.")
			return nil
		}

		for _, p := range pending {
			fmt.Printf("M  %s\n", p.Path)
		}
		return nil
	},
}

// submit command
var submitCmd = &cobra.Command{
	Use:   "submit [PATH...]",
	Short: "Commit pending changes in one batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")

		a, err := newApp(cmd, "Submit", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		sub, err := a.Submit(cmd.Context(), args, message)
		if err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}
		if sub == nil {
			fmt.Println("Nothing to submit.")
			return nil
		}

		fmt.Printf("Submitted %d file(s) as %s (%s)\n", len(sub.Paths), sub.CommitSHA, sub.ID)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View submission history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "History", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		subs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(subs) == 0 {
			fmt.Println("No submissions recorded.")
			return nil
		}

		for _, s := range subs {
			sha := s.CommitSHA
			if len(sha) > 12 {
				sha = sha[:12]
			}
			fmt.Printf("%s  %-25s  %s  %-9s  %3d  %s\n",
				s.ID,
				s.Repository,
				s.CreatedAt.Format("2006-01-02 15:04:05"),
				s.Status,
				len(s.Paths),
				sha,
			)
		}
		return nil
	},
}

// tree command
var treeCmd = &cobra.Command{
	Use:   "tree OWNER/REPO",
	Short: "Show the cached articles of a work",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Tree", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		root, err := a.Tree(args[0])
		if err != nil {
			return err
		}

		printTree(cmd.OutOrStdout(), root, 0)
		return nil
	},
}

// linkify command
var linkifyCmd = &cobra.Command{
	Use:   "linkify PATH",
	Short: "Turn mentions of other articles into links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Linkify", app.Options{
			Chooser: newPromptChooser(cmd.InOrStdin(), cmd.ErrOrStderr()),
		})
		if err != nil {
			return err
		}
		defer a.Close()

		changed, err := a.Linkify(args[0])
		if err != nil {
			return err
		}

		if changed {
			fmt.Printf("Linked mentions in %s\n", args[0])
		} else {
			fmt.Println("No new links.")
		}
		return nil
	},
}

// link command
var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Request links to articles of other authors",
}

var linkRequestCmd = &cobra.Command{
	Use:   "request LOCAL REMOTE",
	Short: "Ask the author of REMOTE to link back to LOCAL",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "RequestLink", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.RequestLink(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("requesting link: %w", err)
		}

		fmt.Printf("Requested link from %s to %s\n", args[1], args[0])
		return nil
	},
}

var linkCandidatesCmd = &cobra.Command{
	Use:   "candidates PATH",
	Short: "List articles PATH could ask to be linked from",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "LinkCandidates", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		candidates, err := a.LinkCandidates(args[0])
		if err != nil {
			return err
		}

		for _, c := range candidates {
			fmt.Println(c)
		}
		return nil
	},
}

// notices command
var noticesCmd = &cobra.Command{
	Use:   "notices",
	Short: "List open link requests and results",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Notices", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		notices, err := a.Notices(cmd.Context())
		if err != nil {
			return err
		}

		if len(notices) == 0 {
			fmt.Println("No notices.")
			return nil
		}

		for _, n := range notices {
			fmt.Printf("%s/%s#%d  %-7s  %s  (%s)\n",
				n.Owner, n.Repo, n.Issue.Number, noticeKind(n.Kind), n.Issue.Title, n.Issue.Author)
		}
		return nil
	},
}

var noticeCmd = &cobra.Command{
	Use:   "notice",
	Short: "Answer a link request or close a result",
}

var noticeAcceptCmd = &cobra.Command{
	Use:   "accept NUMBER",
	Short: "Accept a link request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return respond(cmd, args[0], true, "")
	},
}

var noticeRejectCmd = &cobra.Command{
	Use:   "reject NUMBER",
	Short: "Reject a link request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return respond(cmd, args[0], false, reason)
	},
}

func respond(cmd *cobra.Command, arg string, accept bool, reason string) error {
	number, err := parseIssueNumber(arg)
	if err != nil {
		return err
	}

	a, err := newApp(cmd, "RespondToLinkRequest", app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	repo, err := noticeRepository(cmd, a)
	if err != nil {
		return err
	}
	if err := a.RespondToLinkRequest(cmd.Context(), repo, number, accept, reason); err != nil {
		return err
	}

	verb := "Rejected"
	if accept {
		verb = "Accepted"
	}
	fmt.Printf("%s %s#%d\n", verb, repo, number)
	return nil
}

var noticeCloseCmd = &cobra.Command{
	Use:   "close NUMBER",
	Short: "Apply and close a link result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := parseIssueNumber(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "CloseNotice", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		repo, err := noticeRepository(cmd, a)
		if err != nil {
			return err
		}
		unlinked, err := a.CloseNotice(cmd.Context(), repo, number)
		if err != nil {
			return err
		}

		fmt.Printf("Closed %s#%d\n", repo, number)
		for _, p := range unlinked {
			fmt.Printf("Link removed from %s\n", p)
		}
		return nil
	},
}

// media command
var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Manage media blobs",
}

var mediaPullCmd = &cobra.Command{
	Use:   "pull PATH",
	Short: "Download the media an article references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "PullMedia", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.PullMedia(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Downloaded %d media file(s)\n", n)
		return nil
	},
}

var mediaAddCmd = &cobra.Command{
	Use:   "add PATH FILE",
	Short: "Add a media blob to your copy",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd, args[1])
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		a, err := newApp(cmd, "AddMedia", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.AddMedia(args[0], data); err != nil {
			return err
		}

		fmt.Printf("Added %s (%d bytes)\n", args[0], len(data))
		return nil
	},
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached articles and media",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ClearCache", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ClearCache(); err != nil {
			return err
		}

		fmt.Println("Cache cleared.")
		return nil
	},
}

var cacheRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the cache with the latest vault snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "RestoreSnapshot", app.Options{SkipSnapshotCheck: true})
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.RestoreSnapshot(cmd.Context())
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Restored snapshot %d\n", version)
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Flush votes and check notices until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Watch", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Watch(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// auth subcommands
	authCmd.AddCommand(authLoginCmd)

	// work subcommands
	workCmd.AddCommand(workOpenCmd)
	workCmd.AddCommand(workListCmd)
	workCmd.AddCommand(workRenameCmd)

	// votes subcommands
	votesCmd.AddCommand(votesFlushCmd)

	// link subcommands
	linkCmd.AddCommand(linkRequestCmd)
	linkCmd.AddCommand(linkCandidatesCmd)

	// notice subcommands
	noticeCmd.AddCommand(noticeAcceptCmd)
	noticeCmd.AddCommand(noticeRejectCmd)
	noticeCmd.AddCommand(noticeCloseCmd)
	noticeCmd.PersistentFlags().String("repo", "", "Repository holding the issue (default: your copy of the current work)")
	noticeRejectCmd.Flags().String("reason", "", "Why the request is rejected")

	// media subcommands
	mediaCmd.AddCommand(mediaPullCmd)
	mediaCmd.AddCommand(mediaAddCmd)

	// cache subcommands
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheRestoreCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().Bool("refresh", false, "Download the article even when it is cached")
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(voteCmd)
	rootCmd.AddCommand(votesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringP("message", "m", "", "Commit message")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of submissions to show")
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(linkifyCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(noticesCmd)
	rootCmd.AddCommand(noticeCmd)
	rootCmd.AddCommand(mediaCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(watchCmd)
}
