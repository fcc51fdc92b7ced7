// Command threadctl loads the comment thread of a post through the API,
// applies one change optimistically and prints the resulting tree.
//
//	threadctl --post p1 --user u1 list
//	threadctl --post p1 --user u1 comment "first!"
//	threadctl --post p1 --user u1 reply <parent-id> "agreed"
//	threadctl --post p1 --user u1 edit <id> "fixed typo"
//	threadctl --post p1 --user u1 delete <id>
//	threadctl --post p1 --user u1 like <id>
package main

import (
	"CommentThread/internal/client"
	"CommentThread/internal/config"
	"CommentThread/internal/models"
	"CommentThread/internal/thread"
	"CommentThread/pkg/logger"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	wbfconfig "github.com/wb-go/wbf/config"
	"go.uber.org/zap"
)

func main() {
	cfg, settings, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	postID := cfg.GetString("threadctl.post")
	if postID == "" || pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(2)
	}
	log, err := logger.NewLogger(settings.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	viewer := settings.Client.UserID
	backend := client.New(client.Options{
		BaseURL:  settings.Client.BaseURL,
		UserID:   viewer,
		Timeout:  settings.Client.Timeout,
		RetryMax: settings.Client.RetryMax,
	}, log)
	m := thread.NewManager(backend, thread.Options{
		PostID:          postID,
		Viewer:          models.CommentAuthor{ID: viewer, DisplayName: viewer},
		MaxDepth:        settings.Comments.MaxDepth,
		MaxImages:       settings.Comments.MaxImages,
		PageSize:        settings.Comments.PageSize,
		MutationTimeout: settings.Client.MutationTimeout,
	}, log)

	ctx := context.Background()
	if err := m.Refresh(ctx); err != nil {
		fail(log, err)
	}
	for i := 1; i < cfg.GetInt("threadctl.pages") && m.State().HasMore; i++ {
		if err := m.LoadMore(ctx); err != nil {
			fail(log, err)
		}
	}

	if err := run(ctx, m, pflag.Args()); err != nil {
		fail(log, err)
	}

	s := m.State()
	fmt.Printf("%d of %d top-level comments loaded, %d comments total\n", s.Loaded, s.TopLevelCount, s.TotalCount)
	printTree(os.Stdout, m.Tree().Nodes())
}

// loadConfig parses the command line and then the config file it names.
// Flags are bound to config keys, so a flag that was set wins over the file.
func loadConfig() (*wbfconfig.Config, *config.Config, error) {
	cfg := config.New()
	flags := []struct {
		short, long, key string
		def              any
		usage            string
	}{
		{"c", "config", "threadctl.config", "./config/config.yaml", "Path to config file"},
		{"p", "post", "threadctl.post", "", "Post whose comments to load"},
		{"n", "pages", "threadctl.pages", 1, "Number of comment pages to load"},
		{"u", "user", "client.user_id", "", "Viewer id sent as X-User-ID"},
		{"b", "base-url", "client.base_url", "", "Comments API address"},
		{"l", "log-level", "log_level", "info", "Log level"},
	}
	for _, f := range flags {
		if err := cfg.DefineFlag(f.short, f.long, f.key, f.def, f.usage); err != nil {
			return nil, nil, fmt.Errorf("define flag %s: %w", f.long, err)
		}
	}
	if err := cfg.ParseFlags(); err != nil {
		return nil, nil, fmt.Errorf("parse flags: %w", err)
	}
	if err := config.LoadFiles(cfg, cfg.GetString("threadctl.config")); err != nil {
		return nil, nil, err
	}
	settings, err := config.FromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, settings, nil
}

func run(ctx context.Context, m *thread.Manager, args []string) error {
	cmd, args := args[0], args[1:]
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: expected %d argument(s)", cmd, n)
		}
		return nil
	}

	switch cmd {
	case "list":
		return nil
	case "comment":
		if err := need(1); err != nil {
			return err
		}
		_, err := m.Create(ctx, strings.Join(args, " "), nil)
		return err
	case "reply":
		if err := need(2); err != nil {
			return err
		}
		_, err := m.Reply(ctx, args[0], strings.Join(args[1:], " "), nil)
		return err
	case "edit":
		if err := need(2); err != nil {
			return err
		}
		_, err := m.Edit(ctx, args[0], strings.Join(args[1:], " "), nil)
		return err
	case "delete":
		if err := need(1); err != nil {
			return err
		}
		return m.Delete(ctx, args[0])
	case "like":
		if err := need(1); err != nil {
			return err
		}
		_, err := m.ToggleLike(ctx, args[0])
		return err
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printTree(w io.Writer, nodes []*models.CommentNode) {
	for _, n := range nodes {
		indent := strings.Repeat("  ", n.Depth)
		body := n.Content
		if n.IsDeleted {
			body = "[deleted]"
		}
		liked := ""
		if n.IsLiked {
			liked = " (liked)"
		}
		fmt.Fprintf(w, "%s- %s  %s: %s  [%d likes%s]\n", indent, n.ID, n.Author.DisplayName, body, n.LikesCount, liked)
		printTree(w, n.Replies)
	}
}

func fail(log *zap.Logger, err error) {
	log.Debug("Command failed", zap.Error(err))
	msg := err.Error()
	if thread.IsRemote(err) {
		msg = thread.UserMessage(err)
	}
	fmt.Fprintln(os.Stderr, "error:", msg)
	os.Exit(1)
}
