package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/hubbub/internal/app"
	"github.com/samvad-hq/hubbub/internal/config"
	"github.com/samvad-hq/hubbub/internal/logger"
	"github.com/spf13/pflag"
)

const usage = `usage: hubbub [flags] [command]

commands:
  apply                     apply every enabled entry of the topics file (default)
  subscribe <topic-url>     subscribe the callback to a topic
  unsubscribe <topic-url>   unsubscribe the callback from a topic
  find-feed <site-url>      resolve a site's feed through the feed-lookup API
  discover <url>            print the hub, self and feed links a page advertises

flags:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "hubbub failed: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	fs := config.Flags("hubbub")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("hubbub starting", "config", map[string]any{
		"hub_url":         cfg.HubURL,
		"callback_url":    cfg.CallbackURL,
		"verify":          cfg.Verify,
		"lease_seconds":   cfg.LeaseSeconds,
		"topics_file":     cfg.TopicsFile,
		"publishers_file": cfg.PublishersFile,
		"storage_type":    cfg.StorageType,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := app.NewRunner(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize runner", "error", err)
		return err
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.ErrorObj("runner close failed", "error", err)
		}
	}()

	if err := runner.Run(ctx, fs.Args()); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}
