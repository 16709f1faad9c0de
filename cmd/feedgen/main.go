package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"feedgen/internal/app"
	"feedgen/internal/config"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	flagSet := pflag.NewFlagSet("feedgen", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "config.json", "path to JSON or YAML config file")
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	command := "serve"
	switch rest := flagSet.Args(); len(rest) {
	case 0:
	case 1:
		command = rest[0]
	default:
		return fmt.Errorf("unexpected argument: %s", rest[1])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		stop()
		application, err := app.New(cfg)
		if err != nil {
			return err
		}
		return application.Run()
	case "migrate":
		return app.Migrate(ctx, cfg)
	case app.CommandUpdateFeed, app.CommandFeedZip, app.CommandFeedGzip:
		application, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer application.Close()
		switch command {
		case app.CommandUpdateFeed:
			return application.UpdateFeed(ctx)
		case app.CommandFeedZip:
			return application.FeedZip(ctx)
		default:
			return application.FeedGzip(ctx)
		}
	default:
		printHelp(flagSet)
		return fmt.Errorf("unknown command %q", command)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `feedgen builds product feeds, publishes them to object storage
and keeps zip and gzip copies up to date.

Usage:
  feedgen [flags] [command]

Commands:
  serve         run the HTTP server and the job scheduler (default)
  update-feed   build and publish all feeds once
  feed-zip      rebuild zip archives of published feeds
  feed-gzip     rebuild gzip copies of published feeds
  migrate       apply catalog database migrations

Flags:
%s`, flagSet.FlagUsages())
}
