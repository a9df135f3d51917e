// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command threadview is a terminal reader for a novel's comment thread.
//
// # Usage
//
//	threadview [-pages N] list   <novelRef>
//	threadview           expand <novelRef> <commentID>
//	threadview           post   <novelRef> <content>
//	threadview           reply  <novelRef> <parentID> <content>
//	threadview           edit   <novelRef> <commentID> <content>
//	threadview           delete <novelRef> <commentID>
//
// Settings come from QUILL_-prefixed environment variables; writes need
// QUILL_ACCESS_TOKEN.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/taibuivan/quill/internal/platform/apperr"
	"github.com/taibuivan/quill/internal/platform/config"
	"github.com/taibuivan/quill/internal/thread"
)

// errUsage marks a command line that does not match any command.
var errUsage = errors.New("usage")

func main() {
	pages := flag.Int("pages", 1, "number of top-level pages to load")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *pages, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			usage()
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: threadview [-pages N] list|expand|post|reply|edit|delete <novelRef> [args]")
	flag.PrintDefaults()
}

// newController wires the HTTP gateway, the forest and the controller for one novel.
func newController(cfg *config.ClientConfig, novelRef string, log *slog.Logger) *thread.Controller {
	gateway := thread.NewHTTPGateway(cfg.APIURL,
		thread.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		thread.WithAccessToken(cfg.AccessToken),
		thread.WithPrefetchDepth(cfg.PrefetchDepth),
		thread.WithLogger(log),
	)
	forest := thread.NewForest(novelRef, gateway,
		thread.WithReplyDepth(cfg.ReplyDepth),
		thread.WithForestLogger(log),
	)
	return thread.NewController(forest, gateway, thread.NewTokenIdentity(cfg.AccessToken),
		thread.WithPageSize(cfg.PageSize),
		thread.WithControllerLogger(log),
		thread.WithLoginRedirect(func() {
			fmt.Fprintf(os.Stderr, "Log in at %s and set QUILL_ACCESS_TOKEN.\n", cfg.LoginURL)
		}),
	)
}

func run(ctx context.Context, cfg *config.ClientConfig, log *slog.Logger, pages int, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	command, novelRef, rest := args[0], args[1], args[2:]

	controller := newController(cfg, novelRef, log)
	if err := controller.LoadFirstPage(ctx); err != nil {
		return err
	}
	for loaded := 1; loaded < pages; loaded++ {
		more, err := controller.LoadNextPage(ctx)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}

	if err := dispatch(ctx, controller, command, rest); err != nil {
		return err
	}
	return thread.Render(os.Stdout, controller.Forest().Snapshot())
}

func dispatch(ctx context.Context, controller *thread.Controller, command string, args []string) error {
	switch {
	case command == "list" && len(args) == 0:
		return nil

	case command == "expand" && len(args) == 1:
		if err := locate(ctx, controller, args[0]); err != nil {
			return err
		}
		_, state, _ := controller.Forest().Lookup(args[0])
		if state == thread.Expanded {
			return nil
		}
		return controller.ToggleBranch(ctx, args[0])

	case command == "post" && len(args) == 1:
		_, err := controller.SubmitComment(ctx, args[0])
		return err

	case command == "reply" && len(args) == 2:
		if err := locate(ctx, controller, args[0]); err != nil {
			return err
		}
		_, err := controller.SubmitReply(ctx, args[0], args[1])
		return err

	case command == "edit" && len(args) == 2:
		if err := locate(ctx, controller, args[0]); err != nil {
			return err
		}
		_, err := controller.SubmitEdit(ctx, args[0], args[1])
		return err

	case command == "delete" && len(args) == 1:
		if err := locate(ctx, controller, args[0]); err != nil {
			return err
		}
		return controller.SubmitDelete(ctx, args[0])
	}
	return errUsage
}

// locate expands branches breadth first until id is in the forest.
// Only the pages already loaded are searched.
func locate(ctx context.Context, controller *thread.Controller, id string) error {
	forest := controller.Forest()
	queue := forest.RootIDs()

	for len(queue) > 0 {
		if _, _, found := forest.Lookup(id); found {
			return nil
		}

		current := queue[0]
		queue = queue[1:]

		comment, state, found := forest.Lookup(current)
		if !found {
			continue
		}
		if state == thread.NotExpanded && comment.ReplyCount > 0 {
			if err := controller.ToggleBranch(ctx, current); err != nil {
				return err
			}
		}
		queue = append(queue, forest.ChildIDs(current)...)
	}

	if _, _, found := forest.Lookup(id); found {
		return nil
	}
	return apperr.NotFound("Comment")
}

// describe formats err for the terminal, including field details.
func describe(err error) string {
	appError := apperr.As(err)
	if appError == nil {
		return err.Error()
	}

	message := fmt.Sprintf("%s: %s", appError.Code, appError.Message)
	for _, detail := range appError.Details {
		message += fmt.Sprintf("\n  %s: %s", detail.Field, detail.Message)
	}
	return message
}
