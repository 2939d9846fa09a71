package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/courier/internal/transport"
)

// newTransferCmd builds the copy command, or the move command when move is
// set. Moves within one volume are renames; across volumes the sources are
// copied and then removed.
func newTransferCmd(opts *options, move bool) *cobra.Command {
	name, short := "copy", "Copy sources into a destination directory"
	if move {
		name, short = "move", "Move sources into a destination directory"
	}

	cmd := &cobra.Command{
		Use:   name + " [flags] <source>... <destination>",
		Short: short,
		Long: short + `.

Sources and destination may be local paths, [user@]host:path for SFTP, or
s3://bucket/key. Name collisions at the destination are resolved by
numbering ("a (1).txt").`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := buildFilter(opts)
			if err != nil {
				return err
			}
			return runTransfer(cmd, opts, sessionParams{filter: chain}, func(ctx context.Context, s *session) (batch, error) {
				sources, err := s.resolveAll(ctx, args[:len(args)-1])
				if err != nil {
					return batch{}, err
				}
				dst, err := s.resolve(ctx, args[len(args)-1])
				if err != nil {
					return batch{}, err
				}
				slog.Debug("starting "+name, "sources", len(sources), "dst", dst.URL())
				return batch{
					targetRoot: dst.URL(),
					enqueue: func(ctx context.Context) error {
						return s.manager.Paste(ctx, sources, dst, move)
					},
				}, nil
			})
		},
	}
	addFilterFlags(cmd.Flags(), opts)
	return cmd
}

func newArchiveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "archive [flags] <path>...",
		Short: "Zip entries of one directory into an archive beside them",
		Long: `Zip entries of one directory into an archive beside them.

A single source "name.ext" produces "name.zip"; several sources produce
"Archive.zip". Existing names are numbered.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd, opts, sessionParams{}, func(ctx context.Context, s *session) (batch, error) {
				sources, err := s.resolveAll(ctx, args)
				if err != nil {
					return batch{}, err
				}
				if err := sameParent(sources); err != nil {
					return batch{}, err
				}
				return batch{
					targetRoot: sources[0].Parent().URL(),
					enqueue: func(ctx context.Context) error {
						return s.manager.Archive(ctx, sources)
					},
				}, nil
			})
		},
	}
}

// sameParent checks that every entry lives in the same directory.
func sameParent(entries []transport.Entry) error {
	parent := entries[0].Parent()
	for _, e := range entries[1:] {
		if e.Parent() != parent {
			return fmt.Errorf("archive sources must share a directory: %s is not in %s", e.URL(), parent.URL())
		}
	}
	return nil
}

// batch is a resolved command: where its output lands and how to queue it.
type batch struct {
	targetRoot string
	enqueue    func(ctx context.Context) error
}

// runTransfer sets up a session, resolves the arguments, starts the
// presenter and waits for the queued batch to finish. Ctrl-C cancels the
// batch cooperatively.
func runTransfer(
	cmd *cobra.Command,
	opts *options,
	params sessionParams,
	prepare func(ctx context.Context, s *session) (batch, error),
) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := newSession(cmd, opts, params)
	if err != nil {
		return err
	}
	defer s.close()

	b, err := prepare(ctx, s)
	if err != nil {
		return err
	}

	terminal, unsubscribe := terminalEvents(s.manager)
	defer unsubscribe()
	finish := s.present(b.targetRoot)
	defer finish()

	if err := b.enqueue(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return &exitError{code: exitCancelled}
		}
		return err
	}
	if !s.manager.HasQueuedTasks() {
		slog.Info("nothing to do")
		return nil
	}
	slog.Debug("batch queued", "target", b.targetRoot, "status", s.manager.Status().String())

	ev := waitTerminal(ctx, s.manager, terminal)
	return exitFor(ev, s.collector.Snapshot())
}
