package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/courier/internal/engine"
	"github.com/bamsammich/courier/internal/event"
)

func newDeleteCmd(opts *options) *cobra.Command {
	var (
		delay time.Duration
		now   bool
	)
	cmd := &cobra.Command{
		Use:   "delete [flags] <path>...",
		Short: "Delete entries after an undo window",
		Long: `Delete entries after an undo window.

The entries are removed once the delay expires. Press Ctrl-C before then to
undo; nothing is touched. --now deletes immediately.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, opts, args, delay, now)
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", engine.DefaultDeleteDelay, "undo window before entries are removed")
	cmd.Flags().BoolVar(&now, "now", false, "delete immediately without an undo window")
	return cmd
}

func runDelete(cmd *cobra.Command, opts *options, args []string, delay time.Duration, now bool) error {
	params := sessionParams{}
	if cmd.Flags().Changed("delay") {
		params.deleteDelay = delay
	}
	s, err := newSession(cmd, opts, params)
	if err != nil {
		return err
	}
	defer s.close()

	entries, err := s.resolveAll(cmd.Context(), args)
	if err != nil {
		return err
	}

	finished := make(chan event.Event, 1)
	unsubscribe := s.manager.Subscribe(func(ev event.Event) {
		if ev.Type == event.DeleteSucceeded || ev.Type == event.DeleteCancelled {
			select {
			case finished <- ev:
			default:
			}
		}
	})
	defer unsubscribe()
	finish := s.present("")
	defer finish()

	// Catch Ctrl-C only once the job exists, so an early interrupt exits.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	id, err := s.manager.Delete(entries)
	if err != nil {
		return err
	}
	if now {
		s.manager.ForceDelete(id)
	} else if !opts.quiet {
		fmt.Fprintf(os.Stderr, "deleting %d entries in %s, press Ctrl-C to undo\n",
			len(entries), waitLabel(s.deleteDelay))
	}

	return awaitDelete(cmd.Context(), s.manager, id, finished, sigs)
}

// awaitDelete waits for job id to finish. A signal before then undoes it.
func awaitDelete(
	ctx context.Context,
	m *engine.Manager,
	id int64,
	finished <-chan event.Event,
	sigs <-chan os.Signal,
) error {
	for {
		select {
		case ev := <-finished:
			if ev.JobID != id {
				continue
			}
			if ev.Type == event.DeleteCancelled {
				return &exitError{code: exitCancelled}
			}
			if ev.Count < len(ev.Paths) {
				slog.Warn("some entries could not be deleted", "deleted", ev.Count, "requested", len(ev.Paths))
				return &exitError{code: exitPartial}
			}
			return nil
		case <-sigs:
			if m.CancelDelete(id) {
				slog.Info("delete undone", "job", id)
			}
			// The job may have fired concurrently; its outcome is still
			// delivered on finished.
		case <-ctx.Done():
			m.CancelDelete(id)
			return ctx.Err()
		}
	}
}

func waitLabel(d time.Duration) string {
	if d <= 0 {
		d = engine.DefaultDeleteDelay
	}
	return d.String()
}
