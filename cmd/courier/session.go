package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bamsammich/courier/internal/config"
	"github.com/bamsammich/courier/internal/engine"
	"github.com/bamsammich/courier/internal/event"
	"github.com/bamsammich/courier/internal/filter"
	"github.com/bamsammich/courier/internal/stats"
	"github.com/bamsammich/courier/internal/transport"
	"github.com/bamsammich/courier/internal/ui"
)

// localVolumeID names the catch-all local volume rooted at "/".
const localVolumeID = "local"

// session owns everything one command needs: the mux over every volume the
// arguments touch, the transfer manager and the presenter pipeline.
type session struct {
	opts        *options
	cfg         config.Config
	mux         *transport.Mux
	manager     *engine.Manager
	collector   *stats.Collector
	logFile     io.Closer
	deleteDelay time.Duration
}

// sessionParams are the per-command engine settings.
type sessionParams struct {
	filter      *filter.Chain
	deleteDelay time.Duration // 0 uses the config default
}

func newSession(cmd *cobra.Command, opts *options, params sessionParams) (*session, error) {
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return nil, err
	}
	applyConfigDefaults(cmd, cfg, opts)
	ui.ApplyTheme(cfg.Theme)

	s := &session{opts: opts, cfg: cfg, collector: stats.NewCollector()}
	if err := s.setupLogging(); err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if opts.bwLimit != "" {
		n, err := filter.ParseSize(opts.bwLimit)
		if err != nil {
			s.closeLog()
			return nil, fmt.Errorf("invalid --bwlimit: %w", err)
		}
		if n > 0 {
			limiter = transport.NewBWLimiter(n)
		}
	}

	volumes := []transport.Volume{transport.NewLocalVolume(localVolumeID, "/")}
	for _, vc := range cfg.Volumes {
		volumes = append(volumes, transport.NewLocalVolume(vc.ID, vc.Root))
	}
	spoolDir := filepath.Join(os.TempDir(), "courier-spool")
	if err := os.MkdirAll(spoolDir, 0o700); err != nil {
		s.closeLog()
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	s.mux = transport.NewMux(volumes, transport.WithLimiter(limiter), transport.WithSpoolDir(spoolDir))

	s.deleteDelay = params.deleteDelay
	if s.deleteDelay <= 0 && cfg.Defaults.DeleteDelay != nil {
		s.deleteDelay = cfg.Defaults.DeleteDelay.Duration
	}
	engineCfg := engine.Config{
		Filter:      params.filter,
		Limiter:     limiter,
		Stats:       s.collector,
		DeleteDelay: s.deleteDelay,
		Verify:      opts.verify,
		OnIdle: func() {
			slog.Debug("transfer manager idle")
		},
	}
	if cfg.Defaults.ProgressInterval != nil {
		engineCfg.ProgressInterval = cfg.Defaults.ProgressInterval.Duration
	}
	s.manager = engine.New(s.mux, engineCfg)
	s.manager.Start()

	slog.Debug("session ready",
		"volumes", len(volumes),
		"verify", opts.verify,
		"bwlimit", opts.bwLimit,
		"filter", params.filter != nil,
	)
	return s, nil
}

// close shuts the manager down (executing pending deletes), closes every
// volume and removes temp files left by an interrupted transfer.
func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.manager.Close(ctx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}
	if n := transport.CleanupTmpFiles(); n > 0 {
		slog.Debug("removed temp files", "count", n)
	}
	if err := s.mux.Close(); err != nil {
		slog.Debug("close volumes", "error", err)
	}
	s.closeLog()
}

func (s *session) closeLog() {
	if s.logFile != nil {
		_ = s.logFile.Close() //nolint:errcheck // best-effort on exit
	}
}

// setupLogging installs the default slog logger: text on stderr, plus a
// rotating JSON file when --log is set.
func (s *session) setupLogging() error {
	level := slog.LevelWarn
	if s.opts.verbose {
		level = slog.LevelDebug
	} else if !s.opts.quiet {
		level = slog.LevelInfo
	}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	if s.opts.logFile != "" {
		if err := os.MkdirAll(filepath.Dir(s.opts.logFile), 0o755); err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   s.opts.logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			Compress:   true,
		}
		s.logFile = lj
		jsonHandler := slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = ui.NewMultiHandler(handler, jsonHandler)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		// A broken default config shouldn't block a one-off command.
		slog.Warn("failed to load config", "error", err)
		return config.Config{}, nil
	}
	return cfg, nil
}

// applyConfigDefaults applies config file defaults for flags not explicitly
// set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, cfg config.Config, opts *options) {
	changed := cmd.Flags().Changed
	d := cfg.Defaults
	if !changed("verify") && d.Verify != nil {
		opts.verify = *d.Verify
	}
	if !changed("bwlimit") && d.BWLimit != nil {
		opts.bwLimit = *d.BWLimit
	}
	if !changed("ssh-port") && cfg.SFTP.Port != nil {
		opts.sshPort = *cfg.SFTP.Port
	}
	if !changed("ssh-key") && cfg.SFTP.KeyFile != nil {
		opts.sshKeyFile = *cfg.SFTP.KeyFile
	}
	if !changed("insecure") && cfg.SFTP.Insecure != nil {
		opts.insecure = *cfg.SFTP.Insecure
	}
}

// resolve parses a CLI location, opening the volume it lives on when
// needed, and stats it.
func (s *session) resolve(ctx context.Context, arg string) (transport.Entry, error) {
	loc := transport.ParseLocation(arg)

	if !loc.IsRemote() && !loc.IsS3() {
		abs, err := filepath.Abs(loc.Path)
		if err != nil {
			return transport.Entry{}, fmt.Errorf("%s: %w", arg, err)
		}
		e, err := s.mux.LocalEntry(ctx, abs)
		if err != nil {
			return transport.Entry{}, fmt.Errorf("%s: %w", arg, err)
		}
		return e, nil
	}

	vol, err := s.volumeFor(ctx, loc)
	if err != nil {
		return transport.Entry{}, fmt.Errorf("%s: %w", loc, err)
	}
	p := loc.Path
	if sv, ok := vol.(*transport.SFTPVolume); ok {
		if p, err = sv.HomePath(p); err != nil {
			return transport.Entry{}, fmt.Errorf("%s: %w", loc, err)
		}
	}
	e, err := s.mux.Stat(ctx, transport.Entry{Volume: vol.ID(), Path: p})
	if err != nil {
		return transport.Entry{}, fmt.Errorf("%s: %w", loc, err)
	}
	return e, nil
}

func (s *session) resolveAll(ctx context.Context, args []string) ([]transport.Entry, error) {
	out := make([]transport.Entry, 0, len(args))
	for _, a := range args {
		e, err := s.resolve(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// volumeFor returns the registered volume for a remote location, dialing
// it on first use. Locations on the same host or bucket share a volume.
//
//nolint:ireturn // returns the registered implementation
func (s *session) volumeFor(ctx context.Context, loc transport.Location) (transport.Volume, error) {
	id := loc.VolumeID()
	if v, err := s.mux.Volume(id); err == nil {
		return v, nil
	}

	var (
		vol transport.Volume
		err error
	)
	if loc.IsS3() {
		vol, err = transport.NewS3Volume(id, loc.Host, s3Options(s.cfg.S3))
	} else {
		vol, err = transport.DialSFTPVolume(ctx, id, loc.Host, loc.User, transport.SSHOpts{
			KeyFile:  s.opts.sshKeyFile,
			Port:     s.opts.sshPort,
			Insecure: s.opts.insecure,
		})
	}
	if err != nil {
		return nil, err
	}
	s.mux.Register(vol)
	slog.Debug("opened volume", "id", id)
	return vol, nil
}

// s3Options fills the connection settings from config, falling back to the
// standard AWS environment variables.
func s3Options(c config.S3Config) transport.S3Options {
	opts := transport.S3Options{
		Endpoint:  "s3.amazonaws.com",
		AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Region:    os.Getenv("AWS_REGION"),
		Secure:    true,
	}
	if c.Endpoint != nil {
		opts.Endpoint = *c.Endpoint
	}
	if c.AccessKey != nil {
		opts.AccessKey = *c.AccessKey
	}
	if c.SecretKey != nil {
		opts.SecretKey = *c.SecretKey
	}
	if c.Region != nil {
		opts.Region = *c.Region
	}
	if c.Secure != nil {
		opts.Secure = *c.Secure
	}
	return opts
}

// present wires the manager's events through the optional log tee into a
// presenter running in the background. The returned function detaches it,
// waits for it to drain and prints the summary.
func (s *session) present(targetRoot string) (finish func()) {
	events := make(chan event.Event, 256)
	unsubscribe := s.manager.Subscribe(event.ToChannel(events))

	// When --log is set, tee events through a logging goroutine that writes
	// structured records before forwarding to the presenter.
	presenterEvents := (<-chan event.Event)(events)
	if s.opts.logFile != "" {
		teed := make(chan event.Event, 256)
		go func() {
			for ev := range events {
				logEvent(ev)
				teed <- ev
			}
			close(teed)
		}()
		presenterEvents = teed
	}

	presenter := ui.NewPresenter(ui.Config{
		Writer:     os.Stdout,
		ErrWriter:  os.Stderr,
		Stats:      s.collector,
		TargetRoot: targetRoot,
		IsTTY:      ui.IsTTY(os.Stderr),
		Width:      ui.TermWidth(os.Stderr),
		Quiet:      s.opts.quiet,
		NoProgress: s.opts.noProgress,
	})

	done := make(chan error, 1)
	go func() { done <- presenter.Run(presenterEvents) }()

	return func() {
		unsubscribe()
		close(events)
		if err := <-done; err != nil {
			fmt.Fprintf(os.Stderr, "presenter: %v\n", err)
		}
		if !s.opts.quiet {
			if summary := presenter.Summary(); summary != "" {
				fmt.Fprintln(os.Stderr, summary)
			}
		}
	}
}

func logEvent(ev event.Event) {
	attrs := []slog.Attr{slog.String("type", ev.Type.String())}
	if ev.TaskID != "" {
		attrs = append(attrs, slog.String("task", ev.TaskID))
	}
	if ev.Path != "" {
		attrs = append(attrs, slog.String("path", ev.Path))
	}
	if ev.Source != "" {
		attrs = append(attrs, slog.String("source", ev.Source))
	}
	if ev.JobID != 0 {
		attrs = append(attrs, slog.Int64("job", ev.JobID), slog.Int("count", ev.Count))
	}
	if ev.Type.Lifecycle() {
		attrs = append(attrs, slog.String("status", ev.Status.String()))
	}
	if ev.Error != nil {
		attrs = append(attrs, slog.String("error", ev.Error.Error()))
	}
	slog.LogAttrs(context.Background(), slog.LevelDebug, "courier.event", attrs...)
}

// waitTerminal blocks until the current batch ends. Interrupting ctx
// requests cancellation and keeps waiting for the CANCELLED event.
func waitTerminal(ctx context.Context, m *engine.Manager, terminal <-chan event.Event) event.Event {
	select {
	case ev := <-terminal:
		return ev
	case <-ctx.Done():
	}
	slog.Info("cancelling")
	m.RequestCancel(nil)
	return <-terminal
}

// terminalEvents subscribes a buffered channel receiving only terminal
// lifecycle events.
func terminalEvents(m *engine.Manager) (<-chan event.Event, func()) {
	ch := make(chan event.Event, 4)
	unsubscribe := m.Subscribe(func(ev event.Event) {
		if ev.Type.Terminal() {
			select {
			case ch <- ev:
			default:
			}
		}
	})
	return ch, unsubscribe
}

// exitFor maps a terminal event onto the process exit status.
func exitFor(ev event.Event, snap stats.Snapshot) error {
	switch ev.Type {
	case event.Success:
		return nil
	case event.Cancelled:
		return &exitError{code: exitCancelled}
	default:
		slog.Error("transfer failed", "error", ev.Error)
		if errors.Is(ev.Error, engine.ErrProtocolViolation) {
			return &exitError{code: exitFailed}
		}
		if snap.ItemsCopied+snap.ItemsMoved > 0 {
			return &exitError{code: exitPartial}
		}
		return &exitError{code: exitFailed}
	}
}
