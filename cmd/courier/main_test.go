package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/courier/internal/config"
	"github.com/bamsammich/courier/internal/engine"
	"github.com/bamsammich/courier/internal/event"
	"github.com/bamsammich/courier/internal/filter"
	"github.com/bamsammich/courier/internal/stats"
	"github.com/bamsammich/courier/internal/transport"
)

func TestSameParent(t *testing.T) {
	a := transport.Entry{Volume: "local", Path: "/d/a"}
	b := transport.Entry{Volume: "local", Path: "/d/b", IsDir: true}
	c := transport.Entry{Volume: "local", Path: "/e/c"}
	other := transport.Entry{Volume: "usb", Path: "/d/x"}

	require.NoError(t, sameParent([]transport.Entry{a}))
	require.NoError(t, sameParent([]transport.Entry{a, b}))
	require.Error(t, sameParent([]transport.Entry{a, c}))
	require.Error(t, sameParent([]transport.Entry{a, other}))
}

func TestBuildFilter(t *testing.T) {
	opts := &options{chain: filter.NewChain()}
	chain, err := buildFilter(opts)
	require.NoError(t, err)
	assert.Nil(t, chain, "no rules means no filter")

	opts.minSize = "1K"
	chain, err = buildFilter(opts)
	require.NoError(t, err)
	require.NotNil(t, chain)
	assert.False(t, chain.Match("small.txt", false, 10))
	assert.True(t, chain.Match("big.txt", false, 4096))

	opts.maxSize = "nope"
	_, err = buildFilter(opts)
	require.Error(t, err)
}

func TestBuildFilterFile(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules")
	require.NoError(t, os.WriteFile(rules, []byte("- *.tmp\n"), 0o644))

	opts := &options{chain: filter.NewChain(), filterFile: rules}
	chain, err := buildFilter(opts)
	require.NoError(t, err)
	require.NotNil(t, chain)
	assert.False(t, chain.Match("x.tmp", false, 1))
	assert.True(t, chain.Match("x.txt", false, 1))
}

func TestFilterFlagPreservesOrder(t *testing.T) {
	opts := &options{chain: filter.NewChain()}
	cmd := &cobra.Command{Use: "copy"}
	addFilterFlags(cmd.Flags(), opts)
	require.NoError(t, cmd.Flags().Parse([]string{"--include", "keep.log", "--exclude", "*.log"}))

	assert.False(t, opts.chain.Match("drop.log", false, 1))
	assert.True(t, opts.chain.Match("keep.log", false, 1))
}

func TestApplyConfigDefaults(t *testing.T) {
	verify := true
	bw := "10M"
	port := 2222
	cfg := config.Config{
		Defaults: config.DefaultsConfig{Verify: &verify, BWLimit: &bw},
		SFTP:     config.SFTPConfig{Port: &port},
	}

	cmd := &cobra.Command{Use: "copy"}
	opts := &options{}
	cmd.Flags().StringVar(&opts.bwLimit, "bwlimit", "", "")
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "")
	cmd.Flags().IntVar(&opts.sshPort, "ssh-port", 22, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--bwlimit", "1M"}))

	applyConfigDefaults(cmd, cfg, opts)
	assert.True(t, opts.verify)
	assert.Equal(t, "1M", opts.bwLimit, "explicit flag wins")
	assert.Equal(t, 2222, opts.sshPort)
}

func TestS3Options(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "env-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("AWS_REGION", "")

	opts := s3Options(config.S3Config{})
	assert.Equal(t, "s3.amazonaws.com", opts.Endpoint)
	assert.Equal(t, "env-key", opts.AccessKey)
	assert.True(t, opts.Secure)

	endpoint, secret, secure := "minio:9000", "cfg-secret", false
	opts = s3Options(config.S3Config{Endpoint: &endpoint, SecretKey: &secret, Secure: &secure})
	assert.Equal(t, "minio:9000", opts.Endpoint)
	assert.Equal(t, "env-key", opts.AccessKey)
	assert.Equal(t, "cfg-secret", opts.SecretKey)
	assert.False(t, opts.Secure)
}

func TestExitFor(t *testing.T) {
	code := func(err error) int {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		return exitOK
	}

	assert.Equal(t, exitOK, code(exitFor(event.Event{Type: event.Success}, stats.Snapshot{})))
	assert.Equal(t, exitCancelled, code(exitFor(event.Event{Type: event.Cancelled}, stats.Snapshot{})))

	failed := event.Event{Type: event.Error, Error: engine.ErrFilesystem}
	assert.Equal(t, exitFailed, code(exitFor(failed, stats.Snapshot{})))
	assert.Equal(t, exitPartial, code(exitFor(failed, stats.Snapshot{ItemsCopied: 2})))
}

func TestWaitLabel(t *testing.T) {
	assert.Equal(t, "30s", waitLabel(0))
	assert.Equal(t, "5s", waitLabel(5*time.Second))
}

func TestAwaitDelete(t *testing.T) {
	src := transport.NewMemoryVolume("m", false)
	require.NoError(t, src.WriteFile("/a.txt", []byte("a")))
	mux := transport.NewMux([]transport.Volume{src})
	m := engine.New(mux, engine.Config{DeleteDelay: time.Hour})
	m.Start()
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	finished := make(chan event.Event, 1)
	m.Subscribe(func(ev event.Event) {
		if ev.Type == event.DeleteSucceeded || ev.Type == event.DeleteCancelled {
			finished <- ev
		}
	})

	e, err := mux.Stat(context.Background(), transport.Entry{Volume: "m", Path: "/a.txt"})
	require.NoError(t, err)
	id, err := m.Delete([]transport.Entry{e})
	require.NoError(t, err)

	sigs := make(chan os.Signal, 1)
	sigs <- os.Interrupt
	err = awaitDelete(context.Background(), m, id, finished, sigs)

	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitCancelled, exitErr.code)
	_, statErr := src.Stat(context.Background(), "/a.txt")
	assert.NoError(t, statErr, "undone delete leaves the file")
}
