//go:build integration

package engine_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bamsammich/courier/internal/engine"
	"github.com/bamsammich/courier/internal/event"
	"github.com/bamsammich/courier/internal/transport"
)

// startSFTPContainer starts an atmoz/sftp container with the given directory
// bind-mounted at /home/testuser/data. Returns host and port for SSH.
func startSFTPContainer(t *testing.T, bindMountDir string) (host string, port int) {
	t.Helper()
	ctx := context.Background()

	// Use the host user's uid/gid so files written via SFTP are owned by the
	// test process, allowing t.TempDir() cleanup to delete them.
	userSpec := fmt.Sprintf("testuser:testpass:%d:%d:data", os.Getuid(), os.Getgid())

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "atmoz/sftp:latest",
			ExposedPorts: []string{"22/tcp"},
			Cmd:          []string{userSpec},
			Mounts: testcontainers.Mounts(
				testcontainers.BindMount(bindMountDir, "/home/testuser/data"),
			),
			WaitingFor: wait.ForListeningPort("22/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	}

	ctr, err := testcontainers.GenericContainer(ctx, req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	h, err := ctr.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := ctr.MappedPort(ctx, "22/tcp")
	require.NoError(t, err)
	p, err := strconv.Atoi(mappedPort.Port())
	require.NoError(t, err)
	return h, p
}

// dialSFTP connects with password auth, retrying while sshd starts.
func dialSFTP(t *testing.T, host string, port int) *transport.SFTPVolume {
	t.Helper()
	opts := transport.SSHOpts{Password: "testpass", Port: port, Insecure: true}

	var (
		v   *transport.SFTPVolume
		err error
	)
	for range 10 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		v, err = transport.DialSFTPVolume(ctx, "sftp://testuser@"+host, host, "testuser", opts)
		cancel()
		if err == nil {
			return v
		}
		time.Sleep(500 * time.Millisecond)
	}
	require.NoError(t, err, "failed to connect to SFTP container at %s:%d after retries", host, port)
	return nil
}

// createTestTree populates root with:
//
//	root.txt          (17 bytes)
//	big.bin           (320KB)
//	sub/mid.txt       (19 bytes)
//	sub/deep/leaf.txt (17 bytes)
func createTestTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "root.txt"), []byte("root file content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), bytes.Repeat([]byte("ABCDEFGHIJKLMNOP"), 20000), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "mid.txt"), []byte("middle file content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "deep", "leaf.txt"), []byte("leaf file content"), 0o644))
}

func verifyTreeCopy(t *testing.T, srcRoot, dstRoot string) {
	t.Helper()
	for _, rel := range []string{
		"root.txt",
		"big.bin",
		filepath.Join("sub", "mid.txt"),
		filepath.Join("sub", "deep", "leaf.txt"),
	} {
		srcData, err := os.ReadFile(filepath.Join(srcRoot, rel))
		require.NoError(t, err, "read src %s", rel)
		dstData, err := os.ReadFile(filepath.Join(dstRoot, rel))
		require.NoError(t, err, "read dst %s", rel)
		require.Equal(t, srcData, dstData, "content mismatch: %s", rel)
	}
}

// runPaste copies the children of src into dst and waits for the batch to
// finish. The container chroots the user, so its data lives at /data.
func runPaste(t *testing.T, mux *transport.Mux, src, dst transport.Entry) event.Event {
	t.Helper()
	ctx := context.Background()

	m := engine.New(mux, engine.Config{Verify: true})
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	done := make(chan event.Event, 1)
	m.Subscribe(func(ev event.Event) {
		if ev.Type.Terminal() {
			done <- ev
		}
	})

	children, err := mux.ReadDir(ctx, src)
	require.NoError(t, err)
	require.NoError(t, m.Paste(ctx, children, dst, false))
	m.Start()

	select {
	case ev := <-done:
		return ev
	case <-time.After(time.Minute):
		t.Fatal("transfer did not finish")
		return event.Event{}
	}
}

func TestIntegration_LocalToSFTP(t *testing.T) {
	t.Parallel()
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	createTestTree(t, srcDir)
	// chmod 0777 so the container user can write.
	require.NoError(t, os.Chmod(dstDir, 0o777))

	host, port := startSFTPContainer(t, dstDir)
	remote := dialSFTP(t, host, port)
	local := transport.NewLocalVolume("local", srcDir)
	mux := transport.NewMux([]transport.Volume{local, remote})
	t.Cleanup(func() { _ = mux.Close() })

	ev := runPaste(t, mux,
		transport.Entry{Volume: local.ID(), Path: "/", IsDir: true},
		transport.Entry{Volume: remote.ID(), Path: "/data", IsDir: true},
	)
	require.Equal(t, event.Success, ev.Type, "error: %v", ev.Error)
	verifyTreeCopy(t, srcDir, dstDir)
}

func TestIntegration_SFTPToLocal(t *testing.T) {
	t.Parallel()
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	createTestTree(t, srcDir)
	// chmod 0777 so the container can read the bind-mounted source.
	require.NoError(t, os.Chmod(srcDir, 0o777))

	host, port := startSFTPContainer(t, srcDir)
	remote := dialSFTP(t, host, port)
	local := transport.NewLocalVolume("local", dstDir)
	mux := transport.NewMux([]transport.Volume{local, remote})
	t.Cleanup(func() { _ = mux.Close() })

	ev := runPaste(t, mux,
		transport.Entry{Volume: remote.ID(), Path: "/data", IsDir: true},
		transport.Entry{Volume: local.ID(), Path: "/", IsDir: true},
	)
	require.Equal(t, event.Success, ev.Type, "error: %v", ev.Error)
	verifyTreeCopy(t, srcDir, dstDir)
}
