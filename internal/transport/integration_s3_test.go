//go:build integration

package transport

import (
	"context"
	"io"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	minioUser     = "courier"
	minioPassword = "courier-secret"
)

// startMinio starts a minio server and returns a volume over a fresh bucket.
func startMinio(t *testing.T) *S3Volume {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Cmd:          []string{"server", "/data"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").
				WithPort("9000/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	}

	ctr, err := testcontainers.GenericContainer(ctx, req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	endpoint, err := ctr.PortEndpoint(ctx, "9000/tcp", "")
	require.NoError(t, err)

	v, err := NewS3Volume("s3://test", "test", S3Options{
		Endpoint:  endpoint,
		AccessKey: minioUser,
		SecretKey: minioPassword,
	})
	require.NoError(t, err)
	require.NoError(t, v.client.MakeBucket(ctx, "test", minio.MakeBucketOptions{}))
	return v
}

func writeS3(t *testing.T, v *S3Volume, p, content string) {
	t.Helper()
	w, err := v.OpenWrite(context.Background(), p)
	require.NoError(t, err)
	_, err = io.Copy(w, strings.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readS3(t *testing.T, v *S3Volume, p string) string {
	t.Helper()
	r, err := v.OpenRead(context.Background(), p)
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name()
	}
	return out
}

func TestIntegration_S3Volume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v := startMinio(t)

	t.Run("exclusive create", func(t *testing.T) {
		require.NoError(t, v.Mkdir(ctx, "/create"))
		require.NoError(t, v.CreateFile(ctx, "/create/f.txt"))

		require.ErrorIs(t, v.Mkdir(ctx, "/create"), ErrExists)
		require.ErrorIs(t, v.CreateFile(ctx, "/create/f.txt"), ErrExists)

		e, err := v.Stat(ctx, "/create")
		require.NoError(t, err)
		assert.True(t, e.IsDir)
		e, err = v.Stat(ctx, "/create/f.txt")
		require.NoError(t, err)
		assert.False(t, e.IsDir)
		assert.Zero(t, e.Size)
	})

	t.Run("stat implicit directory", func(t *testing.T) {
		writeS3(t, v, "/implicit/deep/file.txt", "x")

		e, err := v.Stat(ctx, "/implicit")
		require.NoError(t, err)
		assert.True(t, e.IsDir, "a prefix with children reads as a directory")

		_, err = v.Stat(ctx, "/missing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("read dir", func(t *testing.T) {
		require.NoError(t, v.Mkdir(ctx, "/list"))
		writeS3(t, v, "/list/a.txt", "aa")
		writeS3(t, v, "/list/sub/b.txt", "b")

		entries, err := v.ReadDir(ctx, "/list")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a.txt", "sub"}, names(entries))
		for _, e := range entries {
			assert.Equal(t, e.Name() == "sub", e.IsDir, e.Path)
		}
	})

	t.Run("write and copy", func(t *testing.T) {
		writeS3(t, v, "/copy/src.txt", "payload")
		require.NoError(t, v.Copy(ctx, "/copy/src.txt", "/copy/dst.txt"))
		assert.Equal(t, "payload", readS3(t, v, "/copy/dst.txt"))
		assert.Equal(t, "payload", readS3(t, v, "/copy/src.txt"))

		_, err := v.OpenRead(ctx, "/copy/none.txt")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rename directory", func(t *testing.T) {
		require.NoError(t, v.Mkdir(ctx, "/old"))
		writeS3(t, v, "/old/x.txt", "x")
		writeS3(t, v, "/old/nested/y.txt", "y")
		require.NoError(t, v.Mkdir(ctx, "/taken"))

		require.ErrorIs(t, v.Rename(ctx, "/old", "/taken"), ErrExists)
		require.NoError(t, v.Rename(ctx, "/old", "/new"))

		assert.Equal(t, "x", readS3(t, v, "/new/x.txt"))
		assert.Equal(t, "y", readS3(t, v, "/new/nested/y.txt"))
		_, err := v.Stat(ctx, "/old")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("remove all", func(t *testing.T) {
		require.NoError(t, v.Mkdir(ctx, "/trash"))
		writeS3(t, v, "/trash/a.txt", "a")
		writeS3(t, v, "/trash/sub/b.txt", "b")

		require.NoError(t, v.RemoveAll(ctx, "/trash"))
		_, err := v.Stat(ctx, "/trash")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("abort discards upload", func(t *testing.T) {
		w, err := v.OpenWrite(ctx, "/aborted.txt")
		require.NoError(t, err)
		_, err = w.Write([]byte("partial"))
		require.NoError(t, err)
		require.NoError(t, Abort(w))

		_, err = v.Stat(ctx, "/aborted.txt")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestIntegration_S3StatReleasesListing(t *testing.T) {
	ctx := context.Background()
	v := startMinio(t)
	for i := range 5 {
		writeS3(t, v, "/many/f"+strconv.Itoa(i)+".txt", "x")
	}

	_, err := v.Stat(ctx, "/many")
	require.NoError(t, err)
	before := runtime.NumGoroutine()
	for range 50 {
		e, err := v.Stat(ctx, "/many")
		require.NoError(t, err)
		require.True(t, e.IsDir)
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+5
	}, 5*time.Second, 50*time.Millisecond, "directory stat leaks listing goroutines")
}
