package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	_ Volume = (*S3Volume)(nil)
	_ Copier = (*S3Volume)(nil)
)

// S3Options configures the connection behind an S3Volume.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// S3Volume is a remote volume backed by one bucket of an S3-compatible
// object store. Directories are zero-byte marker objects whose key ends in
// "/"; a prefix with children but no marker also reads as a directory.
type S3Volume struct {
	client *minio.Client
	id     string
	bucket string
}

// NewS3Volume connects to the object store described by opts.
func NewS3Volume(id, bucket string, opts S3Options) (*S3Volume, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client %s: %w", opts.Endpoint, err)
	}
	return &S3Volume{client: client, id: id, bucket: bucket}, nil
}

func (v *S3Volume) ID() string { return v.id }
func (*S3Volume) Remote() bool { return true }
func (*S3Volume) Close() error { return nil }

func objectKey(p string) string { return strings.TrimPrefix(clean(p), "/") }

func dirKey(p string) string {
	k := objectKey(p)
	if k == "" {
		return ""
	}
	return k + "/"
}

func (v *S3Volume) Stat(ctx context.Context, p string) (Entry, error) {
	p = clean(p)
	if p == "/" {
		return Entry{Volume: v.id, Path: "/", IsDir: true}, nil
	}

	info, err := v.client.StatObject(ctx, v.bucket, objectKey(p), minio.StatObjectOptions{})
	if err == nil {
		return Entry{Volume: v.id, Path: p, Size: info.Size, ModTime: info.LastModified}, nil
	}
	if !isNoSuchKey(err) {
		return Entry{}, fmt.Errorf("s3 stat %s: %w", p, err)
	}

	// No object: a directory if anything lives under the prefix.
	objs, err := v.list(ctx, minio.ListObjectsOptions{Prefix: dirKey(p), MaxKeys: 1})
	if err != nil {
		return Entry{}, fmt.Errorf("s3 list %s: %w", p, err)
	}
	if len(objs) == 0 {
		return Entry{}, fmt.Errorf("s3 stat %s: %w", p, ErrNotFound)
	}
	return Entry{Volume: v.id, Path: p, IsDir: true, ModTime: objs[0].LastModified}, nil
}

// list collects the listing under opts, stopping after MaxKeys objects when
// set. The listing goroutine is released on return.
func (v *S3Volume) list(ctx context.Context, opts minio.ListObjectsOptions) ([]minio.ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var objs []minio.ObjectInfo
	for obj := range v.client.ListObjects(ctx, v.bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		objs = append(objs, obj)
		if opts.MaxKeys > 0 && len(objs) >= opts.MaxKeys {
			break
		}
	}
	return objs, nil
}

func (v *S3Volume) ReadDir(ctx context.Context, p string) ([]Entry, error) {
	p = clean(p)
	prefix := dirKey(p)
	objs, err := v.list(ctx, minio.ListObjectsOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("s3 list %s: %w", p, err)
	}
	var entries []Entry
	for _, obj := range objs {
		if obj.Key == prefix {
			continue // the directory marker itself
		}
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), "/")
		entries = append(entries, Entry{
			Volume:  v.id,
			Path:    path.Join(p, name),
			Size:    obj.Size,
			ModTime: obj.LastModified,
			IsDir:   strings.HasSuffix(obj.Key, "/"),
		})
	}
	return entries, nil
}

func (v *S3Volume) Mkdir(ctx context.Context, p string) error {
	if err := v.ensureFree(ctx, p); err != nil {
		return err
	}
	return v.put(ctx, dirKey(p), nil)
}

func (v *S3Volume) CreateFile(ctx context.Context, p string) error {
	if err := v.ensureFree(ctx, p); err != nil {
		return err
	}
	return v.put(ctx, objectKey(p), nil)
}

// OpenWrite streams into PutObject through a pipe. The object is replaced
// when the writer is closed and the upload completes.
func (v *S3Volume) OpenWrite(ctx context.Context, p string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	w := &s3WriteFile{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := v.client.PutObject(ctx, v.bucket, objectKey(p), pr, -1, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

func (v *S3Volume) OpenRead(ctx context.Context, p string) (io.ReadCloser, error) {
	if _, err := v.client.StatObject(ctx, v.bucket, objectKey(p), minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("s3 open %s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("s3 open %s: %w", p, err)
	}
	obj, err := v.client.GetObject(ctx, v.bucket, objectKey(p), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3 open %s: %w", p, err)
	}
	return obj, nil
}

// Rename copies every object under oldPath to newPath and then deletes the
// originals. Not atomic.
func (v *S3Volume) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := v.ensureFree(ctx, newPath); err != nil {
		return err
	}
	src, err := v.Stat(ctx, oldPath)
	if err != nil {
		return err
	}
	if !src.IsDir {
		if err := v.Copy(ctx, oldPath, newPath); err != nil {
			return err
		}
		return v.remove(ctx, objectKey(oldPath))
	}

	oldPrefix, newPrefix := dirKey(oldPath), dirKey(newPath)
	objs, err := v.list(ctx, minio.ListObjectsOptions{Prefix: oldPrefix, Recursive: true})
	if err != nil {
		return fmt.Errorf("s3 list %s: %w", oldPath, err)
	}
	var moved []string
	for _, obj := range objs {
		dst := newPrefix + strings.TrimPrefix(obj.Key, oldPrefix)
		if err := v.copyKey(ctx, obj.Key, dst); err != nil {
			return err
		}
		moved = append(moved, obj.Key)
	}
	for _, key := range moved {
		if err := v.remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (v *S3Volume) RemoveAll(ctx context.Context, p string) error {
	entry, err := v.Stat(ctx, p)
	if err != nil {
		return err
	}
	if !entry.IsDir {
		return v.remove(ctx, objectKey(p))
	}
	objs, err := v.list(ctx, minio.ListObjectsOptions{Prefix: dirKey(p), Recursive: true})
	if err != nil {
		return fmt.Errorf("s3 list %s: %w", p, err)
	}
	for _, obj := range objs {
		if err := v.remove(ctx, obj.Key); err != nil {
			return err
		}
	}
	return nil
}

// Chtimes is unsupported: object stores set LastModified on write.
func (*S3Volume) Chtimes(context.Context, string, time.Time) error {
	return ErrUnsupported
}

// Copy performs a server-side object copy.
func (v *S3Volume) Copy(ctx context.Context, src, dst string) error {
	return v.copyKey(ctx, objectKey(src), objectKey(dst))
}

func (v *S3Volume) copyKey(ctx context.Context, srcKey, dstKey string) error {
	_, err := v.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: v.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: v.bucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("s3 copy %s to %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (v *S3Volume) ensureFree(ctx context.Context, p string) error {
	_, err := v.Stat(ctx, p)
	switch {
	case err == nil:
		return fmt.Errorf("s3 %s: %w", p, ErrExists)
	case isNotFound(err):
		return nil
	default:
		return err
	}
}

func (v *S3Volume) put(ctx context.Context, key string, data []byte) error {
	_, err := v.client.PutObject(ctx, v.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (v *S3Volume) remove(ctx context.Context, key string) error {
	if err := v.client.RemoveObject(ctx, v.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3 remove %s: %w", key, err)
	}
	return nil
}

// s3WriteFile feeds an in-flight PutObject.
type s3WriteFile struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *s3WriteFile) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *s3WriteFile) Close() error {
	_ = w.pw.Close()
	return <-w.done
}

func (w *s3WriteFile) Abort() error {
	_ = w.pw.CloseWithError(ErrAborted)
	<-w.done
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
