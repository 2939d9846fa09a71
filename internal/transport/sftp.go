package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/ssh"
)

var _ Volume = (*SFTPVolume)(nil)

// SFTPVolume is a remote volume served over SFTP. Volume paths are joined
// onto root on the server.
type SFTPVolume struct {
	client *sftp.Client
	ssh    *ssh.Client
	id     string
	root   string
}

// NewSFTPVolume opens an SFTP session on sshClient. The volume owns the SSH
// connection and closes it on Close.
func NewSFTPVolume(id string, sshClient *ssh.Client, root string) (*SFTPVolume, error) {
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, fmt.Errorf("sftp client: %w", err)
	}
	if root == "" {
		root = "/"
	}
	return &SFTPVolume{
		client: sftpClient,
		ssh:    sshClient,
		id:     id,
		root:   root,
	}, nil
}

func (v *SFTPVolume) ID() string { return v.id }
func (*SFTPVolume) Remote() bool { return true }

// HomePath converts a path given relative to the login directory (as in
// "host:dir/file") into a volume path.
func (v *SFTPVolume) HomePath(p string) (string, error) {
	if path.IsAbs(p) {
		return path.Clean(p), nil
	}
	wd, err := v.client.Getwd()
	if err != nil {
		return "", fmt.Errorf("sftp getwd: %w", err)
	}
	return path.Join(wd, p), nil
}

func (v *SFTPVolume) abs(p string) string { return path.Join(v.root, clean(p)) }

func (v *SFTPVolume) Stat(_ context.Context, p string) (Entry, error) {
	info, err := v.client.Stat(v.abs(p))
	if err != nil {
		return Entry{}, mapSFTPErr(err)
	}
	return entryFromInfo(v.id, clean(p), info), nil
}

func (v *SFTPVolume) ReadDir(_ context.Context, p string) ([]Entry, error) {
	absPath := v.abs(p)
	infos, err := v.client.ReadDir(absPath)
	if err != nil {
		return nil, fmt.Errorf("sftp readdir %s: %w", absPath, mapSFTPErr(err))
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entryFromInfo(v.id, path.Join(clean(p), info.Name()), info))
	}
	return entries, nil
}

// Mkdir checks occupancy first: servers report an existing directory as a
// generic failure.
func (v *SFTPVolume) Mkdir(_ context.Context, p string) error {
	absPath := v.abs(p)
	if _, err := v.client.Lstat(absPath); err == nil {
		return fmt.Errorf("sftp mkdir %s: %w", absPath, ErrExists)
	}
	if err := v.client.Mkdir(absPath); err != nil {
		return fmt.Errorf("sftp mkdir %s: %w", absPath, mapSFTPErr(err))
	}
	return nil
}

func (v *SFTPVolume) CreateFile(_ context.Context, p string) error {
	absPath := v.abs(p)
	f, err := v.client.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
	if err != nil {
		if _, statErr := v.client.Lstat(absPath); statErr == nil {
			return fmt.Errorf("sftp create %s: %w", absPath, ErrExists)
		}
		return fmt.Errorf("sftp create %s: %w", absPath, mapSFTPErr(err))
	}
	return f.Close()
}

// OpenWrite uploads into a uuid-named temp file and renames it over p on
// Close.
func (v *SFTPVolume) OpenWrite(_ context.Context, p string) (io.WriteCloser, error) {
	absPath := v.abs(p)
	tmpPath := path.Join(
		path.Dir(absPath),
		fmt.Sprintf(".%s.%s.courier-tmp", path.Base(absPath), uuid.New().String()[:8]),
	)
	f, err := v.client.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("sftp create temp %s: %w", tmpPath, mapSFTPErr(err))
	}
	return &sftpWriteFile{File: f, client: v.client, tmpPath: tmpPath, finalPath: absPath}, nil
}

func (v *SFTPVolume) OpenRead(_ context.Context, p string) (io.ReadCloser, error) {
	f, err := v.client.Open(v.abs(p))
	if err != nil {
		return nil, mapSFTPErr(err)
	}
	return f, nil
}

func (v *SFTPVolume) Rename(_ context.Context, oldPath, newPath string) error {
	newAbs := v.abs(newPath)
	if _, err := v.client.Lstat(newAbs); err == nil {
		return fmt.Errorf("sftp rename to %s: %w", newAbs, ErrExists)
	}
	if err := v.client.Rename(v.abs(oldPath), newAbs); err != nil {
		return fmt.Errorf("sftp rename to %s: %w", newAbs, mapSFTPErr(err))
	}
	return nil
}

func (v *SFTPVolume) RemoveAll(_ context.Context, p string) error {
	if err := removeAllSFTP(v.client, v.abs(p)); err != nil {
		return mapSFTPErr(err)
	}
	return nil
}

func (v *SFTPVolume) Chtimes(_ context.Context, p string, mtime time.Time) error {
	if err := v.client.Chtimes(v.abs(p), mtime, mtime); err != nil {
		return fmt.Errorf("sftp chtimes %s: %w", p, mapSFTPErr(err))
	}
	return nil
}

func (v *SFTPVolume) Close() error {
	err := v.client.Close()
	if sshErr := v.ssh.Close(); sshErr != nil && err == nil {
		err = sshErr
	}
	return err
}

// sftpWriteFile is the temp upload behind OpenWrite.
type sftpWriteFile struct {
	*sftp.File
	client    *sftp.Client
	tmpPath   string
	finalPath string
}

func (f *sftpWriteFile) Close() error {
	if err := f.File.Close(); err != nil {
		_ = f.client.Remove(f.tmpPath)
		return err
	}
	// Rename fails on most servers when the target exists.
	_ = f.client.Remove(f.finalPath)
	if err := f.client.Rename(f.tmpPath, f.finalPath); err != nil {
		_ = f.client.Remove(f.tmpPath)
		return fmt.Errorf("sftp rename temp to %s: %w", f.finalPath, err)
	}
	return nil
}

func (f *sftpWriteFile) Abort() error {
	_ = f.File.Close()
	return f.client.Remove(f.tmpPath)
}

// HashReader computes the hex-encoded BLAKE3 digest of r.
func HashReader(r io.Reader) (string, error) {
	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// removeAllSFTP recursively removes a directory over SFTP.
func removeAllSFTP(client *sftp.Client, absPath string) error {
	info, err := client.Lstat(absPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return client.Remove(absPath)
	}

	entries, err := client.ReadDir(absPath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		childPath := path.Join(absPath, entry.Name())
		if entry.IsDir() {
			if err := removeAllSFTP(client, childPath); err != nil {
				return err
			}
		} else {
			if err := client.Remove(childPath); err != nil {
				return err
			}
		}
	}
	return client.RemoveDirectory(absPath)
}

func mapSFTPErr(err error) error {
	var status *sftp.StatusError
	if errors.As(err, &status) && status.FxCode() == sftp.ErrSSHFxNoSuchFile {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
