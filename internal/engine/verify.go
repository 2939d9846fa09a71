package engine

import (
	"context"
	"fmt"

	"github.com/bamsammich/courier/internal/transport"
)

// verify compares BLAKE3 digests of src and dst.
func (m *Manager) verify(ctx context.Context, src, dst transport.Entry) error {
	srcHash, err := m.hashEntry(ctx, src)
	if err != nil {
		return err
	}
	dstHash, err := m.hashEntry(ctx, dst)
	if err != nil {
		return err
	}
	if srcHash != dstHash {
		m.collector.AddVerifyFailed(1)
		return &FilesystemError{
			Op:   "verify",
			Path: dst.URL(),
			Err:  fmt.Errorf("%w: source %s, target %s", ErrChecksumMismatch, srcHash[:12], dstHash[:12]),
		}
	}
	m.collector.AddVerified(1)
	return nil
}

func (m *Manager) hashEntry(ctx context.Context, e transport.Entry) (string, error) {
	r, err := m.fs.OpenRead(ctx, e)
	if err != nil {
		return "", fsError("open", e, err)
	}
	defer r.Close()
	h, err := transport.HashReader(r)
	if err != nil {
		return "", fsError("hash", e, err)
	}
	return h, nil
}
