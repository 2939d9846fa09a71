package engine

import (
	"errors"
	"fmt"

	"github.com/bamsammich/courier/internal/transport"
)

var (
	// ErrCancelled reports a batch stopped by RequestCancel. It is not a
	// failure.
	ErrCancelled = errors.New("operation cancelled")
	// ErrUnexpectedSourceEntry reports an entry outside its task's source
	// root.
	ErrUnexpectedSourceEntry = errors.New("unexpected source entry")
	// ErrTargetExists reports that conflict resolution ran out of names.
	ErrTargetExists = errors.New("target exists")
	// ErrFilesystem wraps any error reported by the filesystem.
	ErrFilesystem = errors.New("filesystem error")
	// ErrProtocolViolation reports a broken engine invariant, such as an
	// out-of-order completion.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrChecksumMismatch is wrapped in a FilesystemError when a copied file
	// fails verification.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("manager closed")
	// ErrNotPrepared is returned by Enqueue for a task whose entries were
	// never enumerated.
	ErrNotPrepared = errors.New("task not prepared")
)

// UnexpectedSourceEntryError carries the entry that escaped its root.
type UnexpectedSourceEntryError struct {
	Path string
	Root string
}

func (e *UnexpectedSourceEntryError) Error() string {
	return fmt.Sprintf("unexpected source entry %s: not under %s", e.Path, e.Root)
}

func (*UnexpectedSourceEntryError) Is(target error) bool {
	return target == ErrUnexpectedSourceEntry
}

// TargetExistsError carries the entry found at the first probed name.
type TargetExistsError struct {
	Entry transport.Entry
}

func (e *TargetExistsError) Error() string {
	return fmt.Sprintf("target exists: %s", e.Entry.URL())
}

func (*TargetExistsError) Is(target error) bool {
	return target == ErrTargetExists
}

// FilesystemError wraps a filesystem failure with the operation and the
// entry it concerned.
type FilesystemError struct {
	Err  error
	Op   string
	Path string
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

func (*FilesystemError) Is(target error) bool {
	return target == ErrFilesystem
}

// ProtocolViolationError describes the broken invariant.
type ProtocolViolationError struct {
	Msg string
}

func (e *ProtocolViolationError) Error() string {
	return "protocol violation: " + e.Msg
}

func (*ProtocolViolationError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// fsError wraps err as a FilesystemError unless it already is one.
func fsError(op string, e transport.Entry, err error) error {
	if err == nil {
		return nil
	}
	var fe *FilesystemError
	if errors.As(err, &fe) {
		return err
	}
	return &FilesystemError{Op: op, Path: e.URL(), Err: err}
}
