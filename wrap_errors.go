package tfs

import (
	"errors"
	"syscall"

	"github.com/fooloaths/tfs/internal/blockpool"
	"github.com/fooloaths/tfs/internal/directory"
	"github.com/fooloaths/tfs/internal/inode"
	"github.com/fooloaths/tfs/internal/openfile"
)

// errnoTable maps the sentinel errors the internal packages return to the
// POSIX errno code the public API reports for them.
var errnoTable = []struct {
	sentinel error
	errno    syscall.Errno
}{
	{directory.ErrNotFound, syscall.ENOENT},
	{directory.ErrExists, syscall.EEXIST},
	{directory.ErrFull, syscall.ENOSPC},
	{directory.ErrNameTooLong, syscall.ENAMETOOLONG},
	{directory.ErrEmptyName, syscall.EINVAL},
	{inode.ErrOutOfInodes, syscall.ENOSPC},
	{inode.ErrFileTooLarge, syscall.EFBIG},
	{inode.ErrInvalidInumber, syscall.EBADF},
	{inode.ErrNotAllocated, syscall.EBADF},
	{inode.ErrIsRoot, syscall.EPERM},
	{blockpool.ErrOutOfSpace, syscall.ENOSPC},
	{blockpool.ErrInvalidBlockID, syscall.EBADF},
	{openfile.ErrTableFull, syscall.EMFILE},
	{openfile.ErrInvalidHandle, syscall.EBADF},
}

// wrapError translates an internal sentinel error into a *DriverError
// carrying the matching errno, preserving the original message. Errors it
// doesn't recognize are reported as EIO; nil passes through unchanged.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*DriverError); ok {
		return err
	}

	for _, entry := range errnoTable {
		if errors.Is(err, entry.sentinel) {
			return NewDriverErrorFromError(entry.errno, err)
		}
	}
	return NewDriverErrorFromError(syscall.EIO, err)
}
