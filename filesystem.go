// Package tfs implements a tiny in-memory POSIX-like filesystem: a flat,
// single-directory namespace over a fixed-size simulated disk, with a
// concurrent file API modeled on open(2)/read(2)/write(2)/close(2).
package tfs

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/hashicorp/go-multierror"

	"github.com/fooloaths/tfs/config"
	"github.com/fooloaths/tfs/internal/blockpool"
	"github.com/fooloaths/tfs/internal/directory"
	"github.com/fooloaths/tfs/internal/inode"
	"github.com/fooloaths/tfs/internal/openfile"
	"github.com/fooloaths/tfs/internal/rwengine"
)

// Handle identifies one open file. It stays valid from Open until the
// matching CloseHandle.
type Handle = openfile.Handle

// Inumber identifies a file's inode slot, as returned by Lookup and
// reported in FileStat.
type Inumber = inode.Inumber

// Filesystem is one instance of TFS: a block pool, an inode table, a flat
// directory, and an open-file table, all sized from a single Config at
// creation time.
type Filesystem struct {
	cfg       config.Config
	pool      *blockpool.Pool
	inodes    *inode.Table
	dir       *directory.Directory
	openFiles *openfile.Table
}

// New builds a fresh, empty filesystem. The entire simulated disk is
// allocated up front; nothing grows or shrinks past what cfg describes.
func New(cfg config.Config) (*Filesystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool := blockpool.New(cfg.BlockSize, cfg.DataBlocks, cfg.SimulatedLatency)
	inodes := inode.New(cfg, pool)
	dir, err := directory.New(cfg, pool, inodes)
	if err != nil {
		return nil, wrapError(err)
	}

	return &Filesystem{
		cfg:       cfg,
		pool:      pool,
		inodes:    inodes,
		dir:       dir,
		openFiles: openfile.New(cfg),
	}, nil
}

// Close tears down the filesystem, closing every handle still open and
// deleting every file inode along with its blocks. It aggregates every
// teardown failure rather than stopping at the first, since leaving later
// handles dangling would be worse than reporting a multi-error.
func (fs *Filesystem) Close() error {
	var result *multierror.Error

	for h := Handle(0); uint(h) < fs.cfg.MaxOpenFiles; h++ {
		if _, err := fs.openFiles.Get(h); err != nil {
			continue
		}
		if err := fs.openFiles.Remove(h); err != nil {
			result = multierror.Append(result, err)
		}
	}

	for n := Inumber(0); uint(n) < fs.cfg.InodeTableSize; n++ {
		if n == inode.RootInumber {
			continue
		}
		err := fs.inodes.Delete(n)
		if err != nil && !errors.Is(err, inode.ErrNotAllocated) {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// Lookup resolves name to its inumber without opening it.
func (fs *Filesystem) Lookup(name string) (Inumber, error) {
	n, err := fs.dir.Find(name)
	if err != nil {
		return 0, wrapError(err)
	}
	return n, nil
}

// Create makes a new, empty file named name. It fails with EEXIST if the
// name is already taken.
func (fs *Filesystem) Create(name string) error {
	n, err := fs.inodes.Create(inode.KindFile)
	if err != nil {
		return wrapError(err)
	}

	if err := fs.dir.Add(name, n); err != nil {
		// Roll back the inode we just claimed; a failed Create must not
		// leak a slot.
		_ = fs.inodes.Delete(n)
		return wrapError(err)
	}
	return nil
}

// Open returns a Handle for name, open for reading and writing. OpenCreate
// makes the file first if it doesn't exist; OpenTruncate resets it to
// empty; OpenAppend forces every Write to the current end of file.
func (fs *Filesystem) Open(name string, flags OpenFlags) (Handle, error) {
	n, err := fs.dir.Find(name)
	if err != nil {
		if !errors.Is(err, directory.ErrNotFound) || !flags.HasCreate() {
			return 0, wrapError(err)
		}
		if err := fs.Create(name); err != nil {
			return 0, err
		}
		n, err = fs.dir.Find(name)
		if err != nil {
			return 0, wrapError(err)
		}
	}

	in, err := fs.inodes.Get(n)
	if err != nil {
		return 0, wrapError(err)
	}

	if flags.HasTruncate() {
		in.Lock()
		if err := fs.truncateLocked(in, 0); err != nil {
			in.Unlock()
			return 0, err
		}
		in.Unlock()
	}

	var initialOffset uint64
	if flags.HasAppend() {
		in.RLock()
		initialOffset = in.Size()
		in.RUnlock()
	}

	h, err := fs.openFiles.Add(n, initialOffset, flags.HasAppend())
	if err != nil {
		return 0, wrapError(err)
	}
	return h, nil
}

// CloseHandle releases h. The underlying file remains on disk; only
// Delete removes it.
func (fs *Filesystem) CloseHandle(h Handle) error {
	return wrapError(fs.openFiles.Remove(h))
}

// Read fills buf starting at h's current offset, advancing it by however
// many bytes were actually read.
func (fs *Filesystem) Read(h Handle, buf []byte) (int, error) {
	entry, err := fs.openFiles.Get(h)
	if err != nil {
		return 0, wrapError(err)
	}

	in, err := fs.inodes.Get(entry.Inumber())
	if err != nil {
		return 0, wrapError(err)
	}

	in.RLock()
	defer in.RUnlock()
	entry.Lock()
	defer entry.Unlock()

	offset := entry.Offset()
	if offset > in.Size() {
		// Another handle truncated the file below this handle's position.
		offset = in.Size()
	}

	n, err := rwengine.Read(fs.pool, fs.inodes, in, offset, buf)
	if err != nil {
		return n, wrapError(err)
	}
	entry.SetOffset(offset + uint64(n))
	return n, nil
}

// Write stores data starting at h's current offset (or at the file's end,
// if h was opened with OpenAppend), advancing the offset by the number of
// bytes actually written. An offset past the file's end, left by another
// handle's truncate, is first pulled back to the end.
func (fs *Filesystem) Write(h Handle, data []byte) (int, error) {
	entry, err := fs.openFiles.Get(h)
	if err != nil {
		return 0, wrapError(err)
	}

	in, err := fs.inodes.Get(entry.Inumber())
	if err != nil {
		return 0, wrapError(err)
	}

	in.Lock()
	defer in.Unlock()
	entry.Lock()
	defer entry.Unlock()

	offset := entry.Offset()
	if entry.AppendMode() {
		offset = in.Size()
	}
	if offset > in.Size() {
		offset = in.Size()
	}

	n, err := rwengine.Write(fs.pool, fs.inodes, in, offset, data)
	if err != nil {
		return n, wrapError(err)
	}
	entry.SetOffset(offset + uint64(n))
	return n, nil
}

// Truncate resets name's size to size, freeing any blocks no longer in
// use. Growing a file this way makes the new region read back as zeros.
func (fs *Filesystem) Truncate(name string, size uint64) error {
	n, err := fs.dir.Find(name)
	if err != nil {
		return wrapError(err)
	}
	in, err := fs.inodes.Get(n)
	if err != nil {
		return wrapError(err)
	}

	in.Lock()
	defer in.Unlock()
	return fs.truncateLocked(in, size)
}

func (fs *Filesystem) truncateLocked(in *inode.Inode, size uint64) error {
	if size >= in.Size() {
		oldSize := in.Size()
		if err := fs.inodes.ZeroRange(in, oldSize, size); err != nil {
			return wrapError(err)
		}
		fs.inodes.SetSize(in, size)
		return nil
	}
	if err := fs.inodes.ShrinkTo(in, size); err != nil {
		return wrapError(err)
	}
	return nil
}

// Delete removes name from the directory and frees its inode and blocks.
// It fails with EBUSY if the file is still open anywhere, matching the
// project's lock-then-destroy rule: a file can't be yanked out from under
// a reader or writer mid-operation.
func (fs *Filesystem) Delete(name string) error {
	n, err := fs.dir.Find(name)
	if err != nil {
		return wrapError(err)
	}

	if fs.openFiles.OpenCount(n) > 0 {
		return NewDriverError(syscall.EBUSY)
	}

	if err := fs.dir.Remove(name); err != nil {
		return wrapError(err)
	}
	return wrapError(fs.inodes.Delete(n))
}

// List returns the names of every file currently in the directory.
func (fs *Filesystem) List() ([]string, error) {
	names, err := fs.dir.List()
	return names, wrapError(err)
}

// Stat returns name's size and inumber.
func (fs *Filesystem) Stat(name string) (FileStat, error) {
	n, err := fs.dir.Find(name)
	if err != nil {
		return FileStat{}, wrapError(err)
	}
	in, err := fs.inodes.Get(n)
	if err != nil {
		return FileStat{}, wrapError(err)
	}

	in.RLock()
	defer in.RUnlock()
	return FileStat{Name: name, Size: in.Size(), Inode: uint32(n)}, nil
}

// FSStat reports filesystem-wide capacity and usage.
func (fs *Filesystem) FSStat() FSStat {
	return FSStat{
		BlockSize:     uint64(fs.cfg.BlockSize),
		TotalBytes:    uint64(fs.cfg.BlockSize) * uint64(fs.cfg.DataBlocks),
		FreeBytes:     fs.pool.FreeBytes(),
		TotalInodes:   uint64(fs.cfg.InodeTableSize),
		FreeInodes:    uint64(fs.inodes.FreeCount()),
		MaxOpenFiles:  uint64(fs.cfg.MaxOpenFiles),
		OpenFileCount: uint64(fs.openFiles.OpenHandles()),
		MaxFileSize:   fs.cfg.Capacity(),
	}
}
