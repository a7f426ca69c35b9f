// Package openfile implements TFS's open-file table: the fixed-size set of
// slots tracking which inodes are currently open and at what offset each
// handle is positioned.
package openfile

import (
	"errors"
	"fmt"
	"sync"

	"github.com/boljen/go-bitmap"

	"github.com/fooloaths/tfs/config"
	"github.com/fooloaths/tfs/internal/inode"
)

// Handle identifies a slot in the open-file table, returned to callers of
// Open and required by every subsequent operation on that file.
type Handle uint32

var (
	// ErrTableFull is returned when every open-file slot is in use.
	ErrTableFull = errors.New("open file table is full")
	// ErrInvalidHandle is returned for a handle outside the table, or one
	// that refers to a slot that isn't currently open.
	ErrInvalidHandle = errors.New("invalid file handle")
)

// Entry tracks one open file: which inode it refers to, the caller's
// current read/write offset, and whether every write should be forced to
// the end of the file regardless of offset. Its lock is acquired only
// after the referenced inode's lock, per the project-wide ordering rule.
type Entry struct {
	mu sync.RWMutex

	inUse      bool
	inumber    inode.Inumber
	offset     uint64
	appendMode bool
}

// Lock/Unlock expose the entry's lock to the read/write engine, which must
// hold both the inode's lock and the entry's lock across a single
// operation (inode first).
func (e *Entry) Lock()   { e.mu.Lock() }
func (e *Entry) Unlock() { e.mu.Unlock() }

// Inumber returns the inode this handle refers to. Caller must hold the
// entry's lock.
func (e *Entry) Inumber() inode.Inumber {
	return e.inumber
}

// Offset returns the current read/write position. Caller must hold the
// entry's lock.
func (e *Entry) Offset() uint64 {
	return e.offset
}

// SetOffset updates the read/write position. Caller must hold the entry's
// lock.
func (e *Entry) SetOffset(offset uint64) {
	e.offset = offset
}

// AppendMode reports whether writes through this handle always target the
// end of the file, ignoring the stored offset. Caller must hold the
// entry's lock.
func (e *Entry) AppendMode() bool {
	return e.appendMode
}

// Table is the fixed-size open-file table of a filesystem.
type Table struct {
	freeMu  sync.RWMutex
	freeMap bitmap.Bitmap

	entries []*Entry
}

// New allocates an empty open-file table sized per cfg.
func New(cfg config.Config) *Table {
	entries := make([]*Entry, cfg.MaxOpenFiles)
	for i := range entries {
		entries[i] = &Entry{}
	}
	return &Table{
		freeMap: bitmap.New(int(cfg.MaxOpenFiles)),
		entries: entries,
	}
}

func (t *Table) valid(h Handle) bool {
	return uint(h) < uint(len(t.entries))
}

// Add claims a free slot for n, positioned at initialOffset (the caller
// passes the file's current size for an append-mode open, 0 otherwise),
// and returns its handle.
func (t *Table) Add(n inode.Inumber, initialOffset uint64, appendMode bool) (Handle, error) {
	t.freeMu.Lock()
	defer t.freeMu.Unlock()

	for i := 0; i < len(t.entries); i++ {
		if t.freeMap.Get(i) {
			continue
		}
		t.freeMap.Set(i, true)

		e := t.entries[i]
		e.Lock()
		e.inUse = true
		e.inumber = n
		e.offset = initialOffset
		e.appendMode = appendMode
		e.Unlock()

		return Handle(i), nil
	}
	return 0, ErrTableFull
}

// Get returns the entry for h. Callers lock it themselves before reading
// or mutating its fields.
func (t *Table) Get(h Handle) (*Entry, error) {
	if !t.valid(h) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}

	e := t.entries[h]
	e.Lock()
	inUse := e.inUse
	e.Unlock()
	if !inUse {
		return nil, fmt.Errorf("%w: %d is not open", ErrInvalidHandle, h)
	}
	return e, nil
}

// Remove closes h, freeing its slot for reuse.
func (t *Table) Remove(h Handle) error {
	if !t.valid(h) {
		return fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}

	e := t.entries[h]
	e.Lock()
	if !e.inUse {
		e.Unlock()
		return fmt.Errorf("%w: %d is not open", ErrInvalidHandle, h)
	}
	e.inUse = false
	e.Unlock()

	t.freeMu.Lock()
	t.freeMap.Set(int(h), false)
	t.freeMu.Unlock()
	return nil
}

// OpenHandles returns the number of currently open handles, regardless of
// which inode they refer to.
func (t *Table) OpenHandles() int {
	t.freeMu.RLock()
	defer t.freeMu.RUnlock()

	count := 0
	for i := range t.entries {
		if t.freeMap.Get(i) {
			count++
		}
	}
	return count
}

// OpenCount reports how many handles referring to n are currently open.
// Used by Delete to refuse removing a file that is still open, mirroring
// the project's lock-then-destroy rule.
func (t *Table) OpenCount(n inode.Inumber) int {
	count := 0
	for _, e := range t.entries {
		e.Lock()
		if e.inUse && e.inumber == n {
			count++
		}
		e.Unlock()
	}
	return count
}
