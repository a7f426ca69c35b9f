// Package directory implements TFS's single flat directory: a fixed-size
// table mapping file names to inumbers, stored in the root directory
// inode's one data block.
package directory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/fooloaths/tfs/config"
	"github.com/fooloaths/tfs/internal/blockpool"
	"github.com/fooloaths/tfs/internal/inode"
)

// emptySlot is the on-disk sentinel for an unused directory entry.
const emptySlot int32 = -1

var (
	// ErrFull is returned when every directory slot is occupied.
	ErrFull = errors.New("directory is full")
	// ErrNotFound is returned when a name has no matching entry.
	ErrNotFound = errors.New("no such file")
	// ErrExists is returned when a name is already in use.
	ErrExists = errors.New("file already exists")
	// ErrNameTooLong is returned when a name (plus null terminator) would
	// not fit in the configured name field.
	ErrNameTooLong = errors.New("file name too long")
	// ErrEmptyName is returned for the empty string, which TFS never
	// accepts as a file name.
	ErrEmptyName = errors.New("file name must not be empty")
)

// Directory is the single namespace of a filesystem: one block, held by
// the root directory inode, holding a run of fixed-width entries. Per
// spec.md §4.4 the directory never spans more than one block — its entry
// count is capped at MaxDirEntries regardless of how large the inode
// table is.
type Directory struct {
	cfg  config.Config
	pool *blockpool.Pool

	mu      sync.RWMutex
	blockID blockpool.BlockID
}

// New claims the root directory inode's first block and formats it as an
// empty directory. The root inode (inumber inode.RootInumber) is reserved
// by inode.New, so this only ever grows it, never allocates a fresh inode.
func New(cfg config.Config, pool *blockpool.Pool, inodes *inode.Table) (*Directory, error) {
	root := inodes.Root()

	root.Lock()
	id, err := inodes.EnsureBlock(root, 0)
	if err == nil && root.Size() == 0 {
		inodes.SetSize(root, uint64(cfg.BlockSize))
	}
	root.Unlock()
	if err != nil {
		return nil, fmt.Errorf("allocating directory block: %w", err)
	}

	if err := formatBlock(pool, id, cfg.MaxDirEntries(), cfg.DirEntrySize()); err != nil {
		return nil, err
	}

	return &Directory{cfg: cfg, pool: pool, blockID: id}, nil
}

func formatBlock(pool *blockpool.Pool, id blockpool.BlockID, entries, entrySize uint) error {
	return pool.Mutate(id, func(block []byte) error {
		for i := uint(0); i < entries; i++ {
			start := i * entrySize
			for j := uint(0); j < entrySize-4; j++ {
				block[start+j] = 0
			}
			binary.LittleEndian.PutUint32(block[start+entrySize-4:start+entrySize], uint32(emptySlot))
		}
		return nil
	})
}

func (d *Directory) encodeName(name string) ([]byte, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	nameField := d.cfg.MaxFileName
	if uint(len(name))+1 > nameField {
		return nil, fmt.Errorf("%w: %q exceeds %d bytes", ErrNameTooLong, name, nameField-1)
	}
	buf := make([]byte, nameField)
	copy(buf, name)
	return buf, nil
}

// forEachSlot visits every slot in order, calling fn with the decoded name
// field and inumber. fn returns stop=true to end iteration early.
func (d *Directory) forEachSlot(fn func(slot uint, rawName []byte, inumber int32) (stop bool)) error {
	perBlock := d.cfg.MaxDirEntries()
	entrySize := d.cfg.DirEntrySize()
	nameLen := entrySize - 4

	return d.pool.View(d.blockID, func(block []byte) error {
		for s := uint(0); s < perBlock; s++ {
			start := s * entrySize
			rawName := block[start : start+nameLen]
			inumber := int32(binary.LittleEndian.Uint32(block[start+nameLen : start+entrySize]))
			if fn(s, rawName, inumber) {
				return nil
			}
		}
		return nil
	})
}

// Find looks up name and returns its inumber.
func (d *Directory) Find(name string) (inode.Inumber, error) {
	if name == "" {
		return 0, ErrEmptyName
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var found inode.Inumber
	var ok bool
	err := d.forEachSlot(func(_ uint, rawName []byte, inumber int32) bool {
		if inumber == emptySlot {
			return false
		}
		if nameMatches(rawName, name) {
			found = inode.Inumber(inumber)
			ok = true
			return true
		}
		return false
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return found, nil
}

func nameMatches(rawName []byte, name string) bool {
	nul := bytes.IndexByte(rawName, 0)
	if nul < 0 {
		nul = len(rawName)
	}
	return string(rawName[:nul]) == name
}

// Add inserts a new name -> inumber mapping. It fails with ErrExists if the
// name is already taken, and ErrFull if no slot remains.
func (d *Directory) Add(name string, n inode.Inumber) error {
	nameField, err := d.encodeName(name)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entrySize := d.cfg.DirEntrySize()
	nameLen := entrySize - 4

	var freeSlot uint
	foundFree := false
	exists := false

	err = d.forEachSlot(func(s uint, rawName []byte, inumber int32) bool {
		if inumber == emptySlot {
			if !foundFree {
				foundFree = true
				freeSlot = s
			}
			return false
		}
		if nameMatches(rawName, name) {
			exists = true
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrExists, name)
	}
	if !foundFree {
		return ErrFull
	}

	return d.pool.Mutate(d.blockID, func(block []byte) error {
		start := freeSlot * entrySize
		copy(block[start:start+nameLen], nameField)
		binary.LittleEndian.PutUint32(block[start+nameLen:start+entrySize], uint32(n))
		return nil
	})
}

// Remove deletes name's entry, freeing its slot.
func (d *Directory) Remove(name string) error {
	if name == "" {
		return ErrEmptyName
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entrySize := d.cfg.DirEntrySize()
	nameLen := entrySize - 4

	var slot uint
	found := false
	err := d.forEachSlot(func(s uint, rawName []byte, inumber int32) bool {
		if inumber != emptySlot && nameMatches(rawName, name) {
			slot = s
			found = true
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	return d.pool.Mutate(d.blockID, func(block []byte) error {
		start := slot * entrySize
		for i := range block[start : start+nameLen] {
			block[start+i] = 0
		}
		binary.LittleEndian.PutUint32(block[start+nameLen:start+entrySize], uint32(emptySlot))
		return nil
	})
}

// List returns every name currently present, in slot order.
func (d *Directory) List() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var names []string
	err := d.forEachSlot(func(_ uint, rawName []byte, inumber int32) bool {
		if inumber != emptySlot {
			nul := bytes.IndexByte(rawName, 0)
			if nul < 0 {
				nul = len(rawName)
			}
			names = append(names, string(rawName[:nul]))
		}
		return false
	})
	return names, err
}
