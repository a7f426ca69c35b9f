// Package inode implements TFS's inode table: the fixed-size array of file
// metadata records, each addressing its data through a small number of
// direct block pointers plus one single-indirect block.
package inode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/boljen/go-bitmap"

	"github.com/fooloaths/tfs/config"
	"github.com/fooloaths/tfs/internal/blockpool"
)

// Inumber identifies a slot in the inode table.
type Inumber uint32

// Kind distinguishes a live inode from a free slot.
type Kind int

const (
	KindFree Kind = iota
	KindFile
	KindDirectory
)

// RootInumber is the inumber of the filesystem's single directory. It is
// reserved at table creation time and never freed or returned by Create.
const RootInumber Inumber = 0

// emptySlot is the on-disk sentinel written into an indirection block's
// unused slots. It lives inside serialized block bytes, not in any Go API
// value, so it stays a literal -1 rather than an OptionalBlock.
const emptySlot int32 = -1

var (
	// ErrInvalidInumber is returned for an inumber outside the table.
	ErrInvalidInumber = errors.New("invalid inumber")
	// ErrNotAllocated is returned when operating on a free inode slot.
	ErrNotAllocated = errors.New("inode is not allocated")
	// ErrOutOfInodes is returned when the table has no free slot left.
	ErrOutOfInodes = errors.New("inode table is full")
	// ErrFileTooLarge is returned when growth would exceed the addressable
	// capacity of direct blocks plus one indirection block.
	ErrFileTooLarge = errors.New("file has grown past the addressable limit")
	// ErrIsRoot is returned by Delete for RootInumber: the directory always
	// exists and is never freed.
	ErrIsRoot = errors.New("cannot delete the root directory inode")
)

// Inode is one file's metadata: its size and the blocks that hold its
// bytes. Every field access must happen under mu, held per the project-wide
// rule that an inode's lock is acquired before any open-file lock that
// refers to it.
type Inode struct {
	mu sync.RWMutex

	kind     Kind
	size     uint64
	direct   []blockpool.OptionalBlock
	indirect blockpool.OptionalBlock
}

// Lock/Unlock/RLock/RUnlock expose the inode's lock directly to callers
// (the read/write engine and the directory layer both need to hold it
// across several field accesses plus block pool operations).

func (in *Inode) Lock()    { in.mu.Lock() }
func (in *Inode) Unlock()  { in.mu.Unlock() }
func (in *Inode) RLock()   { in.mu.RLock() }
func (in *Inode) RUnlock() { in.mu.RUnlock() }

// Size returns the file's current size in bytes. Caller must hold at least
// a read lock.
func (in *Inode) Size() uint64 {
	return in.size
}

// Kind returns whether this slot is allocated and what kind of entity it
// holds. Caller must hold at least a read lock.
func (in *Inode) Kind() Kind {
	return in.kind
}

// DirectBlock returns the id of direct-block slot i, if any.
func (in *Inode) DirectBlock(i int) blockpool.OptionalBlock {
	if i < 0 || i >= len(in.direct) {
		return blockpool.NoBlock
	}
	return in.direct[i]
}

// IndirectBlock returns the id of the indirection block, if one has been
// allocated.
func (in *Inode) IndirectBlock() blockpool.OptionalBlock {
	return in.indirect
}

// Table is the fixed-size inode table of a filesystem, plus the block pool
// its inodes address into.
type Table struct {
	cfg  config.Config
	pool *blockpool.Pool

	freeMu  sync.RWMutex
	freeMap bitmap.Bitmap

	inodes []*Inode
}

// New allocates an empty inode table sized per cfg, backed by pool, and
// reserves RootInumber for the filesystem's single directory.
func New(cfg config.Config, pool *blockpool.Pool) *Table {
	inodes := make([]*Inode, cfg.InodeTableSize)
	for i := range inodes {
		inodes[i] = &Inode{
			direct: make([]blockpool.OptionalBlock, cfg.DirectBlocksCount),
		}
	}

	freeMap := bitmap.New(int(cfg.InodeTableSize))
	freeMap.Set(int(RootInumber), true)
	inodes[RootInumber].kind = KindDirectory

	return &Table{
		cfg:     cfg,
		pool:    pool,
		freeMap: freeMap,
		inodes:  inodes,
	}
}

// Root returns the inode backing the filesystem's single directory.
func (t *Table) Root() *Inode {
	return t.inodes[RootInumber]
}

// FreeCount returns the number of currently unallocated inode slots.
func (t *Table) FreeCount() uint {
	t.freeMu.RLock()
	defer t.freeMu.RUnlock()

	free := uint(0)
	for i := uint(0); i < t.cfg.InodeTableSize; i++ {
		if !t.freeMap.Get(int(i)) {
			free++
		}
	}
	return free
}

func (t *Table) valid(n Inumber) bool {
	return uint(n) < t.cfg.InodeTableSize
}

// Get returns the inode for n. It does not check whether the slot is
// currently allocated; callers lock and inspect Kind() themselves.
func (t *Table) Get(n Inumber) (*Inode, error) {
	if !t.valid(n) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidInumber, n)
	}
	return t.inodes[n], nil
}

// Create claims a free inode slot and initializes it as kind, returning its
// inumber.
func (t *Table) Create(kind Kind) (Inumber, error) {
	t.freeMu.Lock()
	defer t.freeMu.Unlock()

	for i := uint(0); i < t.cfg.InodeTableSize; i++ {
		if t.freeMap.Get(int(i)) {
			continue
		}
		t.freeMap.Set(int(i), true)

		in := t.inodes[i]
		in.Lock()
		in.kind = kind
		in.size = 0
		for j := range in.direct {
			in.direct[j] = blockpool.NoBlock
		}
		in.indirect = blockpool.NoBlock
		in.Unlock()

		return Inumber(i), nil
	}
	return 0, ErrOutOfInodes
}

// Delete frees every block owned by n's inode and marks the slot free.
// It takes the inode's write lock itself and releases it before returning
// the slot to the free bitmap, so the caller must not already hold it.
// Callers are responsible for the project's lock-then-destroy rule: an
// inode must not be deleted while an open file handle still refers to it.
func (t *Table) Delete(n Inumber) error {
	if n == RootInumber {
		return ErrIsRoot
	}

	in, err := t.Get(n)
	if err != nil {
		return err
	}

	in.Lock()
	if in.kind == KindFree {
		in.Unlock()
		return ErrNotAllocated
	}

	if err := t.freeIndirectBlocks(in); err != nil {
		in.Unlock()
		return err
	}
	if err := t.freeDirectBlocks(in); err != nil {
		in.Unlock()
		return err
	}
	in.kind = KindFree
	in.size = 0
	in.Unlock()

	t.freeMu.Lock()
	t.freeMap.Set(int(n), false)
	t.freeMu.Unlock()
	return nil
}

// freeDirectBlocks releases exactly the direct blocks currently in use,
// determined from size rather than scanning every slot for a non-empty
// entry — the latter double-frees a slot left over from a previous,
// larger version of the file that truncate() never cleared.
func (t *Table) freeDirectBlocks(in *Inode) error {
	used := blocksInUse(in.size, t.cfg)
	direct := used
	if direct > uint64(len(in.direct)) {
		direct = uint64(len(in.direct))
	}
	for i := uint64(0); i < direct; i++ {
		id, ok := in.direct[i].Get()
		if !ok {
			continue
		}
		if err := t.pool.Free(id); err != nil {
			return err
		}
		in.direct[i] = blockpool.NoBlock
	}
	return nil
}

func (t *Table) freeIndirectBlocks(in *Inode) error {
	indirectID, ok := in.indirect.Get()
	if !ok {
		return nil
	}

	used := blocksInUse(in.size, t.cfg)
	direct := uint64(len(in.direct))
	slots := t.cfg.IndirectSlotsPerBlock()

	if used > direct {
		inUse := used - direct
		if inUse > uint64(slots) {
			inUse = uint64(slots)
		}
		err := t.pool.View(indirectID, func(block []byte) error {
			for i := uint64(0); i < inUse; i++ {
				raw := int32(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
				if raw == emptySlot {
					continue
				}
				if err := t.pool.Free(blockpool.BlockID(raw)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := t.pool.Free(indirectID); err != nil {
		return err
	}
	in.indirect = blockpool.NoBlock
	return nil
}

// blocksInUse returns how many blocks a file of the given size currently
// spans.
func blocksInUse(size uint64, cfg config.Config) uint64 {
	if size == 0 {
		return 0
	}
	return (size + uint64(cfg.BlockSize) - 1) / uint64(cfg.BlockSize)
}

// Config returns the filesystem configuration this table was built with.
func (t *Table) Config() config.Config {
	return t.cfg
}

// BlockAt returns the id of the blockIndex'th data block of in without
// allocating anything; ok is false if that block has never been written.
// Caller must hold at least a read lock on in.
func (t *Table) BlockAt(in *Inode, blockIndex uint64) (blockpool.BlockID, bool, error) {
	direct := uint64(len(in.direct))
	if blockIndex < direct {
		id, ok := in.direct[blockIndex].Get()
		return id, ok, nil
	}

	slot := blockIndex - direct
	if slot >= uint64(t.cfg.IndirectSlotsPerBlock()) {
		return 0, false, ErrFileTooLarge
	}

	indirectID, ok := in.indirect.Get()
	if !ok {
		return 0, false, nil
	}

	var raw int32
	err := t.pool.View(indirectID, func(block []byte) error {
		raw = int32(binary.LittleEndian.Uint32(block[slot*4 : slot*4+4]))
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	if raw == emptySlot {
		return 0, false, nil
	}
	return blockpool.BlockID(raw), true, nil
}

// EnsureBlock returns the id of the blockIndex'th data block of in,
// allocating it (and, if needed, the indirection block) on first use.
// Caller must hold in's write lock.
func (t *Table) EnsureBlock(in *Inode, blockIndex uint64) (blockpool.BlockID, error) {
	direct := uint64(len(in.direct))
	if blockIndex < direct {
		return t.ensureDirectBlock(in, int(blockIndex))
	}

	slot := blockIndex - direct
	if slot >= uint64(t.cfg.IndirectSlotsPerBlock()) {
		return 0, ErrFileTooLarge
	}
	return t.ensureIndirectBlock(in, int(slot))
}

func (t *Table) ensureDirectBlock(in *Inode, i int) (blockpool.BlockID, error) {
	if id, ok := in.direct[i].Get(); ok {
		return id, nil
	}
	id, err := t.pool.Allocate()
	if err != nil {
		return 0, err
	}
	in.direct[i] = blockpool.Some(id)
	return id, nil
}

func (t *Table) ensureIndirectBlock(in *Inode, slot int) (blockpool.BlockID, error) {
	indirectID, ok := in.indirect.Get()
	if !ok {
		var err error
		indirectID, err = t.initializeIndirectBlock(in)
		if err != nil {
			return 0, err
		}
	}

	var existing int32
	err := t.pool.View(indirectID, func(block []byte) error {
		existing = int32(binary.LittleEndian.Uint32(block[slot*4 : slot*4+4]))
		return nil
	})
	if err != nil {
		return 0, err
	}
	if existing != emptySlot {
		return blockpool.BlockID(existing), nil
	}

	id, err := t.pool.Allocate()
	if err != nil {
		return 0, err
	}
	if err := t.writeIndexToBlock(indirectID, slot, id); err != nil {
		return 0, err
	}
	return id, nil
}

// initializeIndirectBlock allocates the indirection block itself and fills
// every slot with the "empty" sentinel.
func (t *Table) initializeIndirectBlock(in *Inode) (blockpool.BlockID, error) {
	id, err := t.pool.Allocate()
	if err != nil {
		return 0, err
	}

	err = t.pool.Mutate(id, func(block []byte) error {
		slots := t.cfg.IndirectSlotsPerBlock()
		for i := uint(0); i < slots; i++ {
			binary.LittleEndian.PutUint32(block[i*4:i*4+4], uint32(emptySlot))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	in.indirect = blockpool.Some(id)
	return id, nil
}

// writeIndexToBlock stores a data block's id into slot of the indirection
// block indirectID.
func (t *Table) writeIndexToBlock(indirectID blockpool.BlockID, slot int, dataBlock blockpool.BlockID) error {
	return t.pool.Mutate(indirectID, func(block []byte) error {
		binary.LittleEndian.PutUint32(block[slot*4:slot*4+4], uint32(dataBlock))
		return nil
	})
}

// SetSize updates the inode's recorded size. Caller must hold the write
// lock.
func (t *Table) SetSize(in *Inode, size uint64) {
	in.size = size
}

// ZeroRange clears the bytes in [from, to) that fall within blocks already
// allocated to in; it never allocates a new block, since a read of a block
// that was never allocated already comes back as zeros. Growing a file via
// SetSize alone would otherwise expose whatever stale bytes a previous,
// larger version of the file left behind in a block truncate shrank past
// but didn't free. Caller must hold in's write lock.
func (t *Table) ZeroRange(in *Inode, from, to uint64) error {
	if from >= to {
		return nil
	}
	blockSize := uint64(t.cfg.BlockSize)

	for pos := from; pos < to; {
		blockIdx := pos / blockSize
		blockOffset := pos % blockSize
		n := blockSize - blockOffset
		if remaining := to - pos; n > remaining {
			n = remaining
		}

		id, ok, err := t.BlockAt(in, blockIdx)
		if err != nil {
			return err
		}
		if ok {
			err := t.pool.Mutate(id, func(block []byte) error {
				for i := uint64(0); i < n; i++ {
					block[blockOffset+i] = 0
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		pos += n
	}
	return nil
}

// ShrinkTo reduces in's size to newSize, freeing every direct and indirect
// block that falls entirely past the new end of file. Caller must hold
// in's write lock, and newSize must not exceed the current size.
func (t *Table) ShrinkTo(in *Inode, newSize uint64) error {
	keptBlocks := blocksInUse(newSize, t.cfg)
	direct := uint64(len(in.direct))

	if keptBlocks < direct {
		for i := keptBlocks; i < direct; i++ {
			id, ok := in.direct[i].Get()
			if !ok {
				continue
			}
			if err := t.pool.Free(id); err != nil {
				return err
			}
			in.direct[i] = blockpool.NoBlock
		}
	}

	if indirectID, ok := in.indirect.Get(); ok {
		keptIndirect := uint64(0)
		if keptBlocks > direct {
			keptIndirect = keptBlocks - direct
		}
		slots := uint64(t.cfg.IndirectSlotsPerBlock())

		err := t.pool.Mutate(indirectID, func(block []byte) error {
			for i := keptIndirect; i < slots; i++ {
				raw := int32(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
				if raw == emptySlot {
					continue
				}
				if err := t.pool.Free(blockpool.BlockID(raw)); err != nil {
					return err
				}
				binary.LittleEndian.PutUint32(block[i*4:i*4+4], uint32(emptySlot))
			}
			return nil
		})
		if err != nil {
			return err
		}

		if keptIndirect == 0 {
			if err := t.pool.Free(indirectID); err != nil {
				return err
			}
			in.indirect = blockpool.NoBlock
		}
	}

	in.size = newSize
	return nil
}
