// Package blockpool implements TFS's fixed-size block allocator: a
// contiguous byte region partitioned into BlockSize-sized blocks, backed by
// a free bitmap.
package blockpool

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/boljen/go-bitmap"
	"github.com/xaionaro-go/bytesextra"
)

// BlockID identifies a single block in the pool.
type BlockID uint32

// ErrOutOfSpace is returned when the pool has no free block to allocate.
var ErrOutOfSpace = errors.New("block pool is full")

// ErrInvalidBlockID is returned for an out-of-range block index.
var ErrInvalidBlockID = errors.New("invalid block id")

// OptionalBlock is a Go-shaped replacement for the original "-1 means no
// block" sentinel: a BlockID together with a validity flag. Zero value is
// "no block".
type OptionalBlock struct {
	id    BlockID
	valid bool
}

// NoBlock is the zero-value OptionalBlock, meaning "no block assigned".
var NoBlock = OptionalBlock{}

// Some wraps a concrete BlockID.
func Some(id BlockID) OptionalBlock {
	return OptionalBlock{id: id, valid: true}
}

// Get returns the wrapped BlockID and whether it's actually present.
func (o OptionalBlock) Get() (BlockID, bool) {
	return o.id, o.valid
}

// IsNone reports whether this OptionalBlock carries no value.
func (o OptionalBlock) IsNone() bool {
	return !o.valid
}

// Pool owns the raw block storage and its allocation bitmap.
type Pool struct {
	blockSize   uint
	totalBlocks uint

	freeMu  sync.RWMutex
	freeMap bitmap.Bitmap

	dataMu sync.RWMutex
	data   []byte
	stream io.ReadWriteSeeker

	latency time.Duration
}

// New creates a Pool of totalBlocks blocks, each blockSize bytes. No
// block's contents are zeroed; callers that need a clean block must
// overwrite it themselves, exactly as spec.md §4.1 describes.
func New(blockSize, totalBlocks uint, latency time.Duration) *Pool {
	data := make([]byte, blockSize*totalBlocks)
	return &Pool{
		blockSize:   blockSize,
		totalBlocks: totalBlocks,
		freeMap:     bitmap.New(int(totalBlocks)),
		data:        data,
		stream:      bytesextra.NewReadWriteSeeker(data),
		latency:     latency,
	}
}

func (p *Pool) simulateLatency() {
	if p.latency > 0 {
		time.Sleep(p.latency)
	}
}

// BlockSize returns the size, in bytes, of a single block.
func (p *Pool) BlockSize() uint {
	return p.blockSize
}

// TotalBlocks returns the total number of blocks in the pool.
func (p *Pool) TotalBlocks() uint {
	return p.totalBlocks
}

func (p *Pool) valid(id BlockID) bool {
	return uint(id) < p.totalBlocks
}

// Allocate scans the free bitmap left-to-right and claims the first free
// block, returning its index. It fails with ErrOutOfSpace if the pool is
// full.
func (p *Pool) Allocate() (BlockID, error) {
	p.freeMu.Lock()
	defer p.freeMu.Unlock()
	p.simulateLatency()

	for i := uint(0); i < p.totalBlocks; i++ {
		if !p.freeMap.Get(int(i)) {
			p.freeMap.Set(int(i), true)
			return BlockID(i), nil
		}
	}
	return 0, ErrOutOfSpace
}

// Free releases a block back to the pool. Like the original, it's
// idempotent in the narrow sense that freeing an already-free block just
// marks it free again without complaint; callers must not rely on that.
func (p *Pool) Free(id BlockID) error {
	if !p.valid(id) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidBlockID, id, p.totalBlocks)
	}

	p.freeMu.Lock()
	defer p.freeMu.Unlock()
	p.simulateLatency()

	p.freeMap.Set(int(id), false)
	return nil
}

// FreeBytes returns the total number of unallocated bytes in the pool.
func (p *Pool) FreeBytes() uint64 {
	p.freeMu.RLock()
	defer p.freeMu.RUnlock()

	free := uint64(0)
	for i := uint(0); i < p.totalBlocks; i++ {
		if !p.freeMap.Get(int(i)) {
			free++
		}
	}
	return free * uint64(p.blockSize)
}

func (p *Pool) span(id BlockID) []byte {
	start := uint(id) * p.blockSize
	return p.data[start : start+p.blockSize]
}

// View hands fn a read-only checked borrow of block id's bytes, held under
// the pool's data-blocks content lock for the duration of the call. fn must
// not retain the slice after returning.
func (p *Pool) View(id BlockID, fn func([]byte) error) error {
	if !p.valid(id) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidBlockID, id, p.totalBlocks)
	}

	p.dataMu.RLock()
	defer p.dataMu.RUnlock()
	p.simulateLatency()

	return fn(p.span(id))
}

// Mutate hands fn a read-write checked borrow of block id's bytes, held
// under the pool's data-blocks content lock for the duration of the call.
func (p *Pool) Mutate(id BlockID, fn func([]byte) error) error {
	if !p.valid(id) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidBlockID, id, p.totalBlocks)
	}

	p.dataMu.Lock()
	defer p.dataMu.Unlock()
	p.simulateLatency()

	return fn(p.span(id))
}

// ReadBlock copies one block's contents into buffer through the pool's
// backing stream, rather than through the checked borrow View hands out.
func (p *Pool) ReadBlock(id BlockID, buffer []byte) error {
	if !p.valid(id) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidBlockID, id, p.totalBlocks)
	}
	if uint(len(buffer)) != p.blockSize {
		return fmt.Errorf("buffer must be exactly one block (%d bytes)", p.blockSize)
	}

	p.dataMu.RLock()
	defer p.dataMu.RUnlock()

	if _, err := p.stream.Seek(int64(uint(id)*p.blockSize), io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(p.stream, buffer)
	return err
}

// WriteBlock writes one block's contents sequentially through the pool's
// backing stream.
func (p *Pool) WriteBlock(id BlockID, data []byte) error {
	if !p.valid(id) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidBlockID, id, p.totalBlocks)
	}
	if uint(len(data)) != p.blockSize {
		return fmt.Errorf("data must be exactly one block (%d bytes)", p.blockSize)
	}

	p.dataMu.Lock()
	defer p.dataMu.Unlock()

	if _, err := p.stream.Seek(int64(uint(id)*p.blockSize), io.SeekStart); err != nil {
		return err
	}
	_, err := p.stream.Write(data)
	return err
}
