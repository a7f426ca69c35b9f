// Package rwengine implements TFS's read/write engine: the translation
// between a file offset and the direct/indirect blocks backing it, for a
// single already-locked inode.
package rwengine

import (
	"github.com/fooloaths/tfs/internal/blockpool"
	"github.com/fooloaths/tfs/internal/inode"
)

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// Read copies up to len(buf) bytes starting at offset into buf, stopping
// at the file's current size. Reads past size, or into never-written
// blocks within size (left behind by a Write that skipped ahead), yield
// zero bytes rather than an error. Caller must hold at least a read lock
// on in.
func Read(pool *blockpool.Pool, inodes *inode.Table, in *inode.Inode, offset uint64, buf []byte) (int, error) {
	size := in.Size()
	if offset >= size || len(buf) == 0 {
		return 0, nil
	}

	blockSize := uint64(inodes.Config().BlockSize)
	toRead := min(uint64(len(buf)), size-offset)

	var read uint64
	for read < toRead {
		pos := offset + read
		blockIdx := pos / blockSize
		blockOffset := pos % blockSize
		n := min(blockSize-blockOffset, toRead-read)

		id, ok, err := inodes.BlockAt(in, blockIdx)
		if err != nil {
			return int(read), err
		}
		if !ok {
			for i := uint64(0); i < n; i++ {
				buf[read+i] = 0
			}
		} else {
			err := pool.View(id, func(block []byte) error {
				copy(buf[read:read+n], block[blockOffset:blockOffset+n])
				return nil
			})
			if err != nil {
				return int(read), err
			}
		}
		read += n
	}
	return int(read), nil
}

// Write stores data starting at offset, allocating whatever direct or
// indirect blocks are needed and growing the inode's recorded size if the
// write extends past it. A write that starts past the current size first
// zero-fills the gap, so a later read of that region sees zeros rather
// than whatever garbage the block pool happened to hold.
//
// A write that would reach past the configuration's addressable capacity
// is silently clamped to fit rather than rejected: data past
// capacity-offset is simply dropped, and a write starting at or beyond
// capacity stores nothing and reports 0 bytes written, with no error in
// either case. Caller must hold the write lock on in.
func Write(pool *blockpool.Pool, inodes *inode.Table, in *inode.Inode, offset uint64, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	capacity := inodes.Config().Capacity()
	if offset >= capacity {
		return 0, nil
	}
	if room := capacity - offset; uint64(len(data)) > room {
		data = data[:room]
	}

	if offset > in.Size() {
		gap := make([]byte, offset-in.Size())
		if _, err := writeAt(pool, inodes, in, in.Size(), gap); err != nil {
			return 0, err
		}
	}

	return writeAt(pool, inodes, in, offset, data)
}

func writeAt(pool *blockpool.Pool, inodes *inode.Table, in *inode.Inode, offset uint64, data []byte) (int, error) {
	blockSize := uint64(inodes.Config().BlockSize)

	var written uint64
	for written < uint64(len(data)) {
		pos := offset + written
		blockIdx := pos / blockSize
		blockOffset := pos % blockSize
		n := min(blockSize-blockOffset, uint64(len(data))-written)

		id, err := inodes.EnsureBlock(in, blockIdx)
		if err != nil {
			return int(written), err
		}

		err = pool.Mutate(id, func(block []byte) error {
			copy(block[blockOffset:blockOffset+n], data[written:written+n])
			return nil
		})
		if err != nil {
			return int(written), err
		}
		written += n
	}

	end := offset + written
	if end > in.Size() {
		inodes.SetSize(in, end)
	}
	return int(written), nil
}
