// Package config holds the tunable parameters of a TFS instance: block
// size, table sizes, and a handful of named presets.
package config

import (
	"fmt"
	"time"
)

// DirInumberSize is the width, in bytes, of the inumber field of an encoded
// directory entry (a little-endian int32, -1 marks an empty slot).
const DirInumberSize = 4

// Config holds every size and behavioral knob of a Filesystem.
type Config struct {
	// BlockSize is the length, in bytes, of a single data block.
	BlockSize uint
	// DataBlocks is the number of blocks in the block pool.
	DataBlocks uint
	// InodeTableSize is the number of slots in the inode table.
	InodeTableSize uint
	// MaxOpenFiles is the number of slots in the open-file table.
	MaxOpenFiles uint
	// MaxFileName is the maximum length, in bytes, of a file name including
	// its null terminator.
	MaxFileName uint
	// DirectBlocksCount is the number of direct block slots an inode owns
	// before it needs an indirection block.
	DirectBlocksCount uint
	// SimulatedLatency, when nonzero, is slept through by the block pool on
	// every Allocate, Free, View and Mutate call to emulate secondary-storage
	// access latency; the inode and open-file tables never sleep. Zero (the
	// default) disables the simulation entirely.
	SimulatedLatency time.Duration
}

// Default returns the out-of-the-box configuration: 1 KiB blocks, matching
// the literal values spec.md's end-to-end scenarios use.
func Default() Config {
	return Config{
		BlockSize:         1024,
		DataBlocks:        1024,
		InodeTableSize:    64,
		MaxOpenFiles:      32,
		MaxFileName:       40,
		DirectBlocksCount: 10,
	}
}

// Validate checks that the configuration describes a usable filesystem.
func (c Config) Validate() error {
	if c.BlockSize == 0 {
		return fmt.Errorf("block size must be positive")
	}
	if c.DataBlocks == 0 {
		return fmt.Errorf("data block count must be positive")
	}
	if c.InodeTableSize == 0 {
		return fmt.Errorf("inode table size must be positive")
	}
	if c.MaxOpenFiles == 0 {
		return fmt.Errorf("open file table size must be positive")
	}
	if c.DirectBlocksCount == 0 {
		return fmt.Errorf("direct block count must be positive")
	}
	if c.MaxFileName <= DirInumberSize {
		return fmt.Errorf(
			"max file name (%d) must be large enough to share a block with the inumber field",
			c.MaxFileName,
		)
	}
	if c.DirEntrySize() > c.BlockSize {
		return fmt.Errorf("a single directory entry must fit in one block")
	}
	return nil
}

// DirEntrySize is the width, in bytes, of one encoded directory entry: the
// file name field plus the inumber field.
func (c Config) DirEntrySize() uint {
	return c.MaxFileName + DirInumberSize
}

// MaxDirEntries is the number of directory entries that fit in one block.
func (c Config) MaxDirEntries() uint {
	return c.BlockSize / c.DirEntrySize()
}

// IndirectSlotsPerBlock is the number of block indices an indirection block
// can hold.
func (c Config) IndirectSlotsPerBlock() uint {
	return c.BlockSize / DirInumberSize
}

// Capacity is the largest file size, in bytes, this configuration can
// address: the direct blocks plus everything one indirection block can
// reach.
func (c Config) Capacity() uint64 {
	return uint64(c.DirectBlocksCount+c.IndirectSlotsPerBlock()) * uint64(c.BlockSize)
}
