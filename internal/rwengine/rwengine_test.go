package rwengine_test

import (
	"testing"

	"github.com/fooloaths/tfs/config"
	"github.com/fooloaths/tfs/internal/blockpool"
	"github.com/fooloaths/tfs/internal/inode"
	"github.com/fooloaths/tfs/internal/rwengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*blockpool.Pool, *inode.Table, *inode.Inode) {
	t.Helper()
	cfg := config.Config{
		BlockSize:         8,
		DataBlocks:        64,
		InodeTableSize:    4,
		MaxOpenFiles:      4,
		MaxFileName:       16,
		DirectBlocksCount: 2,
	}
	pool := blockpool.New(cfg.BlockSize, cfg.DataBlocks, 0)
	inodes := inode.New(cfg, pool)
	n, err := inodes.Create(inode.KindFile)
	require.NoError(t, err)
	in, err := inodes.Get(n)
	require.NoError(t, err)
	return pool, inodes, in
}

func TestWriteThenRead_WithinOneBlock(t *testing.T) {
	pool, inodes, in := setup(t)
	in.Lock()
	n, err := rwengine.Write(pool, inodes, in, 0, []byte("abc"))
	in.Unlock()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	in.RLock()
	buf := make([]byte, 3)
	got, err := rwengine.Read(pool, inodes, in, 0, buf)
	in.RUnlock()
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, "abc", string(buf))
}

func TestWrite_SpansDirectAndIndirectBlocks(t *testing.T) {
	pool, inodes, in := setup(t)
	// block size 8, 2 direct blocks -> 16 direct bytes, then indirect; the
	// indirection block holds 8/4 = 2 slots, so capacity is 32 bytes.
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte('A' + i%26)
	}

	in.Lock()
	n, err := rwengine.Write(pool, inodes, in, 0, data)
	in.Unlock()
	require.NoError(t, err)
	assert.Equal(t, 32, n)

	in.RLock()
	buf := make([]byte, 32)
	got, err := rwengine.Read(pool, inodes, in, 0, buf)
	in.RUnlock()
	require.NoError(t, err)
	assert.Equal(t, 32, got)
	assert.Equal(t, data, buf)
}

func TestWrite_PastEndOfFileZeroFillsGap(t *testing.T) {
	pool, inodes, in := setup(t)

	in.Lock()
	_, err := rwengine.Write(pool, inodes, in, 0, []byte("ab"))
	require.NoError(t, err)
	_, err = rwengine.Write(pool, inodes, in, 10, []byte("cd"))
	in.Unlock()
	require.NoError(t, err)

	in.RLock()
	buf := make([]byte, 12)
	got, err := rwengine.Read(pool, inodes, in, 0, buf)
	in.RUnlock()
	require.NoError(t, err)
	assert.Equal(t, 12, got)
	assert.Equal(t, "ab\x00\x00\x00\x00\x00\x00\x00\x00cd", string(buf))
}

func TestRead_PastSizeReturnsZero(t *testing.T) {
	pool, inodes, in := setup(t)

	in.Lock()
	_, err := rwengine.Write(pool, inodes, in, 0, []byte("hi"))
	in.Unlock()
	require.NoError(t, err)

	in.RLock()
	buf := make([]byte, 5)
	n, err := rwengine.Read(pool, inodes, in, 100, buf)
	in.RUnlock()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWrite_AtCapacityWritesNothing(t *testing.T) {
	pool, inodes, in := setup(t)
	cfg := inodes.Config()
	capacity := cfg.Capacity()

	in.Lock()
	n, err := rwengine.Write(pool, inodes, in, capacity, []byte("x"))
	in.Unlock()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWrite_PastCapacityClampsToFit(t *testing.T) {
	pool, inodes, in := setup(t)
	cfg := inodes.Config()
	capacity := cfg.Capacity()

	data := make([]byte, capacity+10)
	for i := range data {
		data[i] = 'x'
	}

	in.Lock()
	n, err := rwengine.Write(pool, inodes, in, 0, data)
	in.Unlock()
	require.NoError(t, err)
	assert.EqualValues(t, capacity, n)

	in.RLock()
	size := in.Size()
	in.RUnlock()
	assert.Equal(t, capacity, size)

	// A second write starting exactly at capacity is clamped to zero bytes,
	// not rejected.
	in.Lock()
	n, err = rwengine.Write(pool, inodes, in, capacity, []byte("overflow"))
	in.Unlock()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
