package blockpool_test

import (
	"sync"
	"testing"

	"github.com/fooloaths/tfs/internal/blockpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate_FirstFitAndExhaustion(t *testing.T) {
	pool := blockpool.New(64, 4, 0)

	a, err := pool.Allocate()
	require.NoError(t, err)
	assert.EqualValues(t, 0, a)

	b, err := pool.Allocate()
	require.NoError(t, err)
	assert.EqualValues(t, 1, b)

	require.NoError(t, pool.Free(a))

	c, err := pool.Allocate()
	require.NoError(t, err)
	assert.EqualValues(t, 0, c, "freed block should be reused before advancing the scan")

	_, err = pool.Allocate()
	require.NoError(t, err)
	_, err = pool.Allocate()
	require.NoError(t, err)

	_, err = pool.Allocate()
	assert.ErrorIs(t, err, blockpool.ErrOutOfSpace)
}

func TestFreeBytes_TracksAllocations(t *testing.T) {
	pool := blockpool.New(64, 4, 0)
	assert.EqualValues(t, 256, pool.FreeBytes())

	id, err := pool.Allocate()
	require.NoError(t, err)
	assert.EqualValues(t, 192, pool.FreeBytes())

	require.NoError(t, pool.Free(id))
	assert.EqualValues(t, 256, pool.FreeBytes())
}

func TestMutateThenView_RoundTrips(t *testing.T) {
	pool := blockpool.New(16, 2, 0)
	id, err := pool.Allocate()
	require.NoError(t, err)

	err = pool.Mutate(id, func(b []byte) error {
		copy(b, []byte("hello, world!!!!"))
		return nil
	})
	require.NoError(t, err)

	var got string
	err = pool.View(id, func(b []byte) error {
		got = string(b)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello, world!!!!", got)
}

func TestView_RejectsInvalidBlockID(t *testing.T) {
	pool := blockpool.New(16, 2, 0)
	err := pool.View(blockpool.BlockID(99), func(b []byte) error { return nil })
	assert.ErrorIs(t, err, blockpool.ErrInvalidBlockID)
}

func TestReadWriteBlock_RoundTrips(t *testing.T) {
	pool := blockpool.New(8, 2, 0)
	id, err := pool.Allocate()
	require.NoError(t, err)

	require.NoError(t, pool.WriteBlock(id, []byte("abcdefgh")))

	buf := make([]byte, 8)
	require.NoError(t, pool.ReadBlock(id, buf))
	assert.Equal(t, "abcdefgh", string(buf))
}

func TestOptionalBlock_ZeroValueIsNone(t *testing.T) {
	var ob blockpool.OptionalBlock
	assert.True(t, ob.IsNone())

	ob = blockpool.Some(blockpool.BlockID(3))
	id, ok := ob.Get()
	assert.True(t, ok)
	assert.EqualValues(t, 3, id)
}

func TestAllocate_ConcurrentCallersGetDistinctBlocks(t *testing.T) {
	pool := blockpool.New(32, 32, 0)

	var wg sync.WaitGroup
	ids := make(chan blockpool.BlockID, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := pool.Allocate()
			require.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[blockpool.BlockID]bool)
	for id := range ids {
		assert.False(t, seen[id], "block %d allocated twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, 32)
}
