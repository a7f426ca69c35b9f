package tfs_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fooloaths/tfs"
	"github.com/fooloaths/tfs/internal/tfstest"
)

func smallFS(t *testing.T) *tfs.Filesystem {
	t.Helper()
	return tfstest.NewSmall(t)
}

func TestCreateOpenWriteReadClose(t *testing.T) {
	fs := smallFS(t)
	require.NoError(t, fs.Create("greeting.txt"))

	h, err := fs.Open("greeting.txt", 0)
	require.NoError(t, err)

	n, err := fs.Write(h, []byte("hello, tfs"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	require.NoError(t, fs.CloseHandle(h))

	h2, err := fs.Open("greeting.txt", 0)
	require.NoError(t, err)
	buf := make([]byte, 10)
	n, err = fs.Read(h2, buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "hello, tfs", string(buf))
	require.NoError(t, fs.CloseHandle(h2))
}

func TestOpenCreate_MakesMissingFile(t *testing.T) {
	fs := smallFS(t)
	h, err := fs.Open("new.txt", tfs.OpenCreate)
	require.NoError(t, err)
	require.NoError(t, fs.CloseHandle(h))

	stat, err := fs.Stat("new.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 0, stat.Size)
}

func TestOpen_WithoutCreateOnMissingFileFails(t *testing.T) {
	fs := smallFS(t)
	_, err := fs.Open("absent.txt", 0)
	assert.Error(t, err)
}

func TestCreate_DuplicateNameFails(t *testing.T) {
	fs := smallFS(t)
	require.NoError(t, fs.Create("dup.txt"))
	err := fs.Create("dup.txt")
	assert.Error(t, err)
}

func TestAppendMode_AlwaysWritesAtEnd(t *testing.T) {
	fs := smallFS(t)
	require.NoError(t, fs.Create("log.txt"))

	h, err := fs.Open("log.txt", tfs.OpenAppend)
	require.NoError(t, err)
	_, err = fs.Write(h, []byte("first "))
	require.NoError(t, err)
	_, err = fs.Write(h, []byte("second"))
	require.NoError(t, err)
	require.NoError(t, fs.CloseHandle(h))

	h2, err := fs.Open("log.txt", 0)
	require.NoError(t, err)
	buf := make([]byte, 12)
	n, err := fs.Read(h2, buf)
	require.NoError(t, err)
	assert.Equal(t, "first second", string(buf[:n]))
	require.NoError(t, fs.CloseHandle(h2))
}

func TestAppendMode_InitialOffsetStartsAtEndOfFile(t *testing.T) {
	fs := smallFS(t)
	h, err := fs.Open("s3.txt", tfs.OpenCreate|tfs.OpenTruncate)
	require.NoError(t, err)
	_, err = fs.Write(h, []byte("AAA!"))
	require.NoError(t, err)
	require.NoError(t, fs.CloseHandle(h))

	h2, err := fs.Open("s3.txt", tfs.OpenAppend)
	require.NoError(t, err)
	buf := make([]byte, 39)
	n, err := fs.Read(h2, buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, fs.CloseHandle(h2))
}

func TestTruncate_ShrinksThenReadsZeroesOnRegrow(t *testing.T) {
	fs := smallFS(t)
	require.NoError(t, fs.Create("t.txt"))
	h, err := fs.Open("t.txt", 0)
	require.NoError(t, err)
	_, err = fs.Write(h, []byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, fs.CloseHandle(h))

	require.NoError(t, fs.Truncate("t.txt", 4))
	stat, err := fs.Stat("t.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 4, stat.Size)

	require.NoError(t, fs.Truncate("t.txt", 8))
	h2, err := fs.Open("t.txt", 0)
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := fs.Read(h2, buf)
	require.NoError(t, err)
	assert.Equal(t, "0123\x00\x00\x00\x00", string(buf[:n]))
	require.NoError(t, fs.CloseHandle(h2))
}

func TestDelete_FailsWhileFileIsOpen(t *testing.T) {
	fs := smallFS(t)
	require.NoError(t, fs.Create("held.txt"))
	h, err := fs.Open("held.txt", 0)
	require.NoError(t, err)

	err = fs.Delete("held.txt")
	assert.Error(t, err)

	require.NoError(t, fs.CloseHandle(h))
	require.NoError(t, fs.Delete("held.txt"))
}

func TestList_ReflectsCreatesAndDeletes(t *testing.T) {
	fs := smallFS(t)
	require.NoError(t, fs.Create("a"))
	require.NoError(t, fs.Create("b"))

	names, err := fs.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	require.NoError(t, fs.Delete("a"))
	names, err = fs.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b"}, names)
}

func TestFSStat_TracksFreeSpaceAndOpenFiles(t *testing.T) {
	fs := smallFS(t)
	before := fs.FSStat()
	// The root directory's own block is claimed at construction time, so
	// free space starts one block short of the total rather than equal to it.
	assert.EqualValues(t, before.TotalBytes-before.BlockSize, before.FreeBytes)

	require.NoError(t, fs.Create("x"))
	h, err := fs.Open("x", 0)
	require.NoError(t, err)
	_, err = fs.Write(h, make([]byte, 64))
	require.NoError(t, err)

	after := fs.FSStat()
	assert.Less(t, after.FreeBytes, before.FreeBytes)
	assert.EqualValues(t, 1, after.OpenFileCount)

	require.NoError(t, fs.CloseHandle(h))
}

func TestCopyToHost_WritesExactContents(t *testing.T) {
	fs := smallFS(t)
	require.NoError(t, fs.Create("export.txt"))
	h, err := fs.Open("export.txt", 0)
	require.NoError(t, err)
	_, err = fs.Write(h, []byte("exported bytes"))
	require.NoError(t, err)
	require.NoError(t, fs.CloseHandle(h))

	dir := t.TempDir()
	dest := filepath.Join(dir, "export.txt")
	require.NoError(t, fs.CopyToHost("export.txt", dest, nil))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "exported bytes", string(got))
}

func TestConcurrentReaders_ThenDeleteSucceeds(t *testing.T) {
	fs := smallFS(t)
	require.NoError(t, fs.Create("shared.txt"))
	wh, err := fs.Open("shared.txt", 0)
	require.NoError(t, err)
	_, err = fs.Write(wh, []byte("concurrent payload"))
	require.NoError(t, err)
	require.NoError(t, fs.CloseHandle(wh))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := fs.Open("shared.txt", 0)
			if err != nil {
				return
			}
			buf := make([]byte, 19)
			_, _ = fs.Read(h, buf)
			_ = fs.CloseHandle(h)
		}()
	}
	wg.Wait()

	require.NoError(t, fs.Delete("shared.txt"))
}

func TestClose_ReleasesAllOpenHandles(t *testing.T) {
	fs := smallFS(t)
	require.NoError(t, fs.Create("a"))
	_, err := fs.Open("a", 0)
	require.NoError(t, err)
	_, err = fs.Open("a", 0)
	require.NoError(t, err)

	require.NoError(t, fs.Close())
	assert.EqualValues(t, 0, fs.FSStat().OpenFileCount)
}
