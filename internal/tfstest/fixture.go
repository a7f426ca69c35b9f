// Package tfstest builds ready-to-use Filesystem fixtures for tests,
// mirroring the role the teacher repo's testing package plays for disk
// images: a single place that knows how to stand up a working instance
// without every test duplicating the setup.
package tfstest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fooloaths/tfs"
	"github.com/fooloaths/tfs/config"
)

// Small returns the configuration used by fixtures that want a tiny, fast
// filesystem: two direct blocks, enough indirect capacity to exercise
// growth past them, and just a handful of inodes and open-file slots.
func Small() config.Config {
	return config.Config{
		BlockSize:         64,
		DataBlocks:        64,
		InodeTableSize:    8,
		MaxOpenFiles:      8,
		MaxFileName:       24,
		DirectBlocksCount: 2,
	}
}

// New builds a filesystem from cfg, failing the test immediately if the
// configuration is invalid.
func New(t testing.TB, cfg config.Config) *tfs.Filesystem {
	t.Helper()
	fs, err := tfs.New(cfg)
	require.NoError(t, err)
	return fs
}

// NewSmall builds a filesystem using Small's configuration.
func NewSmall(t testing.TB) *tfs.Filesystem {
	t.Helper()
	return New(t, Small())
}
