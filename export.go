package tfs

import (
	"os"

	"github.com/noxer/bytewriter"
)

// HostFileWriter receives a fully assembled file body and persists it
// somewhere outside the filesystem. The default implementation writes a
// plain host file; tests substitute their own to inspect the bytes without
// touching the filesystem.
type HostFileWriter interface {
	WriteHostFile(path string, data []byte) error
}

// osFileWriter is the default HostFileWriter, writing through os.WriteFile.
type osFileWriter struct{}

func (osFileWriter) WriteHostFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

// DefaultHostFileWriter is the HostFileWriter CopyToHost uses when none is
// supplied.
var DefaultHostFileWriter HostFileWriter = osFileWriter{}

// CopyToHost reads name's entire contents and hands them to writer as one
// contiguous buffer, then has writer persist them at hostPath. Passing a
// nil writer uses DefaultHostFileWriter.
func (fs *Filesystem) CopyToHost(name, hostPath string, writer HostFileWriter) error {
	if writer == nil {
		writer = DefaultHostFileWriter
	}

	n, err := fs.dir.Find(name)
	if err != nil {
		return wrapError(err)
	}
	in, err := fs.inodes.Get(n)
	if err != nil {
		return wrapError(err)
	}

	in.RLock()
	defer in.RUnlock()

	size := in.Size()
	buf := make([]byte, size)
	bw := bytewriter.New(buf)

	blockSize := uint64(fs.cfg.BlockSize)
	for offset := uint64(0); offset < size; offset += blockSize {
		chunk := blockSize
		if offset+chunk > size {
			chunk = size - offset
		}

		blockIdx := offset / blockSize
		id, ok, err := fs.inodes.BlockAt(in, blockIdx)
		if err != nil {
			return wrapError(err)
		}

		if !ok {
			if _, err := bw.Write(make([]byte, chunk)); err != nil {
				return wrapError(err)
			}
			continue
		}

		err = fs.pool.View(id, func(block []byte) error {
			_, err := bw.Write(block[:chunk])
			return err
		})
		if err != nil {
			return wrapError(err)
		}
	}

	return writer.WriteHostFile(hostPath, buf)
}
