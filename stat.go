package tfs

// FileStat describes a single file's metadata as reported to a caller.
type FileStat struct {
	Name  string
	Size  uint64
	Inode uint32
}

// FSStat describes filesystem-wide capacity and usage, the TFS analogue of
// statvfs(2).
type FSStat struct {
	BlockSize     uint64
	TotalBytes    uint64
	FreeBytes     uint64
	TotalInodes   uint64
	FreeInodes    uint64
	MaxOpenFiles  uint64
	OpenFileCount uint64
	MaxFileSize   uint64
}
