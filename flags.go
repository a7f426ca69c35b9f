package tfs

// OpenFlags is a bitmask passed to Filesystem.Open, mirroring the original
// TFS_O_* flags.
type OpenFlags int

const (
	// OpenCreate creates the file if it doesn't already exist.
	OpenCreate = OpenFlags(1 << iota)
	// OpenTruncate discards the file's existing contents on open.
	OpenTruncate
	// OpenAppend starts the open-file offset at the end of the file instead
	// of the beginning.
	OpenAppend
)

// HasCreate reports whether the OpenCreate bit is set.
func (flags OpenFlags) HasCreate() bool {
	return flags&OpenCreate != 0
}

// HasTruncate reports whether the OpenTruncate bit is set.
func (flags OpenFlags) HasTruncate() bool {
	return flags&OpenTruncate != 0
}

// HasAppend reports whether the OpenAppend bit is set.
func (flags OpenFlags) HasAppend() bool {
	return flags&OpenAppend != 0
}
