package vfs

// Flags for fstatat(2) and linkat(2). Symlinks are resolved by collaborators
// outside this package.
const (
	AT_SYMLINK_NOFOLLOW = 1 << 0
	AT_SYMLINK_FOLLOW   = 1 << 0
)

// Flags for unlinkat(2).
const (
	AT_REMOVEDIR = 1 << 0
	// AT_REMOVEFILE is non standard. Without either flag unlink behaves as if
	// AT_REMOVEFILE was given; with both it removes files and directories.
	AT_REMOVEFILE = 1 << 1
)

// Flags for open(2).
const (
	O_RDONLY    = 0
	O_WRONLY    = 1 << 0
	O_RDWR      = 1 << 1
	O_APPEND    = 1 << 2
	O_CREAT     = 1 << 3
	O_EXCL      = 1 << 4
	O_TRUNC     = 1 << 5
	O_DIRECTORY = 1 << 6
)

// File type and permission bits of mode_t.
const (
	S_IFMT   = 0o170000
	S_IFCHR  = 0o020000
	S_IFDIR  = 0o040000
	S_IFBLK  = 0o060000
	S_IFREG  = 0o100000
	S_IFLNK  = 0o120000
	S_IFIFO  = 0o010000
	S_IFSOCK = 0o140000

	S_IRWXUGO = 0o0777
	S_IALLUGO = 0o7777
)

// NAME_MAX is the longest accepted path component, in bytes.
const NAME_MAX = 255

// IsDir reports whether mode describes a directory.
func IsDir(mode uint32) bool {
	return mode&S_IFMT == S_IFDIR
}

// IsReg reports whether mode describes a regular file.
func IsReg(mode uint32) bool {
	return mode&S_IFMT == S_IFREG
}
