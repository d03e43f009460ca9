package vfs

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/S1riyS/vnodefs/pkg/hashtable"
)

const (
	defaultVnodeTableSize = 1024
	defaultMaxFileSize    = 64 << 20
)

// FileSystem is one device worth of vnodes: it hands out inode numbers, keeps
// the vnode table used for lookups by inode number and serializes
// cross-directory renames.
type FileSystem struct {
	dev        uint64
	lastIno    atomic.Uint64
	maxEntries int
	maxSize    int64
	log        *slog.Logger

	// renameMu is held by every rename that moves an entry between two
	// directories. While it is held the parent links of directories on this
	// filesystem do not change.
	renameMu sync.Mutex

	// mu protects vnodes.
	mu     sync.Mutex
	vnodes *hashtable.Table[BaseVnode, uint64, *BaseVnode]
}

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithLogger sets the logger used for vnode lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(fs *FileSystem) {
		fs.log = logger
	}
}

// WithMaxEntries limits the number of entries a single directory can hold.
// Growing a directory beyond the limit fails with ErrOutOfMemory. Zero means
// no limit.
func WithMaxEntries(n int) Option {
	return func(fs *FileSystem) {
		fs.maxEntries = n
	}
}

// WithMaxFileSize limits the size of regular files. Writes that would end
// past it fail with ErrFileTooBig. Non-positive values keep the default.
func WithMaxFileSize(n int64) Option {
	return func(fs *FileSystem) {
		if n > 0 {
			fs.maxSize = n
		}
	}
}

// WithVnodeTableSize sets the number of buckets of the vnode table.
func WithVnodeTableSize(n int) Option {
	return func(fs *FileSystem) {
		if n > 0 {
			fs.vnodes = hashtable.New[BaseVnode, uint64](make([]*BaseVnode, n))
		}
	}
}

// NewFileSystem returns an empty filesystem identified by dev.
func NewFileSystem(dev uint64, opts ...Option) *FileSystem {
	fs := &FileSystem{
		dev:     dev,
		maxSize: defaultMaxFileSize,
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(fs)
	}
	if fs.vnodes == nil {
		fs.vnodes = hashtable.New[BaseVnode, uint64](make([]*BaseVnode, defaultVnodeTableSize))
	}
	return fs
}

// Dev returns the device id of the filesystem.
func (fs *FileSystem) Dev() uint64 {
	return fs.dev
}

// Vnode returns the live vnode with inode number ino, with a reference held.
func (fs *FileSystem) Vnode(ino uint64) (Vnode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	b := fs.vnodes.Get(ino)
	if b == nil || !b.TryIncRef() {
		return nil, ErrNotFound
	}
	return b.self, nil
}

// VnodeCount returns the number of live vnodes.
func (fs *FileSystem) VnodeCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.vnodes.Len()
}

func (fs *FileSystem) nextIno() uint64 {
	return fs.lastIno.Add(1)
}

func (fs *FileSystem) register(b *BaseVnode) {
	fs.mu.Lock()
	fs.vnodes.Add(b)
	fs.mu.Unlock()
}

func (fs *FileSystem) unregister(b *BaseVnode) {
	fs.mu.Lock()
	fs.vnodes.Remove(b.ino)
	fs.mu.Unlock()
}

// MaxFileSize returns the largest size a regular file can grow to.
func (fs *FileSystem) MaxFileSize() int64 {
	return fs.maxSize
}

// logMutation records a structural change. Callers must not hold directory
// locks.
func (fs *FileSystem) logMutation(msg string, attrs ...any) {
	fs.log.Debug(msg, append([]any{slog.Uint64("dev", fs.dev)}, attrs...)...)
}

func (fs *FileSystem) directoryFull(count int) bool {
	return fs.maxEntries > 0 && count >= fs.maxEntries
}
