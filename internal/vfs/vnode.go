package vfs

import (
	"log/slog"
	"sync/atomic"

	"github.com/S1riyS/vnodefs/pkg/hashtable"
)

// Stat describes a vnode, see stat(2).
type Stat struct {
	Dev   uint64
	Ino   uint64
	Mode  uint32
	Nlink uint64
	Rdev  uint64
	Size  int64
}

// Vnode is an in-memory filesystem object: a file, a directory or a device.
//
// Vnodes are reference counted. Every method that returns a Vnode returns it
// with a reference held; the caller must DecRef it when done. Structural
// operations that a vnode does not support fail with ErrNotADirectory.
type Vnode interface {
	Ino() uint64
	Dev() uint64
	Mode() uint32
	Stat() Stat
	Size() int64

	IncRef()
	TryIncRef() bool
	DecRef()

	// GetChildNode resolves a single path component.
	GetChildNode(name string) (Vnode, error)
	// Link adds vnode to this directory under name.
	Link(name string, vnode Vnode) error
	// Mkdir creates an empty directory named name.
	Mkdir(name string, mode uint32) error
	// Unlink removes path, which may contain several components, according
	// to the AT_REMOVEDIR and AT_REMOVEFILE flags.
	Unlink(path string, flags int) error
	// Rename moves oldName in oldDirectory to newName in this directory.
	Rename(oldDirectory Vnode, oldName, newName string) error
	// Readdir encodes directory records starting at offset into buf and
	// returns the number of bytes written, 0 at the end of the directory.
	Readdir(offset uint64, buf []byte) (int, error)
	// Open resolves or creates name in this directory and opens it.
	Open(name string, flags int, mode uint32) (Vnode, error)
	// OpenFile opens the vnode itself.
	OpenFile(flags int) (Vnode, error)

	Read(buf []byte, offset int64) (int, error)
	Write(data []byte, offset int64) (int, error)

	// OnUnlink is called before the vnode is removed from a directory. A
	// false result vetoes the removal.
	OnUnlink() bool

	base() *BaseVnode
}

// releaser is implemented by vnodes that hold references of their own which
// must be dropped on destruction.
type releaser interface {
	release()
}

// BaseVnode carries identity, reference count and default behavior. Concrete
// vnodes embed it and call Init.
type BaseVnode struct {
	Refs

	fs    *FileSystem
	self  Vnode
	ino   uint64
	mode  uint32
	rdev  uint64
	nlink atomic.Int64

	hashLink hashtable.Link[BaseVnode]
}

// Init assigns an inode number on fs, takes the initial reference and
// registers the vnode in the filesystem's vnode table. self is the outermost
// vnode embedding b.
func (b *BaseVnode) Init(fs *FileSystem, self Vnode, mode uint32) {
	b.fs = fs
	b.self = self
	b.ino = fs.nextIno()
	b.mode = mode
	b.InitRefs()
	fs.register(b)
}

// SetRdev sets the device number reported for device special files.
func (b *BaseVnode) SetRdev(rdev uint64) {
	b.rdev = rdev
}

// HashKey implements hashtable.Object.
func (b *BaseVnode) HashKey() uint64 {
	return b.ino
}

// HashLink implements hashtable.Object.
func (b *BaseVnode) HashLink() *hashtable.Link[BaseVnode] {
	return &b.hashLink
}

func (b *BaseVnode) base() *BaseVnode {
	return b
}

// FileSystem returns the filesystem the vnode belongs to.
func (b *BaseVnode) FileSystem() *FileSystem {
	return b.fs
}

func (b *BaseVnode) Ino() uint64 {
	return b.ino
}

func (b *BaseVnode) Dev() uint64 {
	return b.fs.dev
}

func (b *BaseVnode) Mode() uint32 {
	return b.mode
}

// Nlink returns the number of directory entries referring to the vnode.
func (b *BaseVnode) Nlink() int64 {
	return b.nlink.Load()
}

func (b *BaseVnode) Stat() Stat {
	return Stat{
		Dev:   b.fs.dev,
		Ino:   b.ino,
		Mode:  b.mode,
		Nlink: uint64(b.nlink.Load()),
		Rdev:  b.rdev,
		Size:  b.self.Size(),
	}
}

func (b *BaseVnode) Size() int64 {
	return 0
}

// DecRef drops a reference. The last reference removes the vnode from the
// vnode table and releases whatever it holds.
func (b *BaseVnode) DecRef() {
	b.Refs.DecRef(b.destroy)
}

func (b *BaseVnode) destroy() {
	b.fs.unregister(b)
	if r, ok := b.self.(releaser); ok {
		r.release()
	}
	b.fs.log.Debug("Vnode destroyed",
		slog.Uint64("dev", b.fs.dev),
		slog.Uint64("ino", b.ino),
	)
}

func (b *BaseVnode) GetChildNode(string) (Vnode, error) {
	return nil, ErrNotADirectory
}

func (b *BaseVnode) Link(string, Vnode) error {
	return ErrNotADirectory
}

func (b *BaseVnode) Mkdir(string, uint32) error {
	return ErrNotADirectory
}

func (b *BaseVnode) Unlink(string, int) error {
	return ErrNotADirectory
}

func (b *BaseVnode) Rename(Vnode, string, string) error {
	return ErrNotADirectory
}

func (b *BaseVnode) Readdir(uint64, []byte) (int, error) {
	return 0, ErrNotADirectory
}

func (b *BaseVnode) Open(string, int, uint32) (Vnode, error) {
	return nil, ErrNotADirectory
}

func (b *BaseVnode) OpenFile(int) (Vnode, error) {
	b.self.IncRef()
	return b.self, nil
}

func (b *BaseVnode) Read([]byte, int64) (int, error) {
	return 0, ErrInvalidArgument
}

func (b *BaseVnode) Write([]byte, int64) (int, error) {
	return 0, ErrInvalidArgument
}

func (b *BaseVnode) OnUnlink() bool {
	return true
}
