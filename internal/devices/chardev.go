package devices

import (
	"github.com/S1riyS/vnodefs/internal/vfs"
)

// Makedev combines a major and minor number into a device number.
func Makedev(major, minor uint32) uint64 {
	return uint64(major)<<8 | uint64(minor)
}

const memMajor = 1

// Null discards writes and reads as empty.
type Null struct {
	vfs.BaseVnode
}

// NewNull returns a null device vnode on fs.
func NewNull(fs *vfs.FileSystem) *Null {
	n := &Null{}
	n.Init(fs, n, vfs.S_IFCHR|0o666)
	n.SetRdev(Makedev(memMajor, 3))
	return n
}

func (n *Null) Read([]byte, int64) (int, error) {
	return 0, nil
}

func (n *Null) Write(data []byte, _ int64) (int, error) {
	return len(data), nil
}

// Zero reads as an endless stream of zero bytes and discards writes.
type Zero struct {
	vfs.BaseVnode
}

// NewZero returns a zero device vnode on fs.
func NewZero(fs *vfs.FileSystem) *Zero {
	z := &Zero{}
	z.Init(fs, z, vfs.S_IFCHR|0o666)
	z.SetRdev(Makedev(memMajor, 5))
	return z
}

func (z *Zero) Read(buf []byte, _ int64) (int, error) {
	clear(buf)
	return len(buf), nil
}

func (z *Zero) Write(data []byte, _ int64) (int, error) {
	return len(data), nil
}

// Full reads like Zero but every write fails with ENOSPC.
type Full struct {
	vfs.BaseVnode
}

// NewFull returns a full device vnode on fs.
func NewFull(fs *vfs.FileSystem) *Full {
	f := &Full{}
	f.Init(fs, f, vfs.S_IFCHR|0o666)
	f.SetRdev(Makedev(memMajor, 7))
	return f
}

func (f *Full) Read(buf []byte, _ int64) (int, error) {
	clear(buf)
	return len(buf), nil
}

func (f *Full) Write([]byte, int64) (int, error) {
	return 0, vfs.ErrNoSpace
}

// New returns the device vnode called name, or nil for an unknown name.
func New(fs *vfs.FileSystem, name string) vfs.Vnode {
	switch name {
	case "null":
		return NewNull(fs)
	case "zero":
		return NewZero(fs)
	case "full":
		return NewFull(fs)
	}
	return nil
}
