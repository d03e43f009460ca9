// Package devices implements the device filesystem and the character devices
// registered in it.
package devices

import (
	"errors"

	"github.com/S1riyS/vnodefs/internal/vfs"
)

// DevFS exposes registered devices as entries of a directory. Its entries are
// fixed by AddDevice; the structural operations of the vnode contract fail
// with vfs.ErrNotSupported.
type DevFS struct {
	vfs.DirectoryVnode
}

// NewDevFS returns an empty device directory on its own filesystem.
func NewDevFS(fs *vfs.FileSystem, mode uint32) *DevFS {
	d := &DevFS{}
	d.InitDirectory(fs, d, nil, mode, vfs.ImmutableEntries())
	return d
}

// AddDevice registers vnode under name. It is meant for drivers during
// initialization and is not reachable through the vnode contract.
func (d *DevFS) AddDevice(name string, vnode vfs.Vnode) error {
	return d.Insert(name, vnode)
}

// Initialize mounts the device directory as "dev" under rootDir.
func (d *DevFS) Initialize(rootDir *vfs.DirectoryVnode) error {
	return rootDir.Mount("dev", d)
}

// Open implements vfs.Vnode.Open by handing over to the device's own open.
// Devices cannot be created through the filesystem.
func (d *DevFS) Open(name string, flags int, mode uint32) (vfs.Vnode, error) {
	device, err := d.GetChildNode(name)
	if err != nil {
		if errors.Is(err, vfs.ErrNotFound) && flags&vfs.O_CREAT != 0 {
			return nil, vfs.ErrNotSupported
		}
		return nil, err
	}
	defer device.DecRef()

	if flags&(vfs.O_CREAT|vfs.O_EXCL) == vfs.O_CREAT|vfs.O_EXCL {
		return nil, vfs.ErrAlreadyExists
	}
	if flags&vfs.O_DIRECTORY != 0 && !vfs.IsDir(device.Mode()) {
		return nil, vfs.ErrNotADirectory
	}
	return device.OpenFile(flags)
}
