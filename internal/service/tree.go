package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/S1riyS/vnodefs/internal/config"
	"github.com/S1riyS/vnodefs/internal/devices"
	"github.com/S1riyS/vnodefs/internal/vfs"
	"github.com/S1riyS/vnodefs/pkg/logging"
)

const (
	RootDev  = 1
	DevFSDev = 2
)

// Tree is the mounted namespace: a root directory with the device directory
// at /dev.
type Tree struct {
	Root        *vfs.DirectoryVnode
	FileSystems []*vfs.FileSystem
}

// BuildTree creates the root filesystem, registers the configured devices and
// mounts them at /dev.
func BuildTree(ctx context.Context, cfg config.VFSConfig) (*Tree, error) {
	const op = "service.BuildTree"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	opts := []vfs.Option{
		vfs.WithLogger(logging.GetLoggerFromContext(ctx).With(slog.String("component", "vfs"))),
		vfs.WithMaxEntries(cfg.MaxDirEntries),
		vfs.WithMaxFileSize(cfg.MaxFileSize),
		vfs.WithVnodeTableSize(cfg.VnodeTableSize),
	}
	rootFS := vfs.NewFileSystem(RootDev, opts...)
	devFS := vfs.NewFileSystem(DevFSDev, opts...)

	root := vfs.NewDirectory(rootFS, nil, cfg.RootMode)
	dev := devices.NewDevFS(devFS, cfg.RootMode)
	defer dev.DecRef()

	for _, name := range cfg.Devices {
		device := devices.New(devFS, name)
		if device == nil {
			root.DecRef()
			return nil, fmt.Errorf("%s: unknown device %q", op, name)
		}
		err := dev.AddDevice(name, device)
		device.DecRef()
		if err != nil {
			root.DecRef()
			return nil, fmt.Errorf("%s: add device %q: %w", op, name, err)
		}
	}

	if err := dev.Initialize(root); err != nil {
		root.DecRef()
		return nil, fmt.Errorf("%s: mount /dev: %w", op, err)
	}

	logger.Info("Filesystem tree ready",
		slog.Int("devices", dev.ChildCount()),
		slog.Int("vnodes", rootFS.VnodeCount()+devFS.VnodeCount()),
	)

	return &Tree{
		Root:        root,
		FileSystems: []*vfs.FileSystem{rootFS, devFS},
	}, nil
}

// Release drops the tree's reference on the root, destroying every vnode not
// held elsewhere.
func (t *Tree) Release() {
	t.Root.DecRef()
}

// FileSystem returns the filesystem with device id dev.
func (t *Tree) FileSystem(dev uint64) (*vfs.FileSystem, bool) {
	for _, fs := range t.FileSystems {
		if fs.Dev() == dev {
			return fs, true
		}
	}
	return nil, false
}
