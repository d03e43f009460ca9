package devices_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S1riyS/vnodefs/internal/devices"
	"github.com/S1riyS/vnodefs/internal/vfs"
)

func setup(t *testing.T) (*vfs.DirectoryVnode, *devices.DevFS) {
	t.Helper()
	rootFS := vfs.NewFileSystem(1)
	root := vfs.NewDirectory(rootFS, nil, 0o755)
	t.Cleanup(root.DecRef)

	devFS := vfs.NewFileSystem(2)
	dev := devices.NewDevFS(devFS, 0o755)
	t.Cleanup(dev.DecRef)
	for _, name := range []string{"null", "zero", "full"} {
		device := devices.New(devFS, name)
		require.NotNil(t, device)
		require.NoError(t, dev.AddDevice(name, device))
		device.DecRef()
	}
	require.NoError(t, dev.Initialize(root))
	return root, dev
}

func TestDevFSLookup(t *testing.T) {
	root, dev := setup(t)

	null, err := dev.GetChildNode("null")
	require.NoError(t, err)
	defer null.DecRef()
	assert.Equal(t, uint32(vfs.S_IFCHR|0o666), null.Mode())
	assert.Equal(t, devices.Makedev(1, 3), null.Stat().Rdev)
	assert.EqualValues(t, 2, null.Dev())

	v, err := vfs.Resolve(root, root, "/dev/null")
	require.NoError(t, err)
	assert.Same(t, null, v)
	v.DecRef()

	parent, err := dev.GetChildNode("..")
	require.NoError(t, err)
	defer parent.DecRef()
	assert.Same(t, root, parent)

	assert.Equal(t, []string{"null", "zero", "full"}, dev.Names())
	assert.Nil(t, devices.New(vfs.NewFileSystem(3), "tty"))
}

func TestDevFSIsImmutable(t *testing.T) {
	root, dev := setup(t)
	file := vfs.NewRegularFile(dev.FileSystem(), 0o644)
	defer file.DecRef()

	assert.ErrorIs(t, dev.Link("foo", file), vfs.ErrNotSupported)
	assert.ErrorIs(t, dev.Mkdir("foo", 0o755), vfs.ErrNotSupported)
	assert.ErrorIs(t, dev.Unlink("null", 0), vfs.ErrNotSupported)
	assert.ErrorIs(t, dev.Rename(dev, "null", "nil"), vfs.ErrNotSupported)
	_, err := dev.Open("foo", vfs.O_CREAT|vfs.O_RDWR, 0o644)
	assert.ErrorIs(t, err, vfs.ErrNotSupported)

	// Entries cannot be moved out of the device directory either.
	assert.ErrorIs(t, root.Rename(dev, "null", "null"), vfs.ErrNotSupported)

	assert.Equal(t, 3, dev.ChildCount())
	null, err := dev.GetChildNode("null")
	require.NoError(t, err)
	null.DecRef()
}

func TestDevFSUnlinkFromParent(t *testing.T) {
	root, _ := setup(t)
	assert.ErrorIs(t, root.Unlink("dev", vfs.AT_REMOVEDIR), vfs.ErrNotEmpty)
	assert.Equal(t, []string{"dev"}, root.Names())
}

func TestDevFSOpen(t *testing.T) {
	_, dev := setup(t)

	f, err := dev.Open("zero", vfs.O_RDWR, 0)
	require.NoError(t, err)
	defer f.DecRef()
	buf := []byte{1, 2, 3}
	n, err := f.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0, 0, 0}, buf)

	f2, err := dev.Open("null", vfs.O_CREAT|vfs.O_WRONLY, 0)
	require.NoError(t, err)
	f2.DecRef()

	_, err = dev.Open("null", vfs.O_CREAT|vfs.O_EXCL, 0)
	assert.ErrorIs(t, err, vfs.ErrAlreadyExists)
	_, err = dev.Open("null", vfs.O_DIRECTORY, 0)
	assert.ErrorIs(t, err, vfs.ErrNotADirectory)
	_, err = dev.Open("tty", vfs.O_RDONLY, 0)
	assert.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestCharDevices(t *testing.T) {
	fs := vfs.NewFileSystem(1)
	null := devices.NewNull(fs)
	defer null.DecRef()
	zero := devices.NewZero(fs)
	defer zero.DecRef()
	full := devices.NewFull(fs)
	defer full.DecRef()

	buf := make([]byte, 8)
	n, err := null.Read(buf, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = null.Write([]byte("discard"), 0)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = zero.Write([]byte("x"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	buf[0] = 'x'
	n, err = full.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, make([]byte, 8), buf)
	_, err = full.Write([]byte("x"), 0)
	assert.ErrorIs(t, err, vfs.ErrNoSpace)

	_, err = null.Readdir(0, buf)
	assert.ErrorIs(t, err, vfs.ErrNotADirectory)
}
