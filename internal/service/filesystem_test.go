package service

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S1riyS/vnodefs/internal/config"
	"github.com/S1riyS/vnodefs/internal/models"
	"github.com/S1riyS/vnodefs/internal/repository"
	"github.com/S1riyS/vnodefs/internal/vfs"
	"github.com/S1riyS/vnodefs/pkg/logging"
)

func testContext() context.Context {
	return logging.MakeContextWithLogger(context.Background(), slog.New(slog.DiscardHandler))
}

func newTestService(t *testing.T, cfg config.VFSConfig) (FileSystemService, *Tree) {
	t.Helper()
	ctx := testContext()

	if cfg.RootMode == 0 {
		cfg.RootMode = 0o755
	}
	if cfg.Devices == nil {
		cfg.Devices = []string{"null", "zero", "full"}
	}
	tree, err := BuildTree(ctx, cfg)
	require.NoError(t, err)

	svc := NewFileSystemService(tree, repository.NewMemoryEventRepository(100), 8)
	t.Cleanup(func() {
		svc.Shutdown(ctx)
		tree.Release()
	})
	return svc, tree
}

func TestBuildTree(t *testing.T) {
	ctx := testContext()
	_, tree := newTestService(t, config.VFSConfig{})
	assert.Equal(t, []string{"dev"}, tree.Root.Names())

	devFS, ok := tree.FileSystem(DevFSDev)
	require.True(t, ok)
	assert.Equal(t, 4, devFS.VnodeCount())

	_, err := BuildTree(ctx, config.VFSConfig{RootMode: 0o755, Devices: []string{"tty"}})
	assert.Error(t, err)
}

func TestStat(t *testing.T) {
	ctx := testContext()
	svc, tree := newTestService(t, config.VFSConfig{})

	meta, err := svc.Stat(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeDir, meta.Type)
	assert.Equal(t, tree.Root.Ino(), meta.Ino)
	assert.EqualValues(t, RootDev, meta.Dev)

	meta, err = svc.Stat(ctx, "/dev/null")
	require.NoError(t, err)
	want := &models.NodeMeta{
		Ino:   meta.Ino,
		Dev:   DevFSDev,
		Type:  models.NodeTypeCharDev,
		Mode:  vfs.S_IFCHR | 0o666,
		Nlink: 1,
		Rdev:  1<<8 | 3,
	}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Errorf("stat /dev/null mismatch (-want +got):\n%s", diff)
	}

	byIno, err := svc.StatIno(ctx, DevFSDev, meta.Ino)
	require.NoError(t, err)
	assert.Equal(t, meta, byIno)

	_, err = svc.StatIno(ctx, 99, 1)
	assert.ErrorIs(t, err, vfs.ErrNotFound)
	_, err = svc.Stat(ctx, "/missing")
	assert.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestDirectoryOperations(t *testing.T) {
	ctx := testContext()
	svc, tree := newTestService(t, config.VFSConfig{})

	require.NoError(t, svc.Mkdir(ctx, "/etc", 0o755))
	require.NoError(t, svc.Mkdir(ctx, "/etc/ssh", 0o700))
	assert.ErrorIs(t, svc.Mkdir(ctx, "/etc", 0o755), vfs.ErrAlreadyExists)
	assert.ErrorIs(t, svc.Mkdir(ctx, "/nope/x", 0o755), vfs.ErrNotFound)

	fd, err := svc.Open(ctx, "/etc/hosts", vfs.O_CREAT|vfs.O_WRONLY, 0o644)
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx, fd))

	require.NoError(t, svc.Link(ctx, "/etc/hosts", "/hosts"))
	meta, err := svc.Stat(ctx, "/hosts")
	require.NoError(t, err)
	assert.EqualValues(t, 2, meta.Nlink)

	require.NoError(t, svc.Rename(ctx, "/etc/ssh", "/ssh"))
	assert.Equal(t, []string{"dev", "etc", "hosts", "ssh"}, tree.Root.Names())

	assert.ErrorIs(t, svc.Unlink(ctx, "/etc", vfs.AT_REMOVEDIR), vfs.ErrNotEmpty)
	assert.ErrorIs(t, svc.Unlink(ctx, "/hosts/", 0), vfs.ErrNotADirectory)
	require.NoError(t, svc.Unlink(ctx, "/etc/hosts", 0))
	require.NoError(t, svc.Unlink(ctx, "/etc/", vfs.AT_REMOVEDIR))

	events, err := svc.Events(ctx, 10)
	require.NoError(t, err)
	var ops []models.EventOp
	for _, e := range events {
		ops = append(ops, e.Op)
	}
	assert.Equal(t, []models.EventOp{
		models.EventUnlink,
		models.EventUnlink,
		models.EventRename,
		models.EventLink,
		models.EventCreate,
		models.EventMkdir,
		models.EventMkdir,
	}, ops)
	assert.Equal(t, "/etc/hosts", events[3].Target)
}

func TestDevicesAreImmutable(t *testing.T) {
	ctx := testContext()
	svc, _ := newTestService(t, config.VFSConfig{})

	require.NoError(t, svc.Mkdir(ctx, "/tmp", 0o755))
	assert.ErrorIs(t, svc.Mkdir(ctx, "/dev/foo", 0o755), vfs.ErrNotSupported)
	assert.ErrorIs(t, svc.Unlink(ctx, "/dev/null", 0), vfs.ErrNotSupported)
	assert.ErrorIs(t, svc.Rename(ctx, "/dev/null", "/tmp/null"), vfs.ErrNotSupported)
	assert.ErrorIs(t, svc.Link(ctx, "/dev/null", "/tmp/null"), vfs.ErrCrossDevice)
	_, err := svc.Open(ctx, "/dev/foo", vfs.O_CREAT|vfs.O_RDWR, 0o644)
	assert.ErrorIs(t, err, vfs.ErrNotSupported)

	fd, err := svc.Open(ctx, "/dev/full", vfs.O_RDWR, 0)
	require.NoError(t, err)
	_, err = svc.Write(ctx, fd, []byte("x"), 0)
	assert.ErrorIs(t, err, vfs.ErrNoSpace)
	require.NoError(t, svc.Close(ctx, fd))
}

func TestReadWrite(t *testing.T) {
	ctx := testContext()
	svc, _ := newTestService(t, config.VFSConfig{})

	fd, err := svc.Open(ctx, "/log", vfs.O_CREAT|vfs.O_RDWR|vfs.O_APPEND, 0o600)
	require.NoError(t, err)
	for _, chunk := range []string{"one ", "two"} {
		n, err := svc.Write(ctx, fd, []byte(chunk), 0)
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}

	buf := make([]byte, 16)
	n, err := svc.Read(ctx, fd, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "one two", string(buf[:n]))

	// The file outlives its last link while it is open.
	require.NoError(t, svc.Unlink(ctx, "/log", 0))
	n, err = svc.Read(ctx, fd, buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "two", string(buf[:n]))
	require.NoError(t, svc.Close(ctx, fd))

	_, err = svc.Read(ctx, fd, buf, 0)
	assert.ErrorIs(t, err, vfs.ErrBadFileDescriptor)
	assert.ErrorIs(t, svc.Close(ctx, fd), vfs.ErrBadFileDescriptor)

	ro, err := svc.Open(ctx, "/ro", vfs.O_CREAT|vfs.O_RDONLY, 0o400)
	require.NoError(t, err)
	_, err = svc.Write(ctx, ro, []byte("x"), 0)
	assert.ErrorIs(t, err, vfs.ErrBadFileDescriptor)

	wo, err := svc.Open(ctx, "/ro", vfs.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = svc.Read(ctx, wo, buf, 0)
	assert.ErrorIs(t, err, vfs.ErrBadFileDescriptor)
	assert.NotEqual(t, ro, wo)
}

func TestOpenDirectories(t *testing.T) {
	ctx := testContext()
	svc, _ := newTestService(t, config.VFSConfig{})

	fd, err := svc.Open(ctx, "/", vfs.O_RDONLY|vfs.O_DIRECTORY, 0)
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx, fd))

	_, err = svc.Open(ctx, "/dev", vfs.O_RDWR, 0)
	assert.ErrorIs(t, err, vfs.ErrIsADirectory)
	_, err = svc.Open(ctx, "/dev/null/", vfs.O_RDONLY, 0)
	assert.ErrorIs(t, err, vfs.ErrNotADirectory)
	_, err = svc.Open(ctx, "", vfs.O_RDONLY, 0)
	assert.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestReaddir(t *testing.T) {
	ctx := testContext()
	svc, _ := newTestService(t, config.VFSConfig{})

	data, err := svc.Readdir(ctx, "/dev", 0, 4096)
	require.NoError(t, err)
	dirents, err := vfs.ParseDirents(data)
	require.NoError(t, err)

	var names []string
	for _, d := range dirents {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{".", "..", "null", "zero", "full"}, names)
	assert.EqualValues(t, vfs.DT_CHR, dirents[2].Type)

	_, err = svc.Readdir(ctx, "/dev", 0, 0)
	assert.ErrorIs(t, err, vfs.ErrInvalidArgument)
	_, err = svc.Readdir(ctx, "/dev/null", 0, 4096)
	assert.ErrorIs(t, err, vfs.ErrNotADirectory)
}

func TestShutdownClosesFiles(t *testing.T) {
	ctx := testContext()
	svc, tree := newTestService(t, config.VFSConfig{})
	rootFS, _ := tree.FileSystem(RootDev)

	for i := 0; i < 3; i++ {
		_, err := svc.Open(ctx, "/f", vfs.O_CREAT|vfs.O_RDWR, 0o644)
		require.NoError(t, err)
	}
	require.NoError(t, svc.Unlink(ctx, "/f", 0))
	assert.Equal(t, 2, rootFS.VnodeCount())

	svc.Shutdown(ctx)
	assert.Equal(t, 1, rootFS.VnodeCount())
}

func TestOutOfMemory(t *testing.T) {
	ctx := testContext()
	svc, _ := newTestService(t, config.VFSConfig{MaxDirEntries: 3})

	require.NoError(t, svc.Mkdir(ctx, "/a", 0o755))
	require.NoError(t, svc.Mkdir(ctx, "/b", 0o755))
	assert.ErrorIs(t, svc.Mkdir(ctx, "/c", 0o755), vfs.ErrOutOfMemory)
}
