package vfs_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S1riyS/vnodefs/internal/vfs"
)

func TestVnodeTable(t *testing.T) {
	fs := vfs.NewFileSystem(7, vfs.WithVnodeTableSize(4))
	root := vfs.NewDirectory(fs, nil, 0o755)

	seen := map[uint64]bool{root.Ino(): true}
	var files []*vfs.RegularFile
	for i := 0; i < 32; i++ {
		f := vfs.NewRegularFile(fs, 0o600)
		require.False(t, seen[f.Ino()], "inode %d reused", f.Ino())
		seen[f.Ino()] = true
		files = append(files, f)
	}
	assert.Equal(t, 33, fs.VnodeCount())

	for _, f := range files {
		v, err := fs.Vnode(f.Ino())
		require.NoError(t, err)
		assert.Same(t, f, v)
		assert.EqualValues(t, 7, v.Dev())
		v.DecRef()
	}

	for _, f := range files {
		f.DecRef()
	}
	assert.Equal(t, 1, fs.VnodeCount())

	v, err := fs.Vnode(root.Ino())
	require.NoError(t, err)
	v.DecRef()
	root.DecRef()
	assert.Zero(t, fs.VnodeCount())
}

func TestStat(t *testing.T) {
	fs, root := newRoot(t)
	f := newFile(t, fs)
	_, err := f.Write([]byte("abc"), 2)
	require.NoError(t, err)
	require.NoError(t, root.Link("f", f))
	require.NoError(t, root.Link("g", f))

	assert.Equal(t, vfs.Stat{
		Dev:   1,
		Ino:   f.Ino(),
		Mode:  vfs.S_IFREG | 0o644,
		Nlink: 2,
		Size:  5,
	}, f.Stat())

	st := root.Stat()
	assert.True(t, vfs.IsDir(st.Mode))
	assert.EqualValues(t, 2, st.Size)
}

func TestRegularFileReadWrite(t *testing.T) {
	fs := vfs.NewFileSystem(1)
	f := newFile(t, fs)

	n, err := f.Write([]byte("hello world"), 0)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	_, err = f.Write([]byte("W"), 6)
	require.NoError(t, err)

	buf := make([]byte, 32)
	n, err = f.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello World", string(buf[:n]))

	n, err = f.Read(buf, 100)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.Read(buf, -1)
	assert.ErrorIs(t, err, vfs.ErrInvalidArgument)
	_, err = f.Write(buf, -1)
	assert.ErrorIs(t, err, vfs.ErrInvalidArgument)
}

func TestRegularFileSizeLimit(t *testing.T) {
	fs := vfs.NewFileSystem(1, vfs.WithMaxFileSize(16))
	assert.EqualValues(t, 16, fs.MaxFileSize())
	f := newFile(t, fs)

	for _, offset := range []int64{math.MaxInt64, math.MaxInt64 - 1, 1 << 50, 17} {
		n, err := f.Write([]byte("x"), offset)
		assert.ErrorIs(t, err, vfs.ErrFileTooBig, "offset %d", offset)
		assert.Zero(t, n)
	}
	_, err := f.Write(make([]byte, 17), 0)
	assert.ErrorIs(t, err, vfs.ErrFileTooBig)
	assert.Zero(t, f.Size())

	// Filling the file exactly up to the limit is fine.
	n, err := f.Write(make([]byte, 8), 8)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.EqualValues(t, 16, f.Size())
	_, err = f.Write([]byte("x"), 16)
	assert.ErrorIs(t, err, vfs.ErrFileTooBig)

	assert.EqualValues(t, 64<<20, vfs.NewFileSystem(2).MaxFileSize())
	assert.EqualValues(t, 64<<20, vfs.NewFileSystem(3, vfs.WithMaxFileSize(0)).MaxFileSize())
}

func TestStructuralChangesAreLogged(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fs, root := newRoot(t, vfs.WithLogger(logger))

	require.NoError(t, root.Mkdir("a", 0o755))
	f, err := root.Open("f", vfs.O_CREAT|vfs.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, root.Link("g", f))
	f.DecRef()
	a := lookupDir(t, root, "a")
	require.NoError(t, a.Rename(root, "g", "h"))
	require.NoError(t, root.Unlink("f", 0))

	type record struct {
		Msg string `json:"msg"`
		Dev uint64 `json:"dev"`
	}
	var msgs []string
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r record
		require.NoError(t, dec.Decode(&r))
		assert.EqualValues(t, fs.Dev(), r.Dev)
		msgs = append(msgs, r.Msg)
	}
	assert.Equal(t, []string{
		"Directory created",
		"File created",
		"Entry linked",
		"Entry renamed",
		"Entry unlinked",
	}, msgs)
}
