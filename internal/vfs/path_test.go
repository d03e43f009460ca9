package vfs_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S1riyS/vnodefs/internal/vfs"
)

func TestResolve(t *testing.T) {
	fs, root := newRoot(t)
	require.NoError(t, root.Mkdir("etc", 0o755))
	etc := lookupDir(t, root, "etc")
	hosts := newFile(t, fs)
	require.NoError(t, etc.Link("hosts", hosts))

	for _, path := range []string{"/etc/hosts", "etc/hosts", "//etc///hosts", "/etc/../etc/./hosts", "/../etc/hosts"} {
		v, err := vfs.Resolve(root, root, path)
		require.NoError(t, err, path)
		assert.Same(t, hosts, v, path)
		v.DecRef()
	}

	v, err := vfs.Resolve(root, etc, "hosts")
	require.NoError(t, err)
	assert.Same(t, hosts, v)
	v.DecRef()

	v, err = vfs.Resolve(root, etc, "/")
	require.NoError(t, err)
	assert.Same(t, root, v)
	v.DecRef()

	for _, tc := range []struct {
		path string
		err  error
	}{
		{"", vfs.ErrNotFound},
		{"/etc/passwd", vfs.ErrNotFound},
		{"/etc/hosts/", vfs.ErrNotADirectory},
		{"/etc/hosts/x", vfs.ErrNotADirectory},
		{"/" + strings.Repeat("x", vfs.NAME_MAX+1), vfs.ErrNameTooLong},
	} {
		_, err := vfs.Resolve(root, root, tc.path)
		assert.ErrorIs(t, err, tc.err, tc.path)
	}
}

func TestResolveParent(t *testing.T) {
	fs, root := newRoot(t)
	require.NoError(t, root.Mkdir("etc", 0o755))
	etc := lookupDir(t, root, "etc")
	require.NoError(t, etc.Link("hosts", newFile(t, fs)))

	dir, name, err := vfs.ResolveParent(root, root, "/etc/hosts")
	require.NoError(t, err)
	assert.Same(t, etc, dir)
	assert.Equal(t, "hosts", name)
	dir.DecRef()

	dir, name, err = vfs.ResolveParent(root, etc, "new/")
	require.NoError(t, err)
	assert.Same(t, etc, dir)
	assert.Equal(t, "new", name)
	dir.DecRef()

	_, _, err = vfs.ResolveParent(root, root, "/")
	assert.ErrorIs(t, err, vfs.ErrInvalidName)
	_, _, err = vfs.ResolveParent(root, root, "")
	assert.ErrorIs(t, err, vfs.ErrNotFound)
	_, _, err = vfs.ResolveParent(root, root, "/etc/hosts/x")
	assert.ErrorIs(t, err, vfs.ErrNotADirectory)
}
