package service

import (
	"sync"

	"github.com/S1riyS/vnodefs/internal/vfs"
	"github.com/S1riyS/vnodefs/pkg/hashtable"
)

// openFile is an open file description. It holds a reference on vnode until
// it is closed.
type openFile struct {
	fd    uint64
	vnode vfs.Vnode
	flags int
	path  string

	link hashtable.Link[openFile]
}

func (f *openFile) HashKey() uint64 {
	return f.fd
}

func (f *openFile) HashLink() *hashtable.Link[openFile] {
	return &f.link
}

func (f *openFile) readable() bool {
	return f.flags&vfs.O_WRONLY == 0
}

func (f *openFile) writable() bool {
	return f.flags&(vfs.O_WRONLY|vfs.O_RDWR) != 0
}

// fdTable maps descriptors to open files. Descriptors are never reused.
type fdTable struct {
	mu     sync.Mutex
	lastFD uint64
	files  *hashtable.Table[openFile, uint64, *openFile]
}

func newFDTable(buckets int) *fdTable {
	if buckets <= 0 {
		buckets = 64
	}
	return &fdTable{
		files: hashtable.New[openFile, uint64](make([]*openFile, buckets)),
	}
}

// install takes ownership of the caller's reference on vnode.
func (t *fdTable) install(vnode vfs.Vnode, flags int, path string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastFD++
	t.files.Add(&openFile{
		fd:    t.lastFD,
		vnode: vnode,
		flags: flags,
		path:  path,
	})
	return t.lastFD
}

// get returns the open file fd with a reference on its vnode.
func (t *fdTable) get(fd uint64) (*openFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := t.files.Get(fd)
	if f == nil {
		return nil, vfs.ErrBadFileDescriptor
	}
	f.vnode.IncRef()
	return f, nil
}

// remove detaches fd. The caller drops the reference held by the returned
// file.
func (t *fdTable) remove(fd uint64) (*openFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := t.files.Remove(fd)
	if f == nil {
		return nil, vfs.ErrBadFileDescriptor
	}
	return f, nil
}

func (t *fdTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.files.Len()
}

// drain removes every open file and returns them.
func (t *fdTable) drain() []*openFile {
	t.mu.Lock()
	defer t.mu.Unlock()

	var files []*openFile
	t.files.Range(func(f *openFile) bool {
		files = append(files, f)
		return true
	})
	for _, f := range files {
		t.files.Remove(f.fd)
	}
	return files
}
