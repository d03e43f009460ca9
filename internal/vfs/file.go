package vfs

import "sync"

// RegularFile is an in-memory regular file.
type RegularFile struct {
	BaseVnode

	mu   sync.RWMutex
	data []byte
}

// NewRegularFile returns an empty file on fs.
func NewRegularFile(fs *FileSystem, mode uint32) *RegularFile {
	f := &RegularFile{}
	f.Init(fs, f, S_IFREG|(mode&S_IALLUGO))
	return f
}

func (f *RegularFile) Size() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int64(len(f.data))
}

// OpenFile implements Vnode.OpenFile. O_TRUNC discards the contents.
func (f *RegularFile) OpenFile(flags int) (Vnode, error) {
	if flags&O_TRUNC != 0 && flags&(O_WRONLY|O_RDWR) != 0 {
		f.mu.Lock()
		f.data = nil
		f.mu.Unlock()
	}
	f.IncRef()
	return f, nil
}

func (f *RegularFile) Read(buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, ErrInvalidArgument
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if offset >= int64(len(f.data)) {
		return 0, nil
	}
	return copy(buf, f.data[offset:]), nil
}

func (f *RegularFile) Write(data []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, ErrInvalidArgument
	}
	// Checked before growing so that end cannot overflow.
	if limit := f.fs.maxSize; offset > limit || int64(len(data)) > limit-offset {
		return 0, ErrFileTooBig
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	end := offset + int64(len(data))
	if end > int64(len(f.data)) {
		extended := make([]byte, end)
		copy(extended, f.data)
		f.data = extended
	}
	copy(f.data[offset:], data)
	return len(data), nil
}
