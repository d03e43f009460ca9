package vfs

import (
	"fmt"
	"sync/atomic"
)

// Refs is an atomic reference count. It starts at one reference when
// initialized with InitRefs and runs a destructor exactly once, when the
// count drops to zero.
//
// The count is split into two 32-bit halves:
//
//	[32-bit speculative references]:[32-bit real references]
//
// TryIncRef adds a speculative reference first so that concurrent callers can
// tell a live object from one whose last real reference is already gone.
type Refs struct {
	refCount atomic.Int64
}

// InitRefs initializes r with one reference.
func (r *Refs) InitRefs() {
	r.refCount.Store(1)
}

// ReadRefs returns the current number of references. The value is racy and
// only useful for diagnostics and tests.
func (r *Refs) ReadRefs() int64 {
	return r.refCount.Load()
}

// IncRef takes a reference. The caller must already hold one.
func (r *Refs) IncRef() {
	if v := r.refCount.Add(1); v <= 1 {
		panic(fmt.Sprintf("vfs: incrementing non-positive ref count %p", r))
	}
}

// TryIncRef takes a reference unless the object is already being destroyed.
func (r *Refs) TryIncRef() bool {
	const speculativeRef = 1 << 32
	if v := r.refCount.Add(speculativeRef); int32(v) == 0 {
		r.refCount.Add(-speculativeRef)
		return false
	}
	r.refCount.Add(-speculativeRef + 1)
	return true
}

// DecRef drops a reference and calls destroy if it was the last one.
func (r *Refs) DecRef(destroy func()) {
	switch v := r.refCount.Add(-1); {
	case v < 0:
		panic(fmt.Sprintf("vfs: decrementing non-positive ref count %p", r))
	case v == 0:
		if destroy != nil {
			destroy()
		}
	}
}
