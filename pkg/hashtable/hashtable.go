// Package hashtable implements a fixed-capacity intrusive hash table.
//
// Stored objects carry their own chain link (Link) and report a unique key
// through HashKey. Because the link lives inside the object and the bucket
// array is supplied by the caller, Add, Get and Remove never allocate and
// cannot fail. An object can be a member of only one table at a time.
//
// A Table is not safe for concurrent use; callers serialize access.
package hashtable

// Key is the set of key types a table can hash. Keys are reduced with
// key % capacity, so only unsigned integers are accepted.
type Key interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Link is the chain field embedded in every stored object. Its zero value
// means "not in any table".
type Link[T any] struct {
	next  *T
	owner any
}

// Linked reports whether the object currently belongs to a table.
func (l *Link[T]) Linked() bool {
	return l.owner != nil
}

// Object is the constraint on stored types: a pointer to T exposing its key
// and its chain link.
type Object[T any, K Key] interface {
	*T
	HashKey() K
	HashLink() *Link[T]
}

// Table is an open-hashing table of *T keyed by K.
type Table[T any, K Key, P Object[T, K]] struct {
	buckets []*T
	count   int
}

// New returns a table that uses buffer as its bucket array. The capacity of
// the table is len(buffer). The buffer is cleared but not copied: the caller
// keeps ownership of the storage.
func New[T any, K Key, P Object[T, K]](buffer []*T) *Table[T, K, P] {
	if len(buffer) == 0 {
		panic("hashtable: zero capacity")
	}
	clear(buffer)
	return &Table[T, K, P]{buckets: buffer}
}

func (t *Table[T, K, P]) bucket(key K) int {
	return int(uint64(key) % uint64(len(t.buckets)))
}

// Add prepends object to its bucket chain. The object must not already be a
// member of this or another table.
func (t *Table[T, K, P]) Add(object *T) {
	p := P(object)
	link := p.HashLink()
	if link.owner != nil {
		panic("hashtable: object is already a member of a table")
	}

	b := t.bucket(p.HashKey())
	link.next = t.buckets[b]
	link.owner = t
	t.buckets[b] = object
	t.count++
}

// Get returns the first object whose key equals key, or nil.
func (t *Table[T, K, P]) Get(key K) *T {
	for obj := t.buckets[t.bucket(key)]; obj != nil; obj = P(obj).HashLink().next {
		if P(obj).HashKey() == key {
			return obj
		}
	}
	return nil
}

// Remove unlinks the first object whose key equals key and returns it.
// Removing an absent key is a no-op that returns nil.
func (t *Table[T, K, P]) Remove(key K) *T {
	b := t.bucket(key)

	var prev *T
	for obj := t.buckets[b]; obj != nil; obj = P(obj).HashLink().next {
		link := P(obj).HashLink()
		if P(obj).HashKey() != key {
			prev = obj
			continue
		}

		if prev == nil {
			t.buckets[b] = link.next
		} else {
			P(prev).HashLink().next = link.next
		}
		link.next = nil
		link.owner = nil
		t.count--
		return obj
	}
	return nil
}

// Len returns the number of objects in the table.
func (t *Table[T, K, P]) Len() int {
	return t.count
}

// Capacity returns the number of buckets.
func (t *Table[T, K, P]) Capacity() int {
	return len(t.buckets)
}

// Range calls fn for every object until fn returns false. fn must not modify
// the table.
func (t *Table[T, K, P]) Range(fn func(*T) bool) {
	for _, head := range t.buckets {
		for obj := head; obj != nil; obj = P(obj).HashLink().next {
			if !fn(obj) {
				return
			}
		}
	}
}
