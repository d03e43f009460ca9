package vfs

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// directory is implemented by DirectoryVnode and by every vnode embedding it.
type directory interface {
	asDirectory() *DirectoryVnode
}

// DirectoryOption configures a directory at creation.
type DirectoryOption func(*DirectoryVnode)

// ImmutableEntries makes Link, Mkdir, Unlink, Rename and creating opens fail
// with ErrNotSupported. Entries can then only be added with Insert or Mount.
func ImmutableEntries() DirectoryOption {
	return func(d *DirectoryVnode) {
		d.immutable = true
	}
}

// DirectoryVnode is an in-memory directory.
type DirectoryVnode struct {
	BaseVnode

	// parent is not counted as a reference. The root directory is its own
	// parent.
	parent atomic.Pointer[DirectoryVnode]

	immutable bool

	// mu protects the fields below. fileNames[i] names childNodes[i], and
	// the directory holds one reference on every child.
	mu         sync.RWMutex
	fileNames  []string
	childNodes []Vnode
	unlinked   bool
}

// NewDirectory returns a directory on fs whose parent is parent. A nil parent
// makes the directory a root.
func NewDirectory(fs *FileSystem, parent *DirectoryVnode, mode uint32, opts ...DirectoryOption) *DirectoryVnode {
	d := &DirectoryVnode{}
	d.InitDirectory(fs, d, parent, mode, opts...)
	return d
}

// InitDirectory initializes a directory embedded in self.
func (d *DirectoryVnode) InitDirectory(fs *FileSystem, self Vnode, parent *DirectoryVnode, mode uint32, opts ...DirectoryOption) {
	d.Init(fs, self, S_IFDIR|(mode&S_IALLUGO))
	if parent == nil {
		parent = d
	}
	d.parent.Store(parent)
	for _, opt := range opts {
		opt(d)
	}
}

func (d *DirectoryVnode) asDirectory() *DirectoryVnode {
	return d
}

// ChildCount returns the number of entries, not counting "." and "..".
func (d *DirectoryVnode) ChildCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.childNodes)
}

// Names returns the entry names in directory order.
func (d *DirectoryVnode) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.fileNames...)
}

func (d *DirectoryVnode) Size() int64 {
	return int64(d.ChildCount())
}

// Parent returns the parent directory.
func (d *DirectoryVnode) Parent() (Vnode, error) {
	p := d.parent.Load()
	if !p.TryIncRef() {
		return nil, ErrNotFound
	}
	return p.self, nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.IndexByte(name, '/') >= 0 {
		return ErrInvalidName
	}
	if len(name) > NAME_MAX {
		return ErrNameTooLong
	}
	return nil
}

// Preconditions: d.mu is held.
func (d *DirectoryVnode) findLocked(name string) int {
	for i, n := range d.fileNames {
		if n == name {
			return i
		}
	}
	return -1
}

// Preconditions: d.mu is held.
func (d *DirectoryVnode) checkInsertLocked(name string) error {
	if d.unlinked {
		return ErrNotFound
	}
	if d.findLocked(name) >= 0 {
		return ErrAlreadyExists
	}
	if d.fs.directoryFull(len(d.childNodes)) {
		return ErrOutOfMemory
	}
	return nil
}

// linkLocked adds the entry and takes a reference on vnode.
//
// Preconditions: d.mu is held for writing.
func (d *DirectoryVnode) linkLocked(name string, vnode Vnode) error {
	if err := d.checkInsertLocked(name); err != nil {
		return err
	}
	// Both arrays are grown before either is published.
	names := append(d.fileNames, name)
	nodes := append(d.childNodes, vnode)
	d.fileNames, d.childNodes = names, nodes

	vnode.IncRef()
	vnode.base().nlink.Add(1)
	return nil
}

// removeLocked drops entry i and returns its vnode. The directory's reference
// is transferred to the caller.
//
// Preconditions: d.mu is held for writing.
func (d *DirectoryVnode) removeLocked(i int) Vnode {
	vnode := d.childNodes[i]
	last := len(d.childNodes) - 1
	copy(d.fileNames[i:], d.fileNames[i+1:])
	copy(d.childNodes[i:], d.childNodes[i+1:])
	d.fileNames[last] = ""
	d.childNodes[last] = nil
	d.fileNames = d.fileNames[:last]
	d.childNodes = d.childNodes[:last]
	return vnode
}

// GetChildNode implements Vnode.GetChildNode.
func (d *DirectoryVnode) GetChildNode(name string) (Vnode, error) {
	switch name {
	case ".":
		d.self.IncRef()
		return d.self, nil
	case "..":
		return d.Parent()
	case "":
		return nil, ErrNotFound
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	i := d.findLocked(name)
	if i < 0 {
		return nil, ErrNotFound
	}
	child := d.childNodes[i]
	child.IncRef()
	return child, nil
}

// Link implements Vnode.Link. Directories cannot be hard linked.
func (d *DirectoryVnode) Link(name string, vnode Vnode) error {
	if d.immutable {
		return ErrNotSupported
	}
	if err := validateName(name); err != nil {
		return err
	}
	if IsDir(vnode.Mode()) {
		return ErrNotPermitted
	}
	if vnode.Dev() != d.Dev() {
		return ErrCrossDevice
	}

	d.mu.Lock()
	err := d.linkLocked(name, vnode)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.fs.logMutation("Entry linked",
		slog.Uint64("dir", d.ino),
		slog.String("name", name),
		slog.Uint64("ino", vnode.Ino()),
	)
	return nil
}

// Insert adds an entry without the immutability and hard link checks of Link.
// It is reserved for code that owns the directory, such as device
// registration.
func (d *DirectoryVnode) Insert(name string, vnode Vnode) error {
	if err := validateName(name); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.linkLocked(name, vnode)
}

// Mount links the directory sub, which may belong to another filesystem,
// under name and makes d its parent.
func (d *DirectoryVnode) Mount(name string, sub Vnode) error {
	sd, ok := sub.(directory)
	if !ok {
		return ErrNotADirectory
	}
	if err := validateName(name); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.linkLocked(name, sub); err != nil {
		return err
	}
	sd.asDirectory().parent.Store(d)
	return nil
}

// Mkdir implements Vnode.Mkdir.
func (d *DirectoryVnode) Mkdir(name string, mode uint32) error {
	if d.immutable {
		return ErrNotSupported
	}
	if err := validateName(name); err != nil {
		return err
	}

	d.mu.Lock()
	if err := d.checkInsertLocked(name); err != nil {
		d.mu.Unlock()
		return err
	}
	child := NewDirectory(d.fs, d, mode)
	err := d.linkLocked(name, child)
	d.mu.Unlock()

	// Drop the creation reference; on success the directory keeps its own.
	ino := child.Ino()
	child.DecRef()
	if err != nil {
		return err
	}

	d.fs.logMutation("Directory created",
		slog.Uint64("dir", d.ino),
		slog.String("name", name),
		slog.Uint64("ino", ino),
	)
	return nil
}

func splitUnlinkPath(path string) (first, rest string, mustBeDir bool) {
	path = strings.TrimLeft(path, "/")
	trimmed := strings.TrimRight(path, "/")
	mustBeDir = trimmed != path

	first, rest, nested := strings.Cut(trimmed, "/")
	if nested {
		rest = strings.TrimLeft(rest, "/")
		if mustBeDir {
			rest += "/"
		}
	}
	return first, rest, mustBeDir
}

// Unlink implements Vnode.Unlink.
func (d *DirectoryVnode) Unlink(path string, flags int) error {
	if d.immutable {
		return ErrNotSupported
	}

	name, rest, mustBeDir := splitUnlinkPath(path)
	if rest != "" {
		child, err := d.GetChildNode(name)
		if err != nil {
			return err
		}
		defer child.DecRef()
		return child.Unlink(rest, flags)
	}

	switch name {
	case "":
		if path == "" {
			return ErrNotFound
		}
		return ErrNotPermitted
	case ".", "..":
		return ErrInvalidName
	}
	if len(name) > NAME_MAX {
		return ErrNameTooLong
	}
	if flags&(AT_REMOVEDIR|AT_REMOVEFILE) == 0 {
		flags |= AT_REMOVEFILE
	}

	d.mu.Lock()
	child, err := d.unlinkLocked(name, flags, mustBeDir)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	ino := child.Ino()
	child.DecRef()
	d.fs.logMutation("Entry unlinked",
		slog.Uint64("dir", d.ino),
		slog.String("name", name),
		slog.Uint64("ino", ino),
	)
	return nil
}

// Preconditions: d.mu is held for writing.
func (d *DirectoryVnode) unlinkLocked(name string, flags int, mustBeDir bool) (Vnode, error) {
	i := d.findLocked(name)
	if i < 0 {
		return nil, ErrNotFound
	}
	child := d.childNodes[i]

	isDir := IsDir(child.Mode())
	switch {
	case !isDir && mustBeDir:
		return nil, ErrNotADirectory
	case isDir && flags&AT_REMOVEDIR == 0:
		return nil, ErrIsADirectory
	case !isDir && flags&AT_REMOVEFILE == 0:
		return nil, ErrNotADirectory
	}
	if !child.OnUnlink() {
		return nil, ErrNotEmpty
	}

	d.removeLocked(i)
	child.base().nlink.Add(-1)
	return child, nil
}

// OnUnlink refuses removal while the directory has entries. Once it agrees,
// the directory is marked unlinked and accepts no new entries.
//
// Preconditions: the parent directory is locked, and d.mu is not held. Locks
// nest parent before child.
func (d *DirectoryVnode) OnUnlink() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.childNodes) > 0 {
		return false
	}
	d.unlinked = true
	return true
}

// isAncestor reports whether a is d or one of d's ancestors.
//
// Preconditions: d.fs.renameMu is held.
func isAncestor(a, d *DirectoryVnode) bool {
	for {
		if d == a {
			return true
		}
		p := d.parent.Load()
		if p == d {
			return false
		}
		d = p
	}
}

// Rename implements Vnode.Rename. The vnode keeps its identity.
//
// Cross-directory renames hold the filesystem's rename mutex, which freezes
// the shape of the directory tree, and then lock an ancestor before its
// descendant, or the lower inode number first for unrelated directories.
// Every other operation nests directory locks only parent before child, so
// the two orders agree.
func (d *DirectoryVnode) Rename(oldDirectory Vnode, oldName, newName string) error {
	if d.immutable {
		return ErrNotSupported
	}
	if err := validateName(oldName); err != nil {
		return err
	}
	if err := validateName(newName); err != nil {
		return err
	}
	od, ok := oldDirectory.(directory)
	if !ok {
		return ErrNotADirectory
	}
	old := od.asDirectory()
	if old.immutable {
		return ErrNotSupported
	}
	if old.fs != d.fs {
		return ErrCrossDevice
	}

	if old == d {
		return d.renameWithin(oldName, newName)
	}

	d.fs.renameMu.Lock()
	defer d.fs.renameMu.Unlock()

	first, second := old, d
	switch {
	case isAncestor(old, d):
	case isAncestor(d, old):
		first, second = d, old
	case d.ino < old.ino:
		first, second = d, old
	}
	first.mu.Lock()
	second.mu.Lock()
	replaced, err := d.renameLocked(old, oldName, newName)
	second.mu.Unlock()
	first.mu.Unlock()
	if err != nil {
		return err
	}

	d.finishRename(old, oldName, newName, replaced)
	return nil
}

// finishRename drops the reference on the replaced vnode, if any, and logs
// the move.
func (d *DirectoryVnode) finishRename(old *DirectoryVnode, oldName, newName string, replaced Vnode) {
	attrs := []any{
		slog.Uint64("old_dir", old.ino),
		slog.String("old_name", oldName),
		slog.Uint64("new_dir", d.ino),
		slog.String("new_name", newName),
	}
	if replaced != nil {
		attrs = append(attrs, slog.Uint64("replaced_ino", replaced.Ino()))
		replaced.DecRef()
	}
	d.fs.logMutation("Entry renamed", attrs...)
}

// checkReplace validates replacing dst with src. It returns done when the
// rename is a no-op.
func checkReplace(src, dst Vnode) (done bool, err error) {
	if src == dst {
		return true, nil
	}
	srcIsDir := IsDir(src.Mode())
	dstIsDir := IsDir(dst.Mode())
	switch {
	case srcIsDir && !dstIsDir:
		return false, ErrNotADirectory
	case !srcIsDir && dstIsDir:
		return false, ErrIsADirectory
	}
	return false, nil
}

// Preconditions: the directory holding dst is locked and dst is not an
// ancestor of any other locked directory.
func agreeToReplace(dst Vnode) error {
	if IsDir(dst.Mode()) && !dst.OnUnlink() {
		return ErrNotEmpty
	}
	return nil
}

// renameLocked moves oldName from old to newName in d and returns the
// replaced vnode, whose reference the caller must drop.
//
// Preconditions: d.fs.renameMu, old.mu and d.mu are held; old != d.
func (d *DirectoryVnode) renameLocked(old *DirectoryVnode, oldName, newName string) (Vnode, error) {
	i := old.findLocked(oldName)
	if i < 0 {
		return nil, ErrNotFound
	}
	src := old.childNodes[i]

	var srcDir *DirectoryVnode
	if sd, ok := src.(directory); ok && IsDir(src.Mode()) {
		srcDir = sd.asDirectory()
		// A directory cannot become its own descendant.
		if isAncestor(srcDir, d) {
			return nil, ErrInvalidArgument
		}
	}
	if d.unlinked {
		return nil, ErrNotFound
	}

	j := d.findLocked(newName)
	if j < 0 {
		if d.fs.directoryFull(len(d.childNodes)) {
			return nil, ErrOutOfMemory
		}
		names := append(d.fileNames, newName)
		nodes := append(d.childNodes, src)
		d.fileNames, d.childNodes = names, nodes
		old.removeLocked(i)
		if srcDir != nil {
			srcDir.parent.Store(d)
		}
		return nil, nil
	}

	dst := d.childNodes[j]
	if done, err := checkReplace(src, dst); done || err != nil {
		return nil, err
	}
	// An ancestor of old is already locked and can never be empty.
	if dd, ok := dst.(directory); ok && isAncestor(dd.asDirectory(), old) {
		return nil, ErrNotEmpty
	}
	if err := agreeToReplace(dst); err != nil {
		return nil, err
	}

	d.childNodes[j] = src
	old.removeLocked(i)
	dst.base().nlink.Add(-1)
	if srcDir != nil {
		srcDir.parent.Store(d)
	}
	return dst, nil
}

func (d *DirectoryVnode) renameWithin(oldName, newName string) error {
	d.mu.Lock()
	replaced, err := d.renameWithinLocked(oldName, newName)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.finishRename(d, oldName, newName, replaced)
	return nil
}

// Preconditions: d.mu is held for writing.
func (d *DirectoryVnode) renameWithinLocked(oldName, newName string) (Vnode, error) {
	i := d.findLocked(oldName)
	if i < 0 {
		return nil, ErrNotFound
	}
	if oldName == newName {
		return nil, nil
	}
	src := d.childNodes[i]

	j := d.findLocked(newName)
	if j < 0 {
		d.fileNames[i] = newName
		return nil, nil
	}

	dst := d.childNodes[j]
	if done, err := checkReplace(src, dst); done || err != nil {
		return nil, err
	}
	if err := agreeToReplace(dst); err != nil {
		return nil, err
	}

	d.childNodes[j] = src
	d.removeLocked(i)
	dst.base().nlink.Add(-1)
	return dst, nil
}

// Readdir implements Vnode.Readdir. Offset 0 is ".", 1 is ".." and 2+i is
// the i-th entry. Offsets are only stable until the next structural change.
func (d *DirectoryVnode) Readdir(offset uint64, buf []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for off := offset; ; off++ {
		var (
			name string
			ino  uint64
			mode uint32
		)
		switch {
		case off == 0:
			name, ino, mode = ".", d.ino, d.mode
		case off == 1:
			p := d.parent.Load()
			name, ino, mode = "..", p.ino, p.mode
		case off-2 < uint64(len(d.childNodes)):
			child := d.childNodes[off-2]
			name, ino, mode = d.fileNames[off-2], child.Ino(), child.Mode()
		default:
			return n, nil
		}

		if n+DirentSize(name) > len(buf) {
			if n == 0 {
				return 0, ErrInvalidArgument
			}
			return n, nil
		}
		n += putDirent(buf[n:], ino, off+1, DirentType(mode), name)
	}
}

// Open implements Vnode.Open. With O_CREAT a missing name is created as a
// regular file.
func (d *DirectoryVnode) Open(name string, flags int, mode uint32) (Vnode, error) {
	var (
		child Vnode
		err   error
	)
	if flags&O_CREAT == 0 || name == "." || name == ".." {
		child, err = d.GetChildNode(name)
		if err == nil && flags&(O_CREAT|O_EXCL) == O_CREAT|O_EXCL {
			child.DecRef()
			return nil, ErrAlreadyExists
		}
	} else {
		child, err = d.create(name, flags, mode)
	}
	if err != nil {
		return nil, err
	}
	defer child.DecRef()

	if flags&O_DIRECTORY != 0 && !IsDir(child.Mode()) {
		return nil, ErrNotADirectory
	}
	return child.OpenFile(flags)
}

func (d *DirectoryVnode) create(name string, flags int, mode uint32) (Vnode, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	d.mu.Lock()
	child, created, err := d.createLocked(name, flags, mode)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if created {
		d.fs.logMutation("File created",
			slog.Uint64("dir", d.ino),
			slog.String("name", name),
			slog.Uint64("ino", child.Ino()),
		)
	}
	return child, nil
}

// createLocked returns the existing entry name or a new regular file, with a
// reference, and whether it created the file.
//
// Preconditions: d.mu is held for writing.
func (d *DirectoryVnode) createLocked(name string, flags int, mode uint32) (Vnode, bool, error) {
	if i := d.findLocked(name); i >= 0 {
		if flags&O_EXCL != 0 {
			return nil, false, ErrAlreadyExists
		}
		child := d.childNodes[i]
		child.IncRef()
		return child, false, nil
	}

	if d.immutable {
		return nil, false, ErrNotSupported
	}
	if err := d.checkInsertLocked(name); err != nil {
		return nil, false, err
	}
	file := NewRegularFile(d.fs, mode)
	if err := d.linkLocked(name, file); err != nil {
		file.DecRef()
		return nil, false, err
	}
	return file, true, nil
}

// OpenFile implements Vnode.OpenFile. Directories open read-only.
func (d *DirectoryVnode) OpenFile(flags int) (Vnode, error) {
	if flags&(O_WRONLY|O_RDWR|O_TRUNC) != 0 {
		return nil, ErrIsADirectory
	}
	d.self.IncRef()
	return d.self, nil
}

func (d *DirectoryVnode) Read([]byte, int64) (int, error) {
	return 0, ErrIsADirectory
}

func (d *DirectoryVnode) Write([]byte, int64) (int, error) {
	return 0, ErrIsADirectory
}

func (d *DirectoryVnode) release() {
	d.mu.Lock()
	children := d.childNodes
	d.fileNames, d.childNodes = nil, nil
	d.mu.Unlock()

	for _, child := range children {
		child.base().nlink.Add(-1)
		child.DecRef()
	}
}
