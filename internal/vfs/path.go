package vfs

import "strings"

// Resolve walks path one component at a time starting at start, or at root
// for absolute paths. Empty components are skipped, ".." at the root stays
// at the root. The result carries a reference.
func Resolve(root, start Vnode, path string) (Vnode, error) {
	if path == "" {
		return nil, ErrNotFound
	}
	cur := start
	if strings.HasPrefix(path, "/") {
		cur = root
	}
	cur.IncRef()

	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		if len(name) > NAME_MAX {
			cur.DecRef()
			return nil, ErrNameTooLong
		}
		next, err := cur.GetChildNode(name)
		cur.DecRef()
		if err != nil {
			return nil, err
		}
		cur = next
	}

	if strings.HasSuffix(path, "/") && !IsDir(cur.Mode()) {
		cur.DecRef()
		return nil, ErrNotADirectory
	}
	return cur, nil
}

// ResolveParent resolves every component of path but the last and returns the
// containing directory, with a reference, and the last component. Trailing
// slashes are dropped.
func ResolveParent(root, start Vnode, path string) (Vnode, string, error) {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		if path == "" {
			return nil, "", ErrNotFound
		}
		return nil, "", ErrInvalidName
	}

	dirPath, name := ".", trimmed
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		dirPath, name = trimmed[:i+1], trimmed[i+1:]
	}

	dir, err := Resolve(root, start, dirPath)
	if err != nil {
		return nil, "", err
	}
	if !IsDir(dir.Mode()) {
		dir.DecRef()
		return nil, "", ErrNotADirectory
	}
	return dir, name, nil
}
