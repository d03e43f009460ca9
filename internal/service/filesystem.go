package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/S1riyS/vnodefs/internal/models"
	"github.com/S1riyS/vnodefs/internal/repository"
	"github.com/S1riyS/vnodefs/internal/vfs"
	"github.com/S1riyS/vnodefs/pkg/logging"
	"github.com/S1riyS/vnodefs/pkg/logging/slogext"
)

// FileSystemService is the path based system-call surface over a Tree. Paths
// are resolved from the root; errors returned by the tree are *vfs.Error
// values.
type FileSystemService interface {
	Stat(ctx context.Context, path string) (*models.NodeMeta, error)
	StatIno(ctx context.Context, dev, ino uint64) (*models.NodeMeta, error)
	Mkdir(ctx context.Context, path string, mode uint32) error
	Unlink(ctx context.Context, path string, flags int) error
	Link(ctx context.Context, oldPath, newPath string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	Readdir(ctx context.Context, path string, offset uint64, size int) ([]byte, error)
	Open(ctx context.Context, path string, flags int, mode uint32) (uint64, error)
	Read(ctx context.Context, fd uint64, buffer []byte, offset int64) (int, error)
	Write(ctx context.Context, fd uint64, data []byte, offset int64) (int, error)
	Close(ctx context.Context, fd uint64) error
	Events(ctx context.Context, limit int) ([]models.Event, error)
	Shutdown(ctx context.Context)
}

type fileSystemService struct {
	tree   *Tree
	fds    *fdTable
	events repository.EventRepository
}

func NewFileSystemService(tree *Tree, events repository.EventRepository, fdTableSize int) FileSystemService {
	return &fileSystemService{
		tree:   tree,
		fds:    newFDTable(fdTableSize),
		events: events,
	}
}

func nodeType(mode uint32) models.NodeType {
	switch mode & vfs.S_IFMT {
	case vfs.S_IFDIR:
		return models.NodeTypeDir
	case vfs.S_IFREG:
		return models.NodeTypeFile
	case vfs.S_IFCHR:
		return models.NodeTypeCharDev
	}
	return models.NodeTypeOther
}

func toNodeMeta(v vfs.Vnode) *models.NodeMeta {
	st := v.Stat()
	return &models.NodeMeta{
		Ino:   st.Ino,
		Dev:   st.Dev,
		Type:  nodeType(st.Mode),
		Mode:  st.Mode,
		Nlink: st.Nlink,
		Rdev:  st.Rdev,
		Size:  st.Size,
	}
}

// logFailure logs err at debug level when it is an ordinary filesystem error
// and at error level otherwise.
func logFailure(logger *slog.Logger, msg string, err error, attrs ...any) {
	var vfsErr *vfs.Error
	if errors.As(err, &vfsErr) {
		logger.Debug(msg, append(attrs, slogext.Err(err))...)
		return
	}
	logger.Error(msg, append(attrs, slogext.Err(err))...)
}

// record journals a successful structural change. The change already
// happened, so a journal failure is only logged.
func (s *fileSystemService) record(ctx context.Context, op models.EventOp, path, target string, ino uint64) {
	const fn = "service.fileSystemService.record"

	e := &models.Event{
		Op:        op,
		Path:      path,
		Target:    target,
		Ino:       ino,
		RequestID: logging.GetRequestIDFromCtx(ctx),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.events.Save(ctx, e); err != nil {
		logging.GetLoggerFromContextWithOp(ctx, fn).Error("Failed to journal event",
			slogext.Err(err),
			slog.String("event", string(op)),
			slog.String("path", path),
		)
	}
}

func (s *fileSystemService) resolve(path string) (vfs.Vnode, error) {
	return vfs.Resolve(s.tree.Root, s.tree.Root, path)
}

func (s *fileSystemService) resolveParent(path string) (vfs.Vnode, string, error) {
	return vfs.ResolveParent(s.tree.Root, s.tree.Root, path)
}

func (s *fileSystemService) Stat(ctx context.Context, path string) (*models.NodeMeta, error) {
	const op = "service.fileSystemService.Stat"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Stat", slog.String("path", path))

	v, err := s.resolve(path)
	if err != nil {
		logFailure(logger, "Failed to resolve path", err, slog.String("path", path))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer v.DecRef()

	return toNodeMeta(v), nil
}

func (s *fileSystemService) StatIno(ctx context.Context, dev, ino uint64) (*models.NodeMeta, error) {
	const op = "service.fileSystemService.StatIno"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("StatIno", slog.Uint64("dev", dev), slog.Uint64("ino", ino))

	fs, ok := s.tree.FileSystem(dev)
	if !ok {
		logger.Debug("Unknown device", slog.Uint64("dev", dev))
		return nil, fmt.Errorf("%s: %w", op, vfs.ErrNotFound)
	}

	v, err := fs.Vnode(ino)
	if err != nil {
		logFailure(logger, "Vnode not found", err, slog.Uint64("ino", ino))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer v.DecRef()

	return toNodeMeta(v), nil
}

func (s *fileSystemService) Mkdir(ctx context.Context, path string, mode uint32) error {
	const op = "service.fileSystemService.Mkdir"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Mkdir", slog.String("path", path), slog.Uint64("mode", uint64(mode)))

	dir, name, err := s.resolveParent(path)
	if err != nil {
		logFailure(logger, "Failed to resolve parent", err, slog.String("path", path))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer dir.DecRef()

	if err := dir.Mkdir(name, mode); err != nil {
		logFailure(logger, "Failed to create directory", err, slog.String("path", path))
		return fmt.Errorf("%s: %w", op, err)
	}

	var ino uint64
	if child, err := dir.GetChildNode(name); err == nil {
		ino = child.Ino()
		child.DecRef()
	}
	s.record(ctx, models.EventMkdir, path, "", ino)

	logger.Debug("Directory created", slog.String("path", path), slog.Uint64("ino", ino))
	return nil
}

func (s *fileSystemService) Unlink(ctx context.Context, path string, flags int) error {
	const op = "service.fileSystemService.Unlink"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Unlink", slog.String("path", path), slog.Int("flags", flags))

	dir, name, err := s.resolveParent(path)
	if err != nil {
		logFailure(logger, "Failed to resolve parent", err, slog.String("path", path))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer dir.DecRef()

	var ino uint64
	if child, err := dir.GetChildNode(name); err == nil {
		ino = child.Ino()
		child.DecRef()
	}

	// Keep the trailing slash: it requires the target to be a directory.
	if strings.HasSuffix(path, "/") {
		name += "/"
	}
	if err := dir.Unlink(name, flags); err != nil {
		logFailure(logger, "Failed to unlink", err, slog.String("path", path))
		return fmt.Errorf("%s: %w", op, err)
	}
	s.record(ctx, models.EventUnlink, path, "", ino)

	logger.Debug("Unlinked", slog.String("path", path))
	return nil
}

func (s *fileSystemService) Link(ctx context.Context, oldPath, newPath string) error {
	const op = "service.fileSystemService.Link"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Link", slog.String("old_path", oldPath), slog.String("new_path", newPath))

	target, err := s.resolve(oldPath)
	if err != nil {
		logFailure(logger, "Failed to resolve link target", err, slog.String("old_path", oldPath))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer target.DecRef()

	dir, name, err := s.resolveParent(newPath)
	if err != nil {
		logFailure(logger, "Failed to resolve parent", err, slog.String("new_path", newPath))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer dir.DecRef()

	if err := dir.Link(name, target); err != nil {
		logFailure(logger, "Failed to link", err,
			slog.String("old_path", oldPath),
			slog.String("new_path", newPath),
		)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.record(ctx, models.EventLink, newPath, oldPath, target.Ino())

	return nil
}

func (s *fileSystemService) Rename(ctx context.Context, oldPath, newPath string) error {
	const op = "service.fileSystemService.Rename"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Rename", slog.String("old_path", oldPath), slog.String("new_path", newPath))

	oldDir, oldName, err := s.resolveParent(oldPath)
	if err != nil {
		logFailure(logger, "Failed to resolve source parent", err, slog.String("old_path", oldPath))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer oldDir.DecRef()

	newDir, newName, err := s.resolveParent(newPath)
	if err != nil {
		logFailure(logger, "Failed to resolve destination parent", err, slog.String("new_path", newPath))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer newDir.DecRef()

	if err := newDir.Rename(oldDir, oldName, newName); err != nil {
		logFailure(logger, "Failed to rename", err,
			slog.String("old_path", oldPath),
			slog.String("new_path", newPath),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	var ino uint64
	if child, err := newDir.GetChildNode(newName); err == nil {
		ino = child.Ino()
		child.DecRef()
	}
	s.record(ctx, models.EventRename, newPath, oldPath, ino)

	return nil
}

func (s *fileSystemService) Readdir(ctx context.Context, path string, offset uint64, size int) ([]byte, error) {
	const op = "service.fileSystemService.Readdir"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Readdir",
		slog.String("path", path),
		slog.Uint64("offset", offset),
		slog.Int("size", size),
	)

	if size <= 0 {
		return nil, fmt.Errorf("%s: %w", op, vfs.ErrInvalidArgument)
	}

	dir, err := s.resolve(path)
	if err != nil {
		logFailure(logger, "Failed to resolve path", err, slog.String("path", path))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer dir.DecRef()

	buf := make([]byte, size)
	n, err := dir.Readdir(offset, buf)
	if err != nil {
		logFailure(logger, "Failed to read directory", err, slog.String("path", path))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return buf[:n], nil
}

func (s *fileSystemService) Open(ctx context.Context, path string, flags int, mode uint32) (uint64, error) {
	const op = "service.fileSystemService.Open"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Open",
		slog.String("path", path),
		slog.Int("flags", flags),
		slog.Uint64("mode", uint64(mode)),
	)

	file, created, err := s.open(path, flags, mode)
	if err != nil {
		logFailure(logger, "Failed to open", err, slog.String("path", path))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if created {
		s.record(ctx, models.EventCreate, path, "", file.Ino())
	}

	fd := s.fds.install(file, flags, path)
	logger.Debug("Opened",
		slog.String("path", path),
		slog.Uint64("fd", fd),
		slog.Uint64("ino", file.Ino()),
	)
	return fd, nil
}

func (s *fileSystemService) open(path string, flags int, mode uint32) (vfs.Vnode, bool, error) {
	if strings.Trim(path, "/") == "" {
		if path == "" {
			return nil, false, vfs.ErrNotFound
		}
		file, err := s.tree.Root.OpenFile(flags)
		return file, false, err
	}

	dir, name, err := s.resolveParent(path)
	if err != nil {
		return nil, false, err
	}
	defer dir.DecRef()

	created := false
	if flags&vfs.O_CREAT != 0 {
		child, err := dir.GetChildNode(name)
		if err == nil {
			child.DecRef()
		}
		created = errors.Is(err, vfs.ErrNotFound)
	}

	file, err := dir.Open(name, flags, mode)
	if err != nil {
		return nil, false, err
	}
	if strings.HasSuffix(path, "/") && !vfs.IsDir(file.Mode()) {
		file.DecRef()
		return nil, false, vfs.ErrNotADirectory
	}
	return file, created, nil
}

func (s *fileSystemService) Read(ctx context.Context, fd uint64, buffer []byte, offset int64) (int, error) {
	const op = "service.fileSystemService.Read"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	f, err := s.fds.get(fd)
	if err != nil {
		logger.Debug("Bad file descriptor", slog.Uint64("fd", fd))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer f.vnode.DecRef()

	if !f.readable() {
		return 0, fmt.Errorf("%s: %w", op, vfs.ErrBadFileDescriptor)
	}

	n, err := f.vnode.Read(buffer, offset)
	if err != nil {
		logFailure(logger, "Failed to read", err, slog.Uint64("fd", fd), slog.String("path", f.path))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("Read",
		slog.Uint64("fd", fd),
		slog.Int64("offset", offset),
		slog.Int("bytes_read", n),
	)
	return n, nil
}

func (s *fileSystemService) Write(ctx context.Context, fd uint64, data []byte, offset int64) (int, error) {
	const op = "service.fileSystemService.Write"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	f, err := s.fds.get(fd)
	if err != nil {
		logger.Debug("Bad file descriptor", slog.Uint64("fd", fd))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer f.vnode.DecRef()

	if !f.writable() {
		return 0, fmt.Errorf("%s: %w", op, vfs.ErrBadFileDescriptor)
	}
	if f.flags&vfs.O_APPEND != 0 {
		offset = f.vnode.Size()
	}

	n, err := f.vnode.Write(data, offset)
	if err != nil {
		logFailure(logger, "Failed to write", err, slog.Uint64("fd", fd), slog.String("path", f.path))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("Written",
		slog.Uint64("fd", fd),
		slog.Int64("offset", offset),
		slog.Int("bytes_written", n),
	)
	return n, nil
}

func (s *fileSystemService) Close(ctx context.Context, fd uint64) error {
	const op = "service.fileSystemService.Close"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	f, err := s.fds.remove(fd)
	if err != nil {
		logger.Debug("Bad file descriptor", slog.Uint64("fd", fd))
		return fmt.Errorf("%s: %w", op, err)
	}
	f.vnode.DecRef()

	logger.Debug("Closed", slog.Uint64("fd", fd), slog.String("path", f.path))
	return nil
}

func (s *fileSystemService) Events(ctx context.Context, limit int) ([]models.Event, error) {
	const op = "service.fileSystemService.Events"

	if limit <= 0 {
		return nil, fmt.Errorf("%s: %w", op, vfs.ErrInvalidArgument)
	}

	events, err := s.events.List(ctx, limit)
	if err != nil {
		logging.GetLoggerFromContextWithOp(ctx, op).Error("Failed to list events", slogext.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}

// Shutdown closes every open descriptor.
func (s *fileSystemService) Shutdown(ctx context.Context) {
	const op = "service.fileSystemService.Shutdown"

	files := s.fds.drain()
	for _, f := range files {
		f.vnode.DecRef()
	}

	logging.GetLoggerFromContextWithOp(ctx, op).Info("Closed open files", slog.Int("count", len(files)))
}
