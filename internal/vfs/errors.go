package vfs

import "github.com/S1riyS/vnodefs/internal/pkg/kerrors"

// Error is a VFS failure carrying the kernel error code the system-call layer
// reports to callers. The exported values below are compared by identity, so
// errors.Is works on wrapped errors.
type Error struct {
	Code    int64
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// GetCode returns the positive errno value.
func (e *Error) GetCode() int64 {
	return e.Code
}

var (
	ErrNotFound          = &Error{Code: kerrors.ENOENT, Message: "no such file or directory"}
	ErrAlreadyExists     = &Error{Code: kerrors.EEXIST, Message: "file exists"}
	ErrInvalidName       = &Error{Code: kerrors.EINVAL, Message: "invalid file name"}
	ErrNameTooLong       = &Error{Code: kerrors.ENAMETOOLONG, Message: "file name too long"}
	ErrNotEmpty          = &Error{Code: kerrors.ENOTEMPTY, Message: "directory not empty"}
	ErrNotADirectory     = &Error{Code: kerrors.ENOTDIR, Message: "not a directory"}
	ErrIsADirectory      = &Error{Code: kerrors.EISDIR, Message: "is a directory"}
	ErrNotSupported      = &Error{Code: kerrors.ENOTSUP, Message: "operation not supported"}
	ErrOutOfMemory       = &Error{Code: kerrors.ENOMEM, Message: "out of memory"}
	ErrNotPermitted      = &Error{Code: kerrors.EPERM, Message: "operation not permitted"}
	ErrCrossDevice       = &Error{Code: kerrors.EXDEV, Message: "cross-device link"}
	ErrInvalidArgument   = &Error{Code: kerrors.EINVAL, Message: "invalid argument"}
	ErrBadFileDescriptor = &Error{Code: kerrors.EBADF, Message: "bad file descriptor"}
	ErrNoSpace           = &Error{Code: kerrors.ENOSPC, Message: "no space left on device"}
	ErrFileTooBig        = &Error{Code: kerrors.EFBIG, Message: "file too large"}
)
