// Package linuxerr is the closed set of failures the syscall layer can
// report, expressed as Linux errno values.
//
// Every Sys* entry point returns either nil or one of the errors below.
// Collaborators (backend, registries) already speak errno; anything else
// that leaks through is collapsed to EIO by Errno.
package linuxerr

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Do the interface allocations only once for the errors returned on the
// syscall path.
var (
	// InvalidAddress: a user pointer is unmapped, forbidden or misaligned.
	InvalidAddress error = unix.EFAULT
	// InvalidEncoding: a user string is not valid UTF-8.
	InvalidEncoding error = unix.EILSEQ
	NoSuchEntry     error = unix.ENOENT
	IsADirectory    error = unix.EISDIR
	NotADirectory   error = unix.ENOTDIR
	BadDescriptor   error = unix.EBADF
	// AccessDenied is returned by permission checks on files.
	AccessDenied error = unix.EACCES
	// NotPermitted is returned when a privileged change is refused.
	NotPermitted    error = unix.EPERM
	InvalidArgument error = unix.EINVAL
	NoSuchProcess   error = unix.ESRCH
	NameTooLong     error = unix.ENAMETOOLONG
	NotImplemented  error = unix.ENOSYS
)

// Errno extracts the errno carried by err. A nil error is 0. Errors that
// do not wrap an errno are reported as EIO; callers that care log them.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}

// Return encodes the result of a syscall the way the ABI returns it:
// the value on success, -errno on failure.
func Return(val int64, err error) int64 {
	if err != nil {
		return -int64(Errno(err))
	}
	return val
}
